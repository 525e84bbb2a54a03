// Package table holds the tabular payload type shared by the upstream client,
// the disk cache, and downstream consumers. A Table is an ordered list of
// column names plus rows of values, serializable to JSON for exact round-trip
// reconstruction.
package table

import "fmt"

// Table is a columnar result set. Rows hold one value per column, in column
// order. The zero value is an empty table with no columns.
type Table struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// New creates an empty table with the given column set.
func New(columns []string) *Table {
	return &Table{
		Columns: append([]string(nil), columns...),
		Rows:    [][]any{},
	}
}

// NumRows returns the number of rows in the table.
func (t *Table) NumRows() int {
	return len(t.Rows)
}

// Empty reports whether the table holds no rows. A table with columns but no
// rows is empty; an empty upstream season is a valid result, not an error.
func (t *Table) Empty() bool {
	return len(t.Rows) == 0
}

// Clone returns a deep copy of the table. Callers always receive their own
// copy so no two consumers share mutable row state.
func (t *Table) Clone() *Table {
	clone := &Table{
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([][]any, len(t.Rows)),
	}
	for i, row := range t.Rows {
		clone.Rows[i] = append([]any(nil), row...)
	}
	return clone
}

// Append adds another table's rows to t. The first table with columns fixes
// the column set; appending a table with a different column set is an error.
// Appending an empty, column-less table is a no-op.
func (t *Table) Append(other *Table) error {
	if other == nil || (len(other.Columns) == 0 && len(other.Rows) == 0) {
		return nil
	}

	if len(t.Columns) == 0 {
		t.Columns = append([]string(nil), other.Columns...)
	} else if !columnsEqual(t.Columns, other.Columns) {
		return fmt.Errorf("column mismatch: have %v, appending %v", t.Columns, other.Columns)
	}

	for _, row := range other.Rows {
		t.Rows = append(t.Rows, append([]any(nil), row...))
	}
	return nil
}

// Concat merges tables in order into a single new table.
func Concat(tables ...*Table) (*Table, error) {
	result := &Table{Rows: [][]any{}}
	for _, tbl := range tables {
		if err := result.Append(tbl); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func columnsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Package testutil provides shared test doubles for the fetch pipeline.
package testutil

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"nbafetcher/internal/table"
)

// MockClient is a mock implementation of the upstream client boundary for
// testing. It counts calls so tests can assert how many upstream requests a
// fetch actually issued.
type MockClient struct {
	CallFunc func(ctx context.Context, endpoint string, params map[string]string) (*table.Table, error)

	calls atomic.Int64
}

// Call implements the fetcher.Client interface.
func (m *MockClient) Call(ctx context.Context, endpoint string, params map[string]string) (*table.Table, error) {
	m.calls.Add(1)
	if m.CallFunc != nil {
		return m.CallFunc(ctx, endpoint, params)
	}
	return table.New(nil), nil
}

// Calls returns the number of upstream calls made so far.
func (m *MockClient) Calls() int {
	return int(m.calls.Load())
}

// SeasonTable builds a small table whose rows carry the given season string,
// so assembled multi-season results can be checked for ordering.
func SeasonTable(season string, rows int) *table.Table {
	tbl := table.New([]string{"SEASON_ID", "GAME_ID", "PTS"})
	for i := 0; i < rows; i++ {
		tbl.Rows = append(tbl.Rows, []any{season, i, 100 + i})
	}
	return tbl
}

// ResultSetsBody builds an upstream response body in the resultSets shape.
func ResultSetsBody(headers []string, rows [][]any) []byte {
	body := map[string]any{
		"resultSets": []map[string]any{
			{
				"name":    "ResultSet",
				"headers": headers,
				"rowSet":  rows,
			},
		},
	}
	data, err := json.Marshal(body)
	if err != nil {
		panic(err)
	}
	return data
}

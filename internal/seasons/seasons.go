// Package seasons handles NBA season identifiers. A season is named by its
// starting calendar year and rendered as "YYYY-YY" (e.g. 2019 -> "2019-20").
package seasons

import (
	"fmt"
	"time"
)

const (
	// MinYear is the earliest season starting year supported for data queries.
	MinYear = 1980
	// MaxYear is the latest season starting year supported for data queries.
	MaxYear = 2050
)

// Format renders a season starting year as the upstream "YYYY-YY" identifier.
// The ending part is the last two digits of the following calendar year, so
// century crossings come out as "1999-00".
func Format(year int) string {
	return fmt.Sprintf("%d-%02d", year, (year+1)%100)
}

// Current returns the starting year of the season in progress at t.
// The NBA season rolls over in October.
func Current(t time.Time) int {
	if t.Month() >= time.October {
		return t.Year()
	}
	return t.Year() - 1
}

// Range returns the starting years from start through end, inclusive and
// ascending. It returns an error if the interval is inverted or falls outside
// the supported year bounds.
func Range(start, end int) ([]int, error) {
	if start > end {
		return nil, fmt.Errorf("starting year %d is after ending year %d", start, end)
	}
	if start < MinYear || end > MaxYear {
		return nil, fmt.Errorf("season range %d-%d outside supported bounds %d-%d", start, end, MinYear, MaxYear)
	}

	years := make([]int, 0, end-start+1)
	for year := start; year <= end; year++ {
		years = append(years, year)
	}
	return years, nil
}

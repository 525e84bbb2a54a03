package cache

import (
	"fmt"
	"sort"
	"strings"
)

// recognizedParams is the full set of query options the upstream stats
// endpoints accept. Anything outside this set is a caller mistake and is
// rejected before it can pollute the cache keyspace.
var recognizedParams = map[string]struct{}{
	"Counter":         {},
	"DateFrom":        {},
	"DateTo":          {},
	"Direction":       {},
	"EndPeriod":       {},
	"EndRange":        {},
	"GameID":          {},
	"GameSegment":     {},
	"ISTRound":        {},
	"LastNGames":      {},
	"LeagueID":        {},
	"Location":        {},
	"MeasureType":     {},
	"Month":           {},
	"OpponentTeamID":  {},
	"Outcome":         {},
	"PORound":         {},
	"PaceAdjust":      {},
	"PerMode":         {},
	"Period":          {},
	"PlayerID":        {},
	"PlayerOrTeam":    {},
	"PlusMinus":       {},
	"RangeType":       {},
	"Rank":            {},
	"SeasonSegment":   {},
	"SeasonType":      {},
	"ShotClockRange":  {},
	"Sorter":          {},
	"StartPeriod":     {},
	"StartRange":      {},
	"TeamID":          {},
	"VsConference":    {},
	"VsDivision":      {},
}

// reservedSeasonParam is managed by the fetch orchestrator, which issues one
// key per season in the requested range. Callers must not set it directly.
const reservedSeasonParam = "Season"

// Key identifies a single cacheable unit of work: one endpoint, one parameter
// set, one season.
type Key struct {
	// Endpoint is the upstream endpoint name (e.g. "leaguegamelog").
	Endpoint string

	// Params are the normalized query parameters, excluding Season.
	Params map[string]string

	// Season is the season identifier in "YYYY-YY" form.
	Season string
}

// Build derives a Key from an endpoint, a parameter map, and a season.
// Unrecognized parameter names and a caller-supplied Season fail with
// ErrInvalidParameter. Build is pure: it never mutates its inputs.
func Build(endpoint string, params map[string]string, season string) (Key, error) {
	if endpoint == "" {
		return Key{}, fmt.Errorf("%w: endpoint must not be empty", ErrInvalidParameter)
	}
	if season == "" {
		return Key{}, fmt.Errorf("%w: season must not be empty", ErrInvalidParameter)
	}

	normalized := make(map[string]string, len(params))
	for name, value := range params {
		if name == reservedSeasonParam {
			return Key{}, fmt.Errorf("%w: %q is set per season by the fetcher and cannot be supplied directly",
				ErrInvalidParameter, reservedSeasonParam)
		}
		if _, ok := recognizedParams[name]; !ok {
			return Key{}, fmt.Errorf("%w: unrecognized option %q for endpoint %q",
				ErrInvalidParameter, name, endpoint)
		}
		normalized[name] = value
	}

	return Key{
		Endpoint: strings.Trim(endpoint, "/"),
		Params:   normalized,
		Season:   season,
	}, nil
}

// String generates a deterministic cache key string. Parameters are sorted by
// name so maps differing only in insertion order produce identical keys.
//
// Format: nba:endpoint:Season=2019-20:param1=val1:param2=val2
func (k Key) String() string {
	parts := []string{"nba", k.Endpoint, fmt.Sprintf("Season=%s", k.Season)}

	names := make([]string, 0, len(k.Params))
	for name := range k.Params {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%s", name, k.Params[name]))
	}

	return strings.Join(parts, ":")
}

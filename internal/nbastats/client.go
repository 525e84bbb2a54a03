// Package nbastats is the client for the upstream NBA statistics provider.
// The provider is treated as untrusted and unreliable: responses are decoded
// defensively and failures are classified so the caller can tell transient
// from permanent.
package nbastats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"resty.dev/v3"

	"nbafetcher/internal/fetcher"
	"nbafetcher/internal/table"
)

const defaultTimeout = 60 * time.Second

// Client calls upstream stats endpoints and decodes their tabular payloads.
//
// The resty client carries no retry configuration on purpose: retries are
// driven by the fetch orchestrator so that every attempt consumes a rate
// limiter permit.
type Client struct {
	client *resty.Client
	logger zerolog.Logger
}

// NewClient creates an upstream client against baseURL. The header set
// mimics a browser session; the provider rejects requests without it.
func NewClient(baseURL string, logger zerolog.Logger) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(defaultTimeout).
		SetHeaders(map[string]string{
			"User-Agent":         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
			"Accept":             "application/json, text/plain, */*",
			"Accept-Language":    "en-US,en;q=0.9",
			"Referer":            "https://www.nba.com/",
			"x-nba-stats-origin": "stats",
			"x-nba-stats-token":  "true",
		})

	return &Client{
		client: client,
		logger: logger,
	}
}

// Call fetches one endpoint with the given query parameters and returns the
// decoded tabular result. Errors are *fetcher.FetchError values classified as
// transient (network, timeout, rate limit, server) or permanent (client,
// validation).
func (c *Client) Call(ctx context.Context, endpoint string, params map[string]string) (*table.Table, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get(endpoint)

	if err != nil {
		return nil, classifyTransportError(err)
	}

	if !resp.IsSuccess() {
		return nil, fetcher.ClassifyHTTPError(resp.StatusCode())
	}

	tbl, err := decodePayload(resp.Bytes())
	if err != nil {
		c.logger.Debug().Err(err).Str("endpoint", endpoint).Msg("undecodable upstream payload")
		return nil, fetcher.NewValidationError(fmt.Sprintf("decode %s response: %v", endpoint, err))
	}

	return tbl, nil
}

// classifyTransportError maps transport-level failures onto the error
// taxonomy. Timeouts and connection faults are transient.
func classifyTransportError(err error) *fetcher.FetchError {
	if errors.Is(err, context.DeadlineExceeded) {
		return fetcher.NewTimeoutError(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fetcher.NewTimeoutError(err)
	}
	return fetcher.NewNetworkError(err)
}

// resultSet is the provider's older payload shape: column headers plus a row
// matrix.
type resultSet struct {
	Name    string   `json:"name"`
	Headers []string `json:"headers"`
	RowSet  [][]any  `json:"rowSet"`
}

// decodePayload handles both payload shapes the provider serves: the
// resultSets shape (headers + rowSet) and the newer flat shape where a single
// top-level field holds a list of records (e.g. boxScoreAdvanced).
func decodePayload(body []byte) (*table.Table, error) {
	var envelope struct {
		ResultSets []resultSet `json:"resultSets"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.ResultSets) > 0 {
		first := envelope.ResultSets[0]
		tbl := table.New(first.Headers)
		tbl.Rows = first.RowSet
		if tbl.Rows == nil {
			tbl.Rows = [][]any{}
		}
		return tbl, nil
	}

	var flat map[string]json.RawMessage
	if err := json.Unmarshal(body, &flat); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}

	// Scan top-level fields in name order for a list of records.
	names := make([]string, 0, len(flat))
	for name := range flat {
		names = append(names, name)
	}
	sort.Strings(names)

	sawEmpty := false
	for _, name := range names {
		var records []map[string]any
		if err := json.Unmarshal(flat[name], &records); err != nil {
			continue
		}
		if len(records) == 0 {
			// Keep scanning: another field may hold the actual rows.
			sawEmpty = true
			continue
		}
		return recordsToTable(records), nil
	}
	if sawEmpty {
		return table.New(nil), nil
	}

	return nil, errors.New("no resultSets or record list in response")
}

// recordsToTable converts a list of records to a table. Column order is not
// preserved by JSON objects, so columns are sorted by name for determinism.
func recordsToTable(records []map[string]any) *table.Table {
	if len(records) == 0 {
		return table.New(nil)
	}

	columns := make([]string, 0, len(records[0]))
	for name := range records[0] {
		columns = append(columns, name)
	}
	sort.Strings(columns)

	tbl := table.New(columns)
	for _, record := range records {
		row := make([]any, len(columns))
		for i, name := range columns {
			row[i] = record[name]
		}
		tbl.Rows = append(tbl.Rows, row)
	}
	return tbl
}

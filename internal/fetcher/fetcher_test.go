package fetcher

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"nbafetcher/internal/cache"
	"nbafetcher/internal/ratelimit"
	"nbafetcher/internal/table"
	"nbafetcher/internal/testutil"
)

func seasonClient() *testutil.MockClient {
	return &testutil.MockClient{
		CallFunc: func(ctx context.Context, endpoint string, params map[string]string) (*table.Table, error) {
			return testutil.SeasonTable(params["Season"], 2), nil
		},
	}
}

func newTestFetcher(client Client, store *cache.Store, opts Options) *Fetcher {
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 3
	}
	if opts.BaseDelay == 0 {
		opts.BaseDelay = time.Millisecond
	}
	return New(client, store, ratelimit.Unlimited(), opts, zerolog.Nop())
}

func newMemStore() *cache.Store {
	return cache.NewStore(afero.NewMemMapFs(), "cache", 1, zerolog.Nop())
}

func TestGetDataFrame_Idempotence(t *testing.T) {
	client := seasonClient()
	f := newTestFetcher(client, newMemStore(), Options{})

	first, err := f.GetDataFrame(context.Background(), "leaguegamelog", nil, 2019, 2021)
	if err != nil {
		t.Fatalf("GetDataFrame() returned unexpected error: %v", err)
	}
	if client.Calls() != 3 {
		t.Fatalf("first fetch made %d upstream calls, want 3", client.Calls())
	}

	second, err := f.GetDataFrame(context.Background(), "leaguegamelog", nil, 2019, 2021)
	if err != nil {
		t.Fatalf("GetDataFrame() returned unexpected error: %v", err)
	}
	if client.Calls() != 3 {
		t.Errorf("second identical fetch made %d additional upstream calls, want 0", client.Calls()-3)
	}
	if second.NumRows() != first.NumRows() {
		t.Errorf("second fetch returned %d rows, first returned %d", second.NumRows(), first.NumRows())
	}
}

func TestGetDataFrame_PartiallyCachedRange(t *testing.T) {
	store := newMemStore()

	// Pre-cache 2019 and 2020; 2021 stays a miss.
	for _, season := range []string{"2019-20", "2020-21"} {
		key, err := cache.Build("boxscoreadvanced", nil, season)
		if err != nil {
			t.Fatalf("Build() returned unexpected error: %v", err)
		}
		if err := store.Put(key, testutil.SeasonTable(season, 2)); err != nil {
			t.Fatalf("Put() returned unexpected error: %v", err)
		}
	}

	client := seasonClient()
	f := newTestFetcher(client, store, Options{})

	result, err := f.GetDataFrame(context.Background(), "boxscoreadvanced", nil, 2019, 2021)
	if err != nil {
		t.Fatalf("GetDataFrame() returned unexpected error: %v", err)
	}

	if client.Calls() != 1 {
		t.Errorf("made %d upstream calls, want exactly 1 (only 2021 was a miss)", client.Calls())
	}

	// All three seasons present, in ascending order.
	expected := []string{"2019-20", "2019-20", "2020-21", "2020-21", "2021-22", "2021-22"}
	if result.NumRows() != len(expected) {
		t.Fatalf("result has %d rows, want %d", result.NumRows(), len(expected))
	}
	for i, season := range expected {
		if result.Rows[i][0] != season {
			t.Errorf("Rows[%d] season = %v, want %s", i, result.Rows[i][0], season)
		}
	}
}

func TestGetDataFrame_FailFastOnPermanentError(t *testing.T) {
	store := newMemStore()
	client := &testutil.MockClient{
		CallFunc: func(ctx context.Context, endpoint string, params map[string]string) (*table.Table, error) {
			if params["Season"] == "2020-21" {
				return nil, NewClientError(404, "no such dataset")
			}
			return testutil.SeasonTable(params["Season"], 1), nil
		},
	}
	f := newTestFetcher(client, store, Options{Policy: FailFast})

	_, err := f.GetDataFrame(context.Background(), "leaguegamelog", nil, 2019, 2021)
	if err == nil {
		t.Fatal("GetDataFrame() expected error under fail_fast, got nil")
	}
	if !strings.Contains(err.Error(), "2020-21") {
		t.Errorf("error %q does not identify the failed season", err)
	}

	// The failed season must not have been cached; the preceding season must.
	key2019, _ := cache.Build("leaguegamelog", nil, "2019-20")
	if _, err := store.Get(key2019); err != nil {
		t.Errorf("2019-20 entry missing after fail_fast abort: %v", err)
	}
	key2020, _ := cache.Build("leaguegamelog", nil, "2020-21")
	if _, err := store.Get(key2020); !errors.Is(err, cache.ErrCacheMiss) {
		t.Errorf("2020-21 Get() error = %v, want ErrCacheMiss (failed season must not be cached)", err)
	}
}

func TestGetDataFrame_SkipAndWarnReturnsPartialResult(t *testing.T) {
	client := &testutil.MockClient{
		CallFunc: func(ctx context.Context, endpoint string, params map[string]string) (*table.Table, error) {
			if params["Season"] == "2020-21" {
				return nil, NewClientError(404, "no such dataset")
			}
			return testutil.SeasonTable(params["Season"], 1), nil
		},
	}
	f := newTestFetcher(client, newMemStore(), Options{Policy: SkipAndWarn})

	result, err := f.GetDataFrame(context.Background(), "leaguegamelog", nil, 2019, 2021)
	if err != nil {
		t.Fatalf("GetDataFrame() returned unexpected error under skip_and_warn: %v", err)
	}

	expected := []string{"2019-20", "2021-22"}
	if result.NumRows() != len(expected) {
		t.Fatalf("result has %d rows, want %d", result.NumRows(), len(expected))
	}
	for i, season := range expected {
		if result.Rows[i][0] != season {
			t.Errorf("Rows[%d] season = %v, want %s", i, result.Rows[i][0], season)
		}
	}
}

func TestGetDataFrame_EmptySeasonCountsAsHit(t *testing.T) {
	client := &testutil.MockClient{
		CallFunc: func(ctx context.Context, endpoint string, params map[string]string) (*table.Table, error) {
			return table.New([]string{"SEASON_ID"}), nil
		},
	}
	f := newTestFetcher(client, newMemStore(), Options{})

	result, err := f.GetDataFrame(context.Background(), "leaguegamelog", nil, 2004, 2004)
	if err != nil {
		t.Fatalf("GetDataFrame() returned unexpected error: %v", err)
	}
	if !result.Empty() {
		t.Errorf("result has %d rows, want 0", result.NumRows())
	}
	if client.Calls() != 1 {
		t.Fatalf("made %d upstream calls, want 1", client.Calls())
	}

	// A known-empty season must be served from cache, not refetched.
	if _, err := f.GetDataFrame(context.Background(), "leaguegamelog", nil, 2004, 2004); err != nil {
		t.Fatalf("GetDataFrame() returned unexpected error: %v", err)
	}
	if client.Calls() != 1 {
		t.Errorf("refetch of known-empty season made %d additional upstream calls, want 0", client.Calls()-1)
	}
}

func TestGetDataFrame_RetriesExhausted(t *testing.T) {
	client := &testutil.MockClient{
		CallFunc: func(ctx context.Context, endpoint string, params map[string]string) (*table.Table, error) {
			return nil, NewServerError(503)
		},
	}
	f := newTestFetcher(client, newMemStore(), Options{MaxAttempts: 3})

	_, err := f.GetDataFrame(context.Background(), "leaguegamelog", nil, 2019, 2019)
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Errorf("error = %v, want ErrRetriesExhausted", err)
	}
	if client.Calls() != 3 {
		t.Errorf("made %d upstream calls, want exactly max_attempts (3)", client.Calls())
	}
}

func TestGetDataFrame_InvalidParameter(t *testing.T) {
	client := seasonClient()
	f := newTestFetcher(client, newMemStore(), Options{})

	_, err := f.GetDataFrame(context.Background(), "leaguegamelog", map[string]string{"Bogus": "1"}, 2019, 2019)
	if !errors.Is(err, cache.ErrInvalidParameter) {
		t.Errorf("error = %v, want ErrInvalidParameter", err)
	}
	if client.Calls() != 0 {
		t.Errorf("made %d upstream calls for an invalid request, want 0", client.Calls())
	}
}

func TestGetDataFrame_InvalidSeasonRange(t *testing.T) {
	f := newTestFetcher(seasonClient(), newMemStore(), Options{})

	if _, err := f.GetDataFrame(context.Background(), "leaguegamelog", nil, 2021, 2019); err == nil {
		t.Error("GetDataFrame() with inverted range expected error, got nil")
	}
}

func TestGetDataFrame_ConcurrentCallersShareOneFetch(t *testing.T) {
	client := &testutil.MockClient{
		CallFunc: func(ctx context.Context, endpoint string, params map[string]string) (*table.Table, error) {
			// Slow enough that all callers pile onto the in-flight fetch.
			time.Sleep(50 * time.Millisecond)
			return testutil.SeasonTable(params["Season"], 1), nil
		},
	}
	f := newTestFetcher(client, newMemStore(), Options{})

	const callers = 8
	results := make([]*table.Table, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.GetDataFrame(context.Background(), "leaguegamelog", nil, 2019, 2019)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d returned unexpected error: %v", i, errs[i])
		}
		if results[i].NumRows() != 1 {
			t.Errorf("caller %d got %d rows, want 1", i, results[i].NumRows())
		}
	}

	if client.Calls() != 1 {
		t.Errorf("%d concurrent callers made %d upstream calls, want 1", callers, client.Calls())
	}

	// Results are caller-owned: mutating one must not affect another.
	results[0].Rows[0][0] = "mutated"
	if results[1].Rows[0][0] == "mutated" {
		t.Error("concurrent callers share mutable row state")
	}
}

func TestGetDataFrame_CacheWriteFailureStillReturnsData(t *testing.T) {
	// Writes fail on a read-only filesystem; the fetched data must still be
	// returned, since staleness risk is a warning, not a failure.
	store := cache.NewStore(afero.NewReadOnlyFs(afero.NewMemMapFs()), "cache", 1, zerolog.Nop())
	client := seasonClient()
	f := newTestFetcher(client, store, Options{})

	result, err := f.GetDataFrame(context.Background(), "leaguegamelog", nil, 2019, 2019)
	if err != nil {
		t.Fatalf("GetDataFrame() returned unexpected error: %v", err)
	}
	if result.NumRows() != 2 {
		t.Errorf("result has %d rows, want 2", result.NumRows())
	}
}

func TestInvalidate_ForcesRefetch(t *testing.T) {
	client := seasonClient()
	f := newTestFetcher(client, newMemStore(), Options{})

	if _, err := f.GetDataFrame(context.Background(), "leaguegamelog", nil, 2019, 2019); err != nil {
		t.Fatalf("GetDataFrame() returned unexpected error: %v", err)
	}
	if err := f.Invalidate("leaguegamelog", nil, 2019); err != nil {
		t.Fatalf("Invalidate() returned unexpected error: %v", err)
	}
	if _, err := f.GetDataFrame(context.Background(), "leaguegamelog", nil, 2019, 2019); err != nil {
		t.Fatalf("GetDataFrame() returned unexpected error: %v", err)
	}

	if client.Calls() != 2 {
		t.Errorf("made %d upstream calls, want 2 (invalidation forces a refetch)", client.Calls())
	}
}

// Package fetcher orchestrates cached multi-season fetches against the
// upstream stats provider: cache reads first, then rate-limited, retried
// upstream calls to fill the misses.
package fetcher

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"nbafetcher/internal/cache"
	"nbafetcher/internal/ratelimit"
	"nbafetcher/internal/seasons"
	"nbafetcher/internal/table"
)

// Client is the upstream provider boundary. Implementations return the
// decoded tabular rows for one endpoint call, or a *FetchError classified as
// transient or permanent.
type Client interface {
	Call(ctx context.Context, endpoint string, params map[string]string) (*table.Table, error)
}

// PartialResultPolicy decides what happens when one season of a multi-season
// fetch fails terminally.
type PartialResultPolicy string

const (
	// FailFast aborts the whole fetch on the first season failure. This is
	// the default: for a modeling pipeline a silent partial result is worse
	// than an explicit error.
	FailFast PartialResultPolicy = "fail_fast"

	// SkipAndWarn drops the failed season, logs a warning identifying it,
	// and returns the remaining seasons.
	SkipAndWarn PartialResultPolicy = "skip_and_warn"
)

// Options configures a Fetcher.
type Options struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Policy      PartialResultPolicy
}

// Fetcher is the sole entry point surrounding components depend on. It owns
// no long-lived references into the cache or results it returns; every caller
// gets a freshly owned table.
type Fetcher struct {
	upstream Client
	store    *cache.Store
	limiter  *ratelimit.Limiter
	opts     Options
	logger   zerolog.Logger

	// group deduplicates concurrent fetches of the same key: late arrivals
	// await the in-flight call instead of spending another rate limit slot.
	group singleflight.Group
}

// New creates a Fetcher. All shared state (store, limiter) is passed in
// explicitly so independent instances can coexist in tests.
func New(upstream Client, store *cache.Store, limiter *ratelimit.Limiter, opts Options, logger zerolog.Logger) *Fetcher {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.Policy == "" {
		opts.Policy = FailFast
	}
	return &Fetcher{
		upstream: upstream,
		store:    store,
		limiter:  limiter,
		opts:     opts,
		logger:   logger,
	}
}

// GetDataFrame returns the concatenation, in ascending season order, of the
// per-season results for endpoint over [startingYear, endingYear]. Seasons
// already cached are served from disk; misses go upstream through the rate
// limiter and retry policy and are cached on success.
func (f *Fetcher) GetDataFrame(ctx context.Context, endpoint string, params map[string]string, startingYear, endingYear int) (*table.Table, error) {
	years, err := seasons.Range(startingYear, endingYear)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cache.ErrInvalidParameter, err)
	}

	result := &table.Table{Rows: [][]any{}}

	for _, year := range years {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("fetch %s aborted: %w", endpoint, err)
		}

		season := seasons.Format(year)
		key, err := cache.Build(endpoint, params, season)
		if err != nil {
			return nil, err
		}

		tbl, err := f.fetchSeason(ctx, key)
		if err != nil {
			if f.opts.Policy == SkipAndWarn {
				f.logger.Warn().
					Err(err).
					Str("endpoint", endpoint).
					Str("season", season).
					Msg("skipping season, result will be partial")
				continue
			}
			return nil, fmt.Errorf("fetch %s season %s: %w", endpoint, season, err)
		}

		if err := result.Append(tbl); err != nil {
			return nil, fmt.Errorf("assemble %s season %s: %w", endpoint, season, err)
		}
	}

	return result, nil
}

// Invalidate removes the cached entry for one endpoint/params/season tuple.
func (f *Fetcher) Invalidate(endpoint string, params map[string]string, year int) error {
	key, err := cache.Build(endpoint, params, seasons.Format(year))
	if err != nil {
		return err
	}
	return f.store.Invalidate(key)
}

// fetchSeason resolves one key: cache hit, or a deduplicated upstream fetch.
func (f *Fetcher) fetchSeason(ctx context.Context, key cache.Key) (*table.Table, error) {
	if entry, err := f.store.Get(key); err == nil {
		f.logger.Debug().Str("key", key.String()).Msg("cache hit")
		return entry.Payload, nil
	}

	v, err, shared := f.group.Do(key.String(), func() (any, error) {
		// Re-check the cache: another fetch may have completed while this
		// caller waited to enter the group.
		if entry, err := f.store.Get(key); err == nil {
			return entry.Payload, nil
		}
		return f.fetchUpstream(ctx, key)
	})
	if err != nil {
		return nil, err
	}

	tbl := v.(*table.Table)
	if shared {
		// Duplicate waiters share the group's return value; hand each caller
		// its own copy.
		tbl = tbl.Clone()
	}
	return tbl, nil
}

// fetchUpstream performs the rate-limited, retried upstream call for one key
// and persists the result.
func (f *Fetcher) fetchUpstream(ctx context.Context, key cache.Key) (*table.Table, error) {
	// Detached context: once dispatched, an upstream call completes and
	// populates the cache even if the requesting caller goes away. Worst-case
	// latency stays bounded by MaxAttempts.
	fetchCtx := context.WithoutCancel(ctx)

	cfg := RetryConfig{
		MaxAttempts: f.opts.MaxAttempts,
		BaseDelay:   f.opts.BaseDelay,
		MaxDelay:    f.opts.MaxDelay,
	}

	tbl, err := callWithRetry(fetchCtx, cfg, f.logger, f.limiter.Wait, func(ctx context.Context) (*table.Table, error) {
		callParams := maps.Clone(key.Params)
		if callParams == nil {
			callParams = map[string]string{}
		}
		callParams["Season"] = key.Season
		return f.upstream.Call(ctx, key.Endpoint, callParams)
	})
	if err != nil {
		return nil, err
	}

	// Empty seasons are cached too: a known-empty season is a valid result
	// and should not be refetched.
	if err := f.store.Put(key, tbl); err != nil {
		// The fetched data is still correct; only future freshness is at
		// risk, so warn and return it.
		f.logger.Warn().Err(err).Str("key", key.String()).Msg("cache write failed, returning uncached result")
	}

	return tbl, nil
}

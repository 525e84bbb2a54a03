// Package coordinator runs a set of dataset fetch jobs concurrently to warm
// the cache before model training or API serving.
package coordinator

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"nbafetcher/internal/fetcher"
)

// Job describes one dataset to fetch: an endpoint, its parameters, and the
// season range.
type Job struct {
	Endpoint     string
	Params       map[string]string
	StartingYear int
	EndingYear   int
}

// Result is the outcome of one job, sent from worker goroutines back to Run.
type Result struct {
	Job  Job
	Rows int
	Err  error
}

// Coordinator fans jobs out over the shared fetcher and collects results.
// Concurrency here is safe because the fetcher deduplicates per-key work and
// the rate limiter bounds the upstream call rate regardless of job count.
type Coordinator struct {
	fetcher *fetcher.Fetcher
	jobs    []Job
	logger  zerolog.Logger
}

// New creates a Coordinator running the given jobs against f.
func New(f *fetcher.Fetcher, jobs []Job, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		fetcher: f,
		jobs:    jobs,
		logger:  logger,
	}
}

// Run executes all jobs concurrently and logs results as they arrive. It
// returns an error if no jobs are configured or if any job failed.
func (c *Coordinator) Run(ctx context.Context) error {
	if len(c.jobs) == 0 {
		return fmt.Errorf("no jobs configured")
	}

	resultChan := make(chan Result, len(c.jobs))

	var wg sync.WaitGroup
	for _, job := range c.jobs {
		wg.Add(1)
		go func(j Job) {
			defer wg.Done()

			tbl, err := c.fetcher.GetDataFrame(ctx, j.Endpoint, j.Params, j.StartingYear, j.EndingYear)

			result := Result{Job: j, Err: err}
			if err == nil {
				result.Rows = tbl.NumRows()
			}
			resultChan <- result
		}(job)
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	var failed int
	for result := range resultChan {
		if result.Err != nil {
			failed++
			c.logger.Error().
				Err(result.Err).
				Str("endpoint", result.Job.Endpoint).
				Int("starting_year", result.Job.StartingYear).
				Int("ending_year", result.Job.EndingYear).
				Msg("job failed")
			continue
		}
		c.logger.Info().
			Str("endpoint", result.Job.Endpoint).
			Int("starting_year", result.Job.StartingYear).
			Int("ending_year", result.Job.EndingYear).
			Int("rows", result.Rows).
			Msg("job completed")
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d jobs failed", failed, len(c.jobs))
	}
	return nil
}

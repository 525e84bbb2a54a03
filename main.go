package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"

	"nbafetcher/internal/cache"
	"nbafetcher/internal/config"
	"nbafetcher/internal/coordinator"
	"nbafetcher/internal/fetcher"
	"nbafetcher/internal/logging"
	"nbafetcher/internal/nbastats"
	"nbafetcher/internal/ratelimit"
	"nbafetcher/internal/seasons"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logging.Setup(logging.Config{Level: "error"})
		fallbackLogger := logging.NewLogger("main")
		fallbackLogger.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Setup(logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	logger := logging.NewLogger("main")

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signals for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info().Msg("received interrupt signal, shutting down")
		cancel()
	}()

	// Wire the fetch pipeline: disk store, rate limiter, upstream client,
	// orchestrator. Everything is constructed explicitly; no package-level
	// shared state.
	store := cache.NewStore(afero.NewOsFs(), cfg.CacheRoot, cfg.SchemaVersion, logging.NewLogger("cache"))

	limiter, err := ratelimit.New(ratelimit.Config{
		CallsPerWindow: cfg.CallsPerWindow,
		WindowSeconds:  cfg.WindowSeconds,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid rate limit configuration")
	}

	upstream := nbastats.NewClient(cfg.UpstreamBaseURL, logging.NewLogger("nbastats"))

	f := fetcher.New(upstream, store, limiter, fetcher.Options{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   time.Duration(cfg.BaseDelaySeconds * float64(time.Second)),
		Policy:      fetcher.PartialResultPolicy(cfg.PartialResultPolicy),
	}, logging.NewLogger("fetcher"))

	// Build warmup jobs from configuration
	endingYear := cfg.EndingYear
	if endingYear == 0 {
		endingYear = seasons.Current(time.Now())
	}

	jobs := make([]coordinator.Job, 0, len(cfg.Datasets))
	for _, dataset := range cfg.Datasets {
		jobs = append(jobs, coordinator.Job{
			Endpoint:     dataset.Endpoint,
			Params:       dataset.Params,
			StartingYear: cfg.StartingYear,
			EndingYear:   endingYear,
		})
	}

	coord := coordinator.New(f, jobs, logging.NewLogger("coordinator"))

	// Bound the whole warmup run so a stalled upstream cannot hang forever
	fetchCtx, fetchCancel := context.WithTimeout(ctx, 30*time.Minute)
	defer fetchCancel()

	logger.Info().Int("jobs", len(jobs)).Msg("warming cache")
	if err := coord.Run(fetchCtx); err != nil {
		logger.Fatal().Err(err).Msg("cache warmup failed")
	}

	logger.Info().Msg("all jobs completed")
}

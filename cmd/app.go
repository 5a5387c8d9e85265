package cmd

import (
	"fmt"

	"postfetch/internal/download"
	"postfetch/internal/extract"
	"postfetch/internal/metrics"
	"postfetch/internal/provider"
	"postfetch/internal/ratelimit"
	"postfetch/internal/resolve"
	"postfetch/internal/store"
)

// app is the resolution stack shared by the resolve and serve commands.
type app struct {
	store    *store.Store
	limiter  *ratelimit.Limiter
	registry *provider.Registry
	service  *resolve.Service
}

// buildApp wires the components described by cfg. withLimiter is false for
// one-off CLI use.
func buildApp(m metrics.Metrics, withLimiter bool) (*app, error) {
	dir, err := cfg.ExpandDownloadsDir()
	if err != nil {
		return nil, err
	}
	st, err := store.New(dir)
	if err != nil {
		return nil, fmt.Errorf("opening downloads directory: %w", err)
	}

	sessions := extract.NewSessions(cfg.Browser.MaxSessions,
		extract.WithExecPath(cfg.Browser.ExecPath),
		extract.WithHeadless(cfg.Browser.Headless),
		extract.WithPageLoadTimeout(cfg.Timeouts.PageLoad.Duration),
		extract.WithSettleDelay(cfg.Timeouts.Settle.Duration),
		extract.WithSessionLogger(logger),
	)
	registry := provider.NewDefault(cfg, sessions, logger)

	fetcher := download.New(
		download.WithTimeout(cfg.Timeouts.Fetch.Duration),
		download.WithMaxSize(cfg.MaxFileSize),
		download.WithLogger(logger),
		download.WithMetrics(m),
	)

	a := &app{store: st, registry: registry}
	opts := []resolve.Option{resolve.WithLogger(logger), resolve.WithMetrics(m)}
	if withLimiter && cfg.RateLimit.Enabled {
		a.limiter = ratelimit.New(cfg.RateLimit.PerMinute, cfg.RateLimit.PerHour)
		opts = append(opts, resolve.WithLimiter(a.limiter))
	}
	a.service = resolve.NewService(resolve.NewPipeline(registry, m), fetcher, st, opts...)
	return a, nil
}

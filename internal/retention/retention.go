// Package retention reclaims stored media files that callers never removed.
package retention

import (
	"context"
	"time"

	"go.uber.org/zap"

	"postfetch/internal/logging"
	"postfetch/internal/metrics"
	"postfetch/internal/schedule"
	"postfetch/internal/store"
)

// Defaults for the sweep cadence.
const (
	DefaultMaxAge       = time.Hour
	DefaultInitialDelay = 5 * time.Second
)

// Manager deletes stored files older than MaxAge.
type Manager struct {
	store        *store.Store
	maxAge       time.Duration
	initialDelay time.Duration
	now          func() time.Time
	log          *zap.Logger
	metrics      metrics.Metrics
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithInitialDelay sets the delay before the first sweep after Start.
func WithInitialDelay(d time.Duration) Option {
	return func(m *Manager) { m.initialDelay = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.log = logging.OrNop(l).Named("retention") }
}

// WithMetrics sets the metrics sink.
func WithMetrics(mt metrics.Metrics) Option {
	return func(m *Manager) {
		if mt != nil {
			m.metrics = mt
		}
	}
}

// New returns a Manager for s. A non-positive maxAge uses DefaultMaxAge.
func New(s *store.Store, maxAge time.Duration, opts ...Option) *Manager {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	m := &Manager{
		store:        s,
		maxAge:       maxAge,
		initialDelay: DefaultInitialDelay,
		now:          time.Now,
		log:          zap.NewNop(),
		metrics:      metrics.Noop{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Sweep deletes every stored file last modified before now-maxAge and
// returns how many were removed. Per-file failures are logged and skipped.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	files, err := m.store.List()
	if err != nil {
		return 0, err
	}

	cutoff := m.now().Add(-m.maxAge)
	deleted := 0
	for _, f := range files {
		if ctx.Err() != nil {
			break
		}
		if !f.CreatedAt.Before(cutoff) {
			continue
		}
		if err := m.store.Remove(f.Path); err != nil {
			m.log.Warn("removing expired file", zap.String("path", f.Path), zap.Error(err))
			continue
		}
		deleted++
	}

	if deleted > 0 {
		m.log.Info("cleaned up expired files", zap.Int("count", deleted))
		m.metrics.AddRetentionDeleted(deleted)
	}
	return deleted, ctx.Err()
}

// Start schedules a sweep every maxAge on s, plus one shortly after start.
// The initial sweep is abandoned if ctx ends first.
func (m *Manager) Start(ctx context.Context, s *schedule.Scheduler) error {
	if err := s.Every("retention", m.maxAge, func() { m.sweepAndLog(ctx) }); err != nil {
		return err
	}

	go func() {
		t := time.NewTimer(m.initialDelay)
		defer t.Stop()
		select {
		case <-ctx.Done():
		case <-t.C:
			m.sweepAndLog(ctx)
		}
	}()
	return nil
}

func (m *Manager) sweepAndLog(ctx context.Context) {
	if _, err := m.Sweep(ctx); err != nil && ctx.Err() == nil {
		m.log.Error("retention sweep failed", zap.Error(err))
	}
}

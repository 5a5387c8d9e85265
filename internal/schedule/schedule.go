// Package schedule runs the periodic maintenance jobs (rate window pruning,
// retention sweeps) on a cron scheduler.
package schedule

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"postfetch/internal/logging"
)

// Scheduler runs interval jobs. Jobs never overlap with themselves and a
// panicking job is recovered and logged.
type Scheduler struct {
	cron    *cron.Cron
	log     *zap.Logger
	mu      sync.Mutex
	started bool
}

// New creates a stopped scheduler.
func New(log *zap.Logger) *Scheduler {
	log = logging.OrNop(log).Named("schedule")
	cl := cronLogger{log.Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		log: log,
	}
}

// Every registers fn to run every d once the scheduler is started.
func (s *Scheduler) Every(name string, d time.Duration, fn func()) error {
	if d <= 0 {
		return fmt.Errorf("job %s: interval must be positive, got %s", name, d)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.cron.AddFunc("@every "+d.String(), fn); err != nil {
		return fmt.Errorf("add job %s: %w", name, err)
	}
	s.log.Debug("job registered", zap.String("job", name), zap.Duration("interval", d))
	return nil
}

// Start begins running jobs. Calling it twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.cron.Start()
		s.started = true
	}
}

// Stop halts the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		<-s.cron.Stop().Done()
		s.started = false
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}

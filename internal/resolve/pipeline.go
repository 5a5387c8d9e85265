// Package resolve turns a shared post link into a stored media file: it
// classifies the link, walks the platform's extraction strategies in order
// and retrieves the first media found.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"postfetch/internal/extract"
	"postfetch/internal/failure"
	"postfetch/internal/logging"
	"postfetch/internal/media"
	"postfetch/internal/metrics"
	"postfetch/internal/provider"
)

// Attempt records one strategy invocation.
type Attempt struct {
	Strategy string
	Skipped  bool         // Precondition unmet; not counted as a failure
	Err      error        // Nil when the strategy ran but found nothing
	Code     failure.Code // Reason code of Err
	Elapsed  time.Duration
}

type outcome struct {
	d   *media.Descriptor
	err error
}

// Pipeline tries a platform's strategies one after another until one
// yields media.
type Pipeline struct {
	registry *provider.Registry
	metrics  metrics.Metrics
}

// NewPipeline returns a pipeline over registry. A nil m disables metrics.
func NewPipeline(registry *provider.Registry, m metrics.Metrics) *Pipeline {
	if m == nil {
		m = metrics.Noop{}
	}
	return &Pipeline{registry: registry, metrics: m}
}

// Run walks the strategies registered for c.Platform and returns the first
// descriptor found together with the name of the strategy that found it.
// When every strategy comes back empty the error carries NoMediaFound and
// wraps the individual attempt errors.
func (p *Pipeline) Run(ctx context.Context, c *media.ClassifiedURL) (*media.Descriptor, string, []Attempt, error) {
	log := logging.FromContext(ctx)
	platform := c.Platform.String()

	var (
		attempts []Attempt
		errs     *multierror.Error
	)

	for _, entry := range p.registry.Strategies(c.Platform) {
		if err := ctx.Err(); err != nil {
			return nil, "", attempts, failure.New(failure.CodeOf(err), "resolve", err)
		}

		name := entry.Strategy.Name()
		start := time.Now()
		d, err := p.attempt(ctx, entry, c.URL)
		elapsed := time.Since(start)

		if errors.Is(err, extract.ErrSkipped) {
			attempts = append(attempts, Attempt{Strategy: name, Skipped: true, Elapsed: elapsed})
			p.metrics.IncStrategyAttempt(platform, name, "skipped")
			log.Debug("strategy skipped", zap.String("strategy", name))
			continue
		}

		p.metrics.ObserveStrategy(platform, name, elapsed.Seconds())

		if err == nil && d != nil && d.SourceURL != "" {
			attempts = append(attempts, Attempt{Strategy: name, Elapsed: elapsed})
			p.metrics.IncStrategyAttempt(platform, name, "success")
			log.Info("media resolved",
				zap.String("strategy", name),
				zap.Stringer("kind", d.Kind),
				zap.Duration("elapsed", elapsed),
			)
			return d, name, attempts, nil
		}

		a := Attempt{Strategy: name, Err: err, Code: failure.CodeOf(err), Elapsed: elapsed}
		attempts = append(attempts, a)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", name, err))
			p.metrics.IncStrategyAttempt(platform, name, string(a.Code))
			log.Warn("strategy failed",
				zap.String("strategy", name),
				zap.String("code", string(a.Code)),
				zap.Duration("elapsed", elapsed),
				zap.Error(err),
			)
		} else {
			p.metrics.IncStrategyAttempt(platform, name, "empty")
			log.Info("strategy found no media", zap.String("strategy", name), zap.Duration("elapsed", elapsed))
		}
	}

	return nil, "", attempts, failure.New(failure.NoMediaFound, "resolve", errs.ErrorOrNil())
}

// attempt runs one strategy bounded by its timeout. On expiry the strategy's
// context is cancelled and its result, whenever it arrives, is discarded.
func (p *Pipeline) attempt(ctx context.Context, entry provider.Entry, postURL string) (*media.Descriptor, error) {
	actx := ctx
	cancel := func() {}
	if entry.Timeout > 0 {
		actx, cancel = context.WithTimeout(ctx, entry.Timeout)
	}
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		d, err := entry.Strategy.Attempt(actx, postURL)
		done <- outcome{d: d, err: err}
	}()

	select {
	case o := <-done:
		return o.d, o.err
	case <-actx.Done():
		err := actx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, failure.New(failure.NetworkTimeout, entry.Strategy.Name(),
				fmt.Errorf("no result within %s: %w", entry.Timeout, err))
		}
		return nil, err
	}
}

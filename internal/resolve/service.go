package resolve

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"postfetch/internal/classify"
	"postfetch/internal/download"
	"postfetch/internal/failure"
	"postfetch/internal/logging"
	"postfetch/internal/media"
	"postfetch/internal/metrics"
	"postfetch/internal/ratelimit"
	"postfetch/internal/store"
)

// Request is one inbound link to resolve.
type Request struct {
	Text     string // Free text containing the link
	UserID   string // Requester, used for rate limiting and file naming
	Progress download.Progress
	// Started, when set, is called once the request is admitted and the
	// link classified, before any strategy runs.
	Started func(media.Platform)
}

// Result is the outcome of a Request. On success FilePath names the stored
// file; on failure Code and Message explain why.
type Result struct {
	RequestID string
	Success   bool
	Platform  media.Platform
	PostURL   string
	Kind      media.Kind
	FilePath  string
	Caption   string
	SizeBytes int64
	Strategy  string
	Code      failure.Code
	Message   string
	Attempts  []Attempt
	Err       error
}

// Service wires the limiter, classifier, pipeline, store and fetcher into
// a single Resolve call.
type Service struct {
	pipeline *Pipeline
	fetcher  *download.Fetcher
	store    *store.Store
	limiter  *ratelimit.Limiter
	log      *zap.Logger
	metrics  metrics.Metrics
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLimiter enables per-user rate limiting.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(s *Service) { s.limiter = l }
}

// WithLogger sets the base logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.log = logging.OrNop(l) }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m metrics.Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithClock overrides the time source used for file names.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService returns a Service. Without WithLimiter every request is admitted.
func NewService(p *Pipeline, f *download.Fetcher, st *store.Store, opts ...Option) *Service {
	s := &Service{
		pipeline: p,
		fetcher:  f,
		store:    st,
		log:      zap.NewNop(),
		metrics:  metrics.Noop{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Resolve runs a request to completion. It never returns nil; failures are
// reported through the Result.
func (s *Service) Resolve(ctx context.Context, req Request) *Result {
	res := &Result{RequestID: uuid.NewString()}
	log := s.log.With(zap.String("request_id", res.RequestID), zap.String("user_id", req.UserID))

	if s.limiter != nil && !s.limiter.Admit(req.UserID) {
		s.metrics.IncRateLimited()
		log.Info("request rate limited")
		return s.fail(res, failure.New(failure.RateLimited, "admit", nil))
	}

	c, err := classify.Classify(req.Text)
	if err != nil {
		log.Info("link rejected", zap.Error(err))
		return s.fail(res, err)
	}
	res.Platform = c.Platform
	res.PostURL = c.URL

	log = log.With(zap.String("platform", c.Platform.String()), zap.String("url", c.URL))
	ctx = logging.WithLogger(ctx, log)
	log.Info("resolving post")
	if req.Started != nil {
		req.Started(c.Platform)
	}

	d, strategy, attempts, err := s.pipeline.Run(ctx, c)
	res.Attempts = attempts
	if err != nil {
		log.Warn("resolution failed", zap.Int("attempts", len(attempts)), zap.Error(err))
		return s.fail(res, err)
	}
	res.Strategy = strategy
	res.Kind = d.Kind
	res.Caption = d.Caption

	path, err := s.store.PathFor(c.Platform, req.UserID, d.Kind, s.now())
	if err != nil {
		return s.fail(res, err)
	}

	file, err := s.fetcher.Fetch(ctx, d, c.Platform, path, req.Progress)
	if err != nil {
		log.Warn("media retrieval failed", zap.String("source", d.SourceURL), zap.Error(err))
		return s.fail(res, err)
	}

	res.Success = true
	res.FilePath = file.Path
	res.SizeBytes = file.Size
	s.metrics.IncResolution(c.Platform.String(), "success")
	log.Info("media stored",
		zap.String("strategy", strategy),
		zap.String("path", file.Path),
		zap.Int64("bytes", file.Size),
	)
	return res
}

func (s *Service) fail(res *Result, err error) *Result {
	res.Success = false
	res.Err = err
	res.Code = failure.CodeOf(err)
	res.Message = failure.MessageOf(err)
	s.metrics.IncResolution(res.Platform.String(), string(res.Code))
	return res
}

// Release deletes the stored file of a successful result once the caller
// has delivered it. Releasing twice is harmless.
func (s *Service) Release(res *Result) error {
	if res == nil || res.FilePath == "" {
		return nil
	}
	return s.store.Remove(res.FilePath)
}

// Status is a point-in-time view of the service.
type Status struct {
	Limiter      ratelimit.Stats
	LimitEnabled bool
	Store        store.Stats
}

// Status reports limiter and storage statistics.
func (s *Service) Status() (Status, error) {
	var st Status
	if s.limiter != nil {
		st.LimitEnabled = true
		st.Limiter = s.limiter.Stats()
	}
	ss, err := s.store.Stats()
	if err != nil {
		return st, err
	}
	st.Store = ss
	return st, nil
}

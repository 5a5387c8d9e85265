// Package metrics exposes resolution counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records what the resolution pipeline and its maintenance jobs do.
type Metrics interface {
	IncResolution(platform, outcome string)
	IncStrategyAttempt(platform, strategy, outcome string)
	ObserveStrategy(platform, strategy string, durationSeconds float64)
	IncRateLimited()
	ObserveFetch(platform string, bytes int64, durationSeconds float64)
	AddRetentionDeleted(n int)
}

// Noop implements Metrics without emitting anything.
type Noop struct{}

func (Noop) IncResolution(string, string) {}
func (Noop) IncStrategyAttempt(string, string, string) {}
func (Noop) ObserveStrategy(string, string, float64) {}
func (Noop) IncRateLimited() {}
func (Noop) ObserveFetch(string, int64, float64) {}
func (Noop) AddRetentionDeleted(int) {}

// Prom implements Metrics backed by Prometheus collectors.
type Prom struct {
	resolutions      *prometheus.CounterVec
	attempts         *prometheus.CounterVec
	strategyLatency  *prometheus.HistogramVec
	rateLimited      prometheus.Counter
	fetchBytes       *prometheus.CounterVec
	fetchLatency     *prometheus.HistogramVec
	retentionDeleted prometheus.Counter
}

// NewProm creates the collectors and registers them with reg, or with the
// default registry when reg is nil.
func NewProm(namespace string, reg prometheus.Registerer) *Prom {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &Prom{
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Resolutions by platform and outcome",
		}, []string{"platform", "outcome"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strategy_attempts_total",
			Help:      "Extraction strategy attempts by platform, strategy and outcome",
		}, []string{"platform", "strategy", "outcome"}),
		strategyLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "strategy_duration_seconds",
			Help:      "Extraction strategy duration by platform and strategy",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 60},
		}, []string{"platform", "strategy"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter",
		}),
		fetchBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_bytes_total",
			Help:      "Media bytes retrieved by platform",
		}, []string{"platform"}),
		fetchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Media retrieval duration by platform",
			Buckets:   prometheus.DefBuckets,
		}, []string{"platform"}),
		retentionDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_deleted_total",
			Help:      "Stored files removed by the retention sweep",
		}),
	}
	reg.MustRegister(p.resolutions, p.attempts, p.strategyLatency, p.rateLimited,
		p.fetchBytes, p.fetchLatency, p.retentionDeleted)
	return p
}

func (p *Prom) IncResolution(platform, outcome string) {
	p.resolutions.WithLabelValues(platform, outcome).Inc()
}

func (p *Prom) IncStrategyAttempt(platform, strategy, outcome string) {
	p.attempts.WithLabelValues(platform, strategy, outcome).Inc()
}

func (p *Prom) ObserveStrategy(platform, strategy string, durationSeconds float64) {
	p.strategyLatency.WithLabelValues(platform, strategy).Observe(durationSeconds)
}

func (p *Prom) IncRateLimited() {
	p.rateLimited.Inc()
}

func (p *Prom) ObserveFetch(platform string, bytes int64, durationSeconds float64) {
	p.fetchBytes.WithLabelValues(platform).Add(float64(bytes))
	p.fetchLatency.WithLabelValues(platform).Observe(durationSeconds)
}

func (p *Prom) AddRetentionDeleted(n int) {
	p.retentionDeleted.Add(float64(n))
}

// Handler returns an HTTP handler for /metrics serving g, or the default
// gatherer when g is nil.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

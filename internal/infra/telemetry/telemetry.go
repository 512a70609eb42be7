package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arklim/social-platform-policy/internal/infra/config"
)

// Provider represents a telemetry provider handle.
type Provider struct {
	decisionsTotal   *prometheus.CounterVec
	decisionDuration prometheus.Histogram
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
}

// Attach configures telemetry exporters and returns a provider handle.
func Attach(_ context.Context, cfg *config.AppConfig) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	decisionsTotal := promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "policy",
		Name:      "decisions_total",
		Help:      "Total number of access decisions partitioned by outcome and reason.",
	}, []string{"outcome", "reason"})

	decisionDuration := promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "policy",
		Name:      "decision_duration_seconds",
		Help:      "Histogram of access decision latencies in seconds.",
		Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})

	cacheHits := promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "policy",
		Name:      "hierarchy_cache_hits_total",
		Help:      "Total number of effective permission cache hits.",
	})

	cacheMisses := promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "policy",
		Name:      "hierarchy_cache_misses_total",
		Help:      "Total number of effective permission cache misses.",
	})

	return &Provider{
		decisionsTotal:   decisionsTotal,
		decisionDuration: decisionDuration,
		cacheHits:        cacheHits,
		cacheMisses:      cacheMisses,
	}, nil
}

// ObserveDecision records the outcome and latency of one access decision.
func (p *Provider) ObserveDecision(granted bool, reason string, duration time.Duration) {
	if p == nil {
		return
	}

	outcome := "denied"
	if granted {
		outcome = "granted"
	}

	p.decisionsTotal.WithLabelValues(outcome, reason).Inc()
	p.decisionDuration.Observe(duration.Seconds())
}

// ObserveCacheHit increments the hierarchy cache hit counter.
func (p *Provider) ObserveCacheHit() {
	if p == nil {
		return
	}
	p.cacheHits.Inc()
}

// ObserveCacheMiss increments the hierarchy cache miss counter.
func (p *Provider) ObserveCacheMiss() {
	if p == nil {
		return
	}
	p.cacheMisses.Inc()
}

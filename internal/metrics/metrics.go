package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tripgenie/tripgenie-backend/internal/tools"
)

const namespace = "tripgenie"

// Turn outcomes
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Collector records turn, tool and completion metrics on its own registry.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	turns           *prometheus.CounterVec
	turnDuration    prometheus.Histogram
	toolInvocations *prometheus.CounterVec
	toolDuration    *prometheus.HistogramVec
	completions     *prometheus.CounterVec
}

// New creates a collector with Go runtime and process collectors registered
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Conversation turns processed, by outcome.",
		}, []string{"outcome"}),
		turnDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Wall time of one conversation turn.",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		toolInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_invocations_total",
			Help:      "Tool gateway invocations, by tool and result status.",
		}, []string{"tool", "status"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_duration_seconds",
			Help:      "Tool invocation latency.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 90},
		}, []string{"tool"}),
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completions_total",
			Help:      "Completion provider calls, by turn phase and outcome.",
		}, []string{"phase", "outcome"}),
	}

	c.registry.MustRegister(
		c.turns, c.turnDuration, c.toolInvocations, c.toolDuration, c.completions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry exposes the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ObserveTurn records one finished turn
func (c *Collector) ObserveTurn(outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.turns.WithLabelValues(outcome).Inc()
	c.turnDuration.Observe(duration.Seconds())
}

// ObserveTool implements tools.Observer
func (c *Collector) ObserveTool(tool string, status tools.Status, duration time.Duration) {
	if c == nil {
		return
	}
	c.toolInvocations.WithLabelValues(tool, string(status)).Inc()
	c.toolDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// ObserveCompletion implements agent.CompletionObserver
func (c *Collector) ObserveCompletion(phase string, err error, _ time.Duration) {
	if c == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	c.completions.WithLabelValues(phase, outcome).Inc()
}

// Package observability holds the Prometheus metrics and OpenTelemetry tracing setup.
package observability

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/autoland/lander/internal/lander"
)

// LanderCollector bundles the arbiter's Prometheus metrics. It is a lander.Observer.
type LanderCollector struct {
	gatherer prometheus.Gatherer

	Events           *prometheus.CounterVec
	Transitions      *prometheus.CounterVec
	Commands         *prometheus.CounterVec
	ActionFailures   *prometheus.CounterVec
	ToggleEdges      *prometheus.CounterVec
	State            *prometheus.GaugeVec
	AutonomousActive prometheus.Gauge
	BusDropped       *prometheus.CounterVec

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec
}

// NewLanderCollector registers the metrics against reg, defaulting to the global
// registry when nil. Registering twice against the same registry reuses the existing
// collectors.
func NewLanderCollector(reg prometheus.Registerer) (*LanderCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &LanderCollector{gatherer: gatherer}
	var err error

	if c.Events, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lander_events_total",
		Help: "Inbound events handled by the router, by category and whether they matched the transition table.",
	}, []string{"category", "relevant"}), "lander_events_total"); err != nil {
		return nil, err
	}
	if c.Transitions, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lander_transitions_total",
		Help: "State changes, by source and target state.",
	}, []string{"from", "to"}), "lander_transitions_total"); err != nil {
		return nil, err
	}
	if c.Commands, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lander_commands_total",
		Help: "Override commands published, by the state that produced them.",
	}, []string{"state"}), "lander_commands_total"); err != nil {
		return nil, err
	}
	if c.ActionFailures, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lander_action_failures_total",
		Help: "Relevant events that produced no published command, by state and reason.",
	}, []string{"state", "reason"}), "lander_action_failures_total"); err != nil {
		return nil, err
	}
	if c.ToggleEdges, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lander_toggle_edges_total",
		Help: "Autonomous-mode switch edges, by direction.",
	}, []string{"direction"}), "lander_toggle_edges_total"); err != nil {
		return nil, err
	}
	if c.State, err = registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lander_state",
		Help: "1 for the current lander state, 0 otherwise.",
	}, []string{"state"}), "lander_state"); err != nil {
		return nil, err
	}
	if c.AutonomousActive, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "lander_autonomous_active",
		Help: "1 while autonomous mode is engaged.",
	}), "lander_autonomous_active"); err != nil {
		return nil, err
	}
	if c.BusDropped, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bus_dropped_total",
		Help: "Messages discarded from full subscription queues, by topic.",
	}, []string{"topic"}), "bus_dropped_total"); err != nil {
		return nil, err
	}
	if c.HTTPRequests, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Operator API requests, by method, route and status code.",
	}, []string{"method", "route", "code"}), "http_requests_total"); err != nil {
		return nil, err
	}
	if c.HTTPDurations, err = registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Operator API latency in seconds.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "route"}), "http_request_duration_seconds"); err != nil {
		return nil, err
	}

	c.setState(lander.Flying, false)
	return c, nil
}

// Observe implements lander.Observer.
func (c *LanderCollector) Observe(out lander.Outcome) {
	if c == nil {
		return
	}

	c.Events.WithLabelValues(out.Category.String(), strconv.FormatBool(out.Relevant)).Inc()

	if out.ToggleEdge {
		direction := "disengage"
		if out.Active {
			direction = "engage"
		}
		c.ToggleEdges.WithLabelValues(direction).Inc()
	}
	if out.Transitioned() {
		c.Transitions.WithLabelValues(out.From.String(), out.To.String()).Inc()
	}

	switch {
	case out.Published():
		c.Commands.WithLabelValues(out.To.String()).Inc()
	case out.ActionErr != nil:
		c.ActionFailures.WithLabelValues(out.To.String(), failureReason(out.ActionErr)).Inc()
	case out.PublishErr != nil:
		c.ActionFailures.WithLabelValues(out.To.String(), "publish").Inc()
	}

	c.setState(out.To, out.Active)
}

// RecordDrop counts one message dropped from a bus queue.
func (c *LanderCollector) RecordDrop(topic string) {
	if c == nil {
		return
	}
	c.BusDropped.WithLabelValues(topic).Inc()
}

// Handler exposes a ready-to-use /metrics handler.
func (c *LanderCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func (c *LanderCollector) setState(current lander.State, active bool) {
	for _, s := range lander.States() {
		v := 0.0
		if s == current {
			v = 1
		}
		c.State.WithLabelValues(s.String()).Set(v)
	}
	if active {
		c.AutonomousActive.Set(1)
	} else {
		c.AutonomousActive.Set(0)
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, lander.ErrMissingPrecondition):
		return "missing_precondition"
	case errors.Is(err, lander.ErrNoAction):
		return "no_action"
	default:
		return "other"
	}
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

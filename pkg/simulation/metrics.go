package simulation

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lao-tseu-is-alive/go-flock-osc/pkg/telemetry"
)

// Metrics holds the flock's Prometheus instruments on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Ticks         prometheus.Counter
	RejectedTicks prometheus.Counter
	TickDuration  prometheus.Histogram
	Telemetry     *prometheus.CounterVec
	MeanSpeed     prometheus.Gauge
	Agents        prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flock",
			Subsystem: "sim",
			Name:      "ticks_total",
			Help:      "Completed simulation ticks",
		}),
		RejectedTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flock",
			Subsystem: "sim",
			Name:      "rejected_ticks_total",
			Help:      "Ticks refused because of an invalid elapsed time",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "flock",
			Subsystem: "sim",
			Name:      "tick_duration_seconds",
			Help:      "Wall time spent in one tick, telemetry included",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
		Telemetry: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flock",
			Subsystem: "telemetry",
			Name:      "messages_total",
			Help:      "Telemetry messages by outcome (sent, dropped)",
		}, []string{"result"}),
		MeanSpeed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flock",
			Subsystem: "sim",
			Name:      "mean_speed",
			Help:      "Average agent speed after the last tick, world units per second",
		}),
		Agents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flock",
			Subsystem: "sim",
			Name:      "agents",
			Help:      "Number of agents in the flock",
		}),
	}
	m.registry.MustRegister(
		m.Ticks, m.RejectedTicks, m.TickDuration, m.Telemetry, m.MeanSpeed, m.Agents,
		collectors.NewGoCollector(),
	)
	return m
}

// ObserveTick records one completed tick.
func (m *Metrics) ObserveTick(elapsed time.Duration, r telemetry.Report, meanSpeed float64) {
	m.Ticks.Inc()
	m.TickDuration.Observe(elapsed.Seconds())
	m.Telemetry.WithLabelValues("sent").Add(float64(r.Sent))
	m.Telemetry.WithLabelValues("dropped").Add(float64(r.Dropped))
	m.MeanSpeed.Set(meanSpeed)
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

package runner

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the runner's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	commands *prometheus.CounterVec
	duration *prometheus.HistogramVec
	pushed   *prometheus.CounterVec
}

// NewMetrics creates the collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "soar",
			Subsystem: "integrations",
			Name:      "commands_total",
			Help:      "Commands executed, by integration, command and status",
		}, []string{"integration", "command", "status"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "soar",
			Subsystem: "integrations",
			Name:      "command_duration_seconds",
			Help:      "Command execution time",
			Buckets:   prometheus.DefBuckets,
		}, []string{"integration", "command"}),
		pushed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "soar",
			Subsystem: "integrations",
			Name:      "events_pushed_total",
			Help:      "Events pushed to the sink by collectors",
		}, []string{"integration"}),
	}
}

// Observe records one command execution. A nil receiver is a no-op.
func (m *Metrics) Observe(integration, command string, elapsed time.Duration, pushed int, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.commands.WithLabelValues(integration, command, status).Inc()
	m.duration.WithLabelValues(integration, command).Observe(elapsed.Seconds())
	if pushed > 0 {
		m.pushed.WithLabelValues(integration).Add(float64(pushed))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Package metrics exposes verification and bridge counters in the
// Prometheus text format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skylinesee/reeQute/entity"
)

const namespace = "reequte"

type Metrics struct {
	registry    *prometheus.Registry
	transitions *prometheus.CounterVec
	tasks       *prometheus.CounterVec
	taskTime    *prometheus.HistogramVec
	queueDepth  prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verification_transitions_total",
			Help:      "Verification state transitions by kind.",
		}, []string{"kind"}),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bridge_tasks_total",
			Help:      "Tasks run on the bridge loop by name and result.",
		}, []string{"name", "result"}),
		taskTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "bridge_task_seconds",
			Help:      "Time spent running bridge tasks.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"name"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bridge_queue_depth",
			Help:      "Tasks waiting in the bridge queue.",
		}),
	}
	m.registry.MustRegister(
		m.transitions,
		m.tasks,
		m.taskTime,
		m.queueDepth,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Record(ev *entity.AuditEvent) {
	m.transitions.WithLabelValues(string(ev.Kind)).Inc()
}

func (m *Metrics) TaskDone(name string, err error, elapsed time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.tasks.WithLabelValues(name, result).Inc()
	m.taskTime.WithLabelValues(name).Observe(elapsed.Seconds())
}

func (m *Metrics) QueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

package orchestrator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/example/reelforge/internal/models"
)

// Metrics exposes Prometheus collectors for the scheduler, tools and hub.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	submitted    *prometheus.CounterVec
	finished     *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
	queueDepth   prometheus.Gauge
	active       prometheus.Gauge
	toolRuns     *prometheus.CounterVec
	toolRetries  *prometheus.CounterVec
	events       *prometheus.CounterVec
	subscribers  prometheus.Gauge
	droppedSubs  prometheus.Counter
}

// MustNewMetrics registers the collectors with reg, reusing collectors that
// are already registered under the same name.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	const ns = "reelforge"
	m := &Metrics{
		submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "scheduler", Name: "tasks_submitted_total",
			Help: "Tasks accepted into the queue.",
		}, []string{"mode"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "scheduler", Name: "tasks_finished_total",
			Help: "Tasks that reached a terminal status.",
		}, []string{"mode", "status"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: "scheduler", Name: "task_duration_seconds",
			Help:    "Wall time from start to terminal status.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		}, []string{"mode", "status"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "scheduler", Name: "queue_depth",
			Help: "Tasks waiting to run.",
		}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "scheduler", Name: "tasks_active",
			Help: "Tasks currently executing.",
		}),
		toolRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "tools", Name: "executions_total",
			Help: "Capability executions by outcome.",
		}, []string{"tool", "status"}),
		toolRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "tools", Name: "retries_total",
			Help: "Capability runs started after a failure.",
		}, []string{"tool"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "hub", Name: "events_published_total",
			Help: "Events published to subscribers.",
		}, []string{"type"}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: "hub", Name: "subscribers",
			Help: "Attached event subscribers.",
		}),
		droppedSubs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "hub", Name: "subscribers_dropped_total",
			Help: "Subscribers dropped because their inbox was full.",
		}),
	}
	m.submitted = register(reg, m.submitted)
	m.finished = register(reg, m.finished)
	m.taskDuration = register(reg, m.taskDuration)
	m.queueDepth = register(reg, m.queueDepth)
	m.active = register(reg, m.active)
	m.toolRuns = register(reg, m.toolRuns)
	m.toolRetries = register(reg, m.toolRetries)
	m.events = register(reg, m.events)
	m.subscribers = register(reg, m.subscribers)
	m.droppedSubs = register(reg, m.droppedSubs)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *Metrics) IncSubmitted(mode models.Mode) {
	if m == nil {
		return
	}
	m.submitted.WithLabelValues(string(mode)).Inc()
}

func (m *Metrics) ObserveFinished(mode models.Mode, status models.Status, d time.Duration) {
	if m == nil {
		return
	}
	m.finished.WithLabelValues(string(mode), string(status)).Inc()
	m.taskDuration.WithLabelValues(string(mode), string(status)).Observe(d.Seconds())
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) IncActive() {
	if m == nil {
		return
	}
	m.active.Inc()
}

func (m *Metrics) DecActive() {
	if m == nil {
		return
	}
	m.active.Dec()
}

func (m *Metrics) IncToolRun(tool models.Tool, status models.ToolStatus) {
	if m == nil {
		return
	}
	m.toolRuns.WithLabelValues(string(tool), string(status)).Inc()
}

func (m *Metrics) IncToolRetry(tool models.Tool) {
	if m == nil {
		return
	}
	m.toolRetries.WithLabelValues(string(tool)).Inc()
}

func (m *Metrics) IncEvent(t EventType) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.subscribers.Set(float64(n))
}

func (m *Metrics) AddDroppedSubscribers(n int) {
	if m == nil {
		return
	}
	m.droppedSubs.Add(float64(n))
}

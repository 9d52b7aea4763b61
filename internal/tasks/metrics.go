package tasks

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments a Manager. A nil *Metrics records nothing.
type Metrics struct {
	submitted prometheus.Counter
	rejected  prometheus.Counter
	completed *prometheus.CounterVec
	queued    prometheus.Gauge
	running   prometheus.Gauge
	workers   prometheus.Gauge
	duration  prometheus.Histogram
}

// Outcome label values of the completed counter.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
	OutcomePanic  = "panic"
)

// NewMetrics registers the task manager metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		submitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: "aqualid",
			Subsystem: "tasks",
			Name:      "submitted_total",
			Help:      "Tasks accepted by the task manager",
		}),
		rejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: "aqualid",
			Subsystem: "tasks",
			Name:      "rejected_total",
			Help:      "Tasks dropped because the manager was stopped",
		}),
		completed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aqualid",
			Subsystem: "tasks",
			Name:      "completed_total",
			Help:      "Tasks finished by outcome",
		}, []string{"outcome"}),
		queued: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "aqualid",
			Subsystem: "tasks",
			Name:      "queued",
			Help:      "Tasks waiting for a worker",
		}),
		running: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "aqualid",
			Subsystem: "tasks",
			Name:      "running",
			Help:      "Tasks currently executing",
		}),
		workers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "aqualid",
			Subsystem: "tasks",
			Name:      "workers",
			Help:      "Live worker goroutines",
		}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "aqualid",
			Subsystem: "tasks",
			Name:      "duration_seconds",
			Help:      "Task execution time in seconds",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}),
	}
}

func (m *Metrics) taskSubmitted() {
	if m == nil {
		return
	}
	m.submitted.Inc()
}

func (m *Metrics) taskRejected() {
	if m == nil {
		return
	}
	m.rejected.Inc()
}

func (m *Metrics) setQueued(n int) {
	if m == nil {
		return
	}
	m.queued.Set(float64(n))
}

func (m *Metrics) setRunning(n int) {
	if m == nil {
		return
	}
	m.running.Set(float64(n))
}

func (m *Metrics) setWorkers(n int) {
	if m == nil {
		return
	}
	m.workers.Set(float64(n))
}

func (m *Metrics) taskDone(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.duration.Observe(d.Seconds())

	var pe *PanicError
	switch {
	case err == nil:
		m.completed.WithLabelValues(OutcomeOK).Inc()
	case errors.As(err, &pe):
		m.completed.WithLabelValues(OutcomePanic).Inc()
	default:
		m.completed.WithLabelValues(OutcomeFailed).Inc()
	}
}

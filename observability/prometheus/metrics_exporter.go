package prometheus

import (
	"errors"
	"fmt"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/AndreyK641/multi-task-conveyor/core"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
	JobBuckets      []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors. All series
// carry a "conveyor" label so several conveyors can share one registry.
type MetricsExporter struct {
	conveyor string

	taskDurationSeconds *prom.HistogramVec
	taskFailedTotal     *prom.CounterVec
	taskPanicTotal      *prom.CounterVec
	jobDurationSeconds  *prom.HistogramVec
	tasksDroppedTotal   *prom.CounterVec
	queueDepth          *prom.GaugeVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for
// core.Metrics. conveyorID becomes the value of the "conveyor" label.
func NewMetricsExporter(namespace string, conveyorID string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "conveyor"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	taskBuckets := opts.DurationBuckets
	if len(taskBuckets) == 0 {
		taskBuckets = prom.DefBuckets
	}
	jobBuckets := opts.JobBuckets
	if len(jobBuckets) == 0 {
		jobBuckets = prom.DefBuckets
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Task execution duration in seconds.",
		Buckets:   taskBuckets,
	}, []string{"conveyor"})
	failedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_failed_total",
		Help:      "Total number of failed tasks.",
	}, []string{"conveyor"})
	panicVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_panic_total",
		Help:      "Total number of recovered panics in user routines.",
	}, []string{"conveyor"})
	jobDurationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "job_duration_seconds",
		Help:      "Full job run duration in seconds, production to done.",
		Buckets:   jobBuckets,
	}, []string{"conveyor"})
	droppedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_dropped_total",
		Help:      "Total number of tasks dropped by shutdown.",
	}, []string{"conveyor"})
	queueDepthVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Current depth of the shared task queue.",
	}, []string{"conveyor"})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if failedVec, err = registerCollector(reg, failedVec); err != nil {
		return nil, err
	}
	if panicVec, err = registerCollector(reg, panicVec); err != nil {
		return nil, err
	}
	if jobDurationVec, err = registerCollector(reg, jobDurationVec); err != nil {
		return nil, err
	}
	if droppedVec, err = registerCollector(reg, droppedVec); err != nil {
		return nil, err
	}
	if queueDepthVec, err = registerCollector(reg, queueDepthVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		conveyor:            normalizeLabel(conveyorID, "unknown"),
		taskDurationSeconds: durationVec,
		taskFailedTotal:     failedVec,
		taskPanicTotal:      panicVec,
		jobDurationSeconds:  jobDurationVec,
		tasksDroppedTotal:   droppedVec,
		queueDepth:          queueDepthVec,
	}, nil
}

// RecordTaskExecution records task execution duration.
func (m *MetricsExporter) RecordTaskExecution(duration time.Duration) {
	if m == nil {
		return
	}
	m.taskDurationSeconds.WithLabelValues(m.conveyor).Observe(duration.Seconds())
}

// RecordTaskFailure records a failed task.
func (m *MetricsExporter) RecordTaskFailure() {
	if m == nil {
		return
	}
	m.taskFailedTotal.WithLabelValues(m.conveyor).Inc()
}

// RecordTaskPanic records a recovered panic.
func (m *MetricsExporter) RecordTaskPanic() {
	if m == nil {
		return
	}
	m.taskPanicTotal.WithLabelValues(m.conveyor).Inc()
}

// RecordJobCompletion records a full job run duration.
func (m *MetricsExporter) RecordJobCompletion(duration time.Duration) {
	if m == nil {
		return
	}
	m.jobDurationSeconds.WithLabelValues(m.conveyor).Observe(duration.Seconds())
}

// RecordQueueDepth records the shared queue depth.
func (m *MetricsExporter) RecordQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(m.conveyor).Set(float64(depth))
}

// RecordTasksDropped records tasks dropped by shutdown.
func (m *MetricsExporter) RecordTasksDropped(count int) {
	if m == nil {
		return
	}
	m.tasksDroppedTotal.WithLabelValues(m.conveyor).Add(float64(count))
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}

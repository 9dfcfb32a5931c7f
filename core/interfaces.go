package core

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling panics in user routines
// =============================================================================

// PanicHandler is called when a task action, a job production routine or a
// job completion routine panics. The panic is always recovered and recorded
// as a failure on the owning job; the handler only decides how to report it.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when user code panics.
	//
	// Parameters:
	// - ctx: The conveyor's root context
	// - conveyorID: The ID of the conveyor where the panic occurred
	// - workerID: The ID of the pool worker, or -1 for a job driver
	// - panicInfo: The panic value recovered from the routine
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, conveyorID string, workerID int, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler provides a basic panic handler that logs to stdout.
type DefaultPanicHandler struct{}

// HandlePanic prints panic information to stdout.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, conveyorID string, workerID int, panicInfo any, stackTrace []byte) {
	if workerID >= 0 {
		fmt.Printf("[Worker %d @ %s] Panic: %v\nStack trace:\n%s",
			workerID, conveyorID, panicInfo, stackTrace)
	} else {
		fmt.Printf("[Driver @ %s] Panic: %v\nStack trace:\n%s",
			conveyorID, panicInfo, stackTrace)
	}
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting conveyor execution metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods should be non-blocking and fast to avoid impacting task execution
// performance.
type Metrics interface {
	// RecordTaskExecution records how long a task took to execute.
	RecordTaskExecution(duration time.Duration)

	// RecordTaskFailure records that a task returned an error (or panicked).
	RecordTaskFailure()

	// RecordTaskPanic records that a user routine panicked.
	RecordTaskPanic()

	// RecordJobCompletion records the duration of a full job run, from the
	// start of production to the done signal.
	RecordJobCompletion(duration time.Duration)

	// RecordQueueDepth records the current depth of the shared task queue.
	RecordQueueDepth(depth int)

	// RecordTasksDropped records tasks discarded by shutdown without
	// executing.
	RecordTasksDropped(count int)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

// RecordTaskExecution is a no-op.
func (m *NilMetrics) RecordTaskExecution(duration time.Duration) {}

// RecordTaskFailure is a no-op.
func (m *NilMetrics) RecordTaskFailure() {}

// RecordTaskPanic is a no-op.
func (m *NilMetrics) RecordTaskPanic() {}

// RecordJobCompletion is a no-op.
func (m *NilMetrics) RecordJobCompletion(duration time.Duration) {}

// RecordQueueDepth is a no-op.
func (m *NilMetrics) RecordQueueDepth(depth int) {}

// RecordTasksDropped is a no-op.
func (m *NilMetrics) RecordTasksDropped(count int) {}

// =============================================================================
// Config: Configuration for a Conveyor
// =============================================================================

// Config holds construction options for a Conveyor. The zero value of every
// field means "use the default".
type Config struct {
	// Workers is the fixed worker count. 0 means available parallelism
	// minus one, never less than one.
	Workers int

	// QueueCapacity bounds the shared task queue. 0 means unbounded; with a
	// positive value, submitters block while the queue is full.
	QueueCapacity int

	// ID names the conveyor in logs and metrics. Empty means a generated
	// "conveyor-<uuid>" ID.
	ID string

	// Logger receives lifecycle logs. Defaults to NoOpLogger.
	Logger Logger

	// Metrics receives execution metrics. Defaults to NilMetrics.
	Metrics Metrics

	// PanicHandler is called when user code panics. Defaults to
	// DefaultPanicHandler.
	PanicHandler PanicHandler

	// HistorySize is the capacity of the task execution history ring.
	// 0 means the default capacity.
	HistorySize int
}

// DefaultConfig returns a config with default handlers.
func DefaultConfig() Config {
	return Config{
		Logger:       &NoOpLogger{},
		Metrics:      &NilMetrics{},
		PanicHandler: &DefaultPanicHandler{},
	}
}

func (c Config) validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("%w: negative worker count %d", ErrInvalidConfig, c.Workers)
	}
	if c.QueueCapacity < 0 {
		return fmt.Errorf("%w: negative queue capacity %d", ErrInvalidConfig, c.QueueCapacity)
	}
	if c.HistorySize < 0 {
		return fmt.Errorf("%w: negative history size %d", ErrInvalidConfig, c.HistorySize)
	}
	return nil
}

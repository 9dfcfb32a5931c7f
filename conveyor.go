package conveyor

import (
	"sync"

	"github.com/AndreyK641/multi-task-conveyor/core"
)

// New creates a conveyor with default handlers. workers <= 0 means available
// parallelism minus one (at least one); queueCapacity <= 0 means unbounded.
// The worker pool is running when New returns.
func New(workers, queueCapacity int) *core.Conveyor {
	return core.NewConveyor(workers, queueCapacity)
}

// NewWithConfig creates a conveyor from an explicit configuration.
func NewWithConfig(cfg core.Config) (*core.Conveyor, error) {
	return core.New(cfg)
}

// =============================================================================
// Global Conveyor Helper (Singleton)
// =============================================================================

var (
	globalConveyor *core.Conveyor
	globalMu       sync.Mutex
)

// InitGlobalConveyor initializes the process-wide conveyor with the given
// worker count and queue capacity. Repeated calls are no-ops.
func InitGlobalConveyor(workers, queueCapacity int) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalConveyor != nil {
		return // Already initialized
	}

	c, err := core.New(core.Config{
		Workers:       clampNonNegative(workers),
		QueueCapacity: clampNonNegative(queueCapacity),
		ID:            "global-conveyor",
	})
	if err != nil {
		panic(err)
	}
	globalConveyor = c
}

// GetGlobalConveyor returns the global conveyor instance.
// It panics if InitGlobalConveyor has not been called.
func GetGlobalConveyor() *core.Conveyor {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalConveyor == nil {
		panic("GlobalConveyor not initialized. Call InitGlobalConveyor() first.")
	}
	return globalConveyor
}

// ShutdownGlobalConveyor shuts the global conveyor down and forgets it, so a
// later InitGlobalConveyor starts fresh.
func ShutdownGlobalConveyor() {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalConveyor != nil {
		globalConveyor.Shutdown()
		globalConveyor = nil
	}
}

// Submit registers a job on the global conveyor. This is the shortest path
// from a Job value to a running job.
func Submit(job core.Job) (core.JobHandle, error) {
	return GetGlobalConveyor().SubmitJob(job)
}

func clampNonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

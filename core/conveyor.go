package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Conveyor is the two-level execution engine.
//
// Jobs submitted to a Conveyor each get a supervised driver goroutine that
// runs the job's production routine, waits for the produced tasks to drain
// from the shared worker pool, then runs the job's completion routine. All
// jobs share one bounded FIFO task queue and one fixed set of workers.
type Conveyor struct {
	id       string
	queue    *taskQueue
	pool     *workerPool
	registry *jobRegistry
	delay    *delayManager
	history  *executionHistory

	// drivers counts live driver goroutines so Shutdown can join them.
	drivers sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	logger       Logger
	metrics      Metrics
	panicHandler PanicHandler

	// mu serializes job admission against the shutdown flag flip, so no
	// driver can be spawned after Shutdown started joining them.
	mu           sync.RWMutex
	shuttingDown int32 // atomic flag
	shutdownOnce sync.Once

	completedRuns int64
	droppedTasks  int64
}

// New creates a conveyor from cfg and starts its worker pool. Zero-valued
// fields of cfg fall back to defaults; negative values are rejected with
// ErrInvalidConfig.
func New(cfg Config) (*Conveyor, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	workers := cfg.Workers
	if workers == 0 {
		workers = defaultWorkerCount()
	}
	id := cfg.ID
	if id == "" {
		id = "conveyor-" + uuid.NewString()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = &NoOpLogger{}
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = &NilMetrics{}
	}
	panicHandler := cfg.PanicHandler
	if panicHandler == nil {
		panicHandler = &DefaultPanicHandler{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Conveyor{
		id:           id,
		queue:        newTaskQueue(cfg.QueueCapacity, workers),
		registry:     newJobRegistry(),
		history:      newExecutionHistory(cfg.HistorySize),
		ctx:          ctx,
		cancel:       cancel,
		logger:       logger,
		metrics:      metrics,
		panicHandler: panicHandler,
	}
	c.pool = newWorkerPool(id, workers, c.queue, panicHandler, metrics, c.history)
	c.delay = newDelayManager(c.deliverDelayed)

	c.pool.Start(ctx)
	c.logger.Info("conveyor started",
		F("conveyor", c.id), F("workers", workers), F("queue_capacity", cfg.QueueCapacity))
	return c, nil
}

// NewConveyor creates a conveyor with default handlers. workers <= 0 means
// available parallelism minus one (at least one); queueCapacity <= 0 means
// unbounded.
func NewConveyor(workers, queueCapacity int) *Conveyor {
	if workers < 0 {
		workers = 0
	}
	if queueCapacity < 0 {
		queueCapacity = 0
	}
	c, err := New(Config{Workers: workers, QueueCapacity: queueCapacity})
	if err != nil {
		// Clamped arguments cannot fail validation.
		panic(err)
	}
	return c
}

// =============================================================================
// Job lifecycle
// =============================================================================

// SubmitJob registers the job, spawns its driver and returns its handle.
// The same job value cannot be submitted again until it is removed.
func (c *Conveyor) SubmitJob(job Job) (JobHandle, error) {
	if job == nil {
		return JobHandle{}, fmt.Errorf("cannot submit nil job")
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.isShuttingDown() {
		return JobHandle{}, ErrConveyorShutDown
	}

	state := newJobState(job)
	h, err := c.registry.Insert(state)
	if err != nil {
		return JobHandle{}, err
	}

	c.drivers.Add(1)
	go c.driveJob(state)

	c.logger.Debug("job submitted", F("conveyor", c.id), F("job", h.String()))
	return h, nil
}

// Restart runs a completed job again with the same handle. The job's
// lifecycle flags are reset and a fresh driver is spawned. Restarting a job
// that is not completed fails with ErrJobNotCompleted.
func (c *Conveyor) Restart(h JobHandle) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.isShuttingDown() {
		return ErrConveyorShutDown
	}

	state, ok := c.registry.Lookup(h)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, h)
	}
	if err := state.reset(); err != nil {
		return fmt.Errorf("%w: restart of %s", err, h)
	}

	c.drivers.Add(1)
	go c.driveJob(state)

	c.logger.Debug("job restarted", F("conveyor", c.id), F("job", h.String()))
	return nil
}

// Remove takes a completed job out of the registry and returns it, handing
// ownership back to the caller. The handle is invalid afterwards. Removing a
// job that is not completed fails with ErrJobNotCompleted.
func (c *Conveyor) Remove(h JobHandle) (Job, error) {
	state, err := c.registry.RemoveCompleted(h)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, h)
	}

	c.logger.Debug("job removed", F("conveyor", c.id), F("job", h.String()))
	return state.job, nil
}

// =============================================================================
// Task submission
// =============================================================================

// SubmitTask enqueues a task for the job h, blocking while the queue is
// full. The job's outstanding count is incremented before the enqueue, so
// the job cannot be observed as drained while the task is in flight.
func (c *Conveyor) SubmitTask(h JobHandle, fn TaskFunc) error {
	state, ok := c.registry.Lookup(h)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, h)
	}
	return c.submitToState(state, "", fn)
}

// SubmitNamedTask is SubmitTask with an explicit name for logs and history.
func (c *Conveyor) SubmitNamedTask(h JobHandle, name string, fn TaskFunc) error {
	state, ok := c.registry.Lookup(h)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, h)
	}
	return c.submitToState(state, name, fn)
}

// SubmitTaskWithTraits is SubmitTask with explicit task traits.
func (c *Conveyor) SubmitTaskWithTraits(h JobHandle, fn TaskFunc, traits TaskTraits) error {
	return c.SubmitNamedTask(h, traits.Name, fn)
}

// SubmitDelayedTask enqueues a task after the given delay. The task counts
// as outstanding from submission, so its job stays in the draining phase
// until the task has run even if the delay is long.
func (c *Conveyor) SubmitDelayedTask(h JobHandle, fn TaskFunc, delay time.Duration) error {
	state, ok := c.registry.Lookup(h)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, h)
	}
	if delay <= 0 {
		return c.submitToState(state, "", fn)
	}
	if fn == nil {
		return fmt.Errorf("cannot submit nil task for %s", h)
	}

	// The admission is serialized against the shutdown flag flip: once
	// Shutdown stopped the delay manager, nothing may be added to it.
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.isShuttingDown() {
		return ErrConveyorShutDown
	}
	if err := state.taskAccepted(); err != nil {
		return fmt.Errorf("%w: %s", err, h)
	}
	c.delay.Add(queuedTask{fn: fn, job: state}, delay)
	return nil
}

func (c *Conveyor) submitToState(state *jobState, name string, fn TaskFunc) error {
	if fn == nil {
		return fmt.Errorf("cannot submit nil task for %s", state.handle)
	}

	if err := state.taskAccepted(); err != nil {
		return fmt.Errorf("%w: %s", err, state.handle)
	}

	if err := c.queue.Enqueue(queuedTask{fn: fn, name: name, job: state}); err != nil {
		// The task never entered the queue, release its outstanding slot.
		state.taskRejected()
		return err
	}

	c.metrics.RecordQueueDepth(c.queue.Len())
	return nil
}

// deliverDelayed moves a due delayed task onto the shared queue. If the
// conveyor shut down in the meantime the task is dropped and its job
// notified, like a queued task dropped by Shutdown.
func (c *Conveyor) deliverDelayed(item queuedTask) {
	if err := c.queue.Enqueue(item); err != nil {
		c.dropTask(item)
		return
	}
	c.metrics.RecordQueueDepth(c.queue.Len())
}

func (c *Conveyor) dropTask(item queuedTask) {
	item.job.taskFinished(ErrConveyorShutDown)
	atomic.AddInt64(&c.droppedTasks, 1)
}

// =============================================================================
// Waiting and inspection
// =============================================================================

// WaitUntilDone blocks until the job's current run completes or ctx is
// cancelled. A nil return means the run completed; job failures are reported
// through JobStats, not here. A waiter that entered before a restart returns
// when the run it observed completed.
func (c *Conveyor) WaitUntilDone(ctx context.Context, h JobHandle) error {
	state, ok := c.registry.Lookup(h)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, h)
	}

	select {
	case <-state.doneChan():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitUntilAllTasksPushed blocks until the job's production routine has
// returned (or ctx is cancelled). Tasks may still be executing.
func (c *Conveyor) WaitUntilAllTasksPushed(ctx context.Context, h JobHandle) error {
	state, ok := c.registry.Lookup(h)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, h)
	}

	select {
	case <-state.allPushedChan():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsDone reports whether the job's current run has completed.
func (c *Conveyor) IsDone(h JobHandle) (bool, error) {
	state, ok := c.registry.Lookup(h)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownJob, h)
	}
	return state.isDone(), nil
}

// AllTasksPushed reports whether the job's production routine has returned.
func (c *Conveyor) AllTasksPushed(h JobHandle) (bool, error) {
	state, ok := c.registry.Lookup(h)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownJob, h)
	}
	return state.allTasksPushed(), nil
}

// JobStats returns the observable state of the job h.
func (c *Conveyor) JobStats(h JobHandle) (JobStats, error) {
	state, ok := c.registry.Lookup(h)
	if !ok {
		return JobStats{}, fmt.Errorf("%w: %s", ErrUnknownJob, h)
	}
	return state.snapshot(), nil
}

// =============================================================================
// Shutdown
// =============================================================================

// Shutdown stops the conveyor: no further jobs or restarts are accepted,
// queued tasks that have not started are dropped, in-flight tasks finish,
// and every worker and driver goroutine is joined before Shutdown returns.
// Jobs interrupted mid-run skip their completion routine and finish with
// ErrConveyorShutDown recorded. Shutdown is idempotent.
func (c *Conveyor) Shutdown() {
	c.shutdownOnce.Do(func() {
		c.mu.Lock()
		atomic.StoreInt32(&c.shuttingDown, 1)
		c.mu.Unlock()

		c.logger.Info("conveyor shutting down", F("conveyor", c.id))

		// Signal user routines that still run.
		c.cancel()

		// Mark every live job aborted before any of their queued tasks are
		// dropped, so a drain completed by drops skips user completion.
		c.registry.ForEach(func(state *jobState) {
			if !state.isDone() {
				state.abort()
			}
		})

		// Close the queue: wakes blocked producers and workers everywhere.
		dropped := c.queue.Close()
		for _, item := range dropped {
			c.dropTask(item)
		}

		// Delayed tasks that never became due are dropped the same way.
		pending := c.delay.Stop()
		for _, item := range pending {
			c.dropTask(item)
		}

		if n := len(dropped) + len(pending); n > 0 {
			c.metrics.RecordTasksDropped(n)
		}

		c.pool.Join()
		c.drivers.Wait()

		c.logger.Info("conveyor shut down",
			F("conveyor", c.id),
			F("dropped_tasks", len(dropped)+len(pending)),
			F("executed_tasks", c.pool.ExecutedTaskCount()))
	})
}

func (c *Conveyor) isShuttingDown() bool {
	return atomic.LoadInt32(&c.shuttingDown) == 1
}

// IsShutDown reports whether Shutdown has been called.
func (c *Conveyor) IsShutDown() bool {
	return c.isShuttingDown()
}

func (c *Conveyor) runDone() {
	atomic.AddInt64(&c.completedRuns, 1)
}

// =============================================================================
// Observability
// =============================================================================

// ID returns the conveyor's ID.
func (c *Conveyor) ID() string {
	return c.id
}

// WorkerCount returns the fixed worker count.
func (c *Conveyor) WorkerCount() int {
	return c.pool.WorkerCount()
}

// QueueCapacity returns the task queue bound (0 = unbounded).
func (c *Conveyor) QueueCapacity() int {
	return c.queue.Cap()
}

// QueuedTaskCount returns the number of tasks currently queued.
func (c *Conveyor) QueuedTaskCount() int {
	return c.queue.Len()
}

// DelayedTaskCount returns the number of delayed tasks not yet due.
func (c *Conveyor) DelayedTaskCount() int {
	return c.delay.TaskCount()
}

// JobCount returns the number of registered jobs.
func (c *Conveyor) JobCount() int {
	return c.registry.Len()
}

// RecentTasks returns up to limit most recent task execution records,
// newest first. limit <= 0 means all retained records.
func (c *Conveyor) RecentTasks(limit int) []TaskExecutionRecord {
	return c.history.Recent(limit)
}

// Stats returns a point-in-time snapshot of the conveyor.
func (c *Conveyor) Stats() Stats {
	running := 0
	c.registry.ForEach(func(state *jobState) {
		if !state.isDone() {
			running++
		}
	})

	return Stats{
		ID:            c.id,
		Workers:       c.pool.WorkerCount(),
		QueueCapacity: c.queue.Cap(),
		QueuedTasks:   c.queue.Len(),
		DelayedTasks:  c.delay.TaskCount(),
		ActiveWorkers: c.pool.ActiveTaskCount(),
		ExecutedTasks: c.pool.ExecutedTaskCount(),
		FailedTasks:   c.pool.FailedTaskCount(),
		PanickedTasks: c.pool.PanickedTaskCount(),
		DroppedTasks:  atomic.LoadInt64(&c.droppedTasks),
		Jobs:          c.registry.Len(),
		RunningJobs:   running,
		CompletedRuns: atomic.LoadInt64(&c.completedRuns),
		ShutDown:      c.isShuttingDown(),
	}
}

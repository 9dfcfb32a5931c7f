package core

import (
	"context"
	"sync"
)

// Job is the caller-implemented unit of scheduled work.
//
// A job describes two routines: Produce pushes the job's tasks onto the
// shared queue, and Complete aggregates results after every one of those
// tasks has finished. The conveyor runs Produce on a dedicated driver
// goroutine, waits for the outstanding task count to drain to zero, then runs
// Complete on the same goroutine.
//
// Jobs are identified by interface identity for duplicate detection, so
// implement Job on a pointer type. A job value may be registered on at most
// one conveyor at a time.
type Job interface {
	// Produce pushes the job's tasks through the submitter. The submitter is
	// scoped to this job and only valid until Produce returns plus the run's
	// draining phase; it must not be retained across runs. Returning an error
	// records it on the job without stopping tasks that were already pushed.
	Produce(ctx context.Context, submitter TaskSubmitter) error

	// Complete runs after every task produced in the current run has
	// finished. It runs exactly once per run, strictly before the job is
	// observable as done. It is skipped when the conveyor shuts down mid-run.
	Complete(ctx context.Context) error
}

// TaskSubmitter submits tasks on behalf of a single running job. It is
// passed into Produce so jobs do not need to hold a conveyor reference.
type TaskSubmitter interface {
	// Submit enqueues a task for this job, blocking while the queue is full.
	Submit(fn TaskFunc) error

	// SubmitNamed is Submit with an explicit name for logs and history.
	SubmitNamed(name string, fn TaskFunc) error

	// Handle returns the handle of the job this submitter belongs to.
	Handle() JobHandle
}

// FuncJob adapts plain closures to the Job interface.
type FuncJob struct {
	produce  func(ctx context.Context, submitter TaskSubmitter) error
	complete func(ctx context.Context) error
}

// NewFuncJob builds a Job from a produce closure and an optional complete
// closure (nil means no completion work).
func NewFuncJob(produce func(ctx context.Context, submitter TaskSubmitter) error, complete func(ctx context.Context) error) *FuncJob {
	return &FuncJob{produce: produce, complete: complete}
}

func (j *FuncJob) Produce(ctx context.Context, submitter TaskSubmitter) error {
	if j.produce == nil {
		return nil
	}
	return j.produce(ctx, submitter)
}

func (j *FuncJob) Complete(ctx context.Context) error {
	if j.complete == nil {
		return nil
	}
	return j.complete(ctx)
}

// =============================================================================
// Job lifecycle state
// =============================================================================

// JobPhase is the lifecycle phase of a job's current run.
type JobPhase int32

const (
	// JobCreated: registered, driver not yet producing.
	JobCreated JobPhase = iota

	// JobProducing: the driver is running Produce.
	JobProducing

	// JobAllPushed: Produce returned; no further tasks come from the driver.
	JobAllPushed

	// JobDraining: waiting for the outstanding task count to reach zero.
	JobDraining

	// JobCompleted: Complete ran (or was skipped on abort) and the done
	// signal fired. Restart and Remove are valid only in this phase.
	JobCompleted
)

func (p JobPhase) String() string {
	switch p {
	case JobCreated:
		return "created"
	case JobProducing:
		return "producing"
	case JobAllPushed:
		return "all_pushed"
	case JobDraining:
		return "draining"
	case JobCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// jobState is the conveyor-owned state of one registered job.
//
// Drain detection is purely count based: outstanding is incremented before a
// task is enqueued and decremented after it executed (or was dropped), both
// under mu, so the drained signal can never fire while an accepted task has
// not finished. The queue is never scanned to decide completion.
type jobState struct {
	job    Job
	handle JobHandle

	mu          sync.Mutex
	phase       JobPhase
	runs        uint64
	outstanding int64
	submitted   uint64
	failed      uint64
	firstErr    error
	aborted     bool
	drained     bool

	// Per-run broadcast channels, replaced by reset on restart.
	allPushedCh chan struct{}
	drainedCh   chan struct{}
	doneCh      chan struct{}
}

func newJobState(job Job) *jobState {
	return &jobState{
		job:         job,
		phase:       JobCreated,
		allPushedCh: make(chan struct{}),
		drainedCh:   make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

func (s *jobState) markProducing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = JobProducing
	s.runs++
}

// markAllPushed records the production result, publishes the all-pushed
// signal and, if nothing is outstanding, the drained signal too.
func (s *jobState) markAllPushed(prodErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prodErr != nil && s.firstErr == nil {
		s.firstErr = prodErr
	}
	s.phase = JobAllPushed
	close(s.allPushedCh)
	s.maybeDrainLocked()
}

func (s *jobState) markDraining() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == JobAllPushed {
		s.phase = JobDraining
	}
}

func (s *jobState) markDone(completeErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if completeErr != nil && s.firstErr == nil {
		s.firstErr = completeErr
	}
	s.phase = JobCompleted
	close(s.doneCh)
}

// maybeDrainLocked fires the drained signal once the production routine has
// returned and the outstanding count is zero. Caller holds mu.
func (s *jobState) maybeDrainLocked() {
	if s.drained || s.phase < JobAllPushed || s.outstanding > 0 {
		return
	}
	s.drained = true
	close(s.drainedCh)
}

// taskAccepted reserves one outstanding slot before the task is enqueued.
// It fails once the current run has drained or completed, which keeps the
// outstanding count at zero between runs.
func (s *jobState) taskAccepted() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == JobCompleted || s.drained {
		return ErrJobNotRunning
	}
	s.outstanding++
	s.submitted++
	return nil
}

// taskRejected rolls back taskAccepted when the enqueue did not happen.
func (s *jobState) taskRejected() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.outstanding--
	s.submitted--
	s.maybeDrainLocked()
}

// taskFinished records the result of an executed or dropped task and
// releases its outstanding slot.
func (s *jobState) taskFinished(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.failed++
		if s.firstErr == nil {
			s.firstErr = err
		}
	}
	s.outstanding--
	s.maybeDrainLocked()
}

func (s *jobState) abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborted = true
}

func (s *jobState) isAborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

func (s *jobState) isDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase == JobCompleted
}

func (s *jobState) allTasksPushed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase >= JobAllPushed
}

// reset prepares a completed job for another run. The outstanding count is
// guaranteed zero here: completion requires the drained signal, and drained
// runs reject new tasks.
func (s *jobState) reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != JobCompleted {
		return ErrJobNotCompleted
	}
	s.phase = JobCreated
	s.aborted = false
	s.drained = false
	s.firstErr = nil
	s.allPushedCh = make(chan struct{})
	s.drainedCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	return nil
}

// Channel snapshots for waiters. A waiter keeps the channel of the run that
// was current when it called; a later restart swaps in fresh channels without
// disturbing earlier waiters.

func (s *jobState) doneChan() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doneCh
}

func (s *jobState) allPushedChan() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allPushedCh
}

func (s *jobState) drainedChan() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drainedCh
}

func (s *jobState) snapshot() JobStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return JobStats{
		Handle:      s.handle,
		Phase:       s.phase,
		Runs:        s.runs,
		Submitted:   s.submitted,
		Outstanding: s.outstanding,
		Failed:      s.failed,
		FirstErr:    s.firstErr,
	}
}

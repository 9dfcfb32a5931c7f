package core

import "time"

// TaskExecutionRecord captures a completed task execution event.
type TaskExecutionRecord struct {
	Job        JobHandle
	Name       string
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Err        error
	Panicked   bool
}

// Stats represents runtime observability state for a conveyor.
type Stats struct {
	ID            string
	Workers       int
	QueueCapacity int
	QueuedTasks   int
	DelayedTasks  int
	ActiveWorkers int
	ExecutedTasks int64
	FailedTasks   int64
	PanickedTasks int64
	DroppedTasks  int64
	Jobs          int
	RunningJobs   int
	CompletedRuns int64
	ShutDown      bool
}

// JobStats represents the observable state of one registered job.
type JobStats struct {
	Handle JobHandle
	Phase  JobPhase

	// Runs counts started runs, including the current one.
	Runs uint64

	// Submitted and Failed accumulate across runs; Outstanding is the live
	// count for the current run.
	Submitted   uint64
	Outstanding int64
	Failed      uint64

	// FirstErr is the first error of the current run: a task failure, a
	// production or completion error, or a recovered panic.
	FirstErr error
}

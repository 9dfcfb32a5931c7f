package conveyor

import "github.com/AndreyK641/multi-task-conveyor/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the conveyor package for most use cases.

// Conveyor is the two-level execution engine.
type Conveyor = core.Conveyor

// Config holds construction options for a Conveyor.
type Config = core.Config

// Job is the caller-implemented unit of scheduled work.
type Job = core.Job

// TaskSubmitter submits tasks on behalf of a single running job.
type TaskSubmitter = core.TaskSubmitter

// FuncJob adapts plain closures to the Job interface.
type FuncJob = core.FuncJob

// TaskFunc is the unit of work (Closure).
type TaskFunc = core.TaskFunc

// TaskTraits defines optional task attributes at submission time.
type TaskTraits = core.TaskTraits

// JobHandle identifies a registered job.
type JobHandle = core.JobHandle

// JobPhase is the lifecycle phase of a job's current run.
type JobPhase = core.JobPhase

// Stats is a point-in-time snapshot of a conveyor.
type Stats = core.Stats

// JobStats is the observable state of one registered job.
type JobStats = core.JobStats

// TaskExecutionRecord captures a completed task execution event.
type TaskExecutionRecord = core.TaskExecutionRecord

// Logger, Field and F are re-exported for custom logging integrations.
type Logger = core.Logger
type Field = core.Field

// PanicHandler handles panics from user routines.
type PanicHandler = core.PanicHandler

// Metrics collects conveyor execution metrics.
type Metrics = core.Metrics

// Job phase constants
const (
	JobCreated   JobPhase = core.JobCreated
	JobProducing JobPhase = core.JobProducing
	JobAllPushed JobPhase = core.JobAllPushed
	JobDraining  JobPhase = core.JobDraining
	JobCompleted JobPhase = core.JobCompleted
)

// Sentinel errors
var (
	ErrJobAlreadyRegistered = core.ErrJobAlreadyRegistered
	ErrUnknownJob           = core.ErrUnknownJob
	ErrJobNotCompleted      = core.ErrJobNotCompleted
	ErrJobNotRunning        = core.ErrJobNotRunning
	ErrConveyorShutDown     = core.ErrConveyorShutDown
	ErrInvalidConfig        = core.ErrInvalidConfig
)

// Convenience functions re-exported from core
var (
	F                 = core.F
	NewFuncJob        = core.NewFuncJob
	DefaultConfig     = core.DefaultConfig
	DefaultTaskTraits = core.DefaultTaskTraits
	NamedTask         = core.NamedTask
)

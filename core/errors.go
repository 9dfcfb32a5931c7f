package core

import "errors"

var (
	// ErrJobAlreadyRegistered is returned when a job value that is already
	// registered is submitted again. A job may be registered at most once;
	// remove it before resubmitting.
	ErrJobAlreadyRegistered = errors.New("job already registered")

	// ErrUnknownJob is returned when a handle does not resolve to a live job.
	// This covers the zero handle, handles of removed jobs (stale generation),
	// and handles that were never issued by this conveyor.
	ErrUnknownJob = errors.New("unknown job handle")

	// ErrJobNotCompleted is returned when Restart or Remove is called on a job
	// that has not reached the completed state.
	ErrJobNotCompleted = errors.New("job not completed")

	// ErrJobNotRunning is returned when a task is submitted for a job whose
	// current run has already drained or completed.
	ErrJobNotRunning = errors.New("job not running")

	// ErrConveyorShutDown is returned by every submit and restart after
	// Shutdown. It is also recorded as the task error for queued tasks that
	// were dropped by Shutdown.
	ErrConveyorShutDown = errors.New("conveyor shut down")

	// ErrInvalidConfig is returned by New when the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid conveyor config")
)

package core

import "context"

// TaskFunc is the unit of work (Closure).
//
// A non-nil error marks the task as failed on its owning job. Failures are
// isolated: they are counted and the first one is kept, but they never stop
// the job's remaining tasks or affect other jobs. A panic inside a TaskFunc
// is recovered by the worker, routed to the PanicHandler and recorded as a
// failure; the owning job's outstanding count is decremented either way.
type TaskFunc func(ctx context.Context) error

// TaskTraits defines optional task attributes at submission time.
type TaskTraits struct {
	// Name is used in logs and the execution history. If empty, the function
	// name of the task is resolved via reflection.
	Name string
}

func DefaultTaskTraits() TaskTraits {
	return TaskTraits{}
}

// NamedTask returns traits carrying an explicit task name.
func NamedTask(name string) TaskTraits {
	return TaskTraits{Name: name}
}

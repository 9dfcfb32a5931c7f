package core

import (
	"fmt"
	"runtime/debug"
	"time"
)

// driveJob is the body of a job's driver goroutine, one per run.
//
// Drivers are supervised: each one is counted in the conveyor's driver wait
// group before it is spawned, and Shutdown joins them all. The sequence per
// run is produce, publish the all-pushed signal, wait for the outstanding
// count to drain to zero, run the completion routine, publish done.
func (c *Conveyor) driveJob(state *jobState) {
	defer c.drivers.Done()

	h := state.handle
	startedAt := time.Now()

	state.markProducing()
	c.logger.Debug("job production started",
		F("conveyor", c.id), F("job", h.String()), F("run", state.snapshot().Runs))

	submitter := &jobSubmitter{conveyor: c, state: state}
	prodErr := c.runProduction(state, submitter)

	state.markAllPushed(prodErr)
	state.markDraining()
	<-state.drainedChan()

	var completeErr error
	if state.isAborted() {
		// Shutdown dropped this run's remaining tasks; the user completion
		// routine must not observe a partial result set.
		c.logger.Warn("job aborted by shutdown", F("conveyor", c.id), F("job", h.String()))
		completeErr = ErrConveyorShutDown
	} else {
		completeErr = c.runCompletion(state)
	}

	state.markDone(completeErr)

	duration := time.Since(startedAt)
	c.metrics.RecordJobCompletion(duration)
	c.runDone()

	stats := state.snapshot()
	c.logger.Info("job completed",
		F("conveyor", c.id),
		F("job", h.String()),
		F("run", stats.Runs),
		F("tasks", stats.Submitted),
		F("failed", stats.Failed),
		F("duration", duration))
}

// runProduction invokes Job.Produce with panic recovery. A panic is routed
// to the panic handler and recorded as the production error.
func (c *Conveyor) runProduction(state *jobState, submitter TaskSubmitter) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			c.panicHandler.HandlePanic(c.ctx, c.id, driverWorkerID, r, stack)
			c.metrics.RecordTaskPanic()
			err = fmt.Errorf("job production panic: %v", r)
		}
	}()

	return state.job.Produce(c.ctx, submitter)
}

// runCompletion invokes Job.Complete with panic recovery.
func (c *Conveyor) runCompletion(state *jobState) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			c.panicHandler.HandlePanic(c.ctx, c.id, driverWorkerID, r, stack)
			c.metrics.RecordTaskPanic()
			err = fmt.Errorf("job completion panic: %v", r)
		}
	}()

	return state.job.Complete(c.ctx)
}

// driverWorkerID marks panic reports that come from a driver goroutine
// rather than a pool worker.
const driverWorkerID = -1

// jobSubmitter is the TaskSubmitter handed to Produce. It binds the conveyor
// and the job state so tasks reach the right job without a registry lookup.
type jobSubmitter struct {
	conveyor *Conveyor
	state    *jobState
}

func (s *jobSubmitter) Submit(fn TaskFunc) error {
	return s.conveyor.submitToState(s.state, "", fn)
}

func (s *jobSubmitter) SubmitNamed(name string, fn TaskFunc) error {
	return s.conveyor.submitToState(s.state, name, fn)
}

func (s *jobSubmitter) Handle() JobHandle {
	return s.state.handle
}

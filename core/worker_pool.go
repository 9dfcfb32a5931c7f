package core

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// workerPool runs a fixed set of worker goroutines that drain the shared
// task queue. Workers execute task actions with panic recovery and report
// every result, including panics and drops, back to the owning job so the
// outstanding count always reaches zero.
type workerPool struct {
	conveyorID string
	workers    int
	queue      *taskQueue
	wg         sync.WaitGroup

	panicHandler PanicHandler
	metrics      Metrics
	history      *executionHistory

	metricActive   int32
	metricExecuted int64
	metricFailed   int64
	metricPanicked int64
}

// defaultWorkerCount is the available parallelism minus one goroutine for
// the submitting side, never less than one.
func defaultWorkerCount() int {
	n := runtime.NumCPU() - 1
	if n < 1 {
		n = 1
	}
	return n
}

func newWorkerPool(conveyorID string, workers int, queue *taskQueue, panicHandler PanicHandler, metrics Metrics, history *executionHistory) *workerPool {
	return &workerPool{
		conveyorID:   conveyorID,
		workers:      workers,
		queue:        queue,
		panicHandler: panicHandler,
		metrics:      metrics,
		history:      history,
	}
}

// Start spawns the worker goroutines.
func (p *workerPool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.workerLoop(ctx, i)
	}
}

// Join waits for all worker goroutines to finish. Workers exit after the
// queue is closed, once their in-flight task is done.
func (p *workerPool) Join() {
	p.wg.Wait()
}

// workerLoop is the main loop for each worker.
func (p *workerPool) workerLoop(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		item, ok := p.queue.Dequeue()
		if !ok {
			// Queue closed, shutdown signal observed
			return
		}
		p.execute(ctx, id, item)
	}
}

func (p *workerPool) execute(ctx context.Context, id int, item queuedTask) {
	atomic.AddInt32(&p.metricActive, 1)
	startedAt := time.Now()

	err, panicked := p.runTask(ctx, id, item)

	finishedAt := time.Now()
	duration := finishedAt.Sub(startedAt)
	atomic.AddInt32(&p.metricActive, -1)
	atomic.AddInt64(&p.metricExecuted, 1)

	p.metrics.RecordTaskExecution(duration)
	if err != nil {
		atomic.AddInt64(&p.metricFailed, 1)
		p.metrics.RecordTaskFailure()
	}
	if panicked {
		atomic.AddInt64(&p.metricPanicked, 1)
	}
	p.history.Add(TaskExecutionRecord{
		Job:        item.job.handle,
		Name:       resolveTaskName(item.fn, item.name),
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Duration:   duration,
		Err:        err,
		Panicked:   panicked,
	})

	// Decrement last so the job's counters are final when its done signal
	// becomes observable.
	item.job.taskFinished(err)
}

// runTask executes the task action and converts a panic into an error after
// routing it to the panic handler.
func (p *workerPool) runTask(ctx context.Context, id int, item queuedTask) (err error, panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			stack := debug.Stack()
			p.panicHandler.HandlePanic(ctx, p.conveyorID, id, r, stack)
			p.metrics.RecordTaskPanic()
			err = fmt.Errorf("task panic: %v", r)
		}
	}()

	return item.fn(ctx), false
}

func (p *workerPool) WorkerCount() int {
	return p.workers
}

func (p *workerPool) ActiveTaskCount() int {
	return int(atomic.LoadInt32(&p.metricActive))
}

func (p *workerPool) ExecutedTaskCount() int64 {
	return atomic.LoadInt64(&p.metricExecuted)
}

func (p *workerPool) FailedTaskCount() int64 {
	return atomic.LoadInt64(&p.metricFailed)
}

func (p *workerPool) PanickedTaskCount() int64 {
	return atomic.LoadInt64(&p.metricPanicked)
}

package core

import "sync"

const (
	defaultQueueCap     = 16
	compactMinCap       = 64 // Don't compact if capacity is less than this
	compactShrinkFactor = 4  // Trigger compaction when len < cap/4
)

// queuedTask binds a task action to the internal state of the job that
// submitted it. Workers report results straight to that state, so a job that
// is removed from the registry keeps its in-flight tasks safe.
type queuedTask struct {
	fn   TaskFunc
	name string
	job  *jobState
}

// taskQueue is the bounded FIFO shared by every job on a conveyor.
//
// Capacity 0 means unbounded. With a positive capacity the queue never holds
// more than capacity tasks: Enqueue blocks while the queue is full. Dequeue
// blocks while the queue is empty. Blocking is implemented with buffered hint
// channels plus a stop channel that is closed exactly once by Close, which
// makes the shutdown signal visible to every blocked producer and worker at
// the same time.
type taskQueue struct {
	mu       sync.Mutex
	tasks    []queuedTask
	capacity int
	closed   bool

	signal chan struct{} // item hints for blocked workers
	space  chan struct{} // free-slot hints for blocked producers
	stop   chan struct{} // closed on Close
}

// newTaskQueue creates a queue with the given capacity (0 = unbounded).
// The hint channels are sized from the worker count like the signal channel
// of the scheduler this queue grew out of.
func newTaskQueue(capacity int, workers int) *taskQueue {
	if workers < 1 {
		workers = 1
	}
	initialCap := defaultQueueCap
	if capacity > 0 && capacity < initialCap {
		initialCap = capacity
	}
	return &taskQueue{
		tasks:    make([]queuedTask, 0, initialCap),
		capacity: capacity,
		signal:   make(chan struct{}, workers*2),
		space:    make(chan struct{}, workers*2),
		stop:     make(chan struct{}),
	}
}

// Enqueue appends a task, blocking while the queue is at capacity. It returns
// ErrConveyorShutDown once the queue has been closed, including when the
// caller was already blocked waiting for space.
func (q *taskQueue) Enqueue(t queuedTask) error {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return ErrConveyorShutDown
		}
		if q.capacity == 0 || len(q.tasks) < q.capacity {
			q.tasks = append(q.tasks, t)
			spaceLeft := q.capacity > 0 && len(q.tasks) < q.capacity
			q.mu.Unlock()

			select {
			case q.signal <- struct{}{}:
			default:
				// Signal channel full, but task is already queued
			}
			if spaceLeft {
				// Forward the space hint so one woken producer cannot
				// strand the others while free slots remain.
				select {
				case q.space <- struct{}{}:
				default:
				}
			}
			return nil
		}
		q.mu.Unlock()

		select {
		case <-q.space:
		case <-q.stop:
			return ErrConveyorShutDown
		}
	}
}

// Dequeue pops the oldest task, blocking while the queue is empty. The second
// return value is false once the queue has been closed; tasks still queued at
// that point are not handed out (Close extracts and returns them instead).
func (q *taskQueue) Dequeue() (queuedTask, bool) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return queuedTask{}, false
		}
		if len(q.tasks) > 0 {
			item := q.tasks[0]
			// Zero out the element in the underlying array to prevent memory leak
			q.tasks[0] = queuedTask{}
			q.tasks = q.tasks[1:]
			q.maybeCompactLocked()
			q.mu.Unlock()

			if q.capacity > 0 {
				select {
				case q.space <- struct{}{}:
				default:
				}
			}
			return item, true
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-q.stop:
			return queuedTask{}, false
		}
	}
}

// Close marks the queue shut down, wakes every blocked producer and worker,
// and returns the tasks that were still queued so the caller can account for
// them. Repeated calls return nil.
func (q *taskQueue) Close() []queuedTask {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	dropped := q.tasks
	q.tasks = nil
	q.mu.Unlock()

	close(q.stop)

	if len(dropped) == 0 {
		return nil
	}
	return dropped
}

func (q *taskQueue) maybeCompactLocked() {
	n := len(q.tasks)
	c := cap(q.tasks)

	if c < compactMinCap {
		return
	}
	if n == 0 {
		q.tasks = make([]queuedTask, 0, defaultQueueCap)
		return
	}
	if n*compactShrinkFactor >= c {
		return
	}

	newCap := max(max(c/2, defaultQueueCap), n)

	newSlice := make([]queuedTask, n, newCap)
	copy(newSlice, q.tasks)
	q.tasks = newSlice
}

func (q *taskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *taskQueue) Cap() int {
	return q.capacity
}

func (q *taskQueue) IsEmpty() bool {
	return q.Len() == 0
}

package core

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// delayedTask is a task submission scheduled for the future. The task is
// already counted against its job, so drain detection treats it as
// outstanding while it waits in the heap.
type delayedTask struct {
	runAt time.Time
	item  queuedTask
	index int // for heap interface
}

// delayedTaskHeap implements heap.Interface
type delayedTaskHeap []*delayedTask

func (h delayedTaskHeap) Len() int           { return len(h) }
func (h delayedTaskHeap) Less(i, j int) bool { return h[i].runAt.Before(h[j].runAt) }
func (h delayedTaskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *delayedTaskHeap) Push(x any) {
	n := len(*h)
	item := x.(*delayedTask)
	item.index = n
	*h = append(*h, item)
}

func (h *delayedTaskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	item.index = -1
	*h = old[0 : n-1]
	return item
}

func (h *delayedTaskHeap) Peek() *delayedTask {
	if len(*h) == 0 {
		return nil
	}
	return (*h)[0]
}

// delayManager holds tasks until they are due, then hands them to the
// deliver callback. Delivery goes through the normal bounded enqueue path,
// so due tasks respect backpressure; a full queue delays later due tasks
// behind the blocked delivery.
type delayManager struct {
	pq      delayedTaskHeap
	mu      sync.Mutex
	wakeup  chan struct{}
	deliver func(queuedTask)
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func newDelayManager(deliver func(queuedTask)) *delayManager {
	ctx, cancel := context.WithCancel(context.Background())
	dm := &delayManager{
		pq:      make(delayedTaskHeap, 0),
		wakeup:  make(chan struct{}, 1),
		deliver: deliver,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	heap.Init(&dm.pq)
	go dm.loop()
	return dm
}

func (dm *delayManager) Add(item queuedTask, delay time.Duration) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	entry := &delayedTask{
		runAt: time.Now().Add(delay),
		item:  item,
	}
	heap.Push(&dm.pq, entry)

	if entry.index == 0 {
		select {
		case dm.wakeup <- struct{}{}:
		default:
		}
	}
}

func (dm *delayManager) loop() {
	defer close(dm.done)

	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		// Calculate next run time
		nextRun, hasTask := dm.calculateNextRun()
		if hasTask && nextRun <= 0 {
			// Head of the heap is already due
			dm.processExpiredTasks()
			continue
		}
		if !hasTask {
			// No tasks, wait indefinitely
			nextRun = 1000 * time.Hour
		}

		timer.Reset(nextRun)

		select {
		case <-dm.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			// Timer fired, process all expired tasks in one go
			dm.processExpiredTasks()
		case <-dm.wakeup:
			// New task added, need to recalculate
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
	}
}

// calculateNextRun determines how long to wait until the next task. The
// second return value is false when the heap is empty.
func (dm *delayManager) calculateNextRun() (time.Duration, bool) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	entry := dm.pq.Peek()
	if entry == nil {
		return 0, false
	}
	return time.Until(entry.runAt), true
}

// processExpiredTasks delivers all tasks that have expired
func (dm *delayManager) processExpiredTasks() {
	dm.mu.Lock()

	now := time.Now()
	// Collect all expired tasks to avoid holding lock while delivering
	var expired []*delayedTask

	for dm.pq.Len() > 0 {
		entry := dm.pq.Peek()
		if entry.runAt.After(now) {
			break // No more expired tasks
		}
		heap.Pop(&dm.pq)
		expired = append(expired, entry)
	}

	dm.mu.Unlock()

	// Deliver expired tasks outside the lock
	for _, entry := range expired {
		dm.deliver(entry.item)
	}
}

// Stop terminates the loop and returns the submissions that never became
// due. The caller is responsible for releasing their outstanding slots.
func (dm *delayManager) Stop() []queuedTask {
	dm.cancel()
	<-dm.done

	dm.mu.Lock()
	defer dm.mu.Unlock()

	pending := make([]queuedTask, 0, len(dm.pq))
	for _, entry := range dm.pq {
		pending = append(pending, entry.item)
	}
	dm.pq = make(delayedTaskHeap, 0)
	heap.Init(&dm.pq)

	if len(pending) == 0 {
		return nil
	}
	return pending
}

func (dm *delayManager) TaskCount() int {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return len(dm.pq)
}

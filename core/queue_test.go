package core

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestTaskQueue_FIFO verifies first-in-first-out ordering
// Given: A queue with 5 tasks enqueued in order
// When: Tasks are dequeued
// Then: Tasks come out in insertion order
func TestTaskQueue_FIFO(t *testing.T) {
	// Arrange
	q := newTaskQueue(0, 2)

	// Act - Enqueue tasks in a specific order
	for i := 0; i < 5; i++ {
		if err := q.Enqueue(queuedTask{name: fmt.Sprintf("task-%d", i)}); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	// Assert - Dequeue preserves insertion order
	for i := 0; i < 5; i++ {
		item, ok := q.Dequeue()
		if !ok {
			t.Fatalf("Step %d: queue is empty, want task", i)
		}
		want := fmt.Sprintf("task-%d", i)
		if item.name != want {
			t.Errorf("Step %d: name = %q, want %q", i, item.name, want)
		}
	}
}

// TestTaskQueue_BoundedBlocksProducer verifies backpressure on a full queue
// Given: A queue with capacity 2 that is full
// When: A producer enqueues a third task
// Then: The producer blocks until a slot is freed by Dequeue
func TestTaskQueue_BoundedBlocksProducer(t *testing.T) {
	// Arrange - Fill the queue to capacity
	q := newTaskQueue(2, 1)
	if err := q.Enqueue(queuedTask{name: "a"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := q.Enqueue(queuedTask{name: "b"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	// Act - Third enqueue must block
	var producerDone atomic.Bool
	go func() {
		if err := q.Enqueue(queuedTask{name: "c"}); err != nil {
			t.Errorf("blocked Enqueue failed: %v", err)
		}
		producerDone.Store(true)
	}()

	time.Sleep(50 * time.Millisecond)

	// Assert - Producer is still blocked while the queue is full
	if producerDone.Load() {
		t.Fatal("producer completed while queue was full, want blocked")
	}
	if q.Len() != 2 {
		t.Errorf("q.Len() = %d, want 2", q.Len())
	}

	// Act - Free one slot
	if _, ok := q.Dequeue(); !ok {
		t.Fatal("Dequeue on full queue = false, want true")
	}

	// Assert - Producer unblocks
	waitTrue(t, time.Second, func() bool { return producerDone.Load() })
	if q.Len() != 2 {
		t.Errorf("q.Len() after refill = %d, want 2", q.Len())
	}
}

// TestTaskQueue_CapacityNeverExceeded verifies the queue bound under load
// Given: A queue with capacity 3 and 4 concurrent producers
// When: 100 tasks flow through the queue
// Then: The observed length never exceeds the capacity
func TestTaskQueue_CapacityNeverExceeded(t *testing.T) {
	// Arrange
	const (
		capacity  = 3
		producers = 4
		perProd   = 25
	)
	q := newTaskQueue(capacity, 2)

	// Act - Producers push concurrently while one consumer drains
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProd; i++ {
				if err := q.Enqueue(queuedTask{}); err != nil {
					t.Errorf("Enqueue failed: %v", err)
					return
				}
			}
		}()
	}

	// Assert - Length stays within the bound at every observation
	for popped := 0; popped < producers*perProd; popped++ {
		if _, ok := q.Dequeue(); !ok {
			t.Fatalf("Dequeue %d = false, want true", popped)
		}
		if n := q.Len(); n > capacity {
			t.Fatalf("q.Len() = %d, exceeds capacity %d", n, capacity)
		}
	}

	wg.Wait()
	if !q.IsEmpty() {
		t.Errorf("q.Len() after drain = %d, want 0", q.Len())
	}
}

// TestTaskQueue_UnboundedNeverBlocks verifies capacity 0 disables the bound
// Given: A queue with capacity 0 and no consumer
// When: 1000 tasks are enqueued from a single goroutine
// Then: Every enqueue returns immediately
func TestTaskQueue_UnboundedNeverBlocks(t *testing.T) {
	// Arrange
	q := newTaskQueue(0, 2)

	// Act - Enqueue in bulk without any consumer
	for i := 0; i < 1000; i++ {
		if err := q.Enqueue(queuedTask{}); err != nil {
			t.Fatalf("Enqueue %d failed: %v", i, err)
		}
	}

	// Assert
	if q.Len() != 1000 {
		t.Errorf("q.Len() = %d, want 1000", q.Len())
	}
	if q.Cap() != 0 {
		t.Errorf("q.Cap() = %d, want 0", q.Cap())
	}
}

// TestTaskQueue_DequeueBlocksUntilEnqueue verifies the consumer side blocks
// Given: An empty queue with a blocked consumer
// When: A task is enqueued
// Then: The consumer wakes up and receives that task
func TestTaskQueue_DequeueBlocksUntilEnqueue(t *testing.T) {
	// Arrange
	q := newTaskQueue(0, 1)
	received := make(chan queuedTask, 1)

	go func() {
		item, ok := q.Dequeue()
		if !ok {
			t.Error("Dequeue = false, want true")
			return
		}
		received <- item
	}()

	// Assert - Consumer stays blocked on the empty queue
	select {
	case <-received:
		t.Fatal("Dequeue returned on empty queue, want blocked")
	case <-time.After(50 * time.Millisecond):
	}

	// Act
	if err := q.Enqueue(queuedTask{name: "wake"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	// Assert - Consumer received the task
	select {
	case item := <-received:
		if item.name != "wake" {
			t.Errorf("name = %q, want %q", item.name, "wake")
		}
	case <-time.After(time.Second):
		t.Fatal("consumer did not wake after Enqueue")
	}
}

// TestTaskQueue_CloseExtractsQueuedTasks verifies drop accounting on close
// Given: A queue holding 3 tasks
// When: Close is called twice
// Then: The first call returns the 3 tasks, the second returns nil
func TestTaskQueue_CloseExtractsQueuedTasks(t *testing.T) {
	// Arrange
	q := newTaskQueue(0, 1)
	for i := 0; i < 3; i++ {
		if err := q.Enqueue(queuedTask{name: fmt.Sprintf("task-%d", i)}); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	// Act
	dropped := q.Close()

	// Assert - All queued tasks are handed back in order
	if len(dropped) != 3 {
		t.Fatalf("len(dropped) = %d, want 3", len(dropped))
	}
	if dropped[0].name != "task-0" {
		t.Errorf("dropped[0].name = %q, want %q", dropped[0].name, "task-0")
	}

	// Assert - Close is idempotent
	if again := q.Close(); again != nil {
		t.Errorf("second Close returned %d tasks, want nil", len(again))
	}
}

// TestTaskQueue_CloseUnblocksProducerAndConsumer verifies broadcast shutdown
// Given: A producer blocked on a full queue and a consumer blocked on a second empty queue
// When: Close is called on both queues
// Then: Both callers unblock, the producer with ErrConveyorShutDown
func TestTaskQueue_CloseUnblocksProducerAndConsumer(t *testing.T) {
	// Arrange - Producer blocked on a full bounded queue
	full := newTaskQueue(1, 1)
	if err := full.Enqueue(queuedTask{}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	producerErr := make(chan error, 1)
	go func() {
		producerErr <- full.Enqueue(queuedTask{})
	}()

	// Arrange - Consumer blocked on an empty queue
	empty := newTaskQueue(0, 1)
	consumerOK := make(chan bool, 1)
	go func() {
		_, ok := empty.Dequeue()
		consumerOK <- ok
	}()

	time.Sleep(50 * time.Millisecond)

	// Act
	full.Close()
	empty.Close()

	// Assert - Producer unblocked with the shutdown error
	select {
	case err := <-producerErr:
		if !errors.Is(err, ErrConveyorShutDown) {
			t.Errorf("blocked Enqueue error = %v, want ErrConveyorShutDown", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked producer did not unblock after Close")
	}

	// Assert - Consumer unblocked with ok=false
	select {
	case ok := <-consumerOK:
		if ok {
			t.Error("blocked Dequeue = true after Close, want false")
		}
	case <-time.After(time.Second):
		t.Fatal("blocked consumer did not unblock after Close")
	}
}

// TestTaskQueue_OperationsAfterClose verifies closed-queue behavior
// Given: A closed queue
// When: Enqueue and Dequeue are called
// Then: Enqueue returns ErrConveyorShutDown and Dequeue returns false
func TestTaskQueue_OperationsAfterClose(t *testing.T) {
	// Arrange
	q := newTaskQueue(4, 1)
	q.Close()

	// Act / Assert
	if err := q.Enqueue(queuedTask{}); !errors.Is(err, ErrConveyorShutDown) {
		t.Errorf("Enqueue after Close = %v, want ErrConveyorShutDown", err)
	}
	if _, ok := q.Dequeue(); ok {
		t.Error("Dequeue after Close = true, want false")
	}
}

// TestTaskQueue_CompactionKeepsQueueFunctional verifies memory compaction
// Given: A queue that grew to 100 tasks and was drained
// When: More tasks flow through it
// Then: The queue still operates correctly
func TestTaskQueue_CompactionKeepsQueueFunctional(t *testing.T) {
	// Arrange - Grow the backing slice past the compaction threshold
	q := newTaskQueue(0, 1)
	for i := 0; i < 100; i++ {
		if err := q.Enqueue(queuedTask{}); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}
	for i := 0; i < 100; i++ {
		if _, ok := q.Dequeue(); !ok {
			t.Fatalf("Dequeue %d = false, want true", i)
		}
	}

	// Act - Use the queue again after compaction kicked in
	if err := q.Enqueue(queuedTask{name: "after-compact"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	// Assert
	item, ok := q.Dequeue()
	if !ok {
		t.Fatal("Dequeue after compaction = false, want true")
	}
	if item.name != "after-compact" {
		t.Errorf("name = %q, want %q", item.name, "after-compact")
	}
	if !q.IsEmpty() {
		t.Errorf("q.Len() = %d, want 0", q.Len())
	}
}

// waitTrue polls cond until it holds or the timeout expires.
func waitTrue(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

package core

import (
	"fmt"
	"sync"
)

// JobHandle identifies a registered job.
//
// Handles are generation checked: each registry slot carries a generation
// counter that is bumped every time the slot is reused, so a handle kept
// after Remove can never silently resolve to a different job. The zero value
// is invalid and never issued.
type JobHandle struct {
	index uint32
	gen   uint32
}

// IsZero reports whether the handle is the invalid zero value.
func (h JobHandle) IsZero() bool {
	return h.gen == 0
}

func (h JobHandle) String() string {
	if h.IsZero() {
		return "job-invalid"
	}
	return fmt.Sprintf("job-%d.%d", h.index, h.gen)
}

type registrySlot struct {
	gen   uint32
	state *jobState // nil while the slot is free
}

// jobRegistry maps live handles to job state. It owns the registered jobs:
// Insert takes ownership, Remove transfers it back to the caller.
type jobRegistry struct {
	mu    sync.Mutex
	slots []registrySlot
	free  []uint32
	byJob map[Job]JobHandle
}

func newJobRegistry() *jobRegistry {
	return &jobRegistry{byJob: make(map[Job]JobHandle)}
}

// Insert registers the job state and issues a fresh handle. Submitting a job
// value that is already registered fails with ErrJobAlreadyRegistered.
func (r *jobRegistry) Insert(state *jobState) (JobHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h, ok := r.byJob[state.job]; ok {
		return JobHandle{}, fmt.Errorf("%w: live handle %s", ErrJobAlreadyRegistered, h)
	}

	var idx uint32
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		r.slots = append(r.slots, registrySlot{})
		idx = uint32(len(r.slots) - 1)
	}

	slot := &r.slots[idx]
	slot.gen++
	slot.state = state

	h := JobHandle{index: idx, gen: slot.gen}
	state.handle = h
	r.byJob[state.job] = h
	return h, nil
}

// Lookup resolves a handle to its job state.
func (r *jobRegistry) Lookup(h JobHandle) (*jobState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookupLocked(h)
}

func (r *jobRegistry) lookupLocked(h JobHandle) (*jobState, bool) {
	if h.gen == 0 || int(h.index) >= len(r.slots) {
		return nil, false
	}
	slot := &r.slots[h.index]
	if slot.state == nil || slot.gen != h.gen {
		return nil, false
	}
	return slot.state, true
}

// RemoveCompleted extracts the job state for h if its current run is
// completed. The check and the removal happen under one lock so a job cannot
// be restarted between them. On success the handle is invalidated and the
// slot recycled.
func (r *jobRegistry) RemoveCompleted(h JobHandle) (*jobState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.lookupLocked(h)
	if !ok {
		return nil, ErrUnknownJob
	}
	if !state.isDone() {
		return nil, ErrJobNotCompleted
	}

	slot := &r.slots[h.index]
	slot.state = nil
	r.free = append(r.free, h.index)
	delete(r.byJob, state.job)
	return state, nil
}

func (r *jobRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byJob)
}

// ForEach calls fn for every registered job state. The snapshot is taken
// under the lock but fn runs outside it.
func (r *jobRegistry) ForEach(fn func(*jobState)) {
	r.mu.Lock()
	states := make([]*jobState, 0, len(r.byJob))
	for i := range r.slots {
		if r.slots[i].state != nil {
			states = append(states, r.slots[i].state)
		}
	}
	r.mu.Unlock()

	for _, state := range states {
		fn(state)
	}
}

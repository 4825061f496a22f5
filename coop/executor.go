package coop

import "sync"

// TaskID identifies a cooperative task within the executor.
type TaskID uint64

// Future is the kernel-native analogue of the original's Future/Waker
// pair: Poll runs until it would block, then returns false having
// arranged (via wake) to be polled again once progress is possible.
// There is no async/await in Go, so the suspension point is expressed
// as an ordinary boolean return rather than a coroutine yield.
type Future interface {
	Poll(wake func()) (done bool)
}

// Executor is a single-threaded, non-parallel cooperative scheduler
// for kernel-internal futures, per §4.7's concurrency contract:
// suspend only on an empty device queue, a producer (IRQ) wakes by
// enqueuing a ready id, no cancellation.
type Executor struct {
	mu     sync.Mutex
	nextID TaskID
	tasks  map[TaskID]Future
	ready  *Ring[TaskID]
}

// NewExecutor constructs an executor with a ready queue capacity large
// enough to hold one pending wake per registered future; device-queue
// overflow is handled at the Ring level, not here.
func NewExecutor(readyCapacity int) *Executor {
	return &Executor{
		tasks: make(map[TaskID]Future),
		ready: NewRing[TaskID](readyCapacity),
	}
}

// Spawn registers f and immediately marks it ready for its first poll.
func (e *Executor) Spawn(f Future) TaskID {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.tasks[id] = f
	e.mu.Unlock()
	e.ready.Push(id)
	return id
}

// waker returns a function a Future can stash and call (from any
// context, including a simulated IRQ) to re-enqueue itself.
func (e *Executor) waker(id TaskID) func() {
	return func() { e.ready.Push(id) }
}

// RunOnce drains the ready queue once, polling every task that was
// marked ready, removing any that complete. It reports whether any
// work was done, so the caller's idle loop knows whether to halt.
func (e *Executor) RunOnce() bool {
	did := false
	for {
		id, ok := e.ready.Pop()
		if !ok {
			break
		}
		did = true

		e.mu.Lock()
		f, live := e.tasks[id]
		e.mu.Unlock()
		if !live {
			continue // already completed and removed
		}

		if f.Poll(e.waker(id)) {
			e.mu.Lock()
			delete(e.tasks, id)
			e.mu.Unlock()
		}
	}
	return did
}

// Idle reports whether the executor currently has nothing ready to
// run. The caller's main loop uses this, per §4.7, to decide whether
// to disable interrupts, check again, and `sti ; hlt` — a check this
// package cannot itself perform since it has no notion of hardware
// interrupt state.
func (e *Executor) Idle() bool {
	return e.ready.Len() == 0
}

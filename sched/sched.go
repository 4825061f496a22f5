// Package sched implements the round-robin scheduler of §4.5: a
// bounded new_queue and ready_queue, a single running task, a state
// machine driven by the timer IRQ and the exit syscall.
//
// Grounded on _examples/original_source/crate/task/src/scheduler.rs
// (Scheduler, bounded ArrayQueues of capacity 1000/100, new-queue
// priority) and applications/shell/crate/task/src/context_switch.rs
// for the save/restore register contract. Per REDESIGN FLAGS, the
// naked-asm context switch is expressed as a Go interface
// (ContextSwitcher) rather than an embedded assembly routine, since
// that is not portable to go vet/go test; the specification is the
// register-save contract, not the instruction sequence.
package sched

import (
	"errors"
	"sync"

	"pebblekernel/task"
)

const (
	NewQueueCapacity   = 100
	ReadyQueueCapacity = 1000
)

var ErrQueueFull = errors.New("sched: queue at capacity")

// ContextSwitcher performs the actual register/stack/CR3 swap. A real
// boot implementation backs this with a naked assembly routine; tests
// and host tooling can back it with a recording fake.
type ContextSwitcher interface {
	// SaveAndSwitch saves prev's context (if prev != nil) and restores
	// next's, returning once the restored task resumes.
	SaveAndSwitch(prev, next *task.Task)
	// JumpToNew performs the jump into a never-before-run task's entry
	// point on its fresh stack. On real hardware this is a one-way
	// jump that never returns to the caller; host-side implementations
	// (tests, tooling) may return normally after recording the switch.
	JumpToNew(next *task.Task)
}

// Scheduler is the §4.5 central state: {new_queue, ready_queue,
// running}, protected by a single lock.
type Scheduler struct {
	mu         sync.Mutex
	newQueue   []*task.Task
	readyQueue []*task.Task
	running    *task.Task
	switcher   ContextSwitcher
}

func New(switcher ContextSwitcher) *Scheduler {
	return &Scheduler{switcher: switcher}
}

// Spawn admits a freshly created (StateNew) task to the new queue. It
// returns ErrQueueFull if the new queue is at capacity, matching the
// bounded-FIFO invariant of §3.
func (s *Scheduler) Spawn(t *task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.newQueue) >= NewQueueCapacity {
		return ErrQueueFull
	}
	s.newQueue = append(s.newQueue, t)
	return nil
}

// Running returns the currently running task, or nil if the CPU is
// idle.
func (s *Scheduler) Running() *task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Schedule runs the §4.5 algorithm: requeue/drop the current task
// depending on its state, pick the next task (new_queue takes priority
// over ready_queue), and perform the context switch. It is invoked
// from the timer IRQ after EOI and from the exit syscall path (which
// provokes rescheduling via a synthetic "tick", see Exit).
//
// Returns false if both queues were empty and there is no running task
// to resume — the caller's idle path should halt.
func (s *Scheduler) Schedule() bool {
	s.mu.Lock()

	prev := s.running
	if prev != nil {
		switch prev.State {
		case task.StateRunning:
			prev.State = task.StateReady
			s.readyQueue = append(s.readyQueue, prev)
		case task.StateFinished:
			// dropped; task reaping is unspecified (§9 open question)
		case task.StateBlocked:
			// blocked-list handling is not implemented; open per §4.5
		}
	}

	var next *task.Task
	wasNew := false
	if len(s.newQueue) > 0 {
		next = s.newQueue[0]
		s.newQueue = s.newQueue[1:]
		wasNew = true
	} else if len(s.readyQueue) > 0 {
		next = s.readyQueue[0]
		s.readyQueue = s.readyQueue[1:]
	}

	if next == nil {
		s.running = nil
		s.mu.Unlock()
		return false
	}

	s.running = next
	s.mu.Unlock()

	next.State = task.StateRunning
	if wasNew {
		// On real hardware this jump never returns control to this
		// call frame; the new task's first instruction is the next
		// thing the CPU runs. A host-side ContextSwitcher is free to
		// return normally once it has recorded the switch, which is
		// what lets Schedule's queue bookkeeping above run again on
		// the next timer tick without a real interrupt return path.
		s.switcher.JumpToNew(next)
		return true
	}

	s.switcher.SaveAndSwitch(prev, next)
	return true
}

// Exit marks t Finished and requests a reschedule, matching the exit
// syscall's effect in §4.6: "sets the running task's state to Finished
// and triggers int 0x20 to hand control to the scheduler; never
// returns." There is no hardware IDT to re-enter from a plain Go call,
// so this directly invokes Schedule rather than re-raising a software
// interrupt — the observable effect (force a reschedule) is preserved.
func (s *Scheduler) Exit(t *task.Task) {
	s.mu.Lock()
	t.State = task.StateFinished
	s.mu.Unlock()
	s.Schedule()
}

// Tick is invoked from the timer IRQ handler after signaling EOI.
func (s *Scheduler) Tick() {
	s.Schedule()
}

// Counts reports the current queue depths, for diagnostics and tests.
func (s *Scheduler) Counts() (newLen, readyLen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.newQueue), len(s.readyQueue)
}

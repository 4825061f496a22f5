// Package task defines the scheduled unit of execution: {id, state,
// entry, pml4, kernel stack, user stack, ring}, per §3/§4.5.
//
// Grounded on _examples/original_source/crate/task/src/task.rs (Task,
// TaskID, TaskState, Context) translated into the teacher's vocabulary
// — mem.Pa_t for the PML4 frame instead of a boxed PageTable.
package task

import (
	"sync/atomic"

	"pebblekernel/defs"
	"pebblekernel/mem"
	"pebblekernel/vmm"
)

// State is one point in the task state machine of §4.5.
type State int

const (
	StateNew State = iota
	StateReady
	StateRunning
	StateBlocked
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateBlocked:
		return "blocked"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// ID is a monotonically allocated task identifier.
type ID uint64

var nextID atomic.Uint64

// NewID hands out the next monotonically increasing task id.
func NewID() ID {
	return ID(nextID.Add(1))
}

// Context is the register-save set a context switch preserves, per the
// REDESIGN FLAGS' "pair of primitives with clearly defined register-
// save sets" — callee-saved GPRs plus the stack pointer and CR3. The
// scheduler treats this as opaque data; only the ContextSwitcher
// implementation interprets it.
type Context struct {
	RSP, RBP              uint64
	RBX, R12, R13, R14, R15 uint64
	CR3                   uint64
}

// Task is the scheduled unit of execution.
type Task struct {
	ID    ID
	State State
	Name  string
	Ring  defs.Ring

	Entry vmm.VirtAddr
	AS    *vmm.AddressSpace

	KernelStackTop vmm.VirtAddr
	KernelStackLo  vmm.VirtAddr
	UserStackTop   vmm.VirtAddr
	UserStackLo    vmm.VirtAddr

	Saved Context

	pml4Frame mem.Pa_t
}

// New constructs a task in state New, not yet given a stack or saved
// context — those are filled in by AllocateStacks once the ELF image
// is mapped into as.
func New(name string, as *vmm.AddressSpace, entry vmm.VirtAddr, ring defs.Ring) *Task {
	return &Task{
		ID:        NewID(),
		State:     StateNew,
		Name:      name,
		Ring:      ring,
		Entry:     entry,
		AS:        as,
		pml4Frame: as.PML4Frame,
	}
}

// PML4Frame returns the physical frame backing the task's top-level
// page table.
func (t *Task) PML4Frame() mem.Pa_t { return t.pml4Frame }

// Default stack-top addresses every task maps its own frames at: the
// user stack sits just below the kernel/user boundary elf.Load
// enforces on segment vaddrs, the kernel stack in a fixed high slot
// distinct from the heap and recursive windows. Since each task has
// its own PML4, every task reuses the same virtual addresses for its
// own, separate physical frames.
const (
	DefaultUserStackTop   = vmm.KernelHalfStart - vmm.VirtAddr(mem.PGSIZE)
	DefaultKernelStackTop = vmm.VirtAddr(0xffff_9800_0000_0000)
)

// AllocateStacks maps t's kernel-mode and user-mode stacks into root,
// sized in pages, and records their ranges on t so a context switch
// has a valid RSP to run on — per §3/§4.5, a Task without a stack
// cannot be scheduled. Called once, right after New, before the task
// is handed to the scheduler.
func AllocateStacks(m *vmm.Manager, root mem.Pa_t, kernelPages, userPages int, t *Task) error {
	klo, err := vmm.MapStackDown(m, root, DefaultKernelStackTop, kernelPages, mem.PTE_W)
	if err != nil {
		return err
	}
	ulo, err := vmm.MapStackDown(m, root, DefaultUserStackTop, userPages, mem.PTE_W|mem.PTE_U)
	if err != nil {
		return err
	}
	t.KernelStackLo, t.KernelStackTop = klo, DefaultKernelStackTop
	t.UserStackLo, t.UserStackTop = ulo, DefaultUserStackTop
	t.Saved.RSP = uint64(DefaultKernelStackTop)
	return nil
}

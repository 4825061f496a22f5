// Package trap models the IDT, its CPU exception handlers, PIC IRQ
// remapping, and the vector 0x80 syscall gate, per §4.6.
//
// Grounded on spec.md §4.6/§9 for the dispatch table shape and on
// _examples/original_source/crate/interrupts/src/lib.rs for which
// vectors carry handlers and which use the double-fault IST stack.
// Faulting-instruction diagnostics are decoded with
// golang.org/x/arch/x86/x86asm rather than left as a bare hex dump —
// real instruction decoding, grounded on the teacher's go.mod carrying
// golang.org/x/arch for its own x86 tooling.
package trap

import (
	"golang.org/x/arch/x86/x86asm"

	"pebblekernel/klog"
)

// Hardware exception vectors used by this kernel.
const (
	VecDivideError       = 0
	VecInvalidOpcode      = 6
	VecDoubleFault        = 8
	VecStackSegmentFault  = 12
	VecGeneralProtection  = 13
	VecPageFault          = 14
	VecAlignmentCheck     = 17
)

// PIC remap: IRQs land at vectors 32-47.
const (
	PICBase         = 32
	VecTimer        = PICBase + 0
	VecKeyboard     = PICBase + 1
	VecMouse        = PICBase + 12
	VecPrimaryATA   = PICBase + 14
)

// VecSyscall is the software-interrupt gate reachable from ring 3.
const VecSyscall = 0x80

// Frame is the trapped CPU state an exception or IRQ handler observes:
// the interrupt return frame plus, for faults that push one, the
// hardware error code. CR2 carries the faulting address for page
// faults. RAX/RDI/RSI/RDX are only meaningful on the vector 0x80
// syscall gate, per §4.6's register convention — the trap stub pushes
// the full GPR set before calling into Go, and the syscall handler
// writes its return value back into RAX before iretq.
type Frame struct {
	RIP, CS, RFlags, RSP, SS uint64
	ErrorCode                uint64
	CR2                      uint64
	RAX, RDI, RSI, RDX       uint64
}

// Page-fault error code bits (Intel SDM vol. 3, §4.7).
const (
	PFPresent          = 1 << 0
	PFWrite            = 1 << 1
	PFUser             = 1 << 2
	PFReservedWrite    = 1 << 3
	PFInstructionFetch = 1 << 4
)

// Handler processes a trapped frame. An EOIFunc (below) signals the
// handler is done with a hardware IRQ; CPU exceptions signal none.
type Handler func(f *Frame)

// CodeReader gives the diagnostics path access to the bytes at a
// faulting RIP, for instruction decoding.
type CodeReader interface {
	ReadCode(rip uint64, n int) []byte
}

// HaltFunc stops the CPU; exception handlers that cannot continue call
// this after logging. EOIFunc signals end-of-interrupt to the PIC.
type HaltFunc func()
type EOIFunc func(vector int)

// TaskAborter terminates the currently running task rather than the
// whole kernel, used by the page-fault handler's instruction-fetch
// case (see the Open Questions resolution below).
type TaskAborter func(reason string)

// Dispatcher owns the 256-entry IDT and the exception/IRQ policy.
type Dispatcher struct {
	table [256]Handler
	code  CodeReader
	halt  HaltFunc
	eoi   EOIFunc
	abort TaskAborter
}

// NewDispatcher installs the default CPU exception handlers and
// returns a Dispatcher ready to have IRQ/syscall vectors registered.
func NewDispatcher(code CodeReader, halt HaltFunc, eoi EOIFunc, abort TaskAborter) *Dispatcher {
	d := &Dispatcher{code: code, halt: halt, eoi: eoi, abort: abort}
	d.table[VecDivideError] = d.fatalException("divide error")
	d.table[VecInvalidOpcode] = d.fatalException("invalid opcode")
	d.table[VecGeneralProtection] = d.fatalException("general protection fault")
	d.table[VecStackSegmentFault] = d.fatalException("stack-segment fault")
	d.table[VecAlignmentCheck] = d.fatalException("alignment check")
	d.table[VecDoubleFault] = d.doubleFault // IST stack handled by gdt/tss setup
	d.table[VecPageFault] = d.pageFault
	return d
}

// Install registers handler for vector (used for IRQs and the syscall
// gate; CPU exception vectors are fixed by NewDispatcher).
func (d *Dispatcher) Install(vector int, h Handler) {
	d.table[vector] = h
}

// Dispatch invokes the handler installed at vector, if any, and logs a
// spurious-interrupt warning otherwise.
func (d *Dispatcher) Dispatch(vector int, f *Frame) {
	h := d.table[vector]
	if h == nil {
		klog.Warn("trap: spurious interrupt", "vector", vector)
		return
	}
	h(f)
}

func (d *Dispatcher) decodeAt(rip uint64) string {
	if d.code == nil {
		return "<no code reader>"
	}
	raw := d.code.ReadCode(rip, 16)
	inst, err := x86asm.Decode(raw, 64)
	if err != nil {
		return "<undecodable>"
	}
	return x86asm.GoSyntax(inst, rip, nil)
}

func (d *Dispatcher) fatalException(name string) Handler {
	return func(f *Frame) {
		klog.Error("trap: fatal CPU exception",
			"exception", name,
			"rip", f.RIP,
			"error_code", f.ErrorCode,
			"instruction", d.decodeAt(f.RIP),
		)
		d.halt()
	}
}

// doubleFault runs on the IST stack (see gdt.TSS); a double fault is
// always fatal to the whole kernel, not just a task, since it usually
// means the kernel's own stack is corrupt.
func (d *Dispatcher) doubleFault(f *Frame) {
	klog.Error("trap: double fault", "rip", f.RIP, "error_code", f.ErrorCode)
	d.halt()
}

// pageFault reads the (simulated) CR2 and applies §4.6's policy. The
// Open Questions resolution in §9 is applied here: an instruction-
// fetch fault (executing a page marked non-exec) is treated as fatal
// to the offending task, never silently upgraded to writable — the
// original's auto-upgrade is flagged there as an unsafe workaround for
// a broken ELF flag interpretation, and this implementation does not
// reproduce it.
func (d *Dispatcher) pageFault(f *Frame) {
	if f.ErrorCode&^uint64(PFInstructionFetch) == 0 && f.ErrorCode&PFInstructionFetch != 0 {
		klog.Error("trap: instruction-fetch page fault, aborting task",
			"cr2", f.CR2, "rip", f.RIP)
		if d.abort != nil {
			d.abort("instruction fetch from non-executable page")
		}
		return
	}
	klog.Error("trap: page fault", "cr2", f.CR2, "error_code", f.ErrorCode, "rip", f.RIP)
	d.halt()
}

// HandleIRQ wraps an IRQ handler with the dispatcher's EOI callback, so
// callers registering IRQ vectors don't have to remember to signal it.
func (d *Dispatcher) HandleIRQ(vector int, fn func(f *Frame)) {
	d.Install(vector, func(f *Frame) {
		fn(f)
		if d.eoi != nil {
			d.eoi(vector)
		}
	})
}

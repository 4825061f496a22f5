// Package scall is the syscall dispatch table reached from vector
// 0x80: write and exit, per §4.6's call table.
//
// Grounded on _examples/original_source/crate/interrupts/src/syscall.rs
// (SYSTEM_CALLS, an indexed array of handlers) and on the teacher's own
// convention of a fixed dispatch table. The write handler's UTF-8
// validation runs golang.org/x/text's UTF8Validator chained with the
// encoding/unicode UTF-8 decoder rather than a bare utf8.Valid check,
// exercising the teacher's vendored text stack. A truncated multi-byte
// sequence and outright invalid bytes are both rejected the same way.
package scall

import (
	"encoding/binary"
	"strconv"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"pebblekernel/defs"
	"pebblekernel/sched"
	"pebblekernel/task"
)

// Number identifies a syscall by its rax value.
type Number uint64

const (
	Write Number = 0
	Exit  Number = 1
)

// Regs is the argument/return register convention of §4.6 and §6:
// rax = number, rdi/rsi/rdx = args, return in rax.
type Regs struct {
	RAX, RDI, RSI, RDX uint64
}

// UserMemory gives the dispatcher read access to the calling task's
// address space for copying syscall arguments in.
type UserMemory interface {
	ReadBytes(va uint64, n int) ([]byte, bool)
}

// FramebufferWriter is the external collaborator named in §1's purpose
// statement; write(2) renders to it.
type FramebufferWriter interface {
	WriteString(s string)
}

// Table dispatches syscalls for the currently running task.
type Table struct {
	Mem        UserMemory
	FB         FramebufferWriter
	Scheduler  *sched.Scheduler
}

// Dispatch looks up regs.RAX in the fixed syscall table, invokes the
// handler for the given task, and returns the value to place in rax.
// An unknown call number returns -EINVAL.
func (t *Table) Dispatch(caller *task.Task, regs Regs) uint64 {
	switch Number(regs.RAX) {
	case Write:
		return uint64(t.write(regs.RDI, regs.RSI, regs.RDX))
	case Exit:
		t.exit(caller)
		return 0 // never observed: Exit does not return to the caller
	default:
		return uint64(int64(-defs.EINVAL))
	}
}

// write treats [ptr, ptr+len) as UTF-8 bytes in the caller's address
// space. Valid UTF-8 goes to the framebuffer as-is; invalid input is
// instead interpreted as a pointer to a little-endian u64 whose
// decimal form is written — matching §4.6's fallback exactly. fd is
// currently ignored, as specified.
func (t *Table) write(fd, ptr, length uint64) int64 {
	buf, ok := t.Mem.ReadBytes(ptr, int(length))
	if !ok {
		return int64(-defs.EFAULT)
	}

	// The UTF-8 decoder alone replaces ill-formed bytes with U+FFFD and
	// never fails; the validator in front of it makes them an error.
	decoder := transform.Chain(encoding.UTF8Validator, unicode.UTF8.NewDecoder())
	decoded, _, err := transform.Bytes(decoder, buf)
	if err == nil {
		t.FB.WriteString(string(decoded))
		return int64(len(buf))
	}

	numBuf, ok := t.Mem.ReadBytes(ptr, 8)
	if !ok {
		return int64(-defs.EFAULT)
	}
	v := binary.LittleEndian.Uint64(numBuf)
	t.FB.WriteString(strconv.FormatUint(v, 10))
	return 8
}

// exit marks caller Finished and hands control to the scheduler, which
// never returns to the syscall's caller — matching §4.6's "triggers
// int 0x20 ... never returns". See sched.Scheduler.Exit for why this
// is a direct call rather than a re-raised software interrupt.
func (t *Table) exit(caller *task.Task) {
	t.Scheduler.Exit(caller)
}

package scall

import (
	"encoding/binary"
	"testing"

	"pebblekernel/sched"
	"pebblekernel/task"
)

type fakeMem struct{ data map[uint64][]byte }

func (f fakeMem) ReadBytes(va uint64, n int) ([]byte, bool) {
	b, ok := f.data[va]
	if !ok || len(b) < n {
		return nil, false
	}
	return b[:n], true
}

type fakeFB struct{ written string }

func (f *fakeFB) WriteString(s string) { f.written += s }

type fakeSwitcher struct{}

func (fakeSwitcher) SaveAndSwitch(prev, next *task.Task) {}
func (fakeSwitcher) JumpToNew(next *task.Task)           {}

func TestWriteValidUTF8(t *testing.T) {
	fb := &fakeFB{}
	mem := fakeMem{data: map[uint64][]byte{0x1000: []byte("HELLO")}}
	tbl := &Table{Mem: mem, FB: fb, Scheduler: sched.New(fakeSwitcher{})}

	n := tbl.write(1, 0x1000, 5)
	if n != 5 {
		t.Fatalf("write returned %d, want 5", n)
	}
	if fb.written != "HELLO" {
		t.Fatalf("framebuffer got %q, want HELLO", fb.written)
	}
}

func TestWriteInvalidUTF8FallsBackToDecimal(t *testing.T) {
	fb := &fakeFB{}
	var numBuf [8]byte
	binary.LittleEndian.PutUint64(numBuf[:], 424242)
	bad := append([]byte{0xff, 0xfe}, numBuf[:]...)
	mem := fakeMem{data: map[uint64][]byte{0x2000: bad}}
	tbl := &Table{Mem: mem, FB: fb, Scheduler: sched.New(fakeSwitcher{})}

	tbl.write(1, 0x2000, 2)
	if fb.written != "424242" {
		t.Fatalf("framebuffer got %q, want 424242", fb.written)
	}
}

func TestDispatchExitMarksTaskFinished(t *testing.T) {
	fb := &fakeFB{}
	s := sched.New(fakeSwitcher{})
	tk := &task.Task{ID: task.NewID(), State: task.StateRunning}
	tbl := &Table{Mem: fakeMem{}, FB: fb, Scheduler: s}

	tbl.Dispatch(tk, Regs{RAX: uint64(Exit)})

	if tk.State != task.StateFinished {
		t.Fatalf("expected task Finished after exit syscall, got %v", tk.State)
	}
}

func TestDispatchUnknownCallReturnsEinval(t *testing.T) {
	tbl := &Table{Mem: fakeMem{}, FB: &fakeFB{}, Scheduler: sched.New(fakeSwitcher{})}
	ret := tbl.Dispatch(&task.Task{}, Regs{RAX: 99})
	if int64(ret) != -1 {
		t.Fatalf("expected -EINVAL (-1), got %d", int64(ret))
	}
}

package task

import (
	"testing"

	"pebblekernel/defs"
	"pebblekernel/mem"
	"pebblekernel/vmm"
)

// memStore is an in-process vmm.FrameStore, the same shape vmm's own
// tests use to stand in for the recursive mapping's live view.
type memStore struct {
	tables map[mem.Pa_t]*mem.Pg_t
}

func newMemStore() *memStore { return &memStore{tables: map[mem.Pa_t]*mem.Pg_t{}} }

func (s *memStore) Table(pa mem.Pa_t) *mem.Pg_t {
	t, ok := s.tables[pa]
	if !ok {
		t = &mem.Pg_t{}
		s.tables[pa] = t
	}
	return t
}

type noopMapper struct{}

func (noopMapper) IdentityMap(base mem.Pa_t, nframes int) error { return nil }

type fakeRAM struct{ buf []byte }

func newFakeRAM(size int) *fakeRAM { return &fakeRAM{buf: make([]byte, size)} }
func (f *fakeRAM) Bytes(addr mem.Pa_t, n int) []byte {
	off := int(addr - 0x200000)
	return f.buf[off : off+n]
}

func newTestManager(t *testing.T) (*vmm.Manager, mem.Pa_t) {
	t.Helper()
	ram := newFakeRAM(1 << 20)
	regions := []mem.PhysRegion{{Start: 0x200000, End: 0x200000 + (1 << 20), Kind: mem.Usable}}
	a, err := mem.NewAllocator(regions, ram, noopMapper{})
	if err != nil {
		t.Fatalf("NewAllocator: %v", err)
	}
	store := newMemStore()
	kernelFrame, err := a.AllocateFrame()
	if err != nil {
		t.Fatalf("kernel frame: %v", err)
	}
	m := vmm.NewManager(store, a, kernelFrame, func(vmm.FlushToken) {})
	return m, kernelFrame
}

func TestNewIDsAreDistinctAndMonotonic(t *testing.T) {
	a := NewID()
	b := NewID()
	if b <= a {
		t.Fatalf("expected monotonically increasing ids, got %d then %d", a, b)
	}
}

func TestNewTaskStartsInStateNew(t *testing.T) {
	as := &vmm.AddressSpace{PML4Frame: 0x1000}
	tk := New("probe", as, vmm.VirtAddr(0x40_0000_0000), defs.Ring3)
	if tk.State != StateNew {
		t.Fatalf("expected StateNew, got %v", tk.State)
	}
	if tk.PML4Frame() != as.PML4Frame {
		t.Fatalf("PML4Frame() = %x, want %x", tk.PML4Frame(), as.PML4Frame)
	}
	if tk.Ring != defs.Ring3 {
		t.Fatalf("expected ring 3, got %v", tk.Ring)
	}
}

func TestAllocateStacksPopulatesRangesAndInitialRSP(t *testing.T) {
	m, root := newTestManager(t)
	as := &vmm.AddressSpace{PML4Frame: root}
	tk := New("probe", as, vmm.VirtAddr(0x40_0000_0000), defs.Ring3)

	if err := AllocateStacks(m, root, 4, 16, tk); err != nil {
		t.Fatalf("AllocateStacks: %v", err)
	}

	if tk.KernelStackTop != DefaultKernelStackTop {
		t.Fatalf("KernelStackTop = %x, want %x", tk.KernelStackTop, DefaultKernelStackTop)
	}
	if want := DefaultKernelStackTop - vmm.VirtAddr(4*mem.PGSIZE); tk.KernelStackLo != want {
		t.Fatalf("KernelStackLo = %x, want %x", tk.KernelStackLo, want)
	}
	if tk.UserStackTop != DefaultUserStackTop {
		t.Fatalf("UserStackTop = %x, want %x", tk.UserStackTop, DefaultUserStackTop)
	}
	if want := DefaultUserStackTop - vmm.VirtAddr(16*mem.PGSIZE); tk.UserStackLo != want {
		t.Fatalf("UserStackLo = %x, want %x", tk.UserStackLo, want)
	}
	if tk.Saved.RSP != uint64(DefaultKernelStackTop) {
		t.Fatalf("Saved.RSP = %x, want %x", tk.Saved.RSP, uint64(DefaultKernelStackTop))
	}

	if _, ok := m.Translate(root, tk.KernelStackLo); !ok {
		t.Fatalf("expected kernel stack low page to be mapped")
	}
	if _, ok := m.Translate(root, tk.UserStackLo); !ok {
		t.Fatalf("expected user stack low page to be mapped")
	}
}

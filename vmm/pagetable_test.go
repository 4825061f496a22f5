package vmm

import (
	"testing"

	"pebblekernel/mem"
)

// memStore is an in-process FrameStore: a map from physical frame
// address to its 512-entry table content, standing in for the
// recursive mapping's live view on real hardware.
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

func newTestManager(t *testing.T) (*Manager, *memStore, *mem.Allocator) {
	t.Helper()
	ram := newFakeRAMFor(1 << 20)
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
	flushes := 0
	m := NewManager(store, a, kernelFrame, func(FlushToken) { flushes++ })
	return m, store, a
}

type noopMapper struct{}

func (noopMapper) IdentityMap(base mem.Pa_t, nframes int) error { return nil }

type fakeRAMFor struct{ buf []byte }

func newFakeRAMFor(size int) *fakeRAMFor { return &fakeRAMFor{buf: make([]byte, size)} }
func (f *fakeRAMFor) Bytes(addr mem.Pa_t, n int) []byte {
	// addr is always within the single region starting at 0x200000 in
	// these tests; offset relative to that.
	off := int(addr - 0x200000)
	return f.buf[off : off+n]
}

func TestMapTranslateRoundTrip(t *testing.T) {
	m, _, a := newTestManager(t)
	root, _ := m.ActiveRoot()
	frame, err := a.AllocateFrame()
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	page := VirtAddr(0x40_0000_1000)
	if _, err := m.MapTo(root, page, frame, mem.PTE_W|mem.PTE_U); err != nil {
		t.Fatalf("MapTo: %v", err)
	}
	got, ok := m.Translate(root, page)
	if !ok {
		t.Fatalf("translate failed after map")
	}
	if got != frame {
		t.Fatalf("translate returned %x, want %x", got, frame)
	}
	if _, _, err := m.Unmap(root, page); err != nil {
		t.Fatalf("Unmap: %v", err)
	}
	if _, ok := m.Translate(root, page); ok {
		t.Fatalf("translate succeeded after unmap")
	}
}

func TestMapToAlreadyMapped(t *testing.T) {
	m, _, a := newTestManager(t)
	root, _ := m.ActiveRoot()
	frame, _ := a.AllocateFrame()
	page := VirtAddr(0x40_0000_2000)
	if _, err := m.MapTo(root, page, frame, mem.PTE_W); err != nil {
		t.Fatalf("first map: %v", err)
	}
	if _, err := m.MapTo(root, page, frame, mem.PTE_W); err != ErrAlreadyMapped {
		t.Fatalf("expected ErrAlreadyMapped, got %v", err)
	}
}

func TestAddressSpaceSharesKernelSlots(t *testing.T) {
	m, _, _ := newTestManager(t)
	kernel := m.Store().Table(m.KernelPML4())
	kernel[256] = 0xdead_0000_0007 // simulate kernel higher-half mapping
	kernel[507] = 0xbeef_0000_0007

	as, err := NewAddressSpace(m)
	if err != nil {
		t.Fatalf("NewAddressSpace: %v", err)
	}
	if !sharedSlotsMatch(m, as) {
		t.Fatalf("freshly created address space does not mirror kernel slots")
	}
	table := m.Store().Table(as.PML4Frame)
	for _, slot := range []int{1, 2, 255, 300, 506} {
		if table[slot] != 0 {
			t.Fatalf("slot %d expected zero (user-private), got %x", slot, table[slot])
		}
	}
}

func TestMapStackDownMapsExactlyRequestedPages(t *testing.T) {
	m, _, _ := newTestManager(t)
	root, _ := m.ActiveRoot()
	const top = VirtAddr(0xffff_9800_0000_0000)
	const pages = 4

	lo, err := MapStackDown(m, root, top, pages, mem.PTE_W)
	if err != nil {
		t.Fatalf("MapStackDown: %v", err)
	}
	if want := top - VirtAddr(pages*mem.PGSIZE); lo != want {
		t.Fatalf("lo = %x, want %x", lo, want)
	}
	for page := lo; page < top; page += VirtAddr(mem.PGSIZE) {
		if _, ok := m.Translate(root, page); !ok {
			t.Fatalf("expected page %x to be mapped", page)
		}
	}
	if _, ok := m.Translate(root, top); ok {
		t.Fatalf("expected top %x to remain an unmapped guard page", top)
	}
	if _, ok := m.Translate(root, lo-VirtAddr(mem.PGSIZE)); ok {
		t.Fatalf("expected the page below lo to remain unmapped")
	}
}

func TestWithAddressSpaceRestoresKernelTable(t *testing.T) {
	m, _, _ := newTestManager(t)
	as, err := NewAddressSpace(m)
	if err != nil {
		t.Fatalf("NewAddressSpace: %v", err)
	}
	err = m.WithAddressSpace(as, func() error {
		root, r := m.ActiveRoot()
		if root != as.PML4Frame || r != TaskRecursiveIndex {
			t.Fatalf("expected task table active during load, got root=%x r=%d", root, r)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithAddressSpace: %v", err)
	}
	root, r := m.ActiveRoot()
	if root != m.KernelPML4() || r != KernelRecursiveIndex {
		t.Fatalf("expected kernel table restored after load, got root=%x r=%d", root, r)
	}
}

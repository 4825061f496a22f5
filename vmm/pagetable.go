// Package vmm implements the page table manager and address-space
// construction described in §4.2/§4.3: a 4-level recursive page table
// wrapping map/unmap/translate, and per-task PML4 construction that
// mirrors the kernel's upper half.
//
// Grounded on biscuit/src/mem/dmap.go (VREC, Dmap_init, the
// pgbits/mkpg/caddr recursive-address helpers) and
// biscuit/src/vm/as.go (Vm_t, kernel-slot mirroring), supplemented by
// gopher-os's kernel/mem/vmm/pdt.go temporary-mapping pattern for
// bootstrapping a fresh table's own recursive slot.
//
// On real hardware, the recursive slot lets the CPU's own page-table
// walker hand back a PML4/PDPT/PD/PT's bytes as ordinary memory at a
// computed virtual address. This package is exercised host-side (by
// tests and by the rest of this module) through a FrameStore, which
// stands in for that walk: given a frame's physical address it returns
// the table's live content. Real boot code's FrameStore implementation
// is the identity/recursive mapping itself; the indirection exists so
// the page-table algorithms are unit-testable without hardware.
package vmm

import (
	"errors"
	"sync"

	"pebblekernel/mem"
)

// VirtAddr is a canonical x86_64 virtual address.
type VirtAddr uintptr

func (v VirtAddr) pml4i() int { return int(v>>39) & 0x1ff }
func (v VirtAddr) pdpti() int { return int(v>>30) & 0x1ff }
func (v VirtAddr) pdi() int   { return int(v>>21) & 0x1ff }
func (v VirtAddr) pti() int   { return int(v>>12) & 0x1ff }

// Page-granular VirtAddr, always 4 KiB aligned.
func PageFloor(v VirtAddr) VirtAddr { return v &^ VirtAddr(mem.PGOFFSET) }
func PageCeil(v VirtAddr) VirtAddr  { return PageFloor(v + VirtAddr(mem.PGOFFSET)) }

// KernelHalfStart is the lowest virtual address considered part of the
// kernel half (2^47), matching §4.4's "vaddr >= 2^47 is rejected" for
// ELF segments. It also anchors the user stack's fixed top: the
// highest address a task's own code and stack may ever use.
const KernelHalfStart = VirtAddr(1) << 47

var (
	ErrAlreadyMapped         = errors.New("vmm: page already mapped")
	ErrFrameAllocationFailed = errors.New("vmm: frame allocation failed")
	ErrParentEntryHugePage   = errors.New("vmm: parent entry is a huge page")
	ErrNotMapped             = errors.New("vmm: page not mapped")
)

// FrameStore resolves a physical frame to the live 512-entry table it
// holds. See the package doc for what this stands in for.
type FrameStore interface {
	Table(pa mem.Pa_t) *mem.Pg_t
}

// FlushToken names the single page (or, if Global, the whole TLB) a
// caller must flush after a mapping change. The token carries no
// behavior itself — map_to/unmap return it so callers can choose
// per-page or global invalidation, matching §4.2.
type FlushToken struct {
	Page   VirtAddr
	Global bool
}

// Flush invokes the manager's TLB-flush callback for this token.
func (m *Manager) Flush(t FlushToken) {
	if m.flush != nil {
		m.flush(t)
	}
}

// Manager owns the frame store, the allocator used for intermediate
// tables, and the process-wide recursive-index state described in
// DESIGN NOTES ("Recursive page-table trick with a mutable recursive-
// index global"): R changes only together with the active root (the
// stand-in for CR3), under the manager's lock, and each change is
// followed by a full TLB flush. Nothing re-checks the pairing of R and
// the active root after a change.
type Manager struct {
	mu    sync.Mutex
	store FrameStore
	alloc *mem.Allocator
	flush func(FlushToken)

	kernelPML4 mem.Pa_t
	activeRoot mem.Pa_t
	R          int // current recursive index
}

// KernelRecursiveIndex is the slot the bootloader establishes for the
// kernel's own recursive self-map (see bootinfo's RecursiveIndex hint;
// §6 names 508 as the typical value).
const KernelRecursiveIndex = 508

// TaskRecursiveIndex is the slot every freshly created task PML4 uses
// for its own, transient, self-map while it is the active table.
const TaskRecursiveIndex = 511

// NewManager constructs a page table manager rooted at the kernel
// PML4, with R already at KernelRecursiveIndex as the boot handoff
// guarantees.
func NewManager(store FrameStore, alloc *mem.Allocator, kernelPML4 mem.Pa_t, flush func(FlushToken)) *Manager {
	return &Manager{
		store:      store,
		alloc:      alloc,
		flush:      flush,
		kernelPML4: kernelPML4,
		activeRoot: kernelPML4,
		R:          KernelRecursiveIndex,
	}
}

// entry is a thin accessor over a raw PTE.
type entry uint64

func (e entry) present() bool   { return uint64(e)&mem.PTE_P != 0 }
func (e entry) hugePage() bool  { return uint64(e)&mem.PTE_PS != 0 }
func (e entry) addr() mem.Pa_t  { return mem.Pa_t(uint64(e) & mem.PTE_ADDR) }
func mkentry(pa mem.Pa_t, flags uint64) entry {
	return entry(uint64(pa)&mem.PTE_ADDR | flags | mem.PTE_P)
}

// walk descends from root through the PML4/PDPT/PD levels, allocating
// missing intermediate tables via the allocator when create is true.
// It returns the PT (level-1) table and the index of the leaf entry
// within it.
func (m *Manager) walk(root mem.Pa_t, va VirtAddr, create bool) (*mem.Pg_t, int, error) {
	table := m.store.Table(root)
	indices := []int{va.pml4i(), va.pdpti(), va.pdi()}
	for _, idx := range indices {
		e := entry(table[idx])
		if e.present() {
			if e.hugePage() {
				return nil, 0, ErrParentEntryHugePage
			}
			table = m.store.Table(e.addr())
			continue
		}
		if !create {
			return nil, 0, ErrNotMapped
		}
		frame, err := m.alloc.AllocateFrame()
		if err != nil {
			return nil, 0, ErrFrameAllocationFailed
		}
		next := m.store.Table(frame)
		for i := range next {
			next[i] = 0
		}
		table[idx] = uint64(mkentry(frame, mem.PTE_W|mem.PTE_U))
		table = next
	}
	return table, va.pti(), nil
}

// MapTo installs frame at page in the address space rooted at root,
// allocating intermediate tables via the allocator as needed.
func (m *Manager) MapTo(root mem.Pa_t, page VirtAddr, frame mem.Pa_t, flags uint64) (FlushToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pt, idx, err := m.walk(root, page, true)
	if err != nil {
		return FlushToken{}, err
	}
	if entry(pt[idx]).present() {
		return FlushToken{}, ErrAlreadyMapped
	}
	pt[idx] = uint64(mkentry(frame, flags))
	return FlushToken{Page: page}, nil
}

// Unmap clears the leaf mapping for page and returns the frame that
// had been mapped there.
func (m *Manager) Unmap(root mem.Pa_t, page VirtAddr) (mem.Pa_t, FlushToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pt, idx, err := m.walk(root, page, false)
	if err != nil {
		return 0, FlushToken{}, err
	}
	e := entry(pt[idx])
	if !e.present() {
		return 0, FlushToken{}, ErrNotMapped
	}
	pt[idx] = 0
	return e.addr(), FlushToken{Page: page}, nil
}

// UpdateFlags changes the protection bits on an existing mapping.
func (m *Manager) UpdateFlags(root mem.Pa_t, page VirtAddr, flags uint64) (FlushToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pt, idx, err := m.walk(root, page, false)
	if err != nil {
		return FlushToken{}, err
	}
	e := entry(pt[idx])
	if !e.present() {
		return FlushToken{}, ErrNotMapped
	}
	pt[idx] = uint64(mkentry(e.addr(), flags))
	return FlushToken{Page: page}, nil
}

// Translate performs a standard walk and reports the physical address
// backing virt, if any.
func (m *Manager) Translate(root mem.Pa_t, virt VirtAddr) (mem.Pa_t, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pt, idx, err := m.walk(root, virt, false)
	if err != nil {
		return 0, false
	}
	e := entry(pt[idx])
	if !e.present() {
		return 0, false
	}
	return e.addr() + mem.Pa_t(uintptr(virt)&mem.PGOFFSET), true
}

// ActiveRoot returns the PML4 frame currently installed (conceptually
// in CR3) and the recursive index in effect for it.
func (m *Manager) ActiveRoot() (mem.Pa_t, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeRoot, m.R
}

// SwapToKernelTable writes the kernel PML4 into the active-root slot,
// sets R back to KernelRecursiveIndex, and flushes the whole TLB. This
// is the operation named in §4.2.
func (m *Manager) SwapToKernelTable() {
	m.mu.Lock()
	m.activeRoot = m.kernelPML4
	m.R = KernelRecursiveIndex
	m.mu.Unlock()
	m.Flush(FlushToken{Global: true})
}

// WithAddressSpace temporarily installs as's PML4 as the active root
// with R set to TaskRecursiveIndex (the transient state §4.3 requires
// during ELF loading), runs fn, then restores the kernel table and
// R:=KernelRecursiveIndex before returning — the restoration order the
// Open Questions section of spec.md requires regardless of fn's
// outcome.
func (m *Manager) WithAddressSpace(as *AddressSpace, fn func() error) error {
	m.mu.Lock()
	m.activeRoot = as.PML4Frame
	m.R = TaskRecursiveIndex
	m.mu.Unlock()
	m.Flush(FlushToken{Global: true})

	err := fn()

	m.SwapToKernelTable()
	return err
}

// KernelPML4 returns the frame backing the kernel's own top-level
// table, used by AddressSpace construction to mirror the shared slots.
func (m *Manager) KernelPML4() mem.Pa_t { return m.kernelPML4 }

// Store exposes the manager's FrameStore so AddressSpace construction
// can read/write table content directly during setup.
func (m *Manager) Store() FrameStore { return m.store }

// Alloc exposes the manager's frame allocator to AddressSpace
// construction.
func (m *Manager) Alloc() *mem.Allocator { return m.alloc }

// MapStackDown maps pages frames downward from top (exclusive) into
// root, the way a stack grows toward lower addresses: the returned
// VirtAddr is the lowest mapped byte, and top itself stays one page
// above the highest mapped frame as an unmapped guard. Used for both
// a task's kernel-mode and user-mode stacks (§3's Task entity), which
// only differ in whether flags carries PTE_U.
func MapStackDown(m *Manager, root mem.Pa_t, top VirtAddr, pages int, flags uint64) (VirtAddr, error) {
	lo := top - VirtAddr(pages*mem.PGSIZE)
	for page := lo; page < top; page += VirtAddr(mem.PGSIZE) {
		frame, err := m.Alloc().AllocateFrame()
		if err != nil {
			return 0, ErrFrameAllocationFailed
		}
		if _, err := m.MapTo(root, page, frame, flags); err != nil {
			return 0, err
		}
	}
	return lo, nil
}

// Package heap implements the kernel heap named in §6: a linked-list
// allocator over a fixed virtual range, mapped once at boot and served
// for the rest of the kernel's life.
//
// Grounded on _examples/original_source/crate/allocator/src/lib.rs and
// crate/memory/src/allocator/mod.rs, both of which map a fixed VA
// range at boot and hand it to the `linked_list_allocator` crate's
// LockedHeap (`ALLOCATOR.lock().init(HEAP_START, HEAP_SIZE)`). This
// package plays the same role for kernel-owned Go code that needs
// memory carved out of the dedicated heap VA window named in §6,
// rather than the host Go runtime's own allocator — a first-fit free
// list over page-granular memory, exactly the "linked-list allocator"
// the spec names, not a reimplementation of malloc.
package heap

import (
	"errors"
	"sync"

	"pebblekernel/vmm"
)

var (
	ErrInvalidSize = errors.New("heap: size must be positive")
	ErrOutOfMemory = errors.New("heap: allocator exhausted")
)

// block is one node of the free list: a run of bytes starting at addr,
// size bytes long, followed by the next free run.
type block struct {
	addr vmm.VirtAddr
	size int
	next *block
}

// Allocator is a first-fit free-list allocator over a fixed virtual
// address range established by New or Init.
type Allocator struct {
	mu   sync.Mutex
	base vmm.VirtAddr
	size int
	free *block
}

// New returns an Allocator ready to serve [base, base+size) as one
// contiguous free run. Callers that have already mapped the range
// (see Init) call this directly; tests use it to exercise the free
// list without a real page-table manager.
func New(base vmm.VirtAddr, size int) *Allocator {
	return &Allocator{
		base: base,
		size: size,
		free: &block{addr: base, size: size},
	}
}

// Base and Size report the heap's virtual range, for diagnostics.
func (a *Allocator) Base() vmm.VirtAddr { return a.base }
func (a *Allocator) Size() int          { return a.size }

// Alloc returns the address of a free run of at least size bytes,
// aligned to align (a power of two, or 1 for no constraint), first-fit
// across the free list.
func (a *Allocator) Alloc(size, align int) (vmm.VirtAddr, error) {
	if size <= 0 {
		return 0, ErrInvalidSize
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	var prev *block
	for b := a.free; b != nil; b = b.next {
		start := alignUp(b.addr, align)
		pad := int(start - b.addr)
		if b.size-pad < size {
			prev = b
			continue
		}
		remaining := b.size - pad - size
		allocEnd := start + vmm.VirtAddr(size)
		switch {
		case pad == 0 && remaining == 0:
			a.unlink(prev, b)
		case pad == 0:
			b.addr = allocEnd
			b.size = remaining
		default:
			b.size = pad
			if remaining > 0 {
				b.next = &block{addr: allocEnd, size: remaining, next: b.next}
			}
		}
		return start, nil
	}
	return 0, ErrOutOfMemory
}

func (a *Allocator) unlink(prev, b *block) {
	if prev == nil {
		a.free = b.next
		return
	}
	prev.next = b.next
}

// Free returns [addr, addr+size) to the free list. Adjacent runs are
// not coalesced back together: kernel allocations through this heap
// are expected to be few and long-lived (per-task bookkeeping sized
// once at spawn), so fragmentation from never coalescing is not worth
// the extra bookkeeping this toy kernel would need to detect adjacency
// safely.
func (a *Allocator) Free(addr vmm.VirtAddr, size int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.free = &block{addr: addr, size: size, next: a.free}
}

func alignUp(v vmm.VirtAddr, align int) vmm.VirtAddr {
	if align <= 1 {
		return v
	}
	mask := vmm.VirtAddr(align - 1)
	return (v + mask) &^ mask
}

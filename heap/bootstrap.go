package heap

import (
	"pebblekernel/mem"
	"pebblekernel/vmm"
)

// maxSlidePages bounds how far Init may slide the heap's base address
// when a hardware RNG is available: the base moves up by at most
// maxSlidePages-1 pages. All requested pages are still mapped from the
// slid base, so the mapped range can end up to that many pages past
// base+pages*PGSIZE, beyond the config.Boot.HeapBase/HeapPages window.
const maxSlidePages = 16

// Mapper is the subset of vmm.Manager's API the heap bootstrap needs:
// enough to map each page of its VA range into the kernel's own table.
type Mapper interface {
	MapTo(root mem.Pa_t, page vmm.VirtAddr, frame mem.Pa_t, flags uint64) (vmm.FlushToken, error)
	KernelPML4() mem.Pa_t
}

// FrameAllocator is the subset of mem.Allocator Init needs.
type FrameAllocator interface {
	AllocateFrame() (mem.Pa_t, error)
}

// RandomSource reads one hardware random word, reporting ok=false if
// the hardware declined (RDRAND's documented retry-then-give-up
// contract). On real hardware this is backed by the arch-specific
// rdrand primitive cmd/kernel declares for the assembly stub to
// supply; tests pass a deterministic fake.
type RandomSource func() (uint64, bool)

// Init maps pages contiguous pages into the kernel table starting at
// base, or — when hwRNG is true and source succeeds — at a page-
// aligned offset within the first maxSlidePages pages of base, then
// hands the mapped range to a fresh Allocator. Mirrors the original's
// init_heap()/ALLOCATOR.lock().init(HEAP_START, HEAP_SIZE) sequence:
// map first, then initialize the free list over exactly what got
// mapped.
//
// The slide is the use this package makes of
// vmm.DetectFeatures().HasHardwareRNG (see cmd/kernel's Kmain): on
// hardware with RDRAND/RDSEED, the heap's base gets a modest,
// boot-time-only address randomization, a defense-in-depth analogue
// of biscuit's feature-gated direct map. Hardware without either
// instruction gets the fixed base with no degraded behavior.
func Init(m Mapper, alloc FrameAllocator, base vmm.VirtAddr, pages int, hwRNG bool, source RandomSource) (*Allocator, error) {
	if pages <= 0 {
		return nil, ErrInvalidSize
	}

	start := base
	if hwRNG && source != nil {
		if r, ok := source(); ok {
			start = base + vmm.VirtAddr(r%uint64(maxSlidePages))*vmm.VirtAddr(mem.PGSIZE)
		}
	}

	root := m.KernelPML4()
	for i := 0; i < pages; i++ {
		frame, err := alloc.AllocateFrame()
		if err != nil {
			return nil, err
		}
		page := start + vmm.VirtAddr(i*mem.PGSIZE)
		if _, err := m.MapTo(root, page, frame, mem.PTE_W); err != nil {
			return nil, err
		}
	}
	return New(start, pages*mem.PGSIZE), nil
}

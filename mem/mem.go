// Package mem implements the physical frame allocator: a bitmap-over-
// usable-RAM allocator in the style of the teacher's biscuit/src/mem
// package (Physmem_t, Pa_t) and gopher-os's per-pool bitmap allocator
// (kernel/mem/pmm/allocator/bitmap_allocator.go). Unlike the teacher's
// refcounted, per-CPU-pool scheme, this allocator is the single present/
// absent bitmap the specification describes: one Usable region, one
// bitmap, no reference counting.
package mem

// Pa_t is a physical address, named after the teacher's Pa_t.
type Pa_t uintptr

const (
	PGSHIFT  = 12
	PGSIZE   = 1 << PGSHIFT
	PGOFFSET = PGSIZE - 1
	PGMASK   = ^Pa_t(PGOFFSET)
)

// Page table entry flag bits, following the teacher's PTE_* naming.
const (
	PTE_P   uint64 = 1 << 0 // present
	PTE_W   uint64 = 1 << 1 // writable
	PTE_U   uint64 = 1 << 2 // user-accessible
	PTE_PWT uint64 = 1 << 3
	PTE_PCD uint64 = 1 << 4
	PTE_PS  uint64 = 1 << 7 // huge page
	PTE_G   uint64 = 1 << 8 // global
	PTE_NX  uint64 = 1 << 63
)

const PTE_ADDR = uint64(0x000ffffffffff000)

// Pg_t is the 4 KiB page viewed as 512 64-bit page-table entries.
type Pg_t [512]uint64

// Round down to a page boundary.
func Pgdown(a Pa_t) Pa_t { return a &^ Pa_t(PGOFFSET) }

// Round up to a page boundary.
func Pgup(a Pa_t) Pa_t { return Pgdown(a + PGOFFSET) }

// Pgn returns the number of the page containing a, relative to zero.
func Pgn(a Pa_t) uint64 { return uint64(a) >> PGSHIFT }

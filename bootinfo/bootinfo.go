// Package bootinfo gives a concrete Go shape to the boot handoff named
// as an external collaborator in §6: the framebuffer pointer and
// info, the physical memory map, and the recursive-paging index the
// bootloader already established.
//
// Grounded on _examples/original_source/crate/memory/src/frame.rs
// (MemoryRegion/MemoryRegionKind) and the teacher's own boot-time
// globals in biscuit/src/mem/dmap.go.
package bootinfo

import "pebblekernel/mem"

// PixelFormat names the framebuffer's pixel layout.
type PixelFormat int

const (
	RGB PixelFormat = iota
	BGR
	U8
)

// FrameBufferInfo describes the pixel buffer handed off by the
// bootloader.
type FrameBufferInfo struct {
	HorizontalResolution int
	VerticalResolution   int
	Stride               int
	BytesPerPixel        int
	PixelFormat          PixelFormat
}

// BootInfo is everything the kernel receives before it can run its own
// allocators: the framebuffer, the physical memory map, the PML4 slot
// the bootloader already wired up for recursive addressing, and any
// boot modules (multiboot's tagModules, per
// _examples/gopher-os-gopher-os's hal/multiboot package) it loaded
// alongside the kernel image — this kernel's only source of programs
// to run, since there is no real disk I/O.
type BootInfo struct {
	FramebufferAddr mem.Pa_t
	Framebuffer     FrameBufferInfo
	MemoryMap       []mem.PhysRegion
	RecursiveIndex  int
	KernelPML4      mem.Pa_t
	InitModules     []BootModule
}

// BootModule is one bootloader-loaded file: a raw ELF64 image and the
// name the command line tagged it with.
type BootModule struct {
	Name  string
	Image []byte
}

// Validate reports whether the handoff is self-consistent enough to
// boot from: a positive framebuffer resolution, at least one memory
// region, and a recursive index in the valid PML4 slot range.
func (b *BootInfo) Validate() bool {
	if b.Framebuffer.HorizontalResolution <= 0 || b.Framebuffer.VerticalResolution <= 0 {
		return false
	}
	if len(b.MemoryMap) == 0 {
		return false
	}
	if b.RecursiveIndex < 0 || b.RecursiveIndex > 511 {
		return false
	}
	return true
}

// Package config collapses the kernel's boot-time tunables into one
// struct, the way _examples/original_source/crate/memory/src/lib.rs
// scatters reserved-region and stack-size constants across a single
// file; here they live in one place and are threaded explicitly
// instead of read as package-level globals.
package config

import (
	"pebblekernel/bootinfo"
	"pebblekernel/coop"
	"pebblekernel/sched"
	"pebblekernel/vmm"
)

// Boot holds every tunable the boot sequence needs before any
// allocator, scheduler, or executor exists.
type Boot struct {
	// ReservedLowPages is the number of frames at the bottom of
	// physical memory (legacy BIOS/real-mode data, the bootloader
	// itself) the frame allocator must never hand out, independent of
	// what the memory map reports as usable.
	ReservedLowPages int

	// KernelStackPages and UserStackPages size each task's kernel-mode
	// and user-mode stacks, in pages.
	KernelStackPages int
	UserStackPages   int

	// NewQueueCapacity and ReadyQueueCapacity size the scheduler's two
	// bounded FIFOs.
	NewQueueCapacity   int
	ReadyQueueCapacity int

	// ScancodeQueueCapacity and MousePacketQueueCapacity size the SPSC
	// rings the async executor's input futures drain.
	ScancodeQueueCapacity    int
	MousePacketQueueCapacity int

	// HeapBase and HeapPages describe the kernel heap's default virtual
	// range (§6): mapped once at boot and served by package heap's
	// linked-list allocator for the lifetime of the kernel. heap.Init
	// may slide the base up by a few pages when a hardware RNG exists.
	HeapBase  vmm.VirtAddr
	HeapPages int
}

// Default returns the tunables this kernel boots with absent any
// override, matching the capacities sched and coop already declare as
// package constants.
func Default() Boot {
	return Boot{
		ReservedLowPages:         256, // low 1MiB
		KernelStackPages:         4,
		UserStackPages:           16,
		NewQueueCapacity:         sched.NewQueueCapacity,
		ReadyQueueCapacity:       sched.ReadyQueueCapacity,
		ScancodeQueueCapacity:    coop.ScancodeQueueCapacity,
		MousePacketQueueCapacity: coop.MousePacketQueueCapacity,
		// 0xFFFF_F000_0000_0000 / 32 pages (128 KiB) matches the range
		// and size spec.md §6 names as an example ("100-200 KiB").
		HeapBase:  vmm.VirtAddr(0xffff_f000_0000_0000),
		HeapPages: 32,
	}
}

// FromBootInfo layers the bootloader handoff's framebuffer/memory-map
// facts on top of the default tunables; today it only validates the
// handoff, but it is the seam a future per-machine override (e.g. a
// bigger heap on a box with more usable RAM) would hang off of.
func FromBootInfo(b *bootinfo.BootInfo) (Boot, bool) {
	cfg := Default()
	return cfg, b.Validate()
}

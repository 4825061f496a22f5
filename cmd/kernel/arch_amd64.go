// Port I/O, CR3/TLB control, and the two assembly-only context-switch
// primitives. Biscuit gets these from a forked Go runtime that exports
// them as runtime.Outb/runtime.Cpuid/runtime.Lcr3 (see
// biscuit/src/mem/dmap.go's runtime.Cpuid/runtime.Rcr4 calls); this
// tree does not carry a patched runtime, so the same primitives are
// declared here as body-less Go functions for an assembly file to
// supply, the same contract Go's own runtime package uses for things
// like runtime.memclrNoHeapPointers. This tree carries no such
// assembly file, so this package does not link as it stands.
package main

import (
	"pebblekernel/mem"
	"pebblekernel/task"
	"pebblekernel/vmm"
)

func inb(port uint16) byte
func outb(port uint16, v byte)

// physBytes reinterprets n bytes of physical memory at addr as a byte
// slice. Used by the frame allocator's View and the ELF loader's
// byte-level segment writes; on real hardware this is the kernel's
// direct physical map (every physical address is also a valid virtual
// one at a fixed offset).
func physBytes(addr mem.Pa_t, n int) []byte

// identityMap maps nframes frames starting at base 1:1 into the
// kernel's direct physical map, extending it as new usable RAM is
// discovered.
func identityMap(base mem.Pa_t, nframes int) error

// recursiveTable returns the live view of the page table at pa via the
// recursive PML4 slot, the concrete instance of the FrameStore seam
// vmm.Manager is built against.
func recursiveTable(pa mem.Pa_t) *mem.Pg_t

func invlpg(tok vmm.FlushToken)
func sendEOI(vector int)
func halt()

// rdrand executes the RDRAND instruction and reports whether the CPU
// produced a value before giving up (the instruction's documented
// retry-then-fail contract). Only called when vmm.DetectFeatures
// reports HasHardwareRNG; see heap.Init's boot-time address slide.
func rdrand() (uint64, bool)

func asmSaveAndSwitch(prev, next *task.Task)
func asmJumpToNew(next *task.Task)

// writeFramebufferText blits raw log bytes onto the console region of
// the pixel framebuffer as fixed-width glyphs.
func writeFramebufferText(p []byte)

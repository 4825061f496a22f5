// Command kernel is the boot entry point: it is not meant to run under
// a hosted OS. Kmain is the only symbol the bootloader's assembly stub
// calls after it has set up a long-mode stack and jumped into Go code;
// it is never expected to return.
//
// Grounded on _examples/gopher-os-gopher-os/kernel/kmain.go's Kmain
// shape, generalized to this kernel's boot sequence.
package main

import (
	"log/slog"

	"pebblekernel/bootinfo"
	"pebblekernel/config"
	"pebblekernel/coop"
	"pebblekernel/defs"
	"pebblekernel/elf"
	"pebblekernel/fs"
	"pebblekernel/gdt"
	"pebblekernel/heap"
	"pebblekernel/klog"
	"pebblekernel/mem"
	"pebblekernel/ps2"
	"pebblekernel/scall"
	"pebblekernel/sched"
	"pebblekernel/task"
	"pebblekernel/trap"
	"pebblekernel/vmm"
)

// frameBufferWriter adapts the boot-time pixel framebuffer to
// klog.Writer. The real pixel-blitting implementation lives in
// assembly/linked code alongside arch_amd64.go's other primitives;
// this type only carries the contract klog needs.
type frameBufferWriter struct{}

func (frameBufferWriter) Write(p []byte) (int, error) {
	writeFramebufferText(p)
	return len(p), nil
}

func (frameBufferWriter) WriteString(s string) {
	writeFramebufferText([]byte(s))
}

// userMemory lets the syscall dispatcher read bytes out of whichever
// address space is active when the trap fires, translating through
// the live page tables rather than assuming a single flat mapping.
type userMemory struct {
	vm   *vmm.Manager
	view mem.View
}

func (u userMemory) ReadBytes(va uint64, n int) ([]byte, bool) {
	root, _ := u.vm.ActiveRoot()
	pa, ok := u.vm.Translate(root, vmm.VirtAddr(va))
	if !ok {
		return nil, false
	}
	offset := int(va) & mem.PGOFFSET
	if offset+n > mem.PGSIZE {
		return nil, false // syscall argument spans a page boundary
	}
	return u.view.Bytes(pa, n), true // pa already carries va's page offset
}

func main() {
	// A hosted build of this command exists only so `go vet`/`go test`
	// can type-check the boot-glue package; a real boot never calls
	// Go's main, it calls Kmain directly from the rt0 assembly stub.
}

// hardware is the production set of collaborators Kmain wires the
// kernel subsystems to: real port I/O, physical-memory access, and the
// recursive page-table view. It is the one place in the
// tree that is expected to be unused under `go test` (no test backs
// bare-metal port access) and exists only so Kmain has something
// concrete to construct; every method it implements is a thin,
// documented stand-in for an operation this package cannot express
// in portable Go (inb/outb, the direct physical map, the recursive
// page-table walk).
type hardware struct{}

func (hardware) In(port uint16) byte        { return inb(port) }
func (hardware) Out(port uint16, v byte)    { outb(port, v) }
func (hardware) Bytes(addr mem.Pa_t, n int) []byte {
	return physBytes(addr, n)
}
func (hardware) IdentityMap(base mem.Pa_t, nframes int) error {
	return identityMap(base, nframes)
}
func (hardware) Table(pa mem.Pa_t) *mem.Pg_t {
	return recursiveTable(pa)
}
func (hardware) ReadCode(rip uint64, n int) []byte {
	return physBytes(mem.Pa_t(rip), n)
}

// Kmain runs the one-time boot sequence: build the frame allocator and
// kernel address space from the bootloader handoff, install the
// interrupt dispatcher and PS/2 controller, mount the in-memory root
// filesystem, and hand control to the scheduler. It never returns; the
// scheduler's idle path halts the CPU when there is nothing to run.
//
//go:noinline
func Kmain(info *bootinfo.BootInfo) {
	klog.Init(frameBufferWriter{}, slog.LevelInfo)

	if !info.Validate() {
		klog.Error("boot handoff failed validation", "memoryRegions", len(info.MemoryMap))
		halt()
	}
	cfg, ok := config.FromBootInfo(info)
	if !ok {
		halt()
	}

	// Clip usable regions so the frame allocator never sees the
	// cfg.ReservedLowPages frames at the bottom of physical memory.
	lowLimit := mem.Pa_t(cfg.ReservedLowPages * mem.PGSIZE)
	regions := make([]mem.PhysRegion, 0, len(info.MemoryMap))
	for _, r := range info.MemoryMap {
		if r.Kind == mem.Usable && r.Start < lowLimit {
			if r.End <= lowLimit {
				continue
			}
			r.Start = lowLimit
		}
		regions = append(regions, r)
	}

	hw := hardware{}
	alloc, err := mem.NewAllocator(regions, hw, hw)
	if err != nil {
		klog.Error("frame allocator init failed", "err", err)
		halt()
	}
	mem.Init(alloc)

	flush := func(tok vmm.FlushToken) { invlpg(tok) }
	vm := vmm.NewManager(hw, alloc, info.KernelPML4, flush)

	features := vmm.DetectFeatures()
	kernelHeap, err := heap.Init(vm, alloc, cfg.HeapBase, cfg.HeapPages, features.HasHardwareRNG, rdrand)
	if err != nil {
		klog.Error("kernel heap bootstrap failed", "err", err)
		halt()
	}
	klog.Info("kernel heap ready", "base", kernelHeap.Base(), "size", kernelHeap.Size(), "hardwareRNG", features.HasHardwareRNG)

	dispatcher := trap.NewDispatcher(hw, halt, sendEOI, func(reason string) {
		klog.Error("task aborted", "reason", reason)
	})

	controller := ps2.NewController(hw)
	if err := controller.InitMouse(); err != nil {
		klog.Warn("mouse init failed, continuing keyboard-only", "err", err)
	}

	scancodes := coop.NewRing[byte](cfg.ScancodeQueueCapacity)
	overflowing := false
	dispatcher.HandleIRQ(trap.VecKeyboard, func(f *trap.Frame) {
		if scancodes.Push(controller.ReadScancode()) {
			overflowing = false
		} else if !overflowing {
			overflowing = true // warn once per overflow burst
			klog.Warn("scancode queue full, dropping input")
		}
	})

	const doubleFaultISTTop = 0xffff_8000_0010_0000
	gdtTable := gdt.New(doubleFaultISTTop)
	klog.Info("GDT installed", "entries", gdtTable.NumEntries(), "doubleFaultISTTop", doubleFaultISTTop)

	files := fs.NewTable()
	root := fs.NewRoot()
	console, err := root.Create("console")
	if err != nil {
		klog.Warn("could not register console inode", "err", err)
	} else if fd, err := files.Open(console, fs.ORDWR); err != nil {
		klog.Warn("could not open console fd", "err", err)
	} else {
		klog.Info("console ready", "fd", fd)
	}

	loader := &elf.Loader{M: vm, View: hw}
	scheduler := sched.New(bootContextSwitcher{})

	const loadBase = vmm.VirtAddr(0x0040_0000)
	for _, mod := range info.InitModules {
		as, err := vmm.NewAddressSpace(vm)
		if err != nil {
			klog.Error("address space allocation failed", "module", mod.Name, "err", err)
			continue
		}
		var entry vmm.VirtAddr
		err = vm.WithAddressSpace(as, func() error {
			var loadErr error
			entry, loadErr = loader.Load(mod.Image, as.PML4Frame, loadBase)
			return loadErr
		})
		if err != nil {
			klog.Error("failed to load boot module", "module", mod.Name, "err", err)
			continue
		}
		t := task.New(mod.Name, as, entry, defs.Ring3)
		if err := task.AllocateStacks(vm, as.PML4Frame, cfg.KernelStackPages, cfg.UserStackPages, t); err != nil {
			klog.Error("stack allocation failed", "module", mod.Name, "err", err)
			continue
		}
		if err := scheduler.Spawn(t); err != nil {
			klog.Error("scheduler rejected boot task", "module", mod.Name, "err", err)
		}
	}

	fb := frameBufferWriter{}
	syscalls := &scall.Table{
		Mem:       userMemory{vm: vm, view: hw},
		FB:        fb,
		Scheduler: scheduler,
	}
	dispatcher.Install(trap.VecSyscall, func(f *trap.Frame) {
		regs := scall.Regs{RAX: f.RAX, RDI: f.RDI, RSI: f.RSI, RDX: f.RDX}
		f.RAX = syscalls.Dispatch(scheduler.Running(), regs)
	})

	executor := coop.NewExecutor(cfg.ScancodeQueueCapacity)
	executor.Spawn(coop.NewScancodeStream(scancodes, func(b byte) {
		klog.Debug("scancode", "byte", b)
	}))

	klog.Info("boot sequence complete")

	for {
		if !executor.Idle() {
			executor.RunOnce()
			continue
		}
		if !scheduler.Schedule() {
			halt()
		}
	}
}

// bootContextSwitcher is the real, hardware-backed ContextSwitcher.
// The actual register save/restore sequence is a handful of
// instructions (push callee-saved registers, swap RSP, swap CR3, pop
// callee-saved registers, ret) that cannot be expressed in portable Go
// and is supplied by the assembly stub this type calls into.
type bootContextSwitcher struct{}

func (bootContextSwitcher) SaveAndSwitch(prev, next *task.Task) { asmSaveAndSwitch(prev, next) }
func (bootContextSwitcher) JumpToNew(next *task.Task)           { asmJumpToNew(next) }

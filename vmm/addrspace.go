package vmm

import "pebblekernel/mem"

// kernelSharedSlots are the PML4 indices a freshly created task table
// mirrors from the kernel table: 0 (low identity/boot scratch), 256
// (higher-half kernel base), and 507..511 inclusive (kernel heap and
// the recursive window), per §4.3 step 3.
var kernelSharedSlots = []int{0, 256, 507, 508, 509, 510, 511}

// AddressSpace is a task's virtual memory: a PML4 frame whose slots
// 0, 256 and 507..510 mirror the kernel PML4 and whose slot 511 is
// self-referential. The other upper-half slots are left zero.
type AddressSpace struct {
	PML4Frame mem.Pa_t
}

// NewAddressSpace allocates and populates a fresh task PML4 following
// §4.3 exactly: allocate, zero, copy the kernel-shared slots, then
// overwrite slot 511 with a present+writable+user self-reference.
// Slots [1..256) and (256..507) are left zero — user-private.
func NewAddressSpace(m *Manager) (*AddressSpace, error) {
	frame, err := m.Alloc().AllocateFrame()
	if err != nil {
		return nil, ErrFrameAllocationFailed
	}
	table := m.Store().Table(frame)
	for i := range table {
		table[i] = 0
	}

	kernel := m.Store().Table(m.KernelPML4())
	for _, slot := range kernelSharedSlots {
		table[slot] = kernel[slot]
	}
	table[TaskRecursiveIndex] = uint64(mkentry(frame, mem.PTE_W|mem.PTE_U))

	return &AddressSpace{PML4Frame: frame}, nil
}

// sharedSlotsMatch reports whether every kernel-shared slot of as
// equals the kernel table's corresponding slot, for use by tests
// asserting the §8 "PML4 creation" property.
func sharedSlotsMatch(m *Manager, as *AddressSpace) bool {
	table := m.Store().Table(as.PML4Frame)
	kernel := m.Store().Table(m.KernelPML4())
	for _, slot := range []int{0, 256, 507, 508, 509, 510} {
		if table[slot] != kernel[slot] {
			return false
		}
	}
	self := entry(table[TaskRecursiveIndex])
	return self.present() && self.addr() == as.PML4Frame && uint64(self)&mem.PTE_W != 0
}

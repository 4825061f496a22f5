// Package gdt builds the segment descriptor table and the TSS the
// double-fault IST stack depends on. Named only as an external
// collaborator in spec.md §1/§7 ("double-fault runs on the IST
// stack"); this package gives it a concrete shape, grounded on
// _examples/original_source/crate/gdt/src/lib.rs.
package gdt

// Selector indexes a GDT entry, shifted left 3 (the low 3 bits carry
// RPL/TI and are always zero for the selectors this kernel installs).
type Selector uint16

const (
	NullSelector       Selector = 0
	KernelCodeSelector Selector = 1 << 3
	KernelDataSelector Selector = 2 << 3
	UserCodeSelector   Selector = (3 << 3) | 3 // RPL 3
	UserDataSelector   Selector = (4 << 3) | 3
	TSSSelector        Selector = 5 << 3
)

// DoubleFaultISTIndex is the IST slot (1-7) the double-fault handler's
// gate descriptor points at, per §4.6/§7.
const DoubleFaultISTIndex = 1

// TSS is the 64-bit task state segment. Only the IST array and the
// two privilege-level stack pointers matter in this design — there is
// no hardware task switching, only interrupt-stack selection.
type TSS struct {
	RSP [3]uint64
	IST [7]uint64
}

// Descriptor is one 64-bit-mode GDT entry. Most fields are fixed by
// the kernel's flat memory model; only the access byte's type/DPL bits
// vary across entries.
type Descriptor struct {
	AccessByte byte
	Long       bool // 64-bit code segment
}

const (
	accessPresent   = 1 << 7
	accessExec      = 1 << 3
	accessRW        = 1 << 1
	accessDPL3      = 3 << 5
	accessSystemSeg = 1 << 4
)

// Table is the kernel's GDT: null, kernel code/data, user code/data,
// and the TSS descriptor pointing at the IST-bearing TSS above.
type Table struct {
	entries []Descriptor
	tss     *TSS
}

// New constructs the standard five-plus-TSS descriptor table and wires
// the double-fault IST stack (istStackTop) into TSS.IST[DoubleFaultISTIndex-1].
func New(istStackTop uint64) *Table {
	t := &Table{
		entries: []Descriptor{
			{}, // null
			{AccessByte: accessPresent | accessExec | accessRW, Long: true},    // kernel code
			{AccessByte: accessPresent | accessRW},                             // kernel data
			{AccessByte: accessPresent | accessDPL3 | accessExec | accessRW, Long: true}, // user code
			{AccessByte: accessPresent | accessDPL3 | accessRW},                // user data
		},
		tss: &TSS{},
	}
	t.tss.IST[DoubleFaultISTIndex-1] = istStackTop
	return t
}

// TSS returns the table's task state segment.
func (t *Table) TSS() *TSS { return t.tss }

// NumEntries reports how many descriptors precede the TSS descriptor.
func (t *Table) NumEntries() int { return len(t.entries) }

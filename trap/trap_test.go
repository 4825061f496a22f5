package trap

import "testing"

type fakeCode struct{ bytes []byte }

func (f fakeCode) ReadCode(rip uint64, n int) []byte {
	if n > len(f.bytes) {
		n = len(f.bytes)
	}
	return f.bytes[:n]
}

func TestPageFaultInstructionFetchAbortsTask(t *testing.T) {
	var halted bool
	var abortedReason string
	d := NewDispatcher(fakeCode{}, func() { halted = true }, nil, func(reason string) { abortedReason = reason })

	d.Dispatch(VecPageFault, &Frame{ErrorCode: PFInstructionFetch, CR2: 0x4000_0000})

	if halted {
		t.Fatalf("instruction-fetch fault should abort the task, not halt the kernel")
	}
	if abortedReason == "" {
		t.Fatalf("expected task abort to be invoked with a reason")
	}
}

func TestPageFaultOtherCausesHalt(t *testing.T) {
	var halted bool
	d := NewDispatcher(fakeCode{}, func() { halted = true }, nil, func(string) {})

	d.Dispatch(VecPageFault, &Frame{ErrorCode: PFWrite, CR2: 0x4000_0000})

	if !halted {
		t.Fatalf("expected a write-caused page fault to halt the kernel")
	}
}

func TestSpuriousInterruptDoesNotPanic(t *testing.T) {
	d := NewDispatcher(fakeCode{}, func() {}, nil, func(string) {})
	d.Dispatch(99, &Frame{})
}

func TestIRQHandlerSignalsEOI(t *testing.T) {
	var eoiVector int
	d := NewDispatcher(fakeCode{}, func() {}, func(v int) { eoiVector = v }, func(string) {})
	var called bool
	d.HandleIRQ(VecTimer, func(f *Frame) { called = true })
	d.Dispatch(VecTimer, &Frame{})
	if !called {
		t.Fatalf("expected IRQ handler to run")
	}
	if eoiVector != VecTimer {
		t.Fatalf("expected EOI signaled for vector %d, got %d", VecTimer, eoiVector)
	}
}

func TestFatalExceptionHalts(t *testing.T) {
	var halted bool
	d := NewDispatcher(fakeCode{}, func() { halted = true }, nil, func(string) {})
	d.Dispatch(VecGeneralProtection, &Frame{RIP: 0x1000})
	if !halted {
		t.Fatalf("expected general protection fault to halt")
	}
}

package coop

// ScancodeStream is the cooperative future that drains the keyboard's
// SPSC ring, grounded on
// _examples/original_source/crate/coop/src/keyboard.rs. It never
// completes — Poll always returns false — since draining scancodes is
// the lifetime of the kernel, not a one-shot computation.
type ScancodeStream struct {
	ring    *Ring[byte]
	onByte  func(byte)
	armed   bool
}

// NewScancodeStream wires a stream over ring that invokes onByte for
// every scancode it drains.
func NewScancodeStream(ring *Ring[byte], onByte func(byte)) *ScancodeStream {
	return &ScancodeStream{ring: ring, onByte: onByte}
}

// Poll arms the ring's wake callback on first use, then drains every
// byte currently queued. It is pending (returns false) whenever the
// ring is empty, per §4.7 — "typically inside a scancode stream when
// its SPSC ring is empty".
func (s *ScancodeStream) Poll(wake func()) (done bool) {
	if !s.armed {
		s.ring.SetWake(wake)
		s.armed = true
	}
	for {
		b, ok := s.ring.Pop()
		if !ok {
			return false
		}
		s.onByte(b)
	}
}

// MousePacketStream is the mouse-side counterpart, draining assembled
// 3-byte packets instead of raw scancodes.
type MousePacketStream struct {
	ring    *Ring[[3]byte]
	onPacket func([3]byte)
	armed   bool
}

func NewMousePacketStream(ring *Ring[[3]byte], onPacket func([3]byte)) *MousePacketStream {
	return &MousePacketStream{ring: ring, onPacket: onPacket}
}

func (s *MousePacketStream) Poll(wake func()) (done bool) {
	if !s.armed {
		s.ring.SetWake(wake)
		s.armed = true
	}
	for {
		p, ok := s.ring.Pop()
		if !ok {
			return false
		}
		s.onPacket(p)
	}
}

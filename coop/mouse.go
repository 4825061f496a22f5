package coop

// PS/2 mouse packet byte-0 flag bits.
const (
	mouseAlwaysOne = 1 << 3
	mouseXSign     = 1 << 4
	mouseYSign     = 1 << 5
	mouseXOverflow = 1 << 6
	mouseYOverflow = 1 << 7
)

// Assembler accumulates raw PS/2 mouse bytes into 3-byte packets,
// following §4.7's rule exactly: the first byte is accepted only if
// the sync bit is set, otherwise the accumulator resets; after three
// bytes the packet is delivered and the accumulator resets regardless
// of the packet's content.
type Assembler struct {
	buf [3]byte
	n   int
}

// Feed consumes one raw byte and reports the assembled packet once
// three valid bytes have accumulated.
func (a *Assembler) Feed(b byte) (packet [3]byte, ok bool) {
	if a.n == 0 && b&mouseAlwaysOne == 0 {
		return packet, false // discard: sync bit clear, not byte 0 of a packet
	}
	a.buf[a.n] = b
	a.n++
	if a.n < 3 {
		return packet, false
	}
	packet = a.buf
	a.n = 0
	return packet, true
}

// Cursor is a clamped screen-coordinate position.
type Cursor struct {
	X, Y          int
	Width, Height int
}

// Apply updates the cursor from one assembled packet, per §4.7's
// coordinate-update rule: two's-complement-style sign bits rather than
// a signed byte, Y inverted into screen coordinates, ±255 applied on
// overflow, then clamped to the screen bounds.
func (c *Cursor) Apply(packet [3]byte) {
	flags, dx, dy := packet[0], packet[1], packet[2]

	if flags&mouseXSign == 0 {
		c.X += int(dx)
	} else {
		c.X -= 256 - int(dx)
	}
	if flags&mouseYSign == 0 {
		c.Y -= int(dy) // inverted: PS/2 Y-up, screen Y-down
	} else {
		c.Y += 256 - int(dy)
	}
	if flags&mouseXOverflow != 0 {
		if flags&mouseXSign == 0 {
			c.X += 255
		} else {
			c.X -= 255
		}
	}
	if flags&mouseYOverflow != 0 {
		if flags&mouseYSign == 0 {
			c.Y -= 255
		} else {
			c.Y += 255
		}
	}

	if c.X < 0 {
		c.X = 0
	}
	if c.X > c.Width-1 {
		c.X = c.Width - 1
	}
	if c.Y < 0 {
		c.Y = 0
	}
	if c.Y > c.Height-1 {
		c.Y = c.Height - 1
	}
}

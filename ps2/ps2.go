// Package ps2 drives the PS/2 keyboard/mouse controller: port I/O and
// the bounded spin-wait init sequence named in §6.
//
// Grounded on _examples/original_source/crate/coop/src/mouse.rs
// (mouse_wait, mouse_wait_input, init_mouse), which spells out the
// exact spin-wait shape that §6 names only by port number and bit
// meaning.
package ps2

import "errors"

const (
	DataPort    = 0x60
	StatusPort  = 0x64
	CommandPort = 0x64
)

// Status register bits.
const (
	StatusOutputFull = 1 << 0 // data available to read
	StatusInputFull  = 1 << 1 // controller not ready to accept a write
)

// SpinWaitIterations bounds every busy-wait on a PS/2 status bit. A
// wait that runs out returns ErrTimeout to the caller.
const SpinWaitIterations = 100_000

var ErrTimeout = errors.New("ps2: controller did not respond")

// Port abstracts the two I/O ports so this package is testable without
// real hardware; production code backs it with inb/outb.
type Port interface {
	In(port uint16) byte
	Out(port uint16, v byte)
}

// Controller drives the 8042 controller and its PS/2 mouse.
type Controller struct {
	port Port
}

func NewController(port Port) *Controller { return &Controller{port: port} }

// waitCanWrite spins until the controller accepts a command/data byte.
func (c *Controller) waitCanWrite() error {
	for i := 0; i < SpinWaitIterations; i++ {
		if c.port.In(StatusPort)&StatusInputFull == 0 {
			return nil
		}
	}
	return ErrTimeout
}

// waitCanRead spins until a byte is available to read.
func (c *Controller) waitCanRead() error {
	for i := 0; i < SpinWaitIterations; i++ {
		if c.port.In(StatusPort)&StatusOutputFull != 0 {
			return nil
		}
	}
	return ErrTimeout
}

func (c *Controller) writeCommand(cmd byte) error {
	if err := c.waitCanWrite(); err != nil {
		return err
	}
	c.port.Out(CommandPort, cmd)
	return nil
}

func (c *Controller) writeData(b byte) error {
	if err := c.waitCanWrite(); err != nil {
		return err
	}
	c.port.Out(DataPort, b)
	return nil
}

func (c *Controller) readData() (byte, error) {
	if err := c.waitCanRead(); err != nil {
		return 0, err
	}
	return c.port.In(DataPort), nil
}

// InitMouse runs §6's enable sequence: enable the auxiliary (mouse)
// device, read the controller configuration byte, set bit 1 (enable
// IRQ12), write it back, then tell the mouse to use defaults and
// enable streaming.
func (c *Controller) InitMouse() error {
	const (
		cmdEnableAux    = 0xA8
		cmdReadConfig   = 0x20
		cmdWriteConfig  = 0x60
		mouseSetDefault = 0xF6
		mouseEnable     = 0xF4
	)

	if err := c.writeCommand(cmdEnableAux); err != nil {
		return err
	}
	if err := c.writeCommand(cmdReadConfig); err != nil {
		return err
	}
	cfg, err := c.readData()
	if err != nil {
		return err
	}
	cfg |= 1 << 1
	if err := c.writeCommand(cmdWriteConfig); err != nil {
		return err
	}
	if err := c.writeData(cfg); err != nil {
		return err
	}
	if err := c.sendMouse(mouseSetDefault); err != nil {
		return err
	}
	return c.sendMouse(mouseEnable)
}

// sendMouse routes a byte to the auxiliary device via command 0xD4,
// then waits for its reply byte (the ACK, 0xFA). The reply's value is
// not checked.
func (c *Controller) sendMouse(b byte) error {
	const cmdWriteAux = 0xD4
	if err := c.writeCommand(cmdWriteAux); err != nil {
		return err
	}
	if err := c.writeData(b); err != nil {
		return err
	}
	_, err := c.readData() // ACK; a timeout here returns ErrTimeout
	return err
}

// ReadScancode reads one raw byte from the data port. Callers call
// this from the keyboard/mouse IRQ handlers, never from polling code.
func (c *Controller) ReadScancode() byte {
	return c.port.In(DataPort)
}

package ps2

import "testing"

type fakePort struct {
	status byte
	data   byte
	writes []struct {
		port uint16
		v    byte
	}
}

func (f *fakePort) In(port uint16) byte {
	switch port {
	case StatusPort:
		return f.status
	case DataPort:
		return f.data
	}
	return 0
}

func (f *fakePort) Out(port uint16, v byte) {
	f.writes = append(f.writes, struct {
		port uint16
		v    byte
	}{port, v})
}

func TestInitMouseSucceedsWhenControllerResponsive(t *testing.T) {
	p := &fakePort{status: StatusOutputFull, data: 0xFA} // ready to write, byte waiting
	c := NewController(p)
	if err := c.InitMouse(); err != nil {
		t.Fatalf("InitMouse: %v", err)
	}
	if len(p.writes) == 0 {
		t.Fatalf("expected commands/data written to the controller")
	}
}

func TestWaitCanWriteTimesOutWhenControllerStuck(t *testing.T) {
	p := &fakePort{status: StatusInputFull} // always busy
	c := NewController(p)
	if err := c.waitCanWrite(); err != ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

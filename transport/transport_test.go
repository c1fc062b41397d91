package transport

import (
	"testing"
	"time"
)

type stubDevice struct {
	in, out EndpointAddress
	bulked  []EndpointAddress
}

func (d *stubDevice) Strings() (string, string, error) {
	return "", "", nil
}

func (d *stubDevice) Endpoints() (EndpointAddress, EndpointAddress) {
	return d.in, d.out
}

func (d *stubDevice) Control(Direction, uint8, uint16, []byte, time.Duration) (int, error) {
	return 0, nil
}

func (d *stubDevice) Bulk(ep EndpointAddress, buf []byte, _ time.Duration) (int, Status) {
	d.bulked = append(d.bulked, ep)
	return len(buf), StatusOK
}

func (d *stubDevice) Close() {}

func TestEndpointAddress(t *testing.T) {
	for _, tc := range []struct {
		addr   EndpointAddress
		absent bool
		dir    Direction
	}{
		{addr: 0, absent: true, dir: DirectionOut},
		{addr: 0x02, dir: DirectionOut},
		{addr: 0x81, dir: DirectionIn},
	} {
		if got := tc.addr.Absent(); got != tc.absent {
			t.Errorf("%#x.Absent() = %v; want %v", uint8(tc.addr), got, tc.absent)
		}
		if got := tc.addr.Direction(); got != tc.dir {
			t.Errorf("%#x.Direction() = %v; want %v", uint8(tc.addr), got, tc.dir)
		}
	}
}

func TestDevicePortRoutesTransfers(t *testing.T) {
	dev := &stubDevice{in: 0x81, out: 0x02}
	port := NewDevicePort(dev)

	if !port.InAvailable() || !port.OutAvailable() {
		t.Fatal("endpoints reported unavailable")
	}

	buf := make([]byte, 4)
	if _, status := port.ReadInbound(buf, time.Second); status != StatusOK {
		t.Errorf("read status = %v", status)
	}
	if _, status := port.WriteOutbound(buf, time.Second); status != StatusOK {
		t.Errorf("write status = %v", status)
	}
	if len(dev.bulked) != 2 || dev.bulked[0] != 0x81 || dev.bulked[1] != 0x02 {
		t.Errorf("transfers routed to %v; want [0x81 0x02]", dev.bulked)
	}
}

func TestDevicePortReportsAbsentEndpoints(t *testing.T) {
	dev := &stubDevice{in: 0x81}
	port := NewDevicePort(dev)

	if port.OutAvailable() {
		t.Error("absent out endpoint reported available")
	}
	if _, status := port.WriteOutbound([]byte{0}, time.Second); status != StatusError {
		t.Errorf("write on absent endpoint returned %v; want error", status)
	}
	if len(dev.bulked) != 0 {
		t.Error("a transfer was attempted on an absent endpoint")
	}
}

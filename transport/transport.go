// Package transport provides the narrow USB transfer surface the streaming
// engine is built on: timeout-bounded bulk reads/writes on a claimed endpoint
// pair, vendor control transfers, and descriptor access. The rest of the
// repository only ever talks to the interfaces in this file; the libusb
// binding lives in gousb.go.
package transport

import (
	"time"
)

// Status classifies the outcome of a bulk transfer. A timeout is not an
// error: polling loops treat it as "try again".
type Status int

const (
	StatusOK Status = iota
	StatusTimeout
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusTimeout:
		return "timeout"
	case StatusError:
		return "error"
	}
	return "unknown"
}

// Direction of a transfer relative to the host.
type Direction uint8

const (
	DirectionOut Direction = 0x00
	DirectionIn  Direction = 0x80
)

// EndpointAddress is a raw endpoint address as it appears in the interface
// descriptor. The zero value means the endpoint is absent; operations
// requiring that direction must report unavailability instead of attempting
// a transfer.
type EndpointAddress uint8

func (a EndpointAddress) Absent() bool {
	return a == 0
}

func (a EndpointAddress) Direction() Direction {
	return Direction(a) & DirectionIn
}

// Device is an opened USB device with its sole interface claimed. It is the
// collaborator contract for session construction and accessory-mode
// conversion; implementations must be safe for use from multiple goroutines
// issuing bulk transfers on distinct endpoints.
type Device interface {
	// Strings returns the manufacturer and product descriptor strings.
	Strings() (manufacturer, product string, err error)

	// Endpoints reports the bulk endpoint pair discovered on the first
	// interface's first alternate setting. Either address may be zero.
	Endpoints() (in, out EndpointAddress)

	// Control performs a vendor control transfer on the default control
	// pipe and returns the number of bytes transferred.
	Control(dir Direction, request uint8, index uint16, payload []byte, timeout time.Duration) (int, error)

	// Bulk performs a bulk transfer on the given endpoint. The returned
	// byte count is meaningful for StatusOK and may be short; callers
	// decide whether a short transfer is fatal.
	Bulk(ep EndpointAddress, buf []byte, timeout time.Duration) (int, Status)

	// Close releases the claimed interface and closes the device handle.
	// It is safe to call more than once.
	Close()
}

// Stack is a process-wide transport context. Exactly one should exist per
// process; it is passed explicitly into session construction rather than
// accessed as an ambient global.
type Stack interface {
	// OpenByIdentity opens the first device matching the vendor/product
	// pair and claims its first interface. A nil Device with a nil error
	// means no matching device is attached.
	OpenByIdentity(vendor, product uint16) (Device, error)

	Close() error
}

// Port is the bulk pipe pair a session streams over. Reads and writes on a
// Port are independent; each carries its own timeout.
type Port interface {
	// ReadInbound fills buf from the inbound endpoint.
	ReadInbound(buf []byte, timeout time.Duration) (int, Status)

	// WriteOutbound sends buf on the outbound endpoint.
	WriteOutbound(buf []byte, timeout time.Duration) (int, Status)

	// InAvailable reports whether the inbound endpoint exists.
	InAvailable() bool

	// OutAvailable reports whether the outbound endpoint exists.
	OutAvailable() bool
}

// DevicePort adapts a Device and its discovered endpoint pair into a Port.
type DevicePort struct {
	dev     Device
	in, out EndpointAddress
}

func NewDevicePort(dev Device) *DevicePort {
	in, out := dev.Endpoints()
	return &DevicePort{dev: dev, in: in, out: out}
}

func (p *DevicePort) ReadInbound(buf []byte, timeout time.Duration) (int, Status) {
	if p.in.Absent() {
		return 0, StatusError
	}
	return p.dev.Bulk(p.in, buf, timeout)
}

func (p *DevicePort) WriteOutbound(buf []byte, timeout time.Duration) (int, Status) {
	if p.out.Absent() {
		return 0, StatusError
	}
	return p.dev.Bulk(p.out, buf, timeout)
}

func (p *DevicePort) InAvailable() bool {
	return !p.in.Absent()
}

func (p *DevicePort) OutAvailable() bool {
	return !p.out.Absent()
}

package transport

import (
	"context"
	"sync"
	"time"

	"github.com/efficientgo/core/errors"
	"github.com/google/gousb"
)

// LibusbStack is the production Stack, backed by a libusb context via gousb.
// Create exactly one per process and Close it on shutdown; Close is safe to
// call more than once.
type LibusbStack struct {
	mu  sync.Mutex
	ctx *gousb.Context
}

func NewLibusbStack() *LibusbStack {
	return &LibusbStack{ctx: gousb.NewContext()}
}

func (s *LibusbStack) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return nil
	}
	err := s.ctx.Close()
	s.ctx = nil
	return err
}

func (s *LibusbStack) OpenByIdentity(vendor, product uint16) (Device, error) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		return nil, errors.New("transport stack is closed")
	}

	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vendor), gousb.ID(product))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open device %04x:%04x", vendor, product)
	}
	if dev == nil {
		// Not attached.
		return nil, nil
	}

	ld, err := claimDevice(dev)
	if err != nil {
		_ = dev.Close()
		return nil, err
	}
	return ld, nil
}

type libusbDevice struct {
	mu   sync.Mutex
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface
	in   *gousb.InEndpoint
	out  *gousb.OutEndpoint

	inAddr, outAddr EndpointAddress
	closed          bool
}

// claimDevice claims the first interface's first alternate setting and opens
// the bulk endpoint pair it advertises. Accessory-mode devices expose exactly
// one interface with one IN and one OUT bulk endpoint; other layouts are
// tolerated as long as the first alt setting is claimable.
func claimDevice(dev *gousb.Device) (*libusbDevice, error) {
	// Drop any kernel driver bound to the interface before claiming it.
	_ = dev.SetAutoDetach(true)

	cfgDesc, err := firstConfig(dev.Desc)
	if err != nil {
		return nil, err
	}
	if len(cfgDesc.Interfaces) == 0 || len(cfgDesc.Interfaces[0].AltSettings) == 0 {
		return nil, errors.New("device has no claimable interface")
	}
	setting := cfgDesc.Interfaces[0].AltSettings[0]

	cfg, err := dev.Config(cfgDesc.Number)
	if err != nil {
		return nil, errors.Wrap(err, "failed to set device configuration")
	}
	intf, err := cfg.Interface(setting.Number, setting.Alternate)
	if err != nil {
		_ = cfg.Close()
		return nil, errors.Wrap(err, "failed to claim interface")
	}

	ld := &libusbDevice{dev: dev, cfg: cfg, intf: intf}
	for _, ep := range setting.Endpoints {
		switch ep.Direction {
		case gousb.EndpointDirectionIn:
			ld.in, err = intf.InEndpoint(ep.Number)
			ld.inAddr = EndpointAddress(ep.Address)
		case gousb.EndpointDirectionOut:
			ld.out, err = intf.OutEndpoint(ep.Number)
			ld.outAddr = EndpointAddress(ep.Address)
		}
		if err != nil {
			intf.Close()
			_ = cfg.Close()
			return nil, errors.Wrapf(err, "failed to open endpoint %d", ep.Number)
		}
	}
	return ld, nil
}

func firstConfig(desc *gousb.DeviceDesc) (*gousb.ConfigDesc, error) {
	found := false
	var lowest int
	for num := range desc.Configs {
		if !found || num < lowest {
			found = true
			lowest = num
		}
	}
	if !found {
		return nil, errors.New("device has no configuration descriptor")
	}
	cfg := desc.Configs[lowest]
	return &cfg, nil
}

func (d *libusbDevice) Strings() (string, string, error) {
	manufacturer, err := d.dev.Manufacturer()
	if err != nil {
		return "", "", errors.Wrap(err, "failed to read manufacturer string")
	}
	product, err := d.dev.Product()
	if err != nil {
		return "", "", errors.Wrap(err, "failed to read product string")
	}
	return manufacturer, product, nil
}

func (d *libusbDevice) Endpoints() (EndpointAddress, EndpointAddress) {
	return d.inAddr, d.outAddr
}

func (d *libusbDevice) Control(dir Direction, request uint8, index uint16, payload []byte, timeout time.Duration) (int, error) {
	rType := uint8(gousb.ControlVendor | gousb.ControlDevice)
	if dir == DirectionIn {
		rType |= uint8(gousb.ControlIn)
	} else {
		rType |= uint8(gousb.ControlOut)
	}

	d.mu.Lock()
	d.dev.ControlTimeout = timeout
	d.mu.Unlock()
	return d.dev.Control(rType, request, 0, index, payload)
}

func (d *libusbDevice) Bulk(ep EndpointAddress, buf []byte, timeout time.Duration) (int, Status) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var (
		n   int
		err error
	)
	switch {
	case ep == d.inAddr && d.in != nil:
		n, err = d.in.ReadContext(ctx, buf)
	case ep == d.outAddr && d.out != nil:
		n, err = d.out.WriteContext(ctx, buf)
	default:
		return 0, StatusError
	}
	return n, classify(err)
}

// classify maps a gousb transfer error onto the three-valued transfer
// status. Timeouts surface either as libusb's own timeout codes or as a
// context deadline, depending on which side cut the transfer short.
func classify(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case err == gousb.TransferTimedOut,
		err == gousb.ErrorTimeout,
		err == context.DeadlineExceeded:
		return StatusTimeout
	default:
		return StatusError
	}
}

func (d *libusbDevice) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	d.intf.Close()
	_ = d.cfg.Close()
	_ = d.dev.Close()
}

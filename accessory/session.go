// Package accessory owns the lifecycle of a point-to-point link with a USB
// device speaking the open-accessory protocol: opening and claiming the
// device, switching it into accessory mode, and running the stream loops
// over its bulk endpoint pair once it re-enumerates.
package accessory

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/efficientgo/core/errors"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sdao/mayausb/imaging"
	"github.com/sdao/mayausb/stream"
	"github.com/sdao/mayausb/transport"
)

// Accessory protocol vendor requests.
const (
	requestGetProtocol    = 51
	requestSendString     = 52
	requestStartAccessory = 53
)

// Indexed descriptor strings sent during accessory conversion.
const (
	stringManufacturer uint16 = iota
	stringModel
	stringDescription
	stringVersion
	stringURI
	stringSerial
)

const controlTimeout = 5 * time.Second

// ErrNoMatchingDevice is returned by Open when none of the candidate
// identities is attached.
var ErrNoMatchingDevice = errors.New("no matching device attached")

// AccessoryDescriptor is the set of strings the host announces to the
// device firmware during conversion.
type AccessoryDescriptor struct {
	Manufacturer string
	Model        string
	Description  string
	Version      string
	URI          string
	Serial       string
}

func DefaultDescriptor() AccessoryDescriptor {
	return AccessoryDescriptor{
		Manufacturer: "SiriusCybernetics",
		Model:        "MayaUsb",
		Description:  "Maya USB streaming",
		Version:      "0.42",
		URI:          "https://sdao.me",
		Serial:       "42",
	}
}

// Options carries the collaborators injected into session construction.
// All fields are optional.
type Options struct {
	// Compressor encodes outbound frames. Defaults to JPEG at the
	// protocol's fixed quality.
	Compressor imaging.Compressor
	Logger     log.Logger
	Registerer prometheus.Registerer
}

// Session is one opened, claimed device and the stream link over its bulk
// endpoints. A session that performed accessory conversion must be closed
// and reopened against the re-enumerated identity before streaming.
type Session struct {
	dev          transport.Device
	id           Identity
	manufacturer string
	product      string
	link         *stream.Link
	logger       log.Logger
}

// Open tries each candidate identity in order and binds the first one that
// is attached, then reads the descriptor strings and wires the stream link
// over the discovered endpoint pair. Construction is atomic: on any failure
// every partially opened resource is released before the error is returned.
func Open(stack transport.Stack, candidates []Identity, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	compressor := opts.Compressor
	if compressor == nil {
		compressor = imaging.NewJPEGCompressor(imaging.DefaultJPEGQuality)
	}

	var (
		dev   transport.Device
		bound Identity
	)
	for _, id := range candidates {
		d, err := stack.OpenByIdentity(id.Vendor, id.Product)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to open device %s", id)
		}
		if d != nil {
			dev, bound = d, id
			break
		}
	}
	if dev == nil {
		return nil, ErrNoMatchingDevice
	}

	manufacturer, product, err := dev.Strings()
	if err != nil {
		dev.Close()
		return nil, err
	}

	s := &Session{
		dev:          dev,
		id:           bound,
		manufacturer: manufacturer,
		product:      product,
		logger:       logger,
	}
	port := transport.NewDevicePort(dev)
	s.link = stream.NewLink(port, compressor, log.With(logger, "device", bound.String()), opts.Registerer)

	_ = level.Info(logger).Log("msg", "opened device", "description", s.Description())
	return s, nil
}

// Description formats the bound identity with its manufacturer and product
// strings, e.g. "18d1:2d01 Google Pixel".
func (s *Session) Description() string {
	return fmt.Sprintf("%s %s %s", s.id, s.manufacturer, s.product)
}

// Identity returns the identity the session is bound to.
func (s *Session) Identity() Identity {
	return s.id
}

// ConvertToAccessory runs the accessory-mode conversion sequence: protocol
// version query, the six descriptor strings, then the start request. On
// success the physical device detaches and re-enumerates under an accessory
// identity; the caller must Close this session and Open a new one.
func (s *Session) ConvertToAccessory(desc AccessoryDescriptor) error {
	version, err := s.controlInt16(requestGetProtocol)
	if err != nil {
		return err
	}
	if version < 1 {
		return errors.Newf("accessory protocol version %d not supported", version)
	}
	_ = level.Debug(s.logger).Log("msg", "device supports accessory protocol", "version", version)

	for _, str := range []struct {
		index uint16
		value string
	}{
		{stringManufacturer, desc.Manufacturer},
		{stringModel, desc.Model},
		{stringDescription, desc.Description},
		{stringVersion, desc.Version},
		{stringURI, desc.URI},
		{stringSerial, desc.Serial},
	} {
		if err := s.sendControlString(requestSendString, str.index, str.value); err != nil {
			return err
		}
	}

	if _, err := s.dev.Control(transport.DirectionOut, requestStartAccessory, 0, nil, controlTimeout); err != nil {
		return errors.Wrap(err, "failed to start accessory mode")
	}
	_ = level.Info(s.logger).Log("msg", "accessory mode requested; device will re-enumerate")
	return nil
}

func (s *Session) controlInt16(request uint8) (int16, error) {
	var buf [2]byte
	n, err := s.dev.Control(transport.DirectionIn, request, 0, buf[:], controlTimeout)
	if err != nil {
		return 0, errors.Wrapf(err, "control request %d failed", request)
	}
	if n < len(buf) {
		return 0, errors.Newf("control request %d returned %d of %d bytes", request, n, len(buf))
	}
	return int16(binary.LittleEndian.Uint16(buf[:])), nil
}

func (s *Session) sendControlString(request uint8, index uint16, value string) error {
	if _, err := s.dev.Control(transport.DirectionOut, request, index, []byte(value), controlTimeout); err != nil {
		return errors.Wrapf(err, "failed to send descriptor string %d", index)
	}
	return nil
}

// FlushInbound drains stale inbound data left over from a previous session.
func (s *Session) FlushInbound() {
	s.link.FlushInbound()
}

// StartHandshake begins the one-shot link verification. See stream.Link.
func (s *Session) StartHandshake(onComplete func(success bool)) bool {
	return s.link.StartHandshake(onComplete)
}

// HandshakeComplete reports whether link verification succeeded.
func (s *Session) HandshakeComplete() bool {
	return s.link.HandshakeComplete()
}

// StartInboundLoop begins the polling read loop. See stream.Link.
func (s *Session) StartInboundLoop(onFrame func(frame []byte), frameSize int) bool {
	return s.link.StartInboundLoop(onFrame, frameSize)
}

// StartOutboundLoop begins the frame send loop. See stream.Link.
func (s *Session) StartOutboundLoop(onFailure func()) bool {
	return s.link.StartOutboundLoop(onFailure)
}

// OfferFrame hands a decomposed pixel buffer to the send loop, dropping it
// if a send is in flight. See stream.Link.
func (s *Session) OfferFrame(pixels []byte, width, height int) bool {
	return s.link.OfferFrame(pixels, width, height)
}

// SendDataSync writes one length-prefixed frame synchronously.
func (s *Session) SendDataSync(data []byte) error {
	return s.link.SendDataSync(data)
}

// Close cancels any active loops, joins them with the teardown deadline,
// then releases the interface and closes the device.
func (s *Session) Close() {
	s.link.Close()
	s.dev.Close()
}

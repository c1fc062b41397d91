// SPDX-License-Identifier: GPL-2.0-only

package main

import (
	"context"
	"strconv"
	"time"

	"github.com/efficientgo/core/errors"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sdao/mayausb/accessory"
	"github.com/sdao/mayausb/imaging"
	"github.com/sdao/mayausb/transport"
)

const (
	waitForReenumerateStep     = 3 * time.Second
	waitForReenumerateAttempts = 5
)

type streamerConfig struct {
	jpegQuality   int
	frameWidth    int
	frameHeight   int
	frameInterval time.Duration
	readFrameSize int
}

// streamer drives one full session: switch the device into accessory mode
// if necessary, reopen it under its accessory identity, verify the link,
// then stream generated frames until the context is cancelled or a loop
// fails.
type streamer struct {
	stack      transport.Stack
	candidates []accessory.Identity
	config     streamerConfig
	logger     log.Logger
	registerer prometheus.Registerer

	sessions int
}

// sessionOptions builds the collaborators for one session. Each session gets
// its own metric series so reopening after accessory conversion does not
// collide with the collectors of the previous session.
func (s *streamer) sessionOptions() accessory.Options {
	s.sessions++
	reg := s.registerer
	if reg != nil {
		reg = prometheus.WrapRegistererWith(prometheus.Labels{"session": strconv.Itoa(s.sessions)}, reg)
	}
	return accessory.Options{
		Compressor: imaging.NewJPEGCompressor(s.config.jpegQuality),
		Logger:     s.logger,
		Registerer: reg,
	}
}

func (s *streamer) run(ctx context.Context) error {
	sess, err := s.openAccessorySession(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := s.awaitHandshake(ctx, sess); err != nil {
		return err
	}

	loopFailed := make(chan struct{}, 1)
	if !sess.StartInboundLoop(func(frame []byte) {
		if frame == nil {
			select {
			case loopFailed <- struct{}{}:
			default:
			}
			return
		}
		_ = level.Debug(s.logger).Log("msg", "received frame", "bytes", len(frame))
	}, s.config.readFrameSize) {
		return errors.New("failed to start read loop")
	}
	if !sess.StartOutboundLoop(func() {
		select {
		case loopFailed <- struct{}{}:
		default:
		}
	}) {
		return errors.New("failed to start send loop")
	}

	return s.produceFrames(ctx, sess, loopFailed)
}

// openAccessorySession opens the configured device; if it is not yet in
// accessory mode it runs the conversion and polls for the re-enumerated
// accessory identity.
func (s *streamer) openAccessorySession(ctx context.Context) (*accessory.Session, error) {
	sess, err := accessory.Open(s.stack, s.candidates, s.sessionOptions())
	if err != nil {
		return nil, err
	}
	if sess.Identity().IsAccessory() {
		return sess, nil
	}

	_ = level.Info(s.logger).Log("msg", "switching device to accessory mode", "description", sess.Description())
	err = sess.ConvertToAccessory(accessory.DefaultDescriptor())
	sess.Close()
	if err != nil {
		return nil, err
	}

	// The device detaches and comes back under an accessory identity.
	for i := 0; i < waitForReenumerateAttempts; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(waitForReenumerateStep):
		}
		sess, err = accessory.Open(s.stack, accessory.AccessoryIdentities(), s.sessionOptions())
		if err == nil {
			return sess, nil
		}
		if err != accessory.ErrNoMatchingDevice {
			return nil, err
		}
	}
	return nil, errors.New("device did not re-enumerate in accessory mode")
}

func (s *streamer) awaitHandshake(ctx context.Context, sess *accessory.Session) error {
	result := make(chan bool, 1)
	if !sess.StartHandshake(func(success bool) {
		result <- success
	}) {
		return errors.New("failed to start handshake")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case success := <-result:
		if !success {
			return errors.New("device handshake failed")
		}
	}
	return nil
}

// produceFrames generates an animated checkerboard-stereo test texture,
// decomposes it, and offers the result to the send loop at the configured
// rate. Dropped frames are expected whenever the wire is slower than the
// producer.
func (s *streamer) produceFrames(ctx context.Context, sess *accessory.Session, loopFailed <-chan struct{}) error {
	width, height := s.config.frameWidth, s.config.frameHeight
	source := make([]byte, width*height*4)
	decomposed := make([]byte, imaging.DecomposedSize(width, height))

	ticker := time.NewTicker(s.config.frameInterval)
	defer ticker.Stop()

	for tick := 0; ; tick++ {
		select {
		case <-ctx.Done():
			return nil
		case <-loopFailed:
			return errors.New("stream loop terminated on transport failure")
		case <-ticker.C:
		}

		renderTestPattern(source, width, height, tick)
		if err := imaging.Decompose(source, width, height, imaging.RasterRGBA8, decomposed); err != nil {
			return err
		}
		if !sess.OfferFrame(decomposed, width, height/2) {
			_ = level.Debug(s.logger).Log("msg", "frame dropped", "tick", tick)
		}
	}
}

// renderTestPattern fills buf with a scrolling RGBA gradient.
func renderTestPattern(buf []byte, width, height, tick int) {
	for y := 0; y < height; y++ {
		row := y * width * 4
		for x := 0; x < width; x++ {
			p := row + x*4
			buf[p] = byte(x + tick)
			buf[p+1] = byte(y + tick)
			buf[p+2] = byte(x + y)
			buf[p+3] = 0xFF
		}
	}
}

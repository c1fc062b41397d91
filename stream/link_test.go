package stream

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sdao/mayausb/transport"
)

func TestFlushInboundDrainsUntilTimeout(t *testing.T) {
	port := &fakePort{reads: []bulkResult{
		{data: []byte("stale")},
		{data: []byte("stale")},
		{status: transport.StatusTimeout},
		{data: []byte("fresh")},
	}}
	link := NewLink(port, identityCompressor{}, nil, nil)

	link.FlushInbound()

	// The flush must stop at the first timeout, leaving later data intact.
	if got := len(port.reads); got != 1 {
		t.Errorf("%d scripted reads left; want 1", got)
	}
}

func TestFlushInboundWithoutEndpoint(t *testing.T) {
	link := NewLink(&fakePort{noIn: true}, identityCompressor{}, nil, nil)
	link.FlushInbound() // must not attempt a transfer
}

func TestDropMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	link := NewLink(&fakePort{}, identityCompressor{}, nil, reg)

	link.OfferFrame([]byte{1}, 1, 1)
	link.OfferFrame([]byte{2}, 1, 1) // dropped, slot full

	if got := testutil.ToFloat64(link.metrics.framesOffered); got != 2 {
		t.Errorf("frames offered = %v; want 2", got)
	}
	if got := testutil.ToFloat64(link.metrics.framesDropped); got != 1 {
		t.Errorf("frames dropped = %v; want 1", got)
	}
}

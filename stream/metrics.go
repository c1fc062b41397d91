package stream

import (
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	framesOffered prometheus.Counter
	framesDropped prometheus.Counter
	framesSent    prometheus.Counter
	framesRecv    prometheus.Counter
	bytesSent     prometheus.Counter
	loopFailures  *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		framesOffered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "usb_stream_frames_offered_total",
			Help: "The number of frames producers offered to the outbound slot.",
		}),
		framesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "usb_stream_frames_dropped_total",
			Help: "The number of offered frames dropped because a send was in flight.",
		}),
		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "usb_stream_frames_sent_total",
			Help: "The number of frames fully written to the outbound endpoint.",
		}),
		framesRecv: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "usb_stream_frames_received_total",
			Help: "The number of frames delivered by the inbound loop.",
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "usb_stream_bytes_sent_total",
			Help: "Payload bytes written to the outbound endpoint, excluding headers.",
		}),
		loopFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "usb_stream_loop_failures_total",
			Help: "Transport failures that terminated a stream loop.",
		}, []string{"loop"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.framesOffered,
			m.framesDropped,
			m.framesSent,
			m.framesRecv,
			m.bytesSent,
			m.loopFailures,
		)
	}
	return m
}

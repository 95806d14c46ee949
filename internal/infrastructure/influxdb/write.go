package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementPoll   = "habsync_poll"
	MeasurementStream = "habsync_stream"
)

// PollSample describes one completed poll.
type PollSample struct {
	Duration time.Duration
	Items    int
	Online   bool
	Err      error
	At       time.Time
}

// StreamSample describes the event stream at a state transition.
type StreamSample struct {
	State    string
	Connects uint64
	Failures uint64
	Events   uint64
	Signals  uint64
	At       time.Time
}

// WritePollMetric records a poll. Non-blocking; dropped when disconnected.
func (c *Client) WritePollMetric(s PollSample) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(pollPoint(s))
}

// WriteStreamMetric records an event stream transition. Non-blocking;
// dropped when disconnected.
func (c *Client) WriteStreamMetric(s StreamSample) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(streamPoint(s))
}

func pollPoint(s PollSample) *write.Point {
	result := "ok"
	if s.Err != nil {
		result = "error"
	}
	online := "false"
	if s.Online {
		online = "true"
	}
	return write.NewPoint(
		MeasurementPoll,
		map[string]string{"result": result, "online": online},
		map[string]any{
			"duration_ms": float64(s.Duration) / float64(time.Millisecond),
			"items":       s.Items,
		},
		stamp(s.At),
	)
}

func streamPoint(s StreamSample) *write.Point {
	return write.NewPoint(
		MeasurementStream,
		map[string]string{"state": s.State},
		map[string]any{
			"connects": s.Connects,
			"failures": s.Failures,
			"events":   s.Events,
			"signals":  s.Signals,
		},
		stamp(s.At),
	)
}

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

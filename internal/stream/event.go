// Package stream turns reconciliation progress into a push-based event
// stream: throttled progress events, a keep-alive heartbeat and exactly one
// terminal complete or error event.
package stream

import "errors"

// Kind tags an outbound event.
type Kind string

const (
	KindProgress Kind = "progress"
	KindComplete Kind = "complete"
	KindError    Kind = "error"
)

// ErrClosed is returned when sending after the terminal event.
var ErrClosed = errors.New("stream closed")

// Event is one outbound message.
type Event struct {
	Kind Kind
	Data any
}

// Progress is the payload of a progress event.
type Progress struct {
	Stage    string  `json:"stage"`
	Fraction float64 `json:"fraction"`
	Current  int     `json:"current"`
	Total    int     `json:"total"`
	Status   string  `json:"status"`
	Message  string  `json:"message,omitempty"`
}

// Update is a raw progress signal from the run. Boundary marks the end of a
// batch or stage; such updates are never throttled away.
type Update struct {
	Progress
	Boundary bool
}

// ErrorPayload is the payload of an error event.
type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Sink delivers events to the caller. Implementations must tolerate
// Heartbeat being called concurrently with Send.
type Sink interface {
	Send(ev Event) error
	Heartbeat() error
}

package stream

import (
	"context"
	"time"
)

// State is the stream client's connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateStreaming    State = "streaming"
	StateBackingOff   State = "backing_off"
)

// StatusChange describes one state transition.
type StatusChange struct {
	State  State     `json:"state"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// StatusSink receives state transitions. Implementations must not
// block; a slow or failing sink never stalls the stream.
type StatusSink interface {
	StreamStatus(ctx context.Context, change StatusChange)
}

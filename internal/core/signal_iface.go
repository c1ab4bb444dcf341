package core

import (
	"context"
	"encoding/json"

	"github.com/arlev/tether/internal/domain"
)

// Handler consumes the payload of one inbound event. Handlers run on the
// channel's read goroutine; delivery is serialized per connection.
type Handler func(payload json.RawMessage)

// ChannelState is the session channel lifecycle.
type ChannelState int

const (
	ChannelConnecting ChannelState = iota
	ChannelOpen
	ChannelClosed
)

// SignalChannel is the one long-lived transport per authenticated user. The
// Room Router and the call machine multiplex over it by event name; any
// number of subscribers may listen to the same event.
// Owned by whoever opened it; the owner must Close() it.
type SignalChannel interface {
	// Open connects keyed by identity. Idempotent per identity; opening for
	// a different identity tears down the previous connection first.
	Open(ctx context.Context, identity domain.UserID) error

	// Subscribe registers a handler for an event name. The returned cancel
	// removes exactly this handler.
	Subscribe(event string, h Handler) (cancel func())

	// Emit sends a room-scoped event. Returns ErrChannelClosed when the
	// channel is not open and ErrBackpressure when the send buffer is full;
	// callers own that state and must not treat either as fatal.
	Emit(event string, payload any) error

	// EmitTo sends an event addressed to one identity (call signaling).
	EmitTo(event string, to domain.UserID, payload any) error

	Identity() domain.UserID
	State() ChannelState

	// Close releases the transport and drops all subscriptions. Safe to
	// call multiple times.
	Close()
}

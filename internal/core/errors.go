package core

import "errors"

// Failure categories of the realtime layer. Each is handled at the layer
// that detects it and never crosses the channel boundary; callers wrap them
// with context via fmt.Errorf("...: %w", err).
var (
	// ErrTransport: the channel cannot open or emit. The channel is left
	// closed; the user retries by re-authenticating.
	ErrTransport = errors.New("transport unavailable")

	// ErrMediaAcquisition: camera or microphone denied or unavailable.
	// Aborts call setup before any signaling is sent by the initiator.
	ErrMediaAcquisition = errors.New("media acquisition failed")

	// ErrNegotiation: malformed or out-of-sequence offer/answer/candidate,
	// or a negotiation that never completed. Fatal to the active call.
	ErrNegotiation = errors.New("negotiation failed")

	// ErrRouting: an inbound message with neither group nor receiver set.
	// The message is dropped and logged; the channel stays up.
	ErrRouting = errors.New("message routing failed")

	// ErrBackpressure: the outbound buffer is full; the frame was dropped.
	ErrBackpressure = errors.New("backpressure")

	// ErrChannelClosed: emit attempted on a channel that is not open.
	ErrChannelClosed = errors.New("channel closed")

	// ErrCallBusy: a call operation while another call is active.
	ErrCallBusy = errors.New("another call is active")
)

package core

import (
	"context"

	"github.com/pion/webrtc/v4"
)

type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// MediaTrack is one local capture track. SetEnabled flips the track's
// enabled flag only; pausing the matching RTP sender is the peer
// connection's job, so no renegotiation happens on mute.
type MediaTrack interface {
	ID() string
	Kind() TrackKind
	Enabled() bool
	SetEnabled(bool)
	// Stop releases the OS-level capture. Must be idempotent.
	Stop()
}

// MediaStream groups the tracks acquired by one GetUserMedia call.
type MediaStream interface {
	Tracks() []MediaTrack
	TracksByKind(TrackKind) []MediaTrack
	// StopAll stops every track. Idempotent.
	StopAll()
}

// MediaDevice acquires local capture media.
type MediaDevice interface {
	GetUserMedia(video, audio bool) (MediaStream, error)
}

// LocalTrackProvider is implemented by media tracks backed by a pion local
// track, so the rtc adapter can attach them to the peer connection. Test
// fakes don't implement it.
type LocalTrackProvider interface {
	LocalTrack() webrtc.TrackLocal
}

// RemoteTrack is the read-only view of a peer's track, surfaced upward for
// attachment to playback.
type RemoteTrack interface {
	ID() string
	Kind() TrackKind
}

// MediaConnection is the client side of one peer-to-peer media session.
// Exclusively owned by the call machine for the active call.
type MediaConnection interface {
	// Start configures internal callbacks and binds the connection lifetime to ctx.
	Start(ctx context.Context) error
	// Close stops all underlying media resources. Idempotent.
	Close()

	// AddLocalMedia attaches every track of the stream to the connection.
	AddLocalMedia(MediaStream) error
	// SetLocalEnabled pauses or resumes the sender for one kind without an
	// offer/answer cycle.
	SetLocalEnabled(kind TrackKind, enabled bool) error

	// CreateAndSetOffer produces the local offer and sets it as the local
	// description. Candidates trickle via OnICECandidate.
	CreateAndSetOffer() (*webrtc.SessionDescription, error)
	// CreateAndSetAnswer produces an answer for a previously applied remote
	// offer and sets it as the local description.
	CreateAndSetAnswer() (*webrtc.SessionDescription, error)
	SetRemoteDescription(webrtc.SessionDescription) error
	HasRemoteDescription() bool

	// AddICECandidate applies a remote ICE candidate. Callers must not call
	// it before the remote description is set.
	AddICECandidate(webrtc.ICECandidateInit) error
	// OnICECandidate sets a callback for newly gathered local candidates.
	OnICECandidate(func(webrtc.ICECandidateInit))
	// OnRemoteTrack sets a callback invoked when a peer track arrives.
	OnRemoteTrack(func(RemoteTrack))
}

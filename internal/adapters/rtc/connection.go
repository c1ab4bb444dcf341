// Package rtc wraps a pion PeerConnection as core.MediaConnection for the
// client side of one call.
package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/arlev/tether/internal/core"
	"github.com/arlev/tether/internal/domain"
)

var ErrTrackNotAttachable = errors.New("media track has no local pion track")

type PeerConnection struct {
	pc     *webrtc.PeerConnection
	peer   domain.UserID
	cancel context.CancelFunc

	onICE    func(webrtc.ICECandidateInit)
	onRemote func(core.RemoteTrack)

	mu      sync.Mutex
	closed  bool
	senders map[core.TrackKind]*webrtc.RTPSender
	locals  map[core.TrackKind]webrtc.TrackLocal
}

// Configuration builds the pion config for the given ICE server URLs.
func Configuration(iceServers []string) webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: iceServers},
		},
	}
}

// New creates a client peer connection toward peer. api carries the media
// engine matching the capture codecs; pass nil for pion's defaults.
func New(api *webrtc.API, cfg webrtc.Configuration, peer domain.UserID) (*PeerConnection, error) {
	var (
		pc  *webrtc.PeerConnection
		err error
	)
	if api != nil {
		pc, err = api.NewPeerConnection(cfg)
	} else {
		pc, err = webrtc.NewPeerConnection(cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	return &PeerConnection{
		pc:      pc,
		peer:    peer,
		senders: make(map[core.TrackKind]*webrtc.RTPSender),
		locals:  make(map[core.TrackKind]webrtc.TrackLocal),
	}, nil
}

func (c *PeerConnection) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "adapters.rtc").Str("peer", string(c.peer)).Str("ice_state", s.String()).Msg("ICE state")
		if s == webrtc.ICEConnectionStateFailed ||
			s == webrtc.ICEConnectionStateClosed {
			cancel()
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil && c.onICE != nil {
			c.onICE(cand.ToJSON())
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "adapters.rtc").
			Str("peer", string(c.peer)).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Msg("remote track")
		if c.onRemote != nil {
			c.onRemote(remoteTrack{t: track})
		}
	})

	return nil
}

func (c *PeerConnection) AddLocalMedia(stream core.MediaStream) error {
	for _, t := range stream.Tracks() {
		provider, ok := t.(core.LocalTrackProvider)
		if !ok {
			return fmt.Errorf("%w: %s", ErrTrackNotAttachable, t.ID())
		}
		local := provider.LocalTrack()
		sender, err := c.pc.AddTrack(local)
		if err != nil {
			return fmt.Errorf("add track %s: %w", t.ID(), err)
		}
		c.mu.Lock()
		c.senders[t.Kind()] = sender
		c.locals[t.Kind()] = local
		c.mu.Unlock()
	}
	return nil
}

// SetLocalEnabled pauses or resumes the sender of one kind via
// ReplaceTrack, so mute needs no renegotiation.
func (c *PeerConnection) SetLocalEnabled(kind core.TrackKind, enabled bool) error {
	c.mu.Lock()
	sender, ok := c.senders[kind]
	local := c.locals[kind]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("no %s sender", kind)
	}
	if enabled {
		return sender.ReplaceTrack(local)
	}
	return sender.ReplaceTrack(nil)
}

func (c *PeerConnection) CreateAndSetOffer() (*webrtc.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("create offer: %w", err)
	}
	// Candidates trickle through OnICECandidate; no gathering wait here.
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("set local offer: %w", err)
	}
	return &offer, nil
}

func (c *PeerConnection) CreateAndSetAnswer() (*webrtc.SessionDescription, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("create answer: %w", err)
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("set local answer: %w", err)
	}
	return &answer, nil
}

func (c *PeerConnection) SetRemoteDescription(sd webrtc.SessionDescription) error {
	if err := c.pc.SetRemoteDescription(sd); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

func (c *PeerConnection) HasRemoteDescription() bool {
	return c.pc.RemoteDescription() != nil
}

func (c *PeerConnection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

func (c *PeerConnection) OnICECandidate(fn func(webrtc.ICECandidateInit)) { c.onICE = fn }

func (c *PeerConnection) OnRemoteTrack(fn func(core.RemoteTrack)) { c.onRemote = fn }

func (c *PeerConnection) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	if err := c.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "adapters.rtc").Str("peer", string(c.peer)).Msg("close error")
	} else {
		log.Info().Str("module", "adapters.rtc").Str("peer", string(c.peer)).Msg("closed")
	}
}

type remoteTrack struct {
	t *webrtc.TrackRemote
}

func (r remoteTrack) ID() string { return r.t.ID() }

func (r remoteTrack) Kind() core.TrackKind {
	if r.t.Kind() == webrtc.RTPCodecTypeVideo {
		return core.TrackVideo
	}
	return core.TrackAudio
}

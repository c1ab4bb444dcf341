// Package media implements core.MediaDevice over pion/mediadevices.
// Capture drivers exist for Linux (V4L2 camera, malgo microphone); other
// platforms get a device that always fails acquisition.
package media

import (
	"sync"

	"github.com/pion/mediadevices"
	"github.com/pion/webrtc/v4"

	"github.com/arlev/tether/internal/core"
)

// Track wraps one mediadevices capture track. SetEnabled records the flag
// only; the rtc adapter pauses the matching RTP sender.
type Track struct {
	t mediadevices.Track

	mu      sync.Mutex
	enabled bool
	stopped bool
}

func newTrack(t mediadevices.Track) *Track {
	return &Track{t: t, enabled: true}
}

func (t *Track) ID() string { return t.t.ID() }

func (t *Track) Kind() core.TrackKind {
	if t.t.Kind() == webrtc.RTPCodecTypeVideo {
		return core.TrackVideo
	}
	return core.TrackAudio
}

func (t *Track) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *Track) SetEnabled(on bool) {
	t.mu.Lock()
	t.enabled = on
	t.mu.Unlock()
}

func (t *Track) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	t.mu.Unlock()
	_ = t.t.Close()
}

// Stopped reports whether the OS capture has been released.
func (t *Track) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

func (t *Track) LocalTrack() webrtc.TrackLocal { return t.t }

// Stream groups the tracks of one GetUserMedia call.
type Stream struct {
	tracks []core.MediaTrack
}

func NewStream(tracks []core.MediaTrack) *Stream { return &Stream{tracks: tracks} }

func (s *Stream) Tracks() []core.MediaTrack { return s.tracks }

func (s *Stream) TracksByKind(kind core.TrackKind) []core.MediaTrack {
	var out []core.MediaTrack
	for _, t := range s.tracks {
		if t.Kind() == kind {
			out = append(out, t)
		}
	}
	return out
}

func (s *Stream) StopAll() {
	for _, t := range s.tracks {
		t.Stop()
	}
}

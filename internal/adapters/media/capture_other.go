//go:build !linux || !cgo

package media

import (
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/arlev/tether/internal/core"
)

// Device has no capture drivers on this platform; acquisition always fails
// and call setup aborts before any signaling, per the media failure
// semantics.
type Device struct{}

func NewDevice() (*Device, error) { return &Device{}, nil }

func (d *Device) API() (*webrtc.API, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	return webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine)), nil
}

func (d *Device) GetUserMedia(video, audio bool) (core.MediaStream, error) {
	return nil, fmt.Errorf("%w: no capture driver on this platform", core.ErrMediaAcquisition)
}

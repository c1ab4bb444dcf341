//go:build linux && cgo

package media

import (
	"fmt"

	"github.com/pion/interceptor"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/arlev/tether/internal/core"
)

// Device captures camera and microphone via V4L2 and malgo.
type Device struct {
	selector *mediadevices.CodecSelector
}

func NewDevice() (*Device, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("vp8 params: %w", err)
	}
	vpxParams.BitRate = 1_500_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("opus params: %w", err)
	}

	selector := mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	)
	return &Device{selector: selector}, nil
}

// API builds a webrtc API whose media engine matches the capture codecs.
// Peer connections carrying this device's tracks must come from it.
func (d *Device) API() (*webrtc.API, error) {
	mediaEngine := &webrtc.MediaEngine{}
	d.selector.Populate(mediaEngine)

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}
	return webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
	), nil
}

func (d *Device) GetUserMedia(video, audio bool) (core.MediaStream, error) {
	constraints := mediadevices.MediaStreamConstraints{Codec: d.selector}
	if video {
		constraints.Video = func(c *mediadevices.MediaTrackConstraints) {
			// Raw formats only: some cameras expose an MJPEG node producing
			// malformed frames that poison the VP8 encoder.
			c.FrameFormat = prop.FrameFormatOneOf{
				frame.FormatYUYV,
				frame.FormatI420,
				frame.FormatI444,
				frame.FormatRGBA,
			}
			c.Width = prop.IntRanged{Max: 640}
			c.Height = prop.IntRanged{Max: 480}
		}
	}
	if audio {
		constraints.Audio = func(_ *mediadevices.MediaTrackConstraints) {}
	}

	stream, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrMediaAcquisition, err)
	}

	raw := stream.GetTracks()
	tracks := make([]core.MediaTrack, 0, len(raw))
	for _, t := range raw {
		t.OnEnded(func(err error) {
			if err != nil {
				log.Warn().Err(err).Str("module", "adapters.media").Msg("local track ended")
			}
		})
		tracks = append(tracks, newTrack(t))
	}
	log.Info().Str("module", "adapters.media").Int("tracks", len(tracks)).Msg("local media captured")
	return NewStream(tracks), nil
}

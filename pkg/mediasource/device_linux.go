//go:build linux

package mediasource

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"
)

// DeviceSource captures the local camera and microphone through
// pion/mediadevices, encoding VP8 video and Opus audio.
type DeviceSource struct {
	width   int
	height  int
	bitrate int
	logger  *zap.Logger
}

func NewDeviceSource(logger *zap.Logger) *DeviceSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeviceSource{
		width:   640,
		height:  480,
		bitrate: 1_000_000,
		logger:  logger.Named("mediasource.device"),
	}
}

func (s *DeviceSource) Acquire(ctx context.Context) (*Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	devices := mediadevices.EnumerateDevices()
	if len(devices) == 0 {
		return nil, ErrNoDevice
	}
	for _, d := range devices {
		s.logger.Debug("media device", zap.Any("kind", d.Kind), zap.String("label", d.Label))
	}

	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("vp8 encoder: %w", err)
	}
	vpxParams.BitRate = s.bitrate

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("opus encoder: %w", err)
	}

	codecSelector := mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	)

	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			c.FrameFormat = prop.FrameFormatOneOf{frame.FormatYUYV, frame.FormatI420, frame.FormatNV21}
			c.Width = prop.Int(s.width)
			c.Height = prop.Int(s.height)
		},
		Audio: func(_ *mediadevices.MediaTrackConstraints) {},
		Codec: codecSelector,
	})
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
	}

	tracks := stream.GetTracks()
	var audio, video []webrtc.TrackLocal
	for _, track := range tracks {
		track.OnEnded(func(err error) {
			if err != nil {
				s.logger.Warn("local track ended", zap.String("track", track.ID()), zap.Error(err))
			}
		})
		if track.Kind() == webrtc.RTPCodecTypeAudio {
			audio = append(audio, track)
		} else {
			video = append(video, track)
		}
	}

	s.logger.Info("local media captured", zap.Int("audio", len(audio)), zap.Int("video", len(video)))

	stop := func() error {
		var err error
		for _, track := range tracks {
			if e := track.Close(); e != nil {
				err = e
			}
		}
		return err
	}

	return NewCapture(audio, video, stop), nil
}

package mediasource

import (
	"errors"

	"github.com/pion/webrtc/v4"
)

type TrackOption = func(*Track) error

func WithVP8Track(clockrate uint32) TrackOption {
	return func(track *Track) error {
		if track.codecCapability != nil {
			return errors.New("multiple codecs are not supported on a single track")
		}
		track.codecCapability = &webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeVP8,
			ClockRate: clockrate,
		}
		return nil
	}
}

func WithOpusTrack(samplerate uint32, channelLayout uint16) TrackOption {
	return func(track *Track) error {
		if track.codecCapability != nil {
			return errors.New("multiple codecs are not supported on a single track")
		}
		track.codecCapability = &webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeOpus,
			ClockRate: samplerate,
			Channels:  channelLayout,
		}
		return nil
	}
}

func WithStreamID(id string) TrackOption {
	return func(track *Track) error {
		track.streamID = id
		return nil
	}
}

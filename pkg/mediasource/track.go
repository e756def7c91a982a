package mediasource

import (
	"errors"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

// Track is a sample-fed local track.
type Track struct {
	codecCapability *webrtc.RTPCodecCapability
	streamID        string
	local           *webrtc.TrackLocalStaticSample
}

func CreateTrack(label string, options ...TrackOption) (*Track, error) {
	track := &Track{streamID: "call"}

	for _, option := range options {
		if err := option(track); err != nil {
			return nil, err
		}
	}

	if track.codecCapability == nil {
		return nil, errors.New("no track capabilities given")
	}

	local, err := webrtc.NewTrackLocalStaticSample(*track.codecCapability, label, track.streamID)
	if err != nil {
		return nil, err
	}
	track.local = local

	return track, nil
}

func (track *Track) Kind() webrtc.RTPCodecType {
	return track.local.Kind()
}

func (track *Track) TrackLocal() webrtc.TrackLocal {
	return track.local
}

func (track *Track) WriteSample(sample media.Sample) error {
	return track.local.WriteSample(sample)
}

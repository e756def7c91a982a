package mediasource

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"go.uber.org/zap/zaptest"
	"go.viam.com/test"
)

func TestCaptureCloseOnce(t *testing.T) {
	calls := 0
	failure := errors.New("device busy")
	capture := NewCapture(nil, nil,
		func() error { calls++; return nil },
		nil,
		func() error { calls++; return failure },
	)

	err := capture.Close()
	test.That(t, errors.Is(err, failure), test.ShouldBeTrue)
	test.That(t, capture.Close(), test.ShouldEqual, err)
	test.That(t, calls, test.ShouldEqual, 2)
	test.That(t, capture.Tracks(), test.ShouldBeEmpty)
}

func TestSyntheticSource(t *testing.T) {
	source := NewSyntheticSource(zaptest.NewLogger(t))

	capture, err := source.Acquire(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, source.Acquired(), test.ShouldEqual, 1)
	test.That(t, capture.AudioTracks(), test.ShouldHaveLength, 1)
	test.That(t, capture.VideoTracks(), test.ShouldBeEmpty)

	track := capture.AudioTracks()[0]
	test.That(t, track.Kind(), test.ShouldEqual, webrtc.RTPCodecTypeAudio)
	test.That(t, track.ID(), test.ShouldEqual, "audio")

	// let the feeder write a few frames into the unbound track
	time.Sleep(3 * opusFrameDuration)
	test.That(t, capture.Close(), test.ShouldBeNil)
	test.That(t, capture.Close(), test.ShouldBeNil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = source.Acquire(ctx)
	test.That(t, err, test.ShouldBeError, context.Canceled)
	test.That(t, source.Acquired(), test.ShouldEqual, 1)
}

func TestSourceFunc(t *testing.T) {
	source := SourceFunc(func(context.Context) (*Capture, error) {
		return nil, ErrPermissionDenied
	})
	_, err := source.Acquire(context.Background())
	test.That(t, err, test.ShouldBeError, ErrPermissionDenied)
}

func TestCreateTrack(t *testing.T) {
	_, err := CreateTrack("none")
	test.That(t, err, test.ShouldNotBeNil)

	_, err = CreateTrack("both", WithVP8Track(90000), WithOpusTrack(48000, 2))
	test.That(t, err, test.ShouldNotBeNil)

	track, err := CreateTrack("video", WithVP8Track(90000), WithStreamID("stream"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, track.Kind(), test.ShouldEqual, webrtc.RTPCodecTypeVideo)
	test.That(t, track.TrackLocal().StreamID(), test.ShouldEqual, "stream")
}

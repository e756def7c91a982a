// Package mediasource acquires local camera and microphone tracks for a call.
package mediasource

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
	"go.uber.org/multierr"
)

var (
	ErrPermissionDenied = errors.New("permission to capture media was denied")
	ErrNoDevice         = errors.New("no capture device available")
)

// Source acquires local media on demand. Acquire fails when permission is
// denied or no device exists; it is never retried by the caller.
type Source interface {
	Acquire(ctx context.Context) (*Capture, error)
}

type SourceFunc func(ctx context.Context) (*Capture, error)

func (f SourceFunc) Acquire(ctx context.Context) (*Capture, error) {
	return f(ctx)
}

// Capture is the handle to one acquisition. Close stops every track and is
// safe to call more than once.
type Capture struct {
	audio []webrtc.TrackLocal
	video []webrtc.TrackLocal
	stops []func() error

	once sync.Once
	err  error
}

func NewCapture(audio, video []webrtc.TrackLocal, stops ...func() error) *Capture {
	return &Capture{
		audio: audio,
		video: video,
		stops: stops,
	}
}

func (c *Capture) AudioTracks() []webrtc.TrackLocal {
	return c.audio
}

func (c *Capture) VideoTracks() []webrtc.TrackLocal {
	return c.video
}

func (c *Capture) Tracks() []webrtc.TrackLocal {
	tracks := make([]webrtc.TrackLocal, 0, len(c.audio)+len(c.video))
	tracks = append(tracks, c.audio...)
	return append(tracks, c.video...)
}

func (c *Capture) Close() error {
	c.once.Do(func() {
		for _, stop := range c.stops {
			if stop == nil {
				continue
			}
			c.err = multierr.Append(c.err, stop())
		}
	})
	return c.err
}

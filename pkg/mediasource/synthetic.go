package mediasource

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"go.uber.org/zap"
)

// opusSilence is a single 20 ms Opus frame of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

const opusFrameDuration = 20 * time.Millisecond

// SyntheticSource captures no device. Each acquisition yields one Opus track
// fed with silence, which is enough to carry a call headless.
type SyntheticSource struct {
	clock  clock.Clock
	logger *zap.Logger

	mux      sync.Mutex
	acquired int
}

func NewSyntheticSource(logger *zap.Logger) *SyntheticSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyntheticSource{clock: clock.New(), logger: logger.Named("mediasource.synthetic")}
}

func (s *SyntheticSource) Acquire(ctx context.Context) (*Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mux.Lock()
	s.acquired++
	s.mux.Unlock()

	track, err := CreateTrack("audio", WithOpusTrack(48000, 2))
	if err != nil {
		return nil, err
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.feed(track, done)
	}()

	stop := func() error {
		close(done)
		wg.Wait()
		s.logger.Debug("synthetic capture stopped")
		return nil
	}

	return NewCapture([]webrtc.TrackLocal{track.TrackLocal()}, nil, stop), nil
}

// Acquired reports how many captures were handed out.
func (s *SyntheticSource) Acquired() int {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.acquired
}

func (s *SyntheticSource) feed(track *Track, done <-chan struct{}) {
	ticker := s.clock.Ticker(opusFrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := track.WriteSample(media.Sample{Data: opusSilence, Duration: opusFrameDuration}); err != nil {
				s.logger.Debug("failed to write synthetic sample", zap.Error(err))
			}
		}
	}
}

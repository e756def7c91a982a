// Package mediasink consumes the remote tracks of a call.
package mediasink

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"
)

type Sink struct {
	id         string
	kind       webrtc.RTPCodecType
	remote     *webrtc.TrackRemote
	receiver   *webrtc.RTPReceiver
	levelExtID uint8
	meter      *LevelMeter
	packets    atomic.Uint64
	logger     *zap.Logger
	ctx        context.Context
}

func (s *Sink) ID() string {
	return s.id
}

func (s *Sink) Kind() webrtc.RTPCodecType {
	return s.kind
}

func (s *Sink) Packets() uint64 {
	return s.packets.Load()
}

func (s *Sink) rtpLoop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		packet, _, err := s.remote.ReadRTP()
		if err != nil {
			s.logger.Debug("remote track stopped", zap.Error(err))
			return
		}
		s.packets.Add(1)

		if s.kind == webrtc.RTPCodecTypeAudio {
			s.observe(packet)
		}
	}
}

func (s *Sink) observe(packet *rtp.Packet) {
	if s.levelExtID != 0 {
		if raw := packet.GetExtension(s.levelExtID); raw != nil {
			var ext rtp.AudioLevelExtension
			if err := ext.Unmarshal(raw); err == nil {
				s.meter.ObserveDBov(ext.Level)
				return
			}
		}
	}
	s.meter.ObservePayload(len(packet.Payload))
}

func (s *Sink) rtcpLoop() {
	// the receiver must be drained for interceptors to process RTCP
	buf := make([]byte, 1500)
	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		if _, _, err := s.receiver.Read(buf); err != nil {
			return
		}
	}
}

// Sinks owns every remote track of one peer connection.
type Sinks struct {
	sinks  map[string]*Sink
	meter  *LevelMeter
	logger *zap.Logger
	mux    sync.RWMutex
	ctx    context.Context
}

func CreateSinks(ctx context.Context, logger *zap.Logger) *Sinks {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sinks{
		sinks:  make(map[string]*Sink),
		meter:  NewLevelMeter(),
		logger: logger.Named("mediasink"),
		ctx:    ctx,
	}
}

// Attach starts consuming remote. It returns the existing sink when the track
// was already attached.
func (s *Sinks) Attach(remote *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) *Sink {
	s.mux.Lock()
	defer s.mux.Unlock()

	id := remote.ID()
	if sink, exists := s.sinks[id]; exists {
		return sink
	}

	sink := &Sink{
		id:         id,
		kind:       remote.Kind(),
		remote:     remote,
		receiver:   receiver,
		levelExtID: audioLevelExtensionID(receiver),
		meter:      s.meter,
		logger:     s.logger.With(zap.String("track", id), zap.Stringer("kind", remote.Kind())),
		ctx:        s.ctx,
	}
	s.sinks[id] = sink

	go sink.rtpLoop()
	go sink.rtcpLoop()

	sink.logger.Info("remote track attached", zap.String("codec", remote.Codec().MimeType))
	return sink
}

func (s *Sinks) GetSink(id string) (*Sink, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()

	sink, exists := s.sinks[id]
	if !exists {
		return nil, fmt.Errorf("no sink for track with id %s", id)
	}

	return sink, nil
}

func (s *Sinks) Sinks() iter.Seq2[string, *Sink] {
	return func(yield func(string, *Sink) bool) {
		s.mux.RLock()
		defer s.mux.RUnlock()

		for id, sink := range s.sinks {
			if !yield(id, sink) {
				return
			}
		}
	}
}

// Level is the smoothed level of the inbound audio.
func (s *Sinks) Level() float64 {
	return s.meter.Level()
}

func audioLevelExtensionID(receiver *webrtc.RTPReceiver) uint8 {
	if receiver == nil {
		return 0
	}
	for _, ext := range receiver.GetParameters().HeaderExtensions {
		if ext.URI == sdp.AudioLevelURI {
			return uint8(ext.ID)
		}
	}
	return 0
}

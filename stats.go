package call

import (
	"errors"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"
)

// Stat is a snapshot of the transport and inbound media statistics of one
// peer connection.
type Stat struct {
	ICECandidatePairStat webrtc.ICECandidatePairStats            `json:"ice_candidate_pair_stat"`
	ICETransportStat     webrtc.TransportStats                   `json:"ice_transport_stat"`
	InboundRTPStats      map[string]webrtc.InboundRTPStreamStats  `json:"inbound_rtp_stats"`
	OutboundRTPStats     map[string]webrtc.OutboundRTPStreamStats `json:"outbound_rtp_stats"`
	CodecStats           map[string]webrtc.CodecStats            `json:"codec_stats"`
}

// RoundTripTime is the current RTT of the selected candidate pair.
func (s Stat) RoundTripTime() time.Duration {
	return time.Duration(s.ICECandidatePairStat.CurrentRoundTripTime * float64(time.Second))
}

func (s Stat) BytesReceived() uint64 {
	var total uint64
	for _, in := range s.InboundRTPStats {
		total += in.BytesReceived
	}
	return total
}

func (s Stat) PacketsReceived() uint64 {
	var total uint64
	for _, in := range s.InboundRTPStats {
		total += uint64(in.PacketsReceived)
	}
	return total
}

func (s Stat) PacketsLost() int64 {
	var total int64
	for _, in := range s.InboundRTPStats {
		total += int64(in.PacketsLost)
	}
	return total
}

// Jitter of the inbound audio stream, in seconds.
func (s Stat) Jitter() float64 {
	for _, in := range s.InboundRTPStats {
		if in.Kind == webrtc.RTPCodecTypeAudio.String() {
			return in.Jitter
		}
	}
	return 0
}

var errStatUnmanaged = errors.New("stat type is not managed")

type stat struct {
	*Stat
	logger *zap.Logger
	mux    sync.RWMutex
}

func newStat(logger *zap.Logger) *stat {
	return &stat{
		logger: logger,
		Stat: &Stat{
			InboundRTPStats:  make(map[string]webrtc.InboundRTPStreamStats),
			OutboundRTPStats: make(map[string]webrtc.OutboundRTPStreamStats),
			CodecStats:       make(map[string]webrtc.CodecStats),
		},
	}
}

func (s *stat) Consume(stats webrtc.Stats) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	switch stat := stats.(type) {
	case webrtc.ICECandidatePairStats:
		// keep the nominated pair once there is one
		if stat.Nominated || !s.ICECandidatePairStat.Nominated {
			s.ICECandidatePairStat = stat
		}
		return nil

	case webrtc.InboundRTPStreamStats:
		s.InboundRTPStats[stat.Kind] = stat
		return nil

	case webrtc.OutboundRTPStreamStats:
		s.OutboundRTPStats[stat.Kind] = stat
		return nil

	case webrtc.TransportStats:
		s.ICETransportStat = stat
		return nil

	case webrtc.CodecStats:
		s.CodecStats[stat.ID] = stat
		return nil

	default:
		return errStatUnmanaged
	}
}

func (s *stat) ConsumeReport(report webrtc.StatsReport) {
	for _, st := range report {
		if err := s.Consume(st); err != nil && !errors.Is(err, errStatUnmanaged) {
			s.logger.Debug("error while gathering stats", zap.Error(err))
		}
	}
}

func (s *stat) Generate() Stat {
	s.mux.RLock()
	defer s.mux.RUnlock()

	inboundCopy := make(map[string]webrtc.InboundRTPStreamStats, len(s.InboundRTPStats))
	for k, v := range s.InboundRTPStats {
		inboundCopy[k] = v
	}

	outboundCopy := make(map[string]webrtc.OutboundRTPStreamStats, len(s.OutboundRTPStats))
	for k, v := range s.OutboundRTPStats {
		outboundCopy[k] = v
	}

	codecCopy := make(map[string]webrtc.CodecStats, len(s.CodecStats))
	for k, v := range s.CodecStats {
		codecCopy[k] = v
	}

	return Stat{
		ICECandidatePairStat: s.ICECandidatePairStat,
		ICETransportStat:     s.ICETransportStat,
		InboundRTPStats:      inboundCopy,
		OutboundRTPStats:     outboundCopy,
		CodecStats:           codecCopy,
	}
}

package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pion/webrtc/v4"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/campuscupid/call/pkg/mediasink"
	"github.com/campuscupid/call/pkg/mediasource"
)

// PeerConnection is the pion backed Peer of one call attempt.
type PeerConnection struct {
	label          string
	peerConnection *webrtc.PeerConnection
	events         PeerEvents

	sinks   *mediasink.Sinks
	senders []*webrtc.RTPSender
	stat    *stat
	logger  *zap.Logger

	mux    sync.Mutex
	once   sync.Once
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func CreatePeerConnection(ctx context.Context, label string, api *webrtc.API, config webrtc.Configuration, events PeerEvents, statsInterval time.Duration, clk clock.Clock, logger *zap.Logger) (*PeerConnection, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.New()
	}

	peerConnection, err := api.NewPeerConnection(config)
	if err != nil {
		return nil, err
	}

	ctx2, cancel2 := context.WithCancel(ctx)

	pc := &PeerConnection{
		label:          label,
		peerConnection: peerConnection,
		events:         events,
		logger:         logger.Named("peerconnection").With(zap.String("label", label)),
		ctx:            ctx2,
		cancel:         cancel2,
	}
	pc.sinks = mediasink.CreateSinks(ctx2, pc.logger)
	pc.stat = newStat(pc.logger)

	pc.onConnectionStateChangeEvent().
		onICEConnectionStateChange().
		onICEGatheringStateChange().
		onSignalingStateChange().
		onICECandidate().
		onTrack()

	if statsInterval > 0 {
		pc.wg.Add(1)
		go pc.statsLoop(clk.Ticker(statsInterval))
	}

	return pc, nil
}

func (pc *PeerConnection) GetLabel() string {
	return pc.label
}

func (pc *PeerConnection) GetPeerConnection() *webrtc.PeerConnection {
	return pc.peerConnection
}

func (pc *PeerConnection) Done() <-chan struct{} {
	return pc.ctx.Done()
}

func (pc *PeerConnection) onConnectionStateChangeEvent() *PeerConnection {
	pc.peerConnection.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		pc.logger.Info("peer connection state changed", zap.Stringer("state", state))
		if pc.events.OnConnectionStateChange != nil {
			pc.events.OnConnectionStateChange(state)
		}
	})
	return pc
}

func (pc *PeerConnection) onICEConnectionStateChange() *PeerConnection {
	pc.peerConnection.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		pc.logger.Info("ICE connection state changed", zap.Stringer("state", state))
		if pc.events.OnICEConnectionStateChange != nil {
			pc.events.OnICEConnectionStateChange(state)
		}
	})
	return pc
}

func (pc *PeerConnection) onICEGatheringStateChange() *PeerConnection {
	pc.peerConnection.OnICEGatheringStateChange(func(state webrtc.ICEGatheringState) {
		pc.logger.Debug("ICE gathering state changed", zap.Stringer("state", state))
	})
	return pc
}

func (pc *PeerConnection) onSignalingStateChange() *PeerConnection {
	pc.peerConnection.OnSignalingStateChange(func(state webrtc.SignalingState) {
		pc.logger.Debug("signaling state changed", zap.Stringer("state", state))
		if pc.events.OnSignalingStateChange != nil {
			pc.events.OnSignalingStateChange(state)
		}
	})
	return pc
}

func (pc *PeerConnection) onICECandidate() *PeerConnection {
	pc.peerConnection.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			pc.logger.Debug("ICE gathering complete")
			return
		}

		pc.logger.Debug("found local candidate", zap.String("candidate", candidate.String()))
		if pc.events.OnICECandidate != nil {
			pc.events.OnICECandidate(candidate.ToJSON())
		}
	})
	return pc
}

func (pc *PeerConnection) onTrack() *PeerConnection {
	pc.peerConnection.OnTrack(func(remote *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		sink := pc.sinks.Attach(remote, receiver)
		if pc.events.OnRemoteTrack != nil {
			pc.events.OnRemoteTrack(sink.Kind(), sink.ID())
		}
	})
	return pc
}

func (pc *PeerConnection) CreateOffer() (webrtc.SessionDescription, error) {
	return pc.peerConnection.CreateOffer(nil)
}

func (pc *PeerConnection) CreateAnswer() (webrtc.SessionDescription, error) {
	return pc.peerConnection.CreateAnswer(nil)
}

func (pc *PeerConnection) SetLocalDescription(description webrtc.SessionDescription) error {
	return pc.peerConnection.SetLocalDescription(description)
}

func (pc *PeerConnection) SetRemoteDescription(description webrtc.SessionDescription) error {
	return pc.peerConnection.SetRemoteDescription(description)
}

func (pc *PeerConnection) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return pc.peerConnection.AddICECandidate(candidate)
}

func (pc *PeerConnection) SignalingState() webrtc.SignalingState {
	return pc.peerConnection.SignalingState()
}

func (pc *PeerConnection) HasLocalDescription() bool {
	return pc.peerConnection.LocalDescription() != nil
}

func (pc *PeerConnection) HasRemoteDescription() bool {
	return pc.peerConnection.RemoteDescription() != nil
}

// AddLocalMedia adds every captured track to the connection.
func (pc *PeerConnection) AddLocalMedia(capture *mediasource.Capture) error {
	if capture == nil {
		return errors.New("no capture given")
	}
	if pc.peerConnection.ConnectionState() == webrtc.PeerConnectionStateClosed {
		return errors.New("could not add media track: connection is closed")
	}

	pc.mux.Lock()
	defer pc.mux.Unlock()

	for _, track := range capture.Tracks() {
		sender, err := pc.peerConnection.AddTrack(track)
		if err != nil {
			return fmt.Errorf("failed to add %s track %s: %w", track.Kind(), track.ID(), err)
		}
		pc.senders = append(pc.senders, sender)

		pc.wg.Add(1)
		go pc.rtcpSenderLoop(sender)
		pc.logger.Debug("local track added", zap.String("track", track.ID()), zap.Stringer("kind", track.Kind()))
	}

	return nil
}

func (pc *PeerConnection) rtcpSenderLoop(sender *webrtc.RTPSender) {
	defer pc.wg.Done()

	// the sender must be drained for interceptors to process RTCP
	buf := make([]byte, 1500)
	for {
		select {
		case <-pc.ctx.Done():
			return
		default:
		}

		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (pc *PeerConnection) RemoteAudioLevel() float64 {
	return pc.sinks.Level()
}

func (pc *PeerConnection) Stats() Stat {
	return pc.stat.Generate()
}

func (pc *PeerConnection) statsLoop(ticker *clock.Ticker) {
	defer pc.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-pc.ctx.Done():
			return
		case <-ticker.C:
			pc.stat.ConsumeReport(pc.peerConnection.GetStats())
		}
	}
}

func (pc *PeerConnection) Close() error {
	var merr error
	pc.once.Do(func() {
		pc.logger.Debug("closing peer connection")
		if pc.cancel != nil {
			pc.cancel()
		}

		pc.mux.Lock()
		for _, sender := range pc.senders {
			if err := sender.Stop(); err != nil {
				merr = multierr.Append(merr, err)
			}
		}
		pc.mux.Unlock()

		if err := pc.peerConnection.Close(); err != nil {
			merr = multierr.Append(merr, err)
		}

		pc.wg.Wait()

		if merr == nil {
			pc.logger.Info("peer connection closed")
		} else {
			pc.logger.Warn("peer connection closed with errors", zap.Error(merr))
		}
	})

	return merr
}

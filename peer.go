package call

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/campuscupid/call/pkg/mediasource"
)

// Peer is the negotiation surface the engine drives. PeerConnection is the
// pion implementation.
type Peer interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error

	SignalingState() webrtc.SignalingState
	HasLocalDescription() bool
	HasRemoteDescription() bool

	AddLocalMedia(*mediasource.Capture) error

	RemoteAudioLevel() float64
	Stats() Stat

	Close() error
}

// PeerEvents are invoked from arbitrary goroutines.
type PeerEvents struct {
	OnICECandidate             func(webrtc.ICECandidateInit)
	OnRemoteTrack              func(kind webrtc.RTPCodecType, id string)
	OnICEConnectionStateChange func(webrtc.ICEConnectionState)
	OnConnectionStateChange    func(webrtc.PeerConnectionState)
	OnSignalingStateChange     func(webrtc.SignalingState)
}

// PeerFactory builds the Peer of one call attempt.
type PeerFactory func(ctx context.Context, label string, events PeerEvents) (Peer, error)

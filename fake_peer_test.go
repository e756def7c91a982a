package call

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/campuscupid/call/pkg/mediasource"
)

const testSDP = "v=0\r\n" +
	"o=- 4215775240449105457 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=rtpmap:111 opus/48000/2\r\n"

// fakePeer mimics the description rules of a peer connection without any
// transport.
type fakePeer struct {
	events PeerEvents

	mux        sync.Mutex
	signaling  webrtc.SignalingState
	local      *webrtc.SessionDescription
	remote     *webrtc.SessionDescription
	offers     int
	answers    int
	remotes    int
	candidates []string
	captures   []*mediasource.Capture
	closed     bool

	rejectCandidate string
	failRemote      error
}

func (f *fakePeer) CreateOffer() (webrtc.SessionDescription, error) {
	f.mux.Lock()
	defer f.mux.Unlock()
	f.offers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: testSDP}, nil
}

func (f *fakePeer) CreateAnswer() (webrtc.SessionDescription, error) {
	f.mux.Lock()
	defer f.mux.Unlock()
	if f.signaling != webrtc.SignalingStateHaveRemoteOffer {
		return webrtc.SessionDescription{}, errors.New("no remote offer")
	}
	f.answers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: testSDP}, nil
}

func (f *fakePeer) SetLocalDescription(description webrtc.SessionDescription) error {
	f.mux.Lock()
	defer f.mux.Unlock()
	f.local = &description
	if description.Type == webrtc.SDPTypeOffer {
		f.signaling = webrtc.SignalingStateHaveLocalOffer
	} else {
		f.signaling = webrtc.SignalingStateStable
	}
	return nil
}

func (f *fakePeer) SetRemoteDescription(description webrtc.SessionDescription) error {
	f.mux.Lock()
	defer f.mux.Unlock()
	if f.failRemote != nil {
		return f.failRemote
	}
	switch description.Type {
	case webrtc.SDPTypeOffer:
		if f.signaling != webrtc.SignalingStateStable {
			return errors.New("offer in wrong state")
		}
		f.signaling = webrtc.SignalingStateHaveRemoteOffer
	case webrtc.SDPTypeAnswer:
		if f.signaling != webrtc.SignalingStateHaveLocalOffer {
			return errors.New("answer in wrong state")
		}
		f.signaling = webrtc.SignalingStateStable
	}
	f.remote = &description
	f.remotes++
	return nil
}

func (f *fakePeer) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	f.mux.Lock()
	defer f.mux.Unlock()
	if f.remote == nil {
		return errors.New("remote description is not set")
	}
	if candidate.Candidate == f.rejectCandidate {
		return errors.New("bad candidate")
	}
	f.candidates = append(f.candidates, candidate.Candidate)
	return nil
}

func (f *fakePeer) SignalingState() webrtc.SignalingState {
	f.mux.Lock()
	defer f.mux.Unlock()
	return f.signaling
}

func (f *fakePeer) HasLocalDescription() bool {
	f.mux.Lock()
	defer f.mux.Unlock()
	return f.local != nil
}

func (f *fakePeer) HasRemoteDescription() bool {
	f.mux.Lock()
	defer f.mux.Unlock()
	return f.remote != nil
}

func (f *fakePeer) AddLocalMedia(capture *mediasource.Capture) error {
	f.mux.Lock()
	defer f.mux.Unlock()
	f.captures = append(f.captures, capture)
	return nil
}

func (f *fakePeer) RemoteAudioLevel() float64 {
	return 0.5
}

func (f *fakePeer) Stats() Stat {
	return Stat{}
}

func (f *fakePeer) Close() error {
	f.mux.Lock()
	defer f.mux.Unlock()
	f.closed = true
	return nil
}

func (f *fakePeer) emitCandidate(candidate string) {
	f.events.OnICECandidate(webrtc.ICECandidateInit{Candidate: candidate})
}

func (f *fakePeer) emitTrack() {
	f.events.OnRemoteTrack(webrtc.RTPCodecTypeAudio, "audio")
}

func (f *fakePeer) appliedCandidates() []string {
	f.mux.Lock()
	defer f.mux.Unlock()
	return append([]string(nil), f.candidates...)
}

func (f *fakePeer) counts() (offers, answers, remotes int) {
	f.mux.Lock()
	defer f.mux.Unlock()
	return f.offers, f.answers, f.remotes
}

func (f *fakePeer) isClosed() bool {
	f.mux.Lock()
	defer f.mux.Unlock()
	return f.closed
}

func (f *fakePeer) attached() int {
	f.mux.Lock()
	defer f.mux.Unlock()
	return len(f.captures)
}

type peerRecorder struct {
	mux       sync.Mutex
	peers     []*fakePeer
	configure func(*fakePeer)
}

func (r *peerRecorder) factory() PeerFactory {
	return func(_ context.Context, _ string, events PeerEvents) (Peer, error) {
		peer := &fakePeer{events: events, signaling: webrtc.SignalingStateStable}
		if r.configure != nil {
			r.configure(peer)
		}
		r.mux.Lock()
		r.peers = append(r.peers, peer)
		r.mux.Unlock()
		return peer, nil
	}
}

func (r *peerRecorder) last() *fakePeer {
	r.mux.Lock()
	defer r.mux.Unlock()
	if len(r.peers) == 0 {
		return nil
	}
	return r.peers[len(r.peers)-1]
}

// testSource hands out captures whose release is counted. With a gate, each
// acquisition blocks until the gate is closed.
type testSource struct {
	gate     chan struct{}
	err      error
	acquired atomic.Int32
	released atomic.Int32
}

func (s *testSource) Acquire(ctx context.Context) (*mediasource.Capture, error) {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
		}
	}
	s.acquired.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return mediasource.NewCapture(nil, nil, func() error {
		s.released.Add(1)
		return nil
	}), nil
}

// recordingChannel records every message handed to the wrapped channel.
type recordingChannel struct {
	SignalingChannel

	mux    sync.Mutex
	sent   []Message
	failOn MessageType
}

func (c *recordingChannel) Send(ctx context.Context, msg Message) error {
	c.mux.Lock()
	c.sent = append(c.sent, msg)
	fail := c.failOn != "" && c.failOn == msg.Type
	c.mux.Unlock()

	if fail {
		return errors.New("write rejected")
	}
	return c.SignalingChannel.Send(ctx, msg)
}

func (c *recordingChannel) messages() []Message {
	c.mux.Lock()
	defer c.mux.Unlock()
	return append([]Message(nil), c.sent...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

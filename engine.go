package call

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/campuscupid/call/pkg/mediasource"
)

const (
	eventBufferSize  = 128
	outboxBufferSize = 256
)

// Engine drives one call attempt from Start to termination. Every mutation of
// the session runs on a single event loop goroutine; pion callbacks, channel
// deliveries, timers and media results are posted to it.
type Engine struct {
	role      Role
	callID    string
	localUID  string
	sessionID string

	channel SignalingChannel
	media   mediasource.Source
	newPeer PeerFactory
	config  Config
	clock   clock.Clock
	logger  *zap.Logger

	onCallStarted  func()
	onEnd          func(Termination)
	onStateChange  func(State)
	onDurationTick func(time.Duration)

	// owned by the event loop
	peer          Peer
	capture       *mediasource.Capture
	pending       pending
	offerSent     bool
	answerCreated bool
	answerApplied bool
	hangingUp     bool
	terminal      bool
	ringTimer     *clock.Timer
	graceTimer    *clock.Timer
	ticker        *clock.Ticker
	unsubscribe   func()

	// guarded by mux for readers outside the loop
	mux         sync.RWMutex
	state       State
	startedAt   time.Time
	termination *Termination

	startMux     sync.Mutex
	started      atomic.Bool
	stoppedEarly bool

	terminated atomic.Bool
	events     chan func()
	outbox     chan Message
	done       chan struct{}
	senderDone chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewEngine(role Role, callID, localUID string, channel SignalingChannel, media mediasource.Source, newPeer PeerFactory, options ...EngineOption) (*Engine, error) {
	if channel == nil || media == nil || newPeer == nil {
		return nil, fmt.Errorf("engine for call %s needs a channel, a media source and a peer factory", callID)
	}

	e := &Engine{
		role:       role,
		callID:     callID,
		localUID:   localUID,
		sessionID:  uuid.NewString(),
		channel:    channel,
		media:      media,
		newPeer:    newPeer,
		config:     DefaultConfig(),
		clock:      clock.New(),
		logger:     zap.NewNop(),
		state:      StateIdle,
		events:     make(chan func(), eventBufferSize),
		outbox:     make(chan Message, outboxBufferSize),
		done:       make(chan struct{}),
		senderDone: make(chan struct{}),
	}

	for _, option := range options {
		if err := option(e); err != nil {
			return nil, err
		}
	}

	e.logger = e.logger.Named("engine").With(
		zap.String("call_id", callID),
		zap.Stringer("role", role),
		zap.String("session", e.sessionID),
	)

	return e, nil
}

func (e *Engine) CallID() string {
	return e.callID
}

func (e *Engine) Role() Role {
	return e.role
}

// Start creates the peer connection, subscribes to the call record, arms the
// ring timeout and begins media acquisition. It returns once the session is
// running; progress is reported through the engine callbacks.
func (e *Engine) Start(ctx context.Context) error {
	e.startMux.Lock()
	if e.started.Load() {
		stopped := e.stoppedEarly
		e.startMux.Unlock()
		if stopped {
			return ErrEngineStopped
		}
		return ErrEngineStarted
	}
	e.started.Store(true)
	e.startMux.Unlock()

	e.ctx, e.cancel = context.WithCancel(ctx)

	go e.send()

	peer, err := e.newPeer(e.ctx, fmt.Sprintf("%s-%s", e.callID, e.sessionID), e.peerEvents())
	if err != nil {
		err = fmt.Errorf("%w: failed to create peer connection: %w", ErrNegotiation, err)
		e.terminate(err, true, false)
		return err
	}
	e.mux.Lock()
	e.peer = peer
	e.mux.Unlock()

	unsubscribe, err := e.channel.Listen(func(record Record) {
		e.post(func() { e.onRecord(record) })
	})
	if err != nil {
		err = fmt.Errorf("%w: failed to subscribe to call record: %w", ErrNegotiation, err)
		e.terminate(err, true, false)
		return err
	}
	e.unsubscribe = unsubscribe

	e.setState(StateAcquiringMedia)
	e.ringTimer = e.clock.AfterFunc(e.config.RingTimeout, func() {
		e.post(func() { e.terminate(ErrRingTimeout, true, false) })
	})

	go e.run()
	go e.acquire()
	go e.watchContext()

	e.logger.Info("call attempt started")
	return nil
}

// Hangup ends the call from the local side: it sends end and terminates after
// the hangup grace delay. An engine hung up before Start terminates right away
// without signaling, and Start then fails with ErrEngineStopped.
func (e *Engine) Hangup() {
	e.startMux.Lock()
	if !e.started.Load() {
		e.started.Store(true)
		e.stoppedEarly = true
		e.startMux.Unlock()

		close(e.senderDone)
		e.terminate(ErrHangup, false, true)
		return
	}
	e.startMux.Unlock()
	e.post(e.hangup)
}

// Done is closed once the session has terminated.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Wait blocks until the session has terminated and every control message
// queued before termination has been handed to the channel.
func (e *Engine) Wait() {
	<-e.done
	<-e.senderDone
}

func (e *Engine) State() State {
	e.mux.RLock()
	defer e.mux.RUnlock()
	return e.state
}

// Termination reports how the session ended, once it has.
func (e *Engine) Termination() (Termination, bool) {
	e.mux.RLock()
	defer e.mux.RUnlock()
	if e.termination == nil {
		return Termination{}, false
	}
	return *e.termination, true
}

func (e *Engine) peerEvents() PeerEvents {
	return PeerEvents{
		OnICECandidate: func(candidate webrtc.ICECandidateInit) {
			e.post(func() { e.onLocalCandidate(candidate) })
		},
		OnRemoteTrack: func(kind webrtc.RTPCodecType, id string) {
			e.post(func() { e.onRemoteTrack(kind, id) })
		},
		OnICEConnectionStateChange: func(state webrtc.ICEConnectionState) {
			e.post(func() { e.onICEConnectionState(state) })
		},
		OnConnectionStateChange: func(state webrtc.PeerConnectionState) {
			e.post(func() { e.onConnectionState(state) })
		},
		OnSignalingStateChange: func(state webrtc.SignalingState) {
			e.post(func() { e.logger.Debug("signaling state changed", zap.Stringer("signaling", state)) })
		},
	}
}

// post hands fn to the event loop. It reports false once the session has
// terminated, in which case fn never runs.
func (e *Engine) post(fn func()) bool {
	select {
	case <-e.done:
		return false
	default:
	}

	select {
	case e.events <- fn:
		return true
	case <-e.done:
		return false
	}
}

func (e *Engine) run() {
	for {
		select {
		case <-e.done:
			return
		case fn := <-e.events:
			if e.terminal {
				continue
			}
			fn()
			if !e.terminal {
				e.evaluate()
			}
		}
	}
}

func (e *Engine) acquire() {
	capture, err := e.media.Acquire(e.ctx)
	if e.post(func() { e.onMedia(capture, err) }) {
		return
	}
	if capture != nil {
		if err := capture.Close(); err != nil {
			e.logger.Warn("failed to release late capture", zap.Error(err))
		}
	}
}

// watchContext treats cancellation of the Start context as a local hangup.
func (e *Engine) watchContext() {
	select {
	case <-e.done:
	case <-e.ctx.Done():
		e.post(func() {
			e.logger.Info("start context done", zap.Error(e.ctx.Err()))
			e.hangup()
		})
	}
}

func (e *Engine) enqueue(msg Message) {
	if e.terminal {
		return
	}
	select {
	case e.outbox <- msg:
	default:
		e.logger.Warn("outbox full, dropping message", zap.String("type", string(msg.Type)))
	}
}

// send delivers the outbox in order. After termination only control messages
// are still delivered.
func (e *Engine) send() {
	defer close(e.senderDone)

	for msg := range e.outbox {
		if e.terminated.Load() && !msg.Type.Control() {
			e.logger.Debug("dropping message after termination", zap.String("type", string(msg.Type)))
			continue
		}

		ctx, cancel := context.WithTimeout(context.WithoutCancel(e.ctx), e.config.SendTimeout)
		err := e.channel.Send(ctx, msg)
		cancel()

		if err == nil {
			continue
		}

		e.logger.Warn("failed to send signaling message", zap.String("type", string(msg.Type)), zap.Error(err))
		if msg.Type == MessageOffer || msg.Type == MessageAnswer {
			err := fmt.Errorf("%w: failed to send %s: %w", ErrNegotiation, msg.Type, err)
			go e.post(func() { e.terminate(err, true, false) })
		}
	}
}

func (e *Engine) setState(next State) bool {
	e.mux.Lock()
	prev := e.state
	if !prev.CanTransition(next) {
		e.mux.Unlock()
		e.logger.Warn("rejected illegal transition", zap.String("from", string(prev)), zap.String("to", string(next)))
		return false
	}
	e.state = next
	e.mux.Unlock()

	e.logger.Debug("state changed", zap.String("from", string(prev)), zap.String("state", string(next)))
	if e.onStateChange != nil {
		e.onStateChange(next)
	}
	return true
}

func (e *Engine) onMedia(capture *mediasource.Capture, err error) {
	// released on termination
	e.capture = capture

	if e.hangingUp || e.ctx.Err() != nil {
		e.logger.Debug("media arrived after hangup", zap.Error(err))
		e.hangup()
		return
	}
	if err != nil {
		e.terminate(fmt.Errorf("%w: %w", ErrMediaUnavailable, err), true, false)
		return
	}
	if err := e.peer.AddLocalMedia(capture); err != nil {
		e.terminate(fmt.Errorf("%w: %w", ErrMediaUnavailable, err), true, false)
		return
	}
	e.logger.Debug("local media attached", zap.Int("tracks", len(capture.Tracks())))

	switch e.role {
	case RoleCaller:
		if e.setState(StateCreatingOffer) {
			e.createOffer()
		}
	case RoleCallee:
		e.setState(StateAwaitingOffer)
	}
}

func (e *Engine) onLocalCandidate(candidate webrtc.ICECandidateInit) {
	c := CandidateFromInit(candidate)
	e.pending.sent(c)
	e.enqueue(Message{Type: MessageICE, Candidate: &c})
}

func (e *Engine) onRemoteTrack(kind webrtc.RTPCodecType, id string) {
	e.logger.Info("remote track received", zap.Stringer("kind", kind), zap.String("track", id))

	if e.State() == StateConnected {
		return
	}
	if !e.setState(StateConnected) {
		return
	}

	if e.ringTimer != nil {
		e.ringTimer.Stop()
	}

	e.mux.Lock()
	e.startedAt = e.clock.Now()
	e.mux.Unlock()

	e.ticker = e.clock.Ticker(DurationTickInterval)
	go e.tick(e.ticker)

	if e.onCallStarted != nil {
		e.onCallStarted()
	}
}

func (e *Engine) tick(ticker *clock.Ticker) {
	for {
		select {
		case <-e.done:
			return
		case <-ticker.C:
			e.post(func() {
				if e.onDurationTick != nil && e.State() == StateConnected {
					e.onDurationTick(e.duration())
				}
			})
		}
	}
}

func (e *Engine) onICEConnectionState(state webrtc.ICEConnectionState) {
	switch state {
	case webrtc.ICEConnectionStateChecking:
		if current := e.State(); current == StateAnswerSent {
			e.setState(StateNegotiatingICE)
		}
	case webrtc.ICEConnectionStateFailed, webrtc.ICEConnectionStateDisconnected:
		e.terminate(fmt.Errorf("%w: ICE connection %s", ErrConnectivity, state), true, false)
	}
}

func (e *Engine) onConnectionState(state webrtc.PeerConnectionState) {
	switch state {
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected:
		e.terminate(fmt.Errorf("%w: peer connection %s", ErrConnectivity, state), true, false)
	}
}

func (e *Engine) duration() time.Duration {
	e.mux.RLock()
	defer e.mux.RUnlock()
	if e.startedAt.IsZero() {
		return 0
	}
	return e.clock.Since(e.startedAt).Truncate(time.Second)
}

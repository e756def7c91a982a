package call

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/campuscupid/call/pkg/mediasource"
)

// Controller owns the call lifecycle of one local user: at most one active
// call attempt, at most one pending incoming call, and the ids of calls that
// must never ring again.
type Controller struct {
	localUID string
	channels ChannelFactory
	watcher  OfferWatcher
	media    mediasource.Source
	newPeer  PeerFactory
	config   Config
	clock    clock.Clock
	logger   *zap.Logger

	engineOptions []EngineOption

	onIncomingCall      func(*IncomingCall)
	onIncomingDismissed func(callID string)
	onCallStarted       func(callID string)
	onCallEnded         func(callID string, termination Termination)

	mux       sync.Mutex
	active    *Engine
	incoming  *IncomingCall
	retained  map[string]struct{}
	stopWatch func()
	closed    bool
}

func NewController(localUID string, channels ChannelFactory, media mediasource.Source, newPeer PeerFactory, options ...ControllerOption) (*Controller, error) {
	if localUID == "" {
		return nil, errors.New("local user id is required")
	}
	if channels == nil || media == nil || newPeer == nil {
		return nil, errors.New("controller needs a channel factory, a media source and a peer factory")
	}

	c := &Controller{
		localUID: localUID,
		channels: channels,
		media:    media,
		newPeer:  newPeer,
		config:   DefaultConfig(),
		clock:    clock.New(),
		logger:   zap.NewNop(),
		retained: make(map[string]struct{}),
	}

	for _, option := range options {
		if err := option(c); err != nil {
			return nil, err
		}
	}

	c.logger = c.logger.Named("controller").With(zap.String("uid", localUID))
	return c, nil
}

// Watch feeds HandleRecord from the offer watcher until ctx is done or the
// controller is closed.
func (c *Controller) Watch(ctx context.Context) error {
	if c.watcher == nil {
		return errors.New("no offer watcher configured")
	}

	c.mux.Lock()
	defer c.mux.Unlock()

	if c.closed {
		return errors.New("controller closed")
	}
	if c.stopWatch != nil {
		return errors.New("already watching")
	}

	stop, err := c.watcher.WatchCalls(ctx, c.HandleRecord)
	if err != nil {
		return err
	}
	c.stopWatch = stop
	return nil
}

// StartCall places a call: it writes the ring record and starts a caller
// engine on it.
func (c *Controller) StartCall(ctx context.Context, remoteUID string) (*Engine, error) {
	c.mux.Lock()
	if c.closed {
		c.mux.Unlock()
		return nil, errors.New("controller closed")
	}
	if c.active != nil {
		c.mux.Unlock()
		return nil, ErrCallInProgress
	}

	callID := fmt.Sprintf("%s_%d", c.localUID, c.clock.Now().UnixMilli())
	channel, err := c.channels(callID, RoleCaller)
	if err != nil {
		c.mux.Unlock()
		return nil, err
	}
	engine, err := c.newEngine(RoleCaller, callID, channel)
	if err != nil {
		c.mux.Unlock()
		return nil, err
	}
	c.active = engine
	c.mux.Unlock()

	logger := c.logger.With(zap.String("call_id", callID), zap.String("remote_uid", remoteUID))

	ring := Message{Type: MessageOffer, Offer: &Offer{CallerID: c.localUID}}
	if err := channel.Send(ctx, ring); err != nil {
		c.release(engine)
		logger.Warn("failed to write ring record", zap.Error(err))
		return nil, fmt.Errorf("%w: failed to write ring record: %w", ErrNegotiation, err)
	}

	if err := engine.Start(ctx); err != nil {
		if errors.Is(err, ErrEngineStopped) {
			// hung up while ringing was being written
			if err := channel.Send(ctx, Message{Type: MessageEnd}); err != nil {
				logger.Warn("failed to withdraw ring record", zap.Error(err))
			}
		}
		return nil, err
	}

	logger.Info("outgoing call started")
	return engine, nil
}

// HandleRecord is fed every added or modified call record of the match.
func (c *Controller) HandleRecord(callID string, record Record) {
	c.mux.Lock()

	if c.incoming != nil && c.incoming.callID == callID && record.Type.Control() {
		c.incoming = nil
		c.retained[callID] = struct{}{}
		c.mux.Unlock()

		c.logger.Info("incoming call withdrawn", zap.String("call_id", callID))
		if c.onIncomingDismissed != nil {
			c.onIncomingDismissed(callID)
		}
		return
	}

	if !c.rings(callID, record) {
		c.mux.Unlock()
		return
	}

	incoming := &IncomingCall{
		controller: c,
		callID:     callID,
		callerID:   record.Offer.CallerID,
	}
	c.incoming = incoming
	c.mux.Unlock()

	c.logger.Info("incoming call", zap.String("call_id", callID), zap.String("caller", incoming.callerID))
	if c.onIncomingCall != nil {
		c.onIncomingCall(incoming)
	}
}

// rings reports whether record should raise an incoming call. Called with
// mux held.
func (c *Controller) rings(callID string, record Record) bool {
	if c.closed || c.active != nil || c.incoming != nil {
		return false
	}
	if record.Offer == nil || record.Type.Control() {
		return false
	}
	if _, retained := c.retained[callID]; retained {
		return false
	}
	if record.Offer.CallerID == "" || record.Offer.CallerID == c.localUID {
		return false
	}
	// an attempt that rang out long ago is not ringing anymore
	if ts := record.Offer.Timestamp; !ts.IsZero() && c.clock.Since(ts) > c.config.RingTimeout {
		return false
	}
	return true
}

func (c *Controller) accept(ctx context.Context, incoming *IncomingCall) (*Engine, error) {
	c.mux.Lock()
	if c.incoming != incoming {
		c.mux.Unlock()
		return nil, ErrUnknownCall
	}
	if c.active != nil {
		c.mux.Unlock()
		return nil, ErrCallInProgress
	}

	channel, err := c.channels(incoming.callID, RoleCallee)
	if err != nil {
		c.mux.Unlock()
		return nil, err
	}
	engine, err := c.newEngine(RoleCallee, incoming.callID, channel)
	if err != nil {
		c.mux.Unlock()
		return nil, err
	}
	c.incoming = nil
	c.active = engine
	c.mux.Unlock()

	if err := engine.Start(ctx); err != nil {
		return nil, err
	}

	c.logger.Info("incoming call accepted", zap.String("call_id", incoming.callID))
	return engine, nil
}

func (c *Controller) decline(ctx context.Context, incoming *IncomingCall) error {
	c.mux.Lock()
	if c.incoming != incoming {
		c.mux.Unlock()
		return ErrUnknownCall
	}
	c.incoming = nil
	c.retained[incoming.callID] = struct{}{}
	c.mux.Unlock()

	channel, err := c.channels(incoming.callID, RoleCallee)
	if err != nil {
		return err
	}
	if err := channel.Send(ctx, Message{Type: MessageDeclined, DeclinedBy: c.localUID}); err != nil {
		return fmt.Errorf("failed to decline call %s: %w", incoming.callID, err)
	}

	c.logger.Info("incoming call declined", zap.String("call_id", incoming.callID))
	return nil
}

func (c *Controller) newEngine(role Role, callID string, channel SignalingChannel) (*Engine, error) {
	var engine *Engine

	options := append([]EngineOption{
		WithLogger(c.logger),
		WithClock(c.clock),
		WithConfig(c.config),
		WithOnCallStarted(func() {
			if c.onCallStarted != nil {
				c.onCallStarted(callID)
			}
		}),
		WithOnEnd(func(termination Termination) {
			c.ended(engine, termination)
		}),
	}, c.engineOptions...)

	engine, err := NewEngine(role, callID, c.localUID, channel, c.media, c.newPeer, options...)
	if err != nil {
		return nil, err
	}
	return engine, nil
}

func (c *Controller) ended(engine *Engine, termination Termination) {
	c.mux.Lock()
	if termination.Fatal || termination.UserInitiated {
		c.retained[engine.CallID()] = struct{}{}
	}
	if c.active == engine {
		c.active = nil
	}
	c.mux.Unlock()

	if c.onCallEnded != nil {
		c.onCallEnded(engine.CallID(), termination)
	}
}

// release frees the active slot of an engine that never started.
func (c *Controller) release(engine *Engine) {
	c.mux.Lock()
	defer c.mux.Unlock()

	c.retained[engine.CallID()] = struct{}{}
	if c.active == engine {
		c.active = nil
	}
}

// Active returns the running call attempt, if any.
func (c *Controller) Active() *Engine {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.active
}

// Incoming returns the pending incoming call, if any.
func (c *Controller) Incoming() *IncomingCall {
	c.mux.Lock()
	defer c.mux.Unlock()
	return c.incoming
}

// Retained reports whether callID was already handled and must not ring.
func (c *Controller) Retained(callID string) bool {
	c.mux.Lock()
	defer c.mux.Unlock()
	_, retained := c.retained[callID]
	return retained
}

// Hangup ends the active call, if any.
func (c *Controller) Hangup() {
	if engine := c.Active(); engine != nil {
		engine.Hangup()
	}
}

// Close stops watching, hangs up the active call and waits for it to end. An
// active call that has not started yet ends without waiting.
func (c *Controller) Close() error {
	c.mux.Lock()
	if c.closed {
		c.mux.Unlock()
		return nil
	}
	c.closed = true
	stop := c.stopWatch
	c.stopWatch = nil
	active := c.active
	c.incoming = nil
	c.mux.Unlock()

	if stop != nil {
		stop()
	}
	if active != nil {
		active.Hangup()
		active.Wait()
	}
	return nil
}

// IncomingCall is a ringing call waiting for the local user's decision.
type IncomingCall struct {
	controller *Controller
	callID     string
	callerID   string
}

func (i *IncomingCall) CallID() string {
	return i.callID
}

func (i *IncomingCall) CallerID() string {
	return i.callerID
}

// Accept answers the call with a callee engine.
func (i *IncomingCall) Accept(ctx context.Context) (*Engine, error) {
	return i.controller.accept(ctx, i)
}

// Decline writes declined to the call record.
func (i *IncomingCall) Decline(ctx context.Context) error {
	return i.controller.decline(ctx, i)
}

package call

import (
	"context"
	"errors"
	"iter"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Client owns the pion API shared by every call attempt of a process and
// keeps track of the peer connections it created.
type Client struct {
	pcs                 map[string]*PeerConnection
	mediaEngine         *webrtc.MediaEngine
	settingsEngine      *webrtc.SettingEngine
	interceptorRegistry *interceptor.Registry
	api                 *webrtc.API
	rtcConfig           webrtc.Configuration
	statsInterval       time.Duration
	clock               clock.Clock
	logger              *zap.Logger

	mux sync.RWMutex
	ctx context.Context
}

func NewClient(
	ctx context.Context,
	mediaEngine *webrtc.MediaEngine, interceptorRegistry *interceptor.Registry,
	settings *webrtc.SettingEngine, options ...ClientOption,
) (*Client, error) {
	if mediaEngine == nil {
		mediaEngine = &webrtc.MediaEngine{}
	}
	if interceptorRegistry == nil {
		interceptorRegistry = &interceptor.Registry{}
	}
	if settings == nil {
		settings = &webrtc.SettingEngine{}
	}

	c := &Client{
		mediaEngine:         mediaEngine,
		interceptorRegistry: interceptorRegistry,
		settingsEngine:      settings,
		pcs:                 make(map[string]*PeerConnection),
		rtcConfig:           GetSTUNOnlyRTCConfiguration(DefaultSTUNServer),
		clock:               clock.New(),
		logger:              zap.NewNop(),
		ctx:                 ctx,
	}

	for _, option := range options {
		if err := option(c); err != nil {
			return nil, err
		}
	}

	c.api = webrtc.NewAPI(webrtc.WithMediaEngine(c.mediaEngine), webrtc.WithInterceptorRegistry(c.interceptorRegistry), webrtc.WithSettingEngine(*c.settingsEngine))

	return c, nil
}

func (c *Client) CreatePeerConnection(ctx context.Context, label string, events PeerEvents) (*PeerConnection, error) {
	c.mux.Lock()
	defer c.mux.Unlock()

	if _, exists := c.pcs[label]; exists {
		return nil, errors.New("peer connection already exists")
	}

	pc, err := CreatePeerConnection(ctx, label, c.api, c.rtcConfig, events, c.statsInterval, c.clock, c.logger)
	if err != nil {
		return nil, err
	}

	c.pcs[label] = pc

	// forget the connection once it is closed
	go func() {
		select {
		case <-pc.Done():
		case <-c.ctx.Done():
			return
		}
		c.mux.Lock()
		if c.pcs[label] == pc {
			delete(c.pcs, label)
		}
		c.mux.Unlock()
	}()

	return pc, nil
}

// PeerFactory returns a PeerFactory creating pion connections on c.
func (c *Client) PeerFactory() PeerFactory {
	return func(ctx context.Context, label string, events PeerEvents) (Peer, error) {
		return c.CreatePeerConnection(ctx, label, events)
	}
}

func (c *Client) GetPeerConnection(label string) (*PeerConnection, error) {
	c.mux.RLock()
	defer c.mux.RUnlock()

	if _, exists := c.pcs[label]; !exists {
		return nil, errors.New("peer connection not found")
	}
	return c.pcs[label], nil
}

func (c *Client) PeerConnections() iter.Seq2[string, *PeerConnection] {
	return func(yield func(string, *PeerConnection) bool) {
		c.mux.RLock()
		defer c.mux.RUnlock()

		for label, pc := range c.pcs {
			if !yield(label, pc) {
				return
			}
		}
	}
}

func (c *Client) RTCConfiguration() webrtc.Configuration {
	return c.rtcConfig
}

func (c *Client) ClosePeerConnection(label string) error {
	pc, err := c.GetPeerConnection(label)
	if err != nil {
		return err
	}

	if err := pc.Close(); err != nil {
		return err
	}

	c.mux.Lock()
	defer c.mux.Unlock()

	delete(c.pcs, label)
	return nil
}

func (c *Client) Close() error {
	var (
		merr error
		pcs  []*PeerConnection
	)

	for _, pc := range c.PeerConnections() {
		pcs = append(pcs, pc)
	}

	for _, pc := range pcs {
		if err := pc.Close(); err != nil {
			merr = multierr.Append(merr, err)
		}
	}

	c.mux.Lock()
	defer c.mux.Unlock()

	c.pcs = make(map[string]*PeerConnection)
	return merr
}

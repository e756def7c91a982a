package call

import (
	"context"
	"errors"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

var ErrHubClosed = errors.New("memory hub closed")

// MemoryHub holds call records in process. Both peers of a loopback call, and
// the tests, share one hub.
type MemoryHub struct {
	clock  clock.Clock
	logger *zap.Logger

	mux      sync.Mutex
	records  map[string]*Record
	subs     map[string]map[string]*subscription
	watchers map[string]*subscription
	closed   bool
}

func NewMemoryHub(logger *zap.Logger) *MemoryHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryHub{
		clock:    clock.New(),
		logger:   logger.Named("signal.memory"),
		records:  make(map[string]*Record),
		subs:     make(map[string]map[string]*subscription),
		watchers: make(map[string]*subscription),
	}
}

// Channel binds a channel of callID to role.
func (h *MemoryHub) Channel(callID string, role Role) *MemoryChannel {
	return &MemoryChannel{hub: h, callID: callID, role: role}
}

func (h *MemoryHub) ChannelFactory() ChannelFactory {
	return func(callID string, role Role) (SignalingChannel, error) {
		return h.Channel(callID, role), nil
	}
}

// Record returns a copy of the current record of callID.
func (h *MemoryHub) Record(callID string) (Record, bool) {
	h.mux.Lock()
	defer h.mux.Unlock()

	record, exists := h.records[callID]
	if !exists {
		return Record{}, false
	}
	return cloneRecord(*record), true
}

func (h *MemoryHub) merge(callID string, from Role, msg Message) error {
	h.mux.Lock()
	defer h.mux.Unlock()

	if h.closed {
		return ErrHubClosed
	}

	record, exists := h.records[callID]
	if !exists {
		record = &Record{}
		h.records[callID] = record
	}
	record.Merge(from, msg, h.clock.Now())

	snapshot := cloneRecord(*record)
	for _, sub := range h.subs[callID] {
		sub.push(callID, snapshot)
	}
	for _, watcher := range h.watchers {
		watcher.push(callID, snapshot)
	}
	return nil
}

func (h *MemoryHub) listen(callID string, fn func(string, Record)) (func(), error) {
	h.mux.Lock()
	defer h.mux.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}

	sub := newSubscription(fn)
	if h.subs[callID] == nil {
		h.subs[callID] = make(map[string]*subscription)
	}
	h.subs[callID][sub.id] = sub

	if record, exists := h.records[callID]; exists {
		sub.push(callID, cloneRecord(*record))
	}

	return func() {
		h.mux.Lock()
		delete(h.subs[callID], sub.id)
		h.mux.Unlock()
		sub.close()
	}, nil
}

// WatchCalls reports every change of every call record of the hub, starting
// with the existing ones.
func (h *MemoryHub) WatchCalls(ctx context.Context, fn func(callID string, record Record)) (func(), error) {
	h.mux.Lock()
	defer h.mux.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}

	sub := newSubscription(fn)
	h.watchers[sub.id] = sub
	for callID, record := range h.records {
		sub.push(callID, cloneRecord(*record))
	}

	var once sync.Once
	stop := func() {
		once.Do(func() {
			h.mux.Lock()
			delete(h.watchers, sub.id)
			h.mux.Unlock()
			sub.close()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			stop()
		case <-sub.stop:
		}
	}()

	return stop, nil
}

func (h *MemoryHub) Close() error {
	h.mux.Lock()
	defer h.mux.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	for _, subs := range h.subs {
		for _, sub := range subs {
			sub.close()
		}
	}
	for _, watcher := range h.watchers {
		watcher.close()
	}
	h.logger.Debug("memory hub closed")
	return nil
}

// MemoryChannel is a SignalingChannel on a MemoryHub.
type MemoryChannel struct {
	hub    *MemoryHub
	callID string
	role   Role
}

func (c *MemoryChannel) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.hub.merge(c.callID, c.role, msg)
}

func (c *MemoryChannel) Listen(fn func(Record)) (func(), error) {
	return c.hub.listen(c.callID, func(_ string, record Record) {
		fn(record)
	})
}

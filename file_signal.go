package call

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// FileSignal keeps call records as files, one directory per call and one
// JSON part per role: <dir>/<callID>/caller.json and callee.json. Each side
// only ever writes its own part, so two processes can share the directory.
type FileSignal struct {
	dir    string
	clock  clock.Clock
	logger *zap.Logger

	// serializes read-modify-write of parts written from this process
	mux sync.Mutex
}

func CreateFileSignal(dir string, logger *zap.Logger) (*FileSignal, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating signal directory %s: %w", dir, err)
	}
	return &FileSignal{
		dir:    dir,
		clock:  clock.New(),
		logger: logger.Named("signal.file").With(zap.String("dir", dir)),
	}, nil
}

func (s *FileSignal) Channel(callID string, role Role) *FileChannel {
	return &FileChannel{signal: s, callID: callID, role: role}
}

func (s *FileSignal) ChannelFactory() ChannelFactory {
	return func(callID string, role Role) (SignalingChannel, error) {
		if callID == "" || strings.ContainsAny(callID, `/\`) {
			return nil, fmt.Errorf("invalid call id %q", callID)
		}
		return s.Channel(callID, role), nil
	}
}

func (s *FileSignal) callDir(callID string) string {
	return filepath.Join(s.dir, callID)
}

func (s *FileSignal) partPath(callID string, role Role) string {
	return filepath.Join(s.callDir(callID), role.String()+".json")
}

func (s *FileSignal) readPart(callID string, role Role) (Record, bool, error) {
	data, err := os.ReadFile(s.partPath(callID, role))
	if errors.Is(err, os.ErrNotExist) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}

	var part Record
	if err := json.Unmarshal(data, &part); err != nil {
		return Record{}, false, fmt.Errorf("error decoding %s part of %s: %w", role, callID, err)
	}
	return part, true, nil
}

func (s *FileSignal) write(callID string, role Role, msg Message) error {
	s.mux.Lock()
	defer s.mux.Unlock()

	part, _, err := s.readPart(callID, role)
	if err != nil {
		return err
	}
	part.Merge(role, msg, s.clock.Now())

	data, err := json.Marshal(part)
	if err != nil {
		return err
	}

	dir := s.callDir(callID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating directory %s: %w", dir, err)
	}

	// write then rename, watchers never observe a partial part
	tmp, err := os.CreateTemp(dir, ".part-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.partPath(callID, role))
}

// Read merges both parts of callID into the full record.
func (s *FileSignal) Read(callID string) (Record, bool, error) {
	caller, hasCaller, err := s.readPart(callID, RoleCaller)
	if err != nil {
		return Record{}, false, err
	}
	callee, hasCallee, err := s.readPart(callID, RoleCallee)
	if err != nil {
		return Record{}, false, err
	}
	if !hasCaller && !hasCallee {
		return Record{}, false, nil
	}
	return mergeParts(caller, callee), true, nil
}

// mergeParts resolves the two parts the way last-write-wins would: shared
// fields come from the most recent writer, candidate lists from their owner.
func mergeParts(caller, callee Record) Record {
	latest, other := caller, callee
	if callee.UpdatedAt.After(caller.UpdatedAt) {
		latest, other = callee, caller
	}

	record := Record{
		Type:             latest.Type,
		Offer:            latest.Offer,
		Answer:           latest.Answer,
		Candidate:        latest.Candidate,
		DeclinedBy:       latest.DeclinedBy,
		UpdatedAt:        latest.UpdatedAt,
		CallerCandidates: caller.CallerCandidates,
		CalleeCandidates: callee.CalleeCandidates,
	}
	if record.Offer == nil {
		record.Offer = other.Offer
	}
	if record.Answer == nil {
		record.Answer = other.Answer
	}
	if record.Candidate == nil {
		record.Candidate = other.Candidate
	}
	if record.DeclinedBy == "" {
		record.DeclinedBy = other.DeclinedBy
	}
	return record
}

// WatchCalls reports every change of every call directory, starting with the
// existing ones.
func (s *FileSignal) WatchCalls(ctx context.Context, fn func(callID string, record Record)) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(s.dir); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	sub := newSubscription(fn)

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		_ = watcher.Close()
		sub.close()
		return nil, err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := watcher.Add(s.callDir(entry.Name())); err != nil {
			s.logger.Warn("failed to watch call directory", zap.String("call_id", entry.Name()), zap.Error(err))
		}
		s.deliver(entry.Name(), sub)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.watchLoop(watchCtx, watcher, sub, "")
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			_ = watcher.Close()
			wg.Wait()
			sub.close()
		})
	}, nil
}

func (s *FileSignal) deliver(callID string, sub *subscription) {
	record, exists, err := s.Read(callID)
	if err != nil {
		s.logger.Debug("failed to read call record", zap.String("call_id", callID), zap.Error(err))
		return
	}
	if exists {
		sub.push(callID, record)
	}
}

// watchLoop forwards fsnotify events. With only set, events of other calls
// are ignored and new call directories are not followed.
func (s *FileSignal) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, sub *subscription, only string) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("file watcher error", zap.Error(err))
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			s.handleEvent(watcher, sub, event, only)
		}
	}
}

func (s *FileSignal) handleEvent(watcher *fsnotify.Watcher, sub *subscription, event fsnotify.Event, only string) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return
	}

	parent := filepath.Dir(event.Name)
	name := filepath.Base(event.Name)

	// a new call directory under the root
	if only == "" && filepath.Clean(parent) == filepath.Clean(s.dir) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := watcher.Add(event.Name); err != nil {
				s.logger.Warn("failed to watch call directory", zap.String("call_id", name), zap.Error(err))
			}
			s.deliver(name, sub)
		}
		return
	}

	if !strings.HasSuffix(name, ".json") {
		return
	}
	callID := filepath.Base(parent)
	if only != "" && callID != only {
		return
	}
	s.deliver(callID, sub)
}

// FileChannel is a SignalingChannel on a FileSignal.
type FileChannel struct {
	signal *FileSignal
	callID string
	role   Role
}

func (c *FileChannel) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.signal.write(c.callID, c.role, msg)
}

func (c *FileChannel) Listen(fn func(Record)) (func(), error) {
	dir := c.signal.callDir(c.callID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("error creating directory %s: %w", dir, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	sub := newSubscription(func(_ string, record Record) {
		fn(record)
	})
	c.signal.deliver(c.callID, sub)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.signal.watchLoop(ctx, watcher, sub, c.callID)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			_ = watcher.Close()
			wg.Wait()
			sub.close()
		})
	}, nil
}

package call

import (
	"sync"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

// subscription delivers records to one listener from its own goroutine. A
// slow listener only ever sees the latest record of each call, and a record
// equal to the previous delivery of the same call is collapsed.
type subscription struct {
	id string
	fn func(callID string, record Record)

	mux    sync.Mutex
	latest map[string]Record
	order  []string
	last   map[string]Record

	wake chan struct{}
	stop chan struct{}
	once sync.Once
}

func newSubscription(fn func(callID string, record Record)) *subscription {
	s := &subscription{
		id:     uuid.NewString(),
		fn:     fn,
		latest: make(map[string]Record),
		last:   make(map[string]Record),
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *subscription) push(callID string, record Record) {
	s.mux.Lock()
	if _, queued := s.latest[callID]; !queued {
		s.order = append(s.order, callID)
	}
	s.latest[callID] = record
	s.mux.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) next() (string, Record, bool) {
	s.mux.Lock()
	defer s.mux.Unlock()

	if len(s.order) == 0 {
		return "", Record{}, false
	}
	callID := s.order[0]
	s.order = s.order[1:]
	record := s.latest[callID]
	delete(s.latest, callID)
	return callID, record, true
}

func (s *subscription) loop() {
	for {
		select {
		case <-s.stop:
			return
		case <-s.wake:
		}

		for {
			callID, record, ok := s.next()
			if !ok {
				break
			}
			if prev, seen := s.last[callID]; seen && cmp.Equal(prev, record) {
				continue
			}
			s.last[callID] = record

			select {
			case <-s.stop:
				return
			default:
			}
			s.fn(callID, record)
		}
	}
}

// close stops delivery. It does not wait for an in-flight delivery.
func (s *subscription) close() {
	s.once.Do(func() {
		close(s.stop)
	})
}

func cloneRecord(r Record) Record {
	clone := r
	if r.Offer != nil {
		offer := *r.Offer
		clone.Offer = &offer
	}
	if r.Answer != nil {
		answer := *r.Answer
		clone.Answer = &answer
	}
	if r.Candidate != nil {
		candidate := *r.Candidate
		clone.Candidate = &candidate
	}
	clone.CallerCandidates = append([]Candidate(nil), r.CallerCandidates...)
	clone.CalleeCandidates = append([]Candidate(nil), r.CalleeCandidates...)
	return clone
}

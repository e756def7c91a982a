package call

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
	"go.viam.com/test"
)

type recordSink struct {
	mux     sync.Mutex
	records []Record
}

func (s *recordSink) add(record Record) {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.records = append(s.records, record)
}

func (s *recordSink) all() []Record {
	s.mux.Lock()
	defer s.mux.Unlock()
	return append([]Record(nil), s.records...)
}

func (s *recordSink) last() Record {
	s.mux.Lock()
	defer s.mux.Unlock()
	if len(s.records) == 0 {
		return Record{}
	}
	return s.records[len(s.records)-1]
}

func TestMemoryChannelListen(t *testing.T) {
	hub := NewMemoryHub(zaptest.NewLogger(t))
	defer hub.Close()

	caller := hub.Channel("u1_1", RoleCaller)
	callee := hub.Channel("u1_1", RoleCallee)

	test.That(t, caller.Send(context.Background(), Message{Type: MessageOffer, Offer: &Offer{CallerID: "u1"}}), test.ShouldBeNil)

	// the existing record is delivered on subscription
	var sink recordSink
	unsubscribe, err := callee.Listen(sink.add)
	test.That(t, err, test.ShouldBeNil)
	waitFor(t, func() bool { return len(sink.all()) == 1 })
	test.That(t, sink.last().Offer.CallerID, test.ShouldEqual, "u1")

	test.That(t, callee.Send(context.Background(), Message{Type: MessageICE, Candidate: &Candidate{Candidate: "candidate:b"}}), test.ShouldBeNil)
	waitFor(t, func() bool { return len(sink.last().CalleeCandidates) == 1 })

	unsubscribe()
	test.That(t, caller.Send(context.Background(), Message{Type: MessageEnd}), test.ShouldBeNil)
	time.Sleep(20 * time.Millisecond)
	test.That(t, sink.last().Type, test.ShouldEqual, MessageICE)

	record, ok := hub.Record("u1_1")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, record.Type, test.ShouldEqual, MessageEnd)

	_, ok = hub.Record("u1_2")
	test.That(t, ok, test.ShouldBeFalse)
}

func TestMemoryChannelSendCanceled(t *testing.T) {
	hub := NewMemoryHub(zaptest.NewLogger(t))
	defer hub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := hub.Channel("u1_1", RoleCaller).Send(ctx, Message{Type: MessageEnd})
	test.That(t, err, test.ShouldBeError, context.Canceled)

	_, ok := hub.Record("u1_1")
	test.That(t, ok, test.ShouldBeFalse)
}

func TestMemoryHubWatchCalls(t *testing.T) {
	hub := NewMemoryHub(zaptest.NewLogger(t))
	defer hub.Close()

	test.That(t, hub.Channel("u1_1", RoleCaller).Send(context.Background(), Message{Type: MessageOffer, Offer: &Offer{CallerID: "u1"}}), test.ShouldBeNil)

	var (
		mux  sync.Mutex
		seen = make(map[string]Record)
	)
	ctx, cancel := context.WithCancel(context.Background())
	stop, err := hub.WatchCalls(ctx, func(callID string, record Record) {
		mux.Lock()
		seen[callID] = record
		mux.Unlock()
	})
	test.That(t, err, test.ShouldBeNil)
	defer stop()

	test.That(t, hub.Channel("u3_2", RoleCaller).Send(context.Background(), Message{Type: MessageOffer, Offer: &Offer{CallerID: "u3"}}), test.ShouldBeNil)

	waitFor(t, func() bool {
		mux.Lock()
		defer mux.Unlock()
		return len(seen) == 2
	})

	cancel()
	time.Sleep(20 * time.Millisecond)
	test.That(t, hub.Channel("u4_3", RoleCaller).Send(context.Background(), Message{Type: MessageOffer, Offer: &Offer{CallerID: "u4"}}), test.ShouldBeNil)
	time.Sleep(20 * time.Millisecond)

	mux.Lock()
	defer mux.Unlock()
	test.That(t, seen, test.ShouldHaveLength, 2)
	test.That(t, seen["u3_2"].Offer.CallerID, test.ShouldEqual, "u3")
}

func TestMemoryHubClosed(t *testing.T) {
	hub := NewMemoryHub(zaptest.NewLogger(t))
	test.That(t, hub.Close(), test.ShouldBeNil)
	test.That(t, hub.Close(), test.ShouldBeNil)

	channel := hub.Channel("u1_1", RoleCaller)
	test.That(t, channel.Send(context.Background(), Message{Type: MessageEnd}), test.ShouldBeError, ErrHubClosed)

	_, err := channel.Listen(func(Record) {})
	test.That(t, err, test.ShouldBeError, ErrHubClosed)

	_, err = hub.WatchCalls(context.Background(), func(string, Record) {})
	test.That(t, err, test.ShouldBeError, ErrHubClosed)
}

func TestSubscriptionCollapsesEqualRecords(t *testing.T) {
	deliveries := make(chan Record, 8)
	sub := newSubscription(func(_ string, record Record) { deliveries <- record })
	defer sub.close()

	record := Record{Type: MessageOffer, Offer: &Offer{CallerID: "u1"}}
	sub.push("u1_1", record)
	select {
	case got := <-deliveries:
		test.That(t, got.Offer.CallerID, test.ShouldEqual, "u1")
	case <-time.After(5 * time.Second):
		t.Fatal("no delivery")
	}

	sub.push("u1_1", cloneRecord(record))
	// the same state under another call id is not collapsed
	sub.push("u1_2", cloneRecord(record))

	select {
	case <-deliveries:
	case <-time.After(5 * time.Second):
		t.Fatal("no delivery")
	}
	select {
	case extra := <-deliveries:
		t.Fatalf("unexpected delivery %+v", extra)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestCloneRecordIsDeep(t *testing.T) {
	record := Record{
		Offer:            &Offer{CallerID: "u1"},
		Answer:           &Answer{SDP: "a"},
		Candidate:        &Candidate{Candidate: "c"},
		CallerCandidates: []Candidate{{Candidate: "c"}},
	}
	clone := cloneRecord(record)

	clone.Offer.CallerID = "u2"
	clone.Answer.SDP = "b"
	clone.Candidate.Candidate = "d"
	clone.CallerCandidates[0].Candidate = "d"

	test.That(t, record.Offer.CallerID, test.ShouldEqual, "u1")
	test.That(t, record.Answer.SDP, test.ShouldEqual, "a")
	test.That(t, record.Candidate.Candidate, test.ShouldEqual, "c")
	test.That(t, record.CallerCandidates[0].Candidate, test.ShouldEqual, "c")
}

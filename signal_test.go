package call

import (
	"testing"
	"time"

	"go.viam.com/test"
)

func TestRoles(t *testing.T) {
	test.That(t, RoleCaller.String(), test.ShouldEqual, "caller")
	test.That(t, RoleCallee.String(), test.ShouldEqual, "callee")
	test.That(t, RoleCaller.Remote(), test.ShouldEqual, RoleCallee)
	test.That(t, RoleCallee.Remote(), test.ShouldEqual, RoleCaller)
	test.That(t, RoleCaller.CandidatesField(), test.ShouldEqual, FieldCallerCandidates)
	test.That(t, RoleCallee.CandidatesField(), test.ShouldEqual, FieldCalleeCandidates)
}

func TestMessageTypeControl(t *testing.T) {
	test.That(t, MessageEnd.Control(), test.ShouldBeTrue)
	test.That(t, MessageDeclined.Control(), test.ShouldBeTrue)
	test.That(t, MessageOffer.Control(), test.ShouldBeFalse)
	test.That(t, MessageAnswer.Control(), test.ShouldBeFalse)
	test.That(t, MessageICE.Control(), test.ShouldBeFalse)
}

func TestRecordMerge(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var record Record

	record.Merge(RoleCaller, Message{Type: MessageOffer, Offer: &Offer{CallerID: "u1"}}, at)
	test.That(t, record.Type, test.ShouldEqual, MessageOffer)
	test.That(t, record.Offer.CallerID, test.ShouldEqual, "u1")
	test.That(t, record.Offer.Timestamp.Equal(at), test.ShouldBeTrue)

	record.Merge(RoleCaller, Message{Type: MessageICE, Candidate: &Candidate{Candidate: "candidate:a"}}, at.Add(time.Second))
	record.Merge(RoleCallee, Message{Type: MessageAnswer, Answer: &Answer{SDP: testSDP, Type: "answer"}}, at.Add(2*time.Second))
	record.Merge(RoleCallee, Message{Type: MessageICE, Candidate: &Candidate{Candidate: "candidate:b"}}, at.Add(3*time.Second))

	// fields absent from a message survive it
	test.That(t, record.Offer.CallerID, test.ShouldEqual, "u1")
	test.That(t, record.Answer.SDP, test.ShouldEqual, testSDP)
	test.That(t, record.Type, test.ShouldEqual, MessageICE)
	test.That(t, record.Candidate.Candidate, test.ShouldEqual, "candidate:b")
	test.That(t, record.CandidatesFrom(RoleCaller), test.ShouldResemble, []Candidate{{Candidate: "candidate:a"}})
	test.That(t, record.CandidatesFrom(RoleCallee), test.ShouldResemble, []Candidate{{Candidate: "candidate:b"}})
	test.That(t, record.UpdatedAt.Equal(at.Add(3*time.Second)), test.ShouldBeTrue)

	record.Merge(RoleCallee, Message{Type: MessageDeclined, DeclinedBy: "u2"}, at.Add(4*time.Second))
	test.That(t, record.Type, test.ShouldEqual, MessageDeclined)
	test.That(t, record.DeclinedBy, test.ShouldEqual, "u2")
	test.That(t, record.CallerCandidates, test.ShouldHaveLength, 1)
}

package call

import (
	"testing"

	"github.com/pion/webrtc/v4"
	"go.viam.com/test"
)

func TestPendingCandidates(t *testing.T) {
	var p pending

	list := []Candidate{{Candidate: "candidate:1"}, {Candidate: "candidate:2"}}
	for _, c := range p.unseen(list) {
		p.queue(c)
	}
	test.That(t, p.queued(), test.ShouldEqual, 2)

	// the same list delivered again yields nothing new
	test.That(t, p.unseen(list), test.ShouldBeEmpty)

	list = append(list, Candidate{Candidate: "candidate:3"})
	fresh := p.unseen(list)
	test.That(t, fresh, test.ShouldHaveLength, 1)
	test.That(t, fresh[0].Candidate, test.ShouldEqual, "candidate:3")
	p.queue(fresh[0])

	drained := p.drain()
	test.That(t, drained, test.ShouldHaveLength, 3)
	for i, want := range []string{"candidate:1", "candidate:2", "candidate:3"} {
		test.That(t, drained[i].Candidate, test.ShouldEqual, want)
	}
	test.That(t, p.queued(), test.ShouldEqual, 0)
	test.That(t, p.drain(), test.ShouldBeEmpty)
}

func TestPendingSingleCandidate(t *testing.T) {
	var p pending

	_, ok := p.single(nil)
	test.That(t, ok, test.ShouldBeFalse)

	p.sent(Candidate{Candidate: "candidate:mine"})
	_, ok = p.single(&Candidate{Candidate: "candidate:mine"})
	test.That(t, ok, test.ShouldBeFalse)

	mid := "0"
	c, ok := p.single(&Candidate{Candidate: "candidate:1", SDPMid: &mid})
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, c.Candidate, test.ShouldEqual, "candidate:1")
	test.That(t, *c.SDPMid, test.ShouldEqual, "0")

	_, ok = p.single(&Candidate{Candidate: "candidate:1"})
	test.That(t, ok, test.ShouldBeFalse)

	// a list carrying a line already taken from the single field skips it
	fresh := p.unseen([]Candidate{{Candidate: "candidate:1"}, {Candidate: "candidate:2"}})
	test.That(t, fresh, test.ShouldHaveLength, 1)
	test.That(t, fresh[0].Candidate, test.ShouldEqual, "candidate:2")
}

func TestPendingDescriptions(t *testing.T) {
	var p pending

	_, ok := p.takeOffer()
	test.That(t, ok, test.ShouldBeFalse)

	p.holdOffer(Offer{CallerID: "u1", SDP: testSDP})
	offer, ok := p.takeOffer()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, offer.CallerID, test.ShouldEqual, "u1")
	_, ok = p.takeOffer()
	test.That(t, ok, test.ShouldBeFalse)

	p.holdAnswer(Answer{SDP: testSDP, Type: "answer"})
	answer, ok := p.takeAnswer()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, answer.Type, test.ShouldEqual, "answer")
	_, ok = p.takeAnswer()
	test.That(t, ok, test.ShouldBeFalse)
}

func TestCandidateConversion(t *testing.T) {
	mid := "0"
	index := uint16(0)
	ufrag := "abcd"
	init := webrtc.ICECandidateInit{
		Candidate:        "candidate:1 1 udp 2130706431 127.0.0.1 50000 typ host",
		SDPMid:           &mid,
		SDPMLineIndex:    &index,
		UsernameFragment: &ufrag,
	}

	candidate := CandidateFromInit(init)
	test.That(t, candidate.Candidate, test.ShouldEqual, init.Candidate)
	test.That(t, *candidate.SDPMid, test.ShouldEqual, "0")
	test.That(t, candidate.ICECandidateInit(), test.ShouldResemble, init)
}

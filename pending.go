package call

import (
	"github.com/pion/webrtc/v4"
)

// pending holds signaling that arrived before the session could apply it.
// Each slot is re-checked on every transition, not only on arrival.
type pending struct {
	offer  *Offer
	answer *Answer
	ice    []webrtc.ICECandidateInit

	// seen is how many of the remote role's candidates have been consumed
	// from the record.
	seen int

	// candidate lines written by this side, and remote lines already queued
	local  map[string]struct{}
	remote map[string]struct{}
}

func (p *pending) holdOffer(offer Offer) {
	p.offer = &offer
}

func (p *pending) takeOffer() (Offer, bool) {
	if p.offer == nil {
		return Offer{}, false
	}
	offer := *p.offer
	p.offer = nil
	return offer, true
}

func (p *pending) holdAnswer(answer Answer) {
	p.answer = &answer
}

func (p *pending) takeAnswer() (Answer, bool) {
	if p.answer == nil {
		return Answer{}, false
	}
	answer := *p.answer
	p.answer = nil
	return answer, true
}

// unseen returns the candidates of list not consumed yet and marks them seen.
func (p *pending) unseen(list []Candidate) []webrtc.ICECandidateInit {
	if len(list) <= p.seen {
		return nil
	}
	fresh := make([]webrtc.ICECandidateInit, 0, len(list)-p.seen)
	for _, c := range list[p.seen:] {
		if p.claim(c) {
			fresh = append(fresh, c.ICECandidateInit())
		}
	}
	p.seen = len(list)
	return fresh
}

// single returns the lone candidate field of a record, as written by peers
// that keep no candidate lists. Lines this side sent and lines already
// queued are refused.
func (p *pending) single(c *Candidate) (webrtc.ICECandidateInit, bool) {
	if c == nil || c.Candidate == "" {
		return webrtc.ICECandidateInit{}, false
	}
	if _, ours := p.local[c.Candidate]; ours {
		return webrtc.ICECandidateInit{}, false
	}
	if !p.claim(*c) {
		return webrtc.ICECandidateInit{}, false
	}
	return c.ICECandidateInit(), true
}

func (p *pending) sent(c Candidate) {
	if p.local == nil {
		p.local = make(map[string]struct{})
	}
	p.local[c.Candidate] = struct{}{}
}

func (p *pending) claim(c Candidate) bool {
	if p.remote == nil {
		p.remote = make(map[string]struct{})
	}
	if _, queued := p.remote[c.Candidate]; queued {
		return false
	}
	p.remote[c.Candidate] = struct{}{}
	return true
}

func (p *pending) queue(candidate webrtc.ICECandidateInit) {
	p.ice = append(p.ice, candidate)
}

// drain empties the ICE queue, preserving receipt order.
func (p *pending) drain() []webrtc.ICECandidateInit {
	queued := p.ice
	p.ice = nil
	return queued
}

func (p *pending) queued() int {
	return len(p.ice)
}

func (c Candidate) ICECandidateInit() webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

func CandidateFromInit(init webrtc.ICECandidateInit) Candidate {
	return Candidate{
		Candidate:        init.Candidate,
		SDPMid:           init.SDPMid,
		SDPMLineIndex:    init.SDPMLineIndex,
		UsernameFragment: init.UsernameFragment,
	}
}

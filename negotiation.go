package call

import (
	"fmt"

	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"
)

func (e *Engine) onRecord(record Record) {
	if record.Type.Control() {
		if e.hangingUp {
			e.logger.Debug("absorbed remote control message during hangup", zap.String("type", string(record.Type)))
			return
		}
		if record.Type == MessageDeclined {
			e.terminate(ErrDeclined, true, false)
			return
		}
		e.terminate(ErrRemoteEnded, true, false)
		return
	}

	switch e.role {
	case RoleCallee:
		e.takeRemoteOffer(record.Offer)
	case RoleCaller:
		e.takeRemoteAnswer(record.Answer)
	}

	listed := record.CandidatesFrom(e.role.Remote())
	for _, candidate := range e.pending.unseen(listed) {
		e.pending.queue(candidate)
	}
	if len(listed) == 0 && record.Type == MessageICE {
		if candidate, ok := e.pending.single(record.Candidate); ok {
			e.pending.queue(candidate)
		}
	}
}

func (e *Engine) takeRemoteOffer(offer *Offer) {
	if offer == nil || offer.SDP == "" || e.answerCreated || e.pending.offer != nil {
		return
	}
	if err := validateSDP(offer.SDP); err != nil {
		e.logger.Debug("ignoring offer without a usable session description", zap.Error(err))
		return
	}
	e.pending.holdOffer(*offer)
}

func (e *Engine) takeRemoteAnswer(answer *Answer) {
	if answer == nil || answer.SDP == "" || e.answerApplied || e.pending.answer != nil {
		return
	}
	e.pending.holdAnswer(*answer)
}

// evaluate applies whatever the pending slots allow in the current state. It
// runs after every event, so buffered signaling is never stranded.
func (e *Engine) evaluate() {
	if e.terminal || e.peer == nil {
		return
	}

	switch e.role {
	case RoleCallee:
		e.answer()
	case RoleCaller:
		e.applyAnswer()
	}

	if !e.terminal {
		e.flushCandidates()
	}
}

func (e *Engine) createOffer() {
	if e.offerSent || e.peer.HasLocalDescription() {
		return
	}
	e.offerSent = true

	offer, err := e.peer.CreateOffer()
	if err != nil {
		e.terminate(fmt.Errorf("%w: failed to create offer: %w", ErrNegotiation, err), true, false)
		return
	}
	if err := e.peer.SetLocalDescription(offer); err != nil {
		e.terminate(fmt.Errorf("%w: failed to set local offer: %w", ErrNegotiation, err), true, false)
		return
	}

	e.enqueue(Message{
		Type: MessageOffer,
		Offer: &Offer{
			CallerID:  e.localUID,
			SDP:       offer.SDP,
			Type:      offer.Type.String(),
			Timestamp: e.clock.Now(),
		},
	})
	e.setState(StateOfferSent)
	e.logger.Info("offer sent")
}

func (e *Engine) answer() {
	if e.answerCreated || e.pending.offer == nil || e.State() != StateAwaitingOffer {
		return
	}
	if state := e.peer.SignalingState(); state != webrtc.SignalingStateStable {
		e.logger.Debug("deferring answer", zap.Stringer("signaling", state))
		return
	}

	offer, _ := e.pending.takeOffer()
	e.answerCreated = true

	if err := e.peer.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}); err != nil {
		e.terminate(fmt.Errorf("%w: failed to apply offer: %w", ErrNegotiation, err), true, false)
		return
	}
	e.flushCandidates()

	answer, err := e.peer.CreateAnswer()
	if err != nil {
		e.terminate(fmt.Errorf("%w: failed to create answer: %w", ErrNegotiation, err), true, false)
		return
	}
	if err := e.peer.SetLocalDescription(answer); err != nil {
		e.terminate(fmt.Errorf("%w: failed to set local answer: %w", ErrNegotiation, err), true, false)
		return
	}

	e.enqueue(Message{
		Type:   MessageAnswer,
		Answer: &Answer{SDP: answer.SDP, Type: answer.Type.String()},
	})
	e.setState(StateAnswerSent)
	e.logger.Info("answer sent")
}

func (e *Engine) applyAnswer() {
	if e.answerApplied || e.pending.answer == nil {
		return
	}
	if e.peer.SignalingState() != webrtc.SignalingStateHaveLocalOffer || e.peer.HasRemoteDescription() {
		return
	}

	answer, _ := e.pending.takeAnswer()
	e.answerApplied = true

	if err := e.peer.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer.SDP}); err != nil {
		e.terminate(fmt.Errorf("%w: failed to apply answer: %w", ErrNegotiation, err), true, false)
		return
	}
	e.logger.Info("answer applied")

	if e.State() == StateOfferSent {
		e.setState(StateNegotiatingICE)
	}
}

// flushCandidates adds the queued remote candidates in receipt order once a
// remote description exists. A rejected candidate is skipped.
func (e *Engine) flushCandidates() {
	if e.pending.queued() == 0 || !e.peer.HasRemoteDescription() {
		return
	}

	for _, candidate := range e.pending.drain() {
		if err := e.peer.AddICECandidate(candidate); err != nil {
			e.logger.Warn("skipping remote candidate", zap.String("candidate", candidate.Candidate), zap.Error(err))
		}
	}
}

// validateSDP accepts a session description carrying at least one media
// section.
func validateSDP(raw string) error {
	var description sdp.SessionDescription
	if err := description.Unmarshal([]byte(raw)); err != nil {
		return err
	}
	if len(description.MediaDescriptions) == 0 {
		return fmt.Errorf("session description has no media")
	}
	return nil
}

package call

import (
	"testing"

	"go.viam.com/test"
)

func TestStateTransitions(t *testing.T) {
	for _, tc := range []struct {
		from, to State
		allowed  bool
	}{
		{StateIdle, StateAcquiringMedia, true},
		{StateIdle, StateConnected, false},
		{StateAcquiringMedia, StateCreatingOffer, true},
		{StateAcquiringMedia, StateAwaitingOffer, true},
		{StateAcquiringMedia, StateOfferSent, false},
		{StateCreatingOffer, StateOfferSent, true},
		{StateOfferSent, StateNegotiatingICE, true},
		{StateOfferSent, StateConnected, true},
		{StateOfferSent, StateAnswerSent, false},
		{StateAwaitingOffer, StateAnswerSent, true},
		{StateAnswerSent, StateNegotiatingICE, true},
		{StateNegotiatingICE, StateConnected, true},
		{StateConnected, StateNegotiatingICE, false},
		{StateConnected, StateEnded, true},
		{StateConnected, StateError, true},
		{StateConnected, StateDeclined, false},
		{StateOfferSent, StateDeclined, true},
		{StateAcquiringMedia, StateError, true},
		{StateEnded, StateError, false},
		{StateError, StateEnded, false},
		{StateDeclined, StateEnded, false},
	} {
		test.That(t, tc.from.CanTransition(tc.to), test.ShouldEqual, tc.allowed)
	}
}

func TestStateClassification(t *testing.T) {
	for _, s := range []State{StateEnded, StateError, StateDeclined} {
		test.That(t, s.Terminal(), test.ShouldBeTrue)
		test.That(t, s.Negotiating(), test.ShouldBeFalse)
	}
	for _, s := range []State{StateCreatingOffer, StateOfferSent, StateAwaitingOffer, StateAnswerSent, StateNegotiatingICE} {
		test.That(t, s.Terminal(), test.ShouldBeFalse)
		test.That(t, s.Negotiating(), test.ShouldBeTrue)
	}
	test.That(t, StateIdle.Negotiating(), test.ShouldBeFalse)
	test.That(t, StateConnected.Negotiating(), test.ShouldBeFalse)
}

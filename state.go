package call

// State is the phase of one call attempt.
type State string

const (
	StateIdle           State = "idle"
	StateAcquiringMedia State = "acquiring-media"
	StateCreatingOffer  State = "creating-offer"
	StateOfferSent      State = "offer-sent"
	StateAwaitingOffer  State = "awaiting-offer"
	StateAnswerSent     State = "answer-sent"
	StateNegotiatingICE State = "negotiating-ice"
	StateConnected      State = "connected"
	StateEnded          State = "ended"
	StateError          State = "error"
	StateDeclined       State = "declined"
)

var transitions = map[State][]State{
	StateIdle:           {StateAcquiringMedia},
	StateAcquiringMedia: {StateCreatingOffer, StateAwaitingOffer},
	StateCreatingOffer:  {StateOfferSent},
	StateOfferSent:      {StateNegotiatingICE, StateConnected},
	StateAwaitingOffer:  {StateAnswerSent},
	StateAnswerSent:     {StateNegotiatingICE, StateConnected},
	StateNegotiatingICE: {StateConnected},
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateEnded || s == StateError || s == StateDeclined
}

// CanTransition reports whether s may move to next. Every non-terminal state
// may end or fail; declined is only reachable before connected.
func (s State) CanTransition(next State) bool {
	if s.Terminal() {
		return false
	}
	switch next {
	case StateEnded, StateError:
		return true
	case StateDeclined:
		return s != StateConnected
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Negotiating reports whether local media is attached and the session is
// still exchanging descriptions.
func (s State) Negotiating() bool {
	switch s {
	case StateCreatingOffer, StateOfferSent, StateAwaitingOffer, StateAnswerSent, StateNegotiatingICE:
		return true
	default:
		return false
	}
}

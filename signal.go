package call

import (
	"context"
	"time"
)

const (
	FieldType             = "type"
	FieldOffer            = "offer"
	FieldAnswer           = "answer"
	FieldCandidate        = "candidate"
	FieldCallerCandidates = "callerCandidates"
	FieldCalleeCandidates = "calleeCandidates"
	FieldDeclinedBy       = "declinedBy"
	FieldCallerID         = "callerId"
	FieldSDP              = "sdp"
	FieldSDPType          = "type"
	FieldTimestamp        = "timestamp"
	FieldUpdatedAt        = "updatedAt"
)

type MessageType string

const (
	MessageOffer    MessageType = "offer"
	MessageAnswer   MessageType = "answer"
	MessageICE      MessageType = "ice"
	MessageEnd      MessageType = "end"
	MessageDeclined MessageType = "declined"
)

// Control reports whether the message closes the call. Control messages are
// the only ones still delivered once the sending session has terminated.
func (t MessageType) Control() bool {
	return t == MessageEnd || t == MessageDeclined
}

type Role int

const (
	RoleCaller Role = iota
	RoleCallee
)

func (r Role) String() string {
	if r == RoleCaller {
		return "caller"
	}
	return "callee"
}

func (r Role) Remote() Role {
	if r == RoleCaller {
		return RoleCallee
	}
	return RoleCaller
}

// CandidatesField is the append-only record field holding the candidates
// written by r.
func (r Role) CandidatesField() string {
	if r == RoleCaller {
		return FieldCallerCandidates
	}
	return FieldCalleeCandidates
}

type Offer struct {
	CallerID  string    `firestore:"callerId" json:"callerId"`
	SDP       string    `firestore:"sdp,omitempty" json:"sdp,omitempty"`
	Type      string    `firestore:"type,omitempty" json:"type,omitempty"`
	Timestamp time.Time `firestore:"timestamp,omitempty" json:"timestamp,omitempty"`
}

type Answer struct {
	SDP  string `firestore:"sdp" json:"sdp"`
	Type string `firestore:"type" json:"type"`
}

// Candidate mirrors webrtc.ICECandidateInit with storage tags.
type Candidate struct {
	Candidate        string  `firestore:"candidate" json:"candidate"`
	SDPMid           *string `firestore:"sdpMid,omitempty" json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `firestore:"sdpMLineIndex,omitempty" json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `firestore:"usernameFragment,omitempty" json:"usernameFragment,omitempty"`
}

// Message is one merge-update written to the call record.
type Message struct {
	Type       MessageType
	Offer      *Offer
	Answer     *Answer
	Candidate  *Candidate
	DeclinedBy string
}

// Record is the full current state of a call record as delivered by a
// SignalingChannel subscription.
type Record struct {
	Type             MessageType `firestore:"type" json:"type"`
	Offer            *Offer      `firestore:"offer,omitempty" json:"offer,omitempty"`
	Answer           *Answer     `firestore:"answer,omitempty" json:"answer,omitempty"`
	Candidate        *Candidate  `firestore:"candidate,omitempty" json:"candidate,omitempty"`
	CallerCandidates []Candidate `firestore:"callerCandidates,omitempty" json:"callerCandidates,omitempty"`
	CalleeCandidates []Candidate `firestore:"calleeCandidates,omitempty" json:"calleeCandidates,omitempty"`
	DeclinedBy       string      `firestore:"declinedBy,omitempty" json:"declinedBy,omitempty"`
	UpdatedAt        time.Time   `firestore:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

// CandidatesFrom returns the candidates written by role, in write order.
func (r Record) CandidatesFrom(role Role) []Candidate {
	if role == RoleCaller {
		return r.CallerCandidates
	}
	return r.CalleeCandidates
}

// Merge applies msg, written by from, the way a merge-update would: fields
// present in msg replace the record's, candidates are appended to the
// writer's list.
func (r *Record) Merge(from Role, msg Message, at time.Time) {
	r.Type = msg.Type
	r.UpdatedAt = at

	if msg.Offer != nil {
		offer := *msg.Offer
		if offer.Timestamp.IsZero() {
			offer.Timestamp = at
		}
		r.Offer = &offer
	}
	if msg.Answer != nil {
		answer := *msg.Answer
		r.Answer = &answer
	}
	if msg.Candidate != nil {
		candidate := *msg.Candidate
		r.Candidate = &candidate
		if from == RoleCaller {
			r.CallerCandidates = append(r.CallerCandidates, candidate)
		} else {
			r.CalleeCandidates = append(r.CalleeCandidates, candidate)
		}
	}
	if msg.DeclinedBy != "" {
		r.DeclinedBy = msg.DeclinedBy
	}
}

type (
	// SignalingChannel is the shared call record of one call id, bound to the
	// role of the local peer.
	SignalingChannel interface {
		// Send merges msg into the record. It never replaces the record.
		Send(ctx context.Context, msg Message) error
		// Listen invokes fn with the full record on every change. Unchanged
		// states are collapsed.
		Listen(fn func(Record)) (unsubscribe func(), err error)
	}

	// OfferWatcher reports every added or modified call record of a match.
	OfferWatcher interface {
		WatchCalls(ctx context.Context, fn func(callID string, record Record)) (stop func(), err error)
	}

	// ChannelFactory binds a SignalingChannel to a call id and local role.
	ChannelFactory func(callID string, role Role) (SignalingChannel, error)
)

package call

import (
	"errors"

	"go.uber.org/zap"
)

// Termination describes how a call attempt ended. Only the first cause of a
// session is ever reported.
type Termination struct {
	Reason        error
	Fatal         bool
	UserInitiated bool
	// State is the terminal state the session settled in.
	State State
	// Connected reports whether media ever flowed.
	Connected bool
}

// Status is the human readable reason of the termination.
func (t Termination) Status() string {
	return reasonText(t.Reason)
}

var reasons = []error{
	ErrMediaUnavailable,
	ErrNegotiation,
	ErrConnectivity,
	ErrRingTimeout,
	ErrRemoteEnded,
	ErrDeclined,
	ErrHangup,
}

func reasonText(err error) string {
	if err == nil {
		return ErrHangup.Error()
	}
	for _, reason := range reasons {
		if errors.Is(err, reason) {
			return reason.Error()
		}
	}
	return err.Error()
}

func (e *Engine) terminalState(reason error, connected bool) State {
	switch {
	case errors.Is(reason, ErrHangup), errors.Is(reason, ErrRemoteEnded):
		return StateEnded
	case errors.Is(reason, ErrDeclined):
		if connected {
			return StateEnded
		}
		return StateDeclined
	default:
		return StateError
	}
}

func (e *Engine) hangup() {
	if e.terminal || e.hangingUp {
		return
	}
	e.hangingUp = true
	e.logger.Info("hanging up")

	e.graceTimer = e.clock.AfterFunc(e.config.HangupGrace, func() {
		e.post(func() { e.terminate(ErrHangup, true, true) })
	})
	e.enqueue(Message{Type: MessageEnd})
}

// terminate is the single teardown path of the session. It is idempotent and
// runs on the event loop, except for failures inside Start.
func (e *Engine) terminate(reason error, fatal, userInitiated bool) {
	if e.terminal {
		return
	}
	e.terminal = true
	e.terminated.Store(true)

	e.mux.Lock()
	prev := e.state
	connected := !e.startedAt.IsZero()
	next := e.terminalState(reason, connected)
	e.state = next
	termination := Termination{
		Reason:        reason,
		Fatal:         fatal,
		UserInitiated: userInitiated,
		State:         next,
		Connected:     connected,
	}
	e.termination = &termination
	e.mux.Unlock()

	// closing done first releases every goroutine blocked on post
	close(e.done)

	if e.ringTimer != nil {
		e.ringTimer.Stop()
	}
	if e.graceTimer != nil {
		e.graceTimer.Stop()
	}
	if e.ticker != nil {
		e.ticker.Stop()
	}
	if e.unsubscribe != nil {
		e.unsubscribe()
	}
	if e.capture != nil {
		if err := e.capture.Close(); err != nil {
			e.logger.Warn("failed to release local media", zap.Error(err))
		}
	}
	if e.peer != nil {
		if err := e.peer.Close(); err != nil {
			e.logger.Warn("failed to close peer connection", zap.Error(err))
		}
	}
	close(e.outbox)
	if e.cancel != nil {
		e.cancel()
	}

	e.logger.Info("call attempt terminated",
		zap.String("from", string(prev)),
		zap.String("state", string(next)),
		zap.Bool("fatal", fatal),
		zap.Bool("user_initiated", userInitiated),
		zap.Error(reason),
	)

	if e.onStateChange != nil {
		e.onStateChange(next)
	}
	if e.onEnd != nil {
		e.onEnd(termination)
	}
}

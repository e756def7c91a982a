package call

import (
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

type EngineOption = func(*Engine) error

func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) error {
		if logger == nil {
			return errors.New("nil logger")
		}
		e.logger = logger
		return nil
	}
}

// WithClock replaces the wall clock driving the ring timeout, hangup grace
// and duration ticker.
func WithClock(c clock.Clock) EngineOption {
	return func(e *Engine) error {
		if c == nil {
			return errors.New("nil clock")
		}
		e.clock = c
		return nil
	}
}

func WithConfig(config Config) EngineOption {
	return func(e *Engine) error {
		if err := config.Validate(); err != nil {
			return err
		}
		e.config = config
		return nil
	}
}

// WithOnCallStarted is invoked once, when the first remote track arrives.
// Callback options add to each other; earlier ones run first.
func WithOnCallStarted(fn func()) EngineOption {
	return func(e *Engine) error {
		if prev := e.onCallStarted; prev != nil && fn != nil {
			e.onCallStarted = func() {
				prev()
				fn()
			}
			return nil
		}
		if fn != nil {
			e.onCallStarted = fn
		}
		return nil
	}
}

// WithOnEnd is invoked exactly once with the first termination cause.
func WithOnEnd(fn func(Termination)) EngineOption {
	return func(e *Engine) error {
		if prev := e.onEnd; prev != nil && fn != nil {
			e.onEnd = func(termination Termination) {
				prev(termination)
				fn(termination)
			}
			return nil
		}
		if fn != nil {
			e.onEnd = fn
		}
		return nil
	}
}

func WithOnStateChange(fn func(State)) EngineOption {
	return func(e *Engine) error {
		if prev := e.onStateChange; prev != nil && fn != nil {
			e.onStateChange = func(state State) {
				prev(state)
				fn(state)
			}
			return nil
		}
		if fn != nil {
			e.onStateChange = fn
		}
		return nil
	}
}

func WithOnDurationTick(fn func(time.Duration)) EngineOption {
	return func(e *Engine) error {
		if prev := e.onDurationTick; prev != nil && fn != nil {
			e.onDurationTick = func(d time.Duration) {
				prev(d)
				fn(d)
			}
			return nil
		}
		if fn != nil {
			e.onDurationTick = fn
		}
		return nil
	}
}

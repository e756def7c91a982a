package call

import (
	"errors"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

type ControllerOption = func(*Controller) error

func WithControllerLogger(logger *zap.Logger) ControllerOption {
	return func(c *Controller) error {
		if logger == nil {
			return errors.New("nil logger")
		}
		c.logger = logger
		return nil
	}
}

func WithControllerClock(cl clock.Clock) ControllerOption {
	return func(c *Controller) error {
		if cl == nil {
			return errors.New("nil clock")
		}
		c.clock = cl
		return nil
	}
}

func WithControllerConfig(config Config) ControllerOption {
	return func(c *Controller) error {
		if err := config.Validate(); err != nil {
			return err
		}
		c.config = config
		return nil
	}
}

func WithOfferWatcher(watcher OfferWatcher) ControllerOption {
	return func(c *Controller) error {
		c.watcher = watcher
		return nil
	}
}

// WithEngineOptions are applied to every engine the controller creates.
// Callbacks given here run after the controller's own bookkeeping.
func WithEngineOptions(options ...EngineOption) ControllerOption {
	return func(c *Controller) error {
		c.engineOptions = append(c.engineOptions, options...)
		return nil
	}
}

func WithOnIncomingCall(fn func(*IncomingCall)) ControllerOption {
	return func(c *Controller) error {
		c.onIncomingCall = fn
		return nil
	}
}

func WithOnIncomingDismissed(fn func(callID string)) ControllerOption {
	return func(c *Controller) error {
		c.onIncomingDismissed = fn
		return nil
	}
}

func WithOnCallConnected(fn func(callID string)) ControllerOption {
	return func(c *Controller) error {
		c.onCallStarted = fn
		return nil
	}
}

func WithOnCallEnded(fn func(callID string, termination Termination)) ControllerOption {
	return func(c *Controller) error {
		c.onCallEnded = fn
		return nil
	}
}

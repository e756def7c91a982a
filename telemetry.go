package call

import (
	"fmt"
	"time"
)

const (
	StatusRinging    = "Ringing..."
	StatusConnecting = "Connecting..."
)

// Telemetry is a point in time view of a call attempt for display.
type Telemetry struct {
	State            State
	Status           string
	Duration         time.Duration
	RemoteAudioLevel float64
	Stats            Stat
}

// FormatDuration renders d as mm:ss. Minutes keep counting past the hour.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	seconds := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

func (e *Engine) Telemetry() Telemetry {
	e.mux.RLock()
	state := e.state
	peer := e.peer
	termination := e.termination
	e.mux.RUnlock()

	t := Telemetry{State: state}

	switch {
	case termination != nil:
		t.Status = termination.Status()
	case state == StateConnected:
		t.Duration = e.duration()
		t.Status = FormatDuration(t.Duration)
	case e.role == RoleCaller:
		t.Status = StatusRinging
	default:
		t.Status = StatusConnecting
	}

	if peer != nil && state == StateConnected {
		t.RemoteAudioLevel = peer.RemoteAudioLevel()
		t.Stats = peer.Stats()
	}

	return t
}

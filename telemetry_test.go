package call

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"go.viam.com/test"
)

func TestFormatDuration(t *testing.T) {
	for _, tc := range []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00"},
		{-time.Second, "00:00"},
		{999 * time.Millisecond, "00:00"},
		{30 * time.Second, "00:30"},
		{65 * time.Second, "01:05"},
		{59*time.Minute + 59*time.Second, "59:59"},
		{61 * time.Minute, "61:00"},
	} {
		test.That(t, FormatDuration(tc.in), test.ShouldEqual, tc.want)
	}
}

func TestTerminationStatus(t *testing.T) {
	for _, tc := range []struct {
		reason error
		want   string
	}{
		{nil, ErrHangup.Error()},
		{ErrRingTimeout, "call could not be established"},
		{fmt.Errorf("%w: ICE connection failed", ErrConnectivity), "connection lost"},
		{fmt.Errorf("%w: %w", ErrMediaUnavailable, errors.New("busy")), "could not access camera/microphone"},
		{ErrDeclined, "call was declined"},
		{ErrRemoteEnded, "call ended by remote user"},
		{errors.New("other"), "other"},
	} {
		test.That(t, Termination{Reason: tc.reason}.Status(), test.ShouldEqual, tc.want)
	}
}

func TestTerminalState(t *testing.T) {
	e := &Engine{}
	test.That(t, e.terminalState(ErrHangup, false), test.ShouldEqual, StateEnded)
	test.That(t, e.terminalState(ErrRemoteEnded, true), test.ShouldEqual, StateEnded)
	test.That(t, e.terminalState(ErrDeclined, false), test.ShouldEqual, StateDeclined)
	test.That(t, e.terminalState(ErrDeclined, true), test.ShouldEqual, StateEnded)
	test.That(t, e.terminalState(ErrRingTimeout, false), test.ShouldEqual, StateError)
	test.That(t, e.terminalState(ErrNegotiation, true), test.ShouldEqual, StateError)
}

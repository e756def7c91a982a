package call

import "errors"

var (
	ErrMediaUnavailable = errors.New("could not access camera/microphone")
	ErrNegotiation      = errors.New("session negotiation failed")
	ErrConnectivity     = errors.New("connection lost")
	ErrRingTimeout      = errors.New("call could not be established")
	ErrRemoteEnded      = errors.New("call ended by remote user")
	ErrDeclined         = errors.New("call was declined")
	ErrHangup           = errors.New("call ended")

	ErrCallInProgress = errors.New("a call is already in progress")
	ErrEngineStarted  = errors.New("engine already started")
	ErrEngineStopped  = errors.New("engine hung up before start")
	ErrUnknownCall    = errors.New("unknown call")
)

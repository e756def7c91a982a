//go:build !linux

package mediasource

import (
	"context"

	"go.uber.org/zap"
)

// DeviceSource has no capture drivers on this platform; Acquire always fails
// with ErrNoDevice.
type DeviceSource struct {
	logger *zap.Logger
}

func NewDeviceSource(logger *zap.Logger) *DeviceSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeviceSource{logger: logger.Named("mediasource.device")}
}

func (s *DeviceSource) Acquire(_ context.Context) (*Capture, error) {
	s.logger.Warn("camera/microphone capture is only supported on linux")
	return nil, ErrNoDevice
}

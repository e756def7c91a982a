package mediasink

import (
	"math"
	"sync/atomic"
)

const (
	// levelSmoothing weights the newest observation of the moving average.
	levelSmoothing = 0.3

	// opusSilenceBytes and opusLoudBytes bound the payload-size estimate used
	// when the sender does not attach an audio level extension.
	opusSilenceBytes = 3
	opusLoudBytes    = 160
)

// LevelMeter tracks the audio level of one call's inbound audio, normalised
// to [0,1]. It belongs to a single session.
type LevelMeter struct {
	bits atomic.Uint64
}

func NewLevelMeter() *LevelMeter {
	return &LevelMeter{}
}

func (m *LevelMeter) Level() float64 {
	return math.Float64frombits(m.bits.Load())
}

// ObserveDBov records an RFC 6464 level, 0 being the loudest and 127 silence.
func (m *LevelMeter) ObserveDBov(level uint8) {
	if level > 127 {
		level = 127
	}
	m.observe(1 - float64(level)/127)
}

// ObservePayload estimates the level from an Opus payload size.
func (m *LevelMeter) ObservePayload(size int) {
	value := float64(size-opusSilenceBytes) / float64(opusLoudBytes-opusSilenceBytes)
	m.observe(math.Max(0, math.Min(1, value)))
}

func (m *LevelMeter) Reset() {
	m.bits.Store(0)
}

func (m *LevelMeter) observe(value float64) {
	for {
		old := m.bits.Load()
		next := levelSmoothing*value + (1-levelSmoothing)*math.Float64frombits(old)
		if m.bits.CompareAndSwap(old, math.Float64bits(next)) {
			return
		}
	}
}

package call

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries the timing and ICE settings of call attempts.
type Config struct {
	RingTimeout   time.Duration `json:"ring_timeout"`
	HangupGrace   time.Duration `json:"hangup_grace"`
	SendTimeout   time.Duration `json:"send_timeout"`
	StatsInterval time.Duration `json:"stats_interval"`
	STUNServer    string        `json:"stun_server"`
}

func DefaultConfig() Config {
	return Config{
		RingTimeout:   DefaultRingTimeout,
		HangupGrace:   DefaultHangupGrace,
		SendTimeout:   DefaultSendTimeout,
		StatsInterval: DefaultStatsInterval,
		STUNServer:    DefaultSTUNServer,
	}
}

// LoadConfig reads the given env files (.env when none is given, a missing
// file is not an error) and overrides the defaults with:
//
//	CALL_RING_TIMEOUT, CALL_HANGUP_GRACE, CALL_SEND_TIMEOUT,
//	CALL_STATS_INTERVAL (durations), STUN_SERVER_URL.
func LoadConfig(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load env file %s: %w", file, err)
		}
	}

	config := DefaultConfig()

	durations := []struct {
		key    string
		target *time.Duration
	}{
		{"CALL_RING_TIMEOUT", &config.RingTimeout},
		{"CALL_HANGUP_GRACE", &config.HangupGrace},
		{"CALL_SEND_TIMEOUT", &config.SendTimeout},
		{"CALL_STATS_INTERVAL", &config.StatsInterval},
	}
	for _, d := range durations {
		value, err := durationFromEnv(d.key)
		if err != nil {
			return Config{}, err
		}
		if value > 0 {
			*d.target = value
		}
	}

	if url := os.Getenv("STUN_SERVER_URL"); url != "" {
		config.STUNServer = url
	}

	return config, config.Validate()
}

func (c Config) Validate() error {
	if c.RingTimeout <= 0 {
		return errors.New("ring timeout must be positive")
	}
	if c.HangupGrace < 0 {
		return errors.New("hangup grace must not be negative")
	}
	if c.SendTimeout <= 0 {
		return errors.New("send timeout must be positive")
	}
	if c.STUNServer == "" {
		return errors.New("a STUN server is required")
	}
	return nil
}

func durationFromEnv(key string) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, nil
	}

	if d, err := time.ParseDuration(raw); err == nil {
		return d, nil
	}
	// bare integers are milliseconds
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration in %s: %q", key, raw)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// ClientConfig declares the media engine and interceptors of a Client.
type ClientConfig struct {
	VP8  *VP8Config  `json:"vp8,omitempty"`
	Opus *OpusConfig `json:"opus,omitempty"`

	NACK        *NACKPreset        `json:"nack,omitempty"`
	RTCPReports *RTCPReportsPreset `json:"rtcp_reports,omitempty"`
	TWCC        *TWCCPreset        `json:"twcc,omitempty"`

	AudioLevel          bool `json:"audio_level,omitempty"`
	TWCCHeaderExtension bool `json:"twcc_header_extension,omitempty"`
}

type VP8Config struct {
	ClockRate uint32 `json:"clock_rate"`
}

type OpusConfig struct {
	SampleRate    uint32 `json:"sample_rate"`
	ChannelLayout uint16 `json:"channel_layout"`
}

type NACKPreset string
type RTCPReportsPreset string
type TWCCPreset string

const (
	NACKLowLatency   NACKPreset = "low_latency"
	NACKDefault      NACKPreset = "default"
	NACKLowBandwidth NACKPreset = "low_bandwidth"

	RTCPReportsLowLatency   RTCPReportsPreset = "low_latency"
	RTCPReportsDefault      RTCPReportsPreset = "default"
	RTCPReportsLowBandwidth RTCPReportsPreset = "low_bandwidth"

	TWCCLowLatency   TWCCPreset = "low_latency"
	TWCCDefault      TWCCPreset = "default"
	TWCCLowBandwidth TWCCPreset = "low_bandwidth"
)

// DefaultClientConfig is the audio/video call profile.
func DefaultClientConfig() ClientConfig {
	nack := NACKDefault
	reports := RTCPReportsDefault
	twcc := TWCCDefault

	return ClientConfig{
		VP8:         &VP8Config{ClockRate: 90000},
		Opus:        &OpusConfig{SampleRate: 48000, ChannelLayout: 2},
		NACK:        &nack,
		RTCPReports: &reports,
		TWCC:        &twcc,
		AudioLevel:  true,
	}
}

type optionBuilder struct {
	options []ClientOption
}

func (ob *optionBuilder) add(option ClientOption) *optionBuilder {
	if option != nil {
		ob.options = append(ob.options, option)
	}
	return ob
}

var (
	nackGeneratorPresets = map[NACKPreset]NACKGeneratorOptions{
		NACKLowLatency:   NACKGeneratorLowLatency,
		NACKDefault:      NACKGeneratorDefault,
		NACKLowBandwidth: NACKGeneratorLowBandwidth,
	}

	nackResponderPresets = map[NACKPreset]NACKResponderOptions{
		NACKLowLatency:   NACKResponderLowLatency,
		NACKDefault:      NACKResponderDefault,
		NACKLowBandwidth: NACKResponderLowBandwidth,
	}

	rtcpReportsPresets = map[RTCPReportsPreset]RTCPReportInterval{
		RTCPReportsLowLatency:   RTCPReportIntervalLowLatency,
		RTCPReportsDefault:      RTCPReportIntervalDefault,
		RTCPReportsLowBandwidth: RTCPReportIntervalLowBandwidth,
	}

	twccPresets = map[TWCCPreset]TWCCSenderInterval{
		TWCCLowLatency:   TWCCIntervalLowLatency,
		TWCCDefault:      TWCCIntervalDefault,
		TWCCLowBandwidth: TWCCIntervalLowBandwidth,
	}
)

func (c *ClientConfig) ToOptions() []ClientOption {
	builder := &optionBuilder{}

	return builder.
		add(c.vp8Option()).
		add(c.opusOption()).
		add(c.audioLevelOption()).
		add(c.nackOption()).
		add(c.rtcpReportsOption()).
		add(c.twccOption()).
		add(c.twccHeaderOption()).
		options
}

func (c *ClientConfig) vp8Option() ClientOption {
	if c.VP8 == nil {
		return nil
	}
	return WithVP8MediaEngine(c.VP8.ClockRate)
}

func (c *ClientConfig) opusOption() ClientOption {
	if c.Opus == nil {
		return nil
	}
	return WithOpusMediaEngine(c.Opus.SampleRate, c.Opus.ChannelLayout)
}

func (c *ClientConfig) audioLevelOption() ClientOption {
	if !c.AudioLevel {
		return nil
	}
	return WithAudioLevelHeaderExtension()
}

func (c *ClientConfig) nackOption() ClientOption {
	if c.NACK == nil {
		return nil
	}

	generator, generatorExists := nackGeneratorPresets[*c.NACK]
	responder, responderExists := nackResponderPresets[*c.NACK]

	if !generatorExists || !responderExists {
		return nil
	}

	return WithNACKInterceptor(generator, responder)
}

func (c *ClientConfig) rtcpReportsOption() ClientOption {
	if c.RTCPReports == nil {
		return nil
	}

	interval, exists := rtcpReportsPresets[*c.RTCPReports]
	if !exists {
		return nil
	}

	return WithRTCPReportsInterceptor(interval)
}

func (c *ClientConfig) twccOption() ClientOption {
	if c.TWCC == nil {
		return nil
	}

	interval, exists := twccPresets[*c.TWCC]
	if !exists {
		return nil
	}

	return WithTWCCSenderInterceptor(interval)
}

func (c *ClientConfig) twccHeaderOption() ClientOption {
	if !c.TWCCHeaderExtension {
		return nil
	}
	return WithTWCCHeaderExtensionSender()
}

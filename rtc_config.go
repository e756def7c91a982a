package call

import (
	"github.com/pion/webrtc/v4"
)

// GetSTUNOnlyRTCConfiguration returns a configuration with exactly one STUN
// server and no relay.
func GetSTUNOnlyRTCConfiguration(url string) webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{url},
			},
		},
	}
}

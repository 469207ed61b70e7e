package utils

import (
	"github.com/pion/webrtc/v3"

	"signaling/internal/config"
)

// BuildWebRTCConfig assembles the ICE server configuration served to
// clients before they start the handshake.
func BuildWebRTCConfig(cfg *config.Config) webrtc.Configuration {
	var iceServers []webrtc.ICEServer

	for _, stun := range cfg.STUNServers {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs: []string{stun},
		})
	}

	if cfg.TurnURL != "" {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       []string{cfg.TurnURL},
			Username:   cfg.TurnUsername,
			Credential: cfg.TurnPassword,
		})
	}

	return webrtc.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: webrtc.ICETransportPolicyAll,
		BundlePolicy:       webrtc.BundlePolicyMaxBundle,
		RTCPMuxPolicy:      webrtc.RTCPMuxPolicyRequire,
	}
}

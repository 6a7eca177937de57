// Package session wires one remote-desktop session's transport
// subsystems (DTLS channel, packet cache, jitter buffer, NACK emitter,
// QoS reporter, rate controller, P2P bootstrap, clipboard sync,
// signaling) into the §4.9 pipeline coordinator, and exposes the §6
// control-channel command surface that drives its lifecycle.
package session

import (
	"fmt"

	"github.com/relaycast/core/internal/media"
)

// GamingMode selects the jitter-buffer-depth/frame-rate tradeoff point a
// session targets, per §6's named presets.
type GamingMode string

const (
	GamingModeCompetitive GamingMode = "competitive"
	GamingModeBalanced    GamingMode = "balanced"
	GamingModeCinematic   GamingMode = "cinematic"
)

// gamingModeDefaults is the §6 table of (target jitter-buffer depth,
// target frame rate) per named mode.
var gamingModeDefaults = map[GamingMode]struct {
	TargetDepthMs int
	TargetFPS     int
}{
	GamingModeCompetitive: {TargetDepthMs: 1, TargetFPS: 240},
	GamingModeBalanced:    {TargetDepthMs: 4, TargetFPS: 120},
	GamingModeCinematic:   {TargetDepthMs: 8, TargetFPS: 60},
}

// Defaults returns this mode's target jitter-buffer depth (milliseconds)
// and target frame rate. An unrecognized mode returns Balanced's values.
func (g GamingMode) Defaults() (targetDepthMs int, targetFPS int) {
	d, ok := gamingModeDefaults[g]
	if !ok {
		d = gamingModeDefaults[GamingModeBalanced]
	}
	return d.TargetDepthMs, d.TargetFPS
}

// Valid reports whether g is one of the three named presets.
func (g GamingMode) Valid() bool {
	_, ok := gamingModeDefaults[g]
	return ok
}

// Config is the §6 session configuration value object.
type Config struct {
	SessionID string `json:"session_id"`

	// Role selects which side of the session this process plays: "host"
	// supplies the encoder and send-side transport (cache, rate
	// controller); "viewer" supplies the decoder/renderer and
	// receive-side transport (jitter buffer, NACK tracker, QoS
	// reporter). Not part of §6's own wire table, but every
	// prepare_session call needs to say which role it's asking for —
	// the alternative (inferring it from which other fields are set)
	// would be more fragile than naming it directly.
	Role string `json:"role"`

	Codec  media.Codec `json:"codec"`
	Width  int         `json:"width"`
	Height int         `json:"height"`
	FPS    int         `json:"fps"`

	BitrateKbps    int `json:"bitrate_kbps"`
	MinBitrateKbps int `json:"min_bitrate_kbps"`
	MaxBitrateKbps int `json:"max_bitrate_kbps"`
	GOPLength      int `json:"gop_length"`

	GamingMode GamingMode `json:"gaming_mode"`

	UseDTLS        bool   `json:"use_dtls"`
	PeerIP         string `json:"peer_ip"`
	PeerPort       int    `json:"peer_port"`
	PeerFingerprint string `json:"peer_fingerprint"`

	StunServers []string `json:"stun_servers"`
}

// ApplyGamingModeDefaults fills FPS from the gaming mode preset when the
// caller didn't pin one explicitly (fps <= 0).
func (c *Config) ApplyGamingModeDefaults() {
	if c.GamingMode == "" {
		c.GamingMode = GamingModeBalanced
	}
	if c.FPS <= 0 {
		_, fps := c.GamingMode.Defaults()
		c.FPS = fps
	}
}

// Validate rejects a configuration the §7 Configuration error class names
// as refused-at-start: invalid codec, resolution, or fingerprint.
func (c *Config) Validate() error {
	switch c.Codec {
	case media.CodecH264, media.CodecH265, media.CodecAV1:
	default:
		return fmt.Errorf("session: %w: %q", media.ErrInvalidCodec, c.Codec)
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("session: %w: %dx%d", media.ErrInvalidDimensions, c.Width, c.Height)
	}
	if c.GamingMode != "" && !c.GamingMode.Valid() {
		return fmt.Errorf("session: invalid gaming_mode %q", c.GamingMode)
	}
	if c.UseDTLS && c.PeerFingerprint == "" {
		return fmt.Errorf("session: use_dtls requires peer_fingerprint")
	}
	if c.MinBitrateKbps > 0 && c.MaxBitrateKbps > 0 && c.MinBitrateKbps > c.MaxBitrateKbps {
		return fmt.Errorf("session: min_bitrate_kbps %d exceeds max_bitrate_kbps %d", c.MinBitrateKbps, c.MaxBitrateKbps)
	}
	return nil
}

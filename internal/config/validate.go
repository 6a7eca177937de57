package config

import (
	"fmt"
	"net/url"
	"strings"
)

var knownCodecs = map[string]bool{
	"h264": true,
	"h265": true,
	"av1":  true,
}

var knownGamingModes = map[string]bool{
	"competitive": true,
	"balanced":    true,
	"cinematic":   true,
}

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

// ValidationResult separates config problems §7's Configuration error
// class treats as fatal (refused at start) from ones that are
// auto-corrected to a safe value and merely logged.
type ValidationResult struct {
	Fatals   []error
	Warnings []error
}

// HasFatals reports whether startup should be refused.
func (r ValidationResult) HasFatals() bool { return len(r.Fatals) > 0 }

// AllErrors returns fatals followed by warnings, for callers that just
// want to log everything found.
func (r ValidationResult) AllErrors() []error {
	all := make([]error, 0, len(r.Fatals)+len(r.Warnings))
	all = append(all, r.Fatals...)
	all = append(all, r.Warnings...)
	return all
}

// ValidateTiered checks the config for invalid values. An invalid codec,
// gaming mode, signaling URL scheme, or control socket path is a fatal
// Configuration error (§7: "invalid codec/resolution/fingerprint ...
// refused at start"). Everything else (log level/format typos, session
// concurrency bounds) is clamped to a safe default and reported as a
// warning rather than blocking startup.
func (c *Config) ValidateTiered() ValidationResult {
	var r ValidationResult

	if c.ControlSocketPath == "" {
		r.Fatals = append(r.Fatals, fmt.Errorf("control_socket_path must not be empty"))
	}

	if c.SignalingServerURL != "" {
		u, err := url.Parse(c.SignalingServerURL)
		if err != nil {
			r.Fatals = append(r.Fatals, fmt.Errorf("signaling_server_url %q is not a valid URL: %w", c.SignalingServerURL, err))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			r.Fatals = append(r.Fatals, fmt.Errorf("signaling_server_url scheme must be http or https, got %q", u.Scheme))
		}
	}

	if c.DefaultCodec != "" && !knownCodecs[strings.ToLower(c.DefaultCodec)] {
		r.Fatals = append(r.Fatals, fmt.Errorf("default_codec %q is not one of h264, h265, av1", c.DefaultCodec))
	}

	if c.DefaultGamingMode != "" && !knownGamingModes[strings.ToLower(c.DefaultGamingMode)] {
		r.Fatals = append(r.Fatals, fmt.Errorf("default_gaming_mode %q is not one of competitive, balanced, cinematic", c.DefaultGamingMode))
	}

	if c.MaxConcurrentSessions < 1 {
		r.Warnings = append(r.Warnings, fmt.Errorf("max_concurrent_sessions %d is below minimum 1, clamping", c.MaxConcurrentSessions))
		c.MaxConcurrentSessions = 1
	} else if c.MaxConcurrentSessions > 64 {
		r.Warnings = append(r.Warnings, fmt.Errorf("max_concurrent_sessions %d exceeds maximum 64, clamping", c.MaxConcurrentSessions))
		c.MaxConcurrentSessions = 64
	}

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		r.Warnings = append(r.Warnings, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error), defaulting to info", c.LogLevel))
		c.LogLevel = "info"
	}

	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		r.Warnings = append(r.Warnings, fmt.Errorf("log_format %q is not valid (use text or json), defaulting to text", c.LogFormat))
		c.LogFormat = "text"
	}

	for _, s := range c.StunServers {
		if !strings.HasPrefix(s, "stun:") && !strings.HasPrefix(s, "stuns:") {
			r.Warnings = append(r.Warnings, fmt.Errorf("stun_server %q missing stun:// scheme", s))
		}
	}

	return r
}

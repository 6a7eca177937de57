package config

import (
	"fmt"
	"strings"
	"testing"
)

func TestValidateTieredEmptyControlSocketPathIsFatal(t *testing.T) {
	cfg := Default()
	cfg.ControlSocketPath = ""
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("empty control_socket_path should be fatal")
	}
}

func TestValidateTieredInvalidSignalingURLSchemeIsFatal(t *testing.T) {
	cfg := Default()
	cfg.SignalingServerURL = "ftp://example.com"
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("invalid signaling_server_url scheme should be fatal")
	}
}

func TestValidateTieredUnknownCodecIsFatal(t *testing.T) {
	cfg := Default()
	cfg.DefaultCodec = "vp9"
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("unknown default_codec should be fatal")
	}
}

func TestValidateTieredUnknownGamingModeIsFatal(t *testing.T) {
	cfg := Default()
	cfg.DefaultGamingMode = "potato"
	result := cfg.ValidateTiered()
	if !result.HasFatals() {
		t.Fatal("unknown default_gaming_mode should be fatal")
	}
}

func TestValidateTieredSessionConcurrencyClamping(t *testing.T) {
	cfg := Default()
	cfg.MaxConcurrentSessions = 0
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("clamped concurrency should be warning, not fatal: %v", result.Fatals)
	}
	if cfg.MaxConcurrentSessions != 1 {
		t.Fatalf("MaxConcurrentSessions = %d, want 1", cfg.MaxConcurrentSessions)
	}

	cfg2 := Default()
	cfg2.MaxConcurrentSessions = 999
	result2 := cfg2.ValidateTiered()
	if result2.HasFatals() {
		t.Fatalf("clamped concurrency should be warning, not fatal: %v", result2.Fatals)
	}
	if cfg2.MaxConcurrentSessions != 64 {
		t.Fatalf("MaxConcurrentSessions = %d, want 64", cfg2.MaxConcurrentSessions)
	}
}

func TestValidateTieredUnknownLogLevelIsWarningAndDefaulted(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "verbose"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("unknown log level should not be fatal")
	}
	if len(result.Warnings) == 0 {
		t.Fatal("expected warning for unknown log level")
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("expected log level defaulted to info, got %q", cfg.LogLevel)
	}
}

func TestValidateTieredInvalidLogFormatIsWarningAndDefaulted(t *testing.T) {
	cfg := Default()
	cfg.LogFormat = "xml"
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("invalid log format should not be fatal")
	}
	if cfg.LogFormat != "text" {
		t.Fatalf("expected log format defaulted to text, got %q", cfg.LogFormat)
	}
}

func TestValidateTieredStunServerMissingSchemeIsWarning(t *testing.T) {
	cfg := Default()
	cfg.StunServers = []string{"stun.l.google.com:19302"}
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatal("malformed stun server entry should not be fatal")
	}
	found := false
	for _, err := range result.Warnings {
		if strings.Contains(err.Error(), "missing stun://") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected warning about missing stun scheme")
	}
}

func TestHasFatals(t *testing.T) {
	r := ValidationResult{}
	if r.HasFatals() {
		t.Fatal("HasFatals() on empty result should be false")
	}
	r.Fatals = append(r.Fatals, fmt.Errorf("test error"))
	if !r.HasFatals() {
		t.Fatal("HasFatals() should be true with a fatal error")
	}
}

func TestAllErrorsReturnsBoth(t *testing.T) {
	cfg := Default()
	cfg.SignalingServerURL = "ftp://bad" // fatal
	cfg.LogLevel = "verbose"             // warning
	result := cfg.ValidateTiered()

	all := result.AllErrors()
	if len(all) < 2 {
		t.Fatalf("AllErrors() returned %d errors, expected at least 2 (fatals + warnings)", len(all))
	}
}

func TestDefaultConfigHasNoErrors(t *testing.T) {
	cfg := Default()
	result := cfg.ValidateTiered()
	if result.HasFatals() {
		t.Fatalf("default config has fatals: %v", result.Fatals)
	}
	if len(result.Warnings) > 0 {
		t.Fatalf("default config has warnings: %v", result.Warnings)
	}
}

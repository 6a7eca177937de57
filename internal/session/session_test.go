package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/relaycast/core/internal/media"
)

func TestGamingModeDefaults(t *testing.T) {
	cases := []struct {
		mode          GamingMode
		wantDepthMs   int
		wantFPS       int
	}{
		{GamingModeCompetitive, 1, 240},
		{GamingModeBalanced, 4, 120},
		{GamingModeCinematic, 8, 60},
		{GamingMode("bogus"), 4, 120}, // falls back to Balanced
	}
	for _, c := range cases {
		depth, fps := c.mode.Defaults()
		if depth != c.wantDepthMs || fps != c.wantFPS {
			t.Errorf("%s: got (%d, %d), want (%d, %d)", c.mode, depth, fps, c.wantDepthMs, c.wantFPS)
		}
	}
}

func TestConfigApplyGamingModeDefaultsFillsFPS(t *testing.T) {
	cfg := Config{}
	cfg.ApplyGamingModeDefaults()
	if cfg.GamingMode != GamingModeBalanced {
		t.Fatalf("expected default mode Balanced, got %q", cfg.GamingMode)
	}
	if cfg.FPS != 120 {
		t.Fatalf("expected default fps 120, got %d", cfg.FPS)
	}
}

func TestConfigApplyGamingModeDefaultsRespectsExplicitFPS(t *testing.T) {
	cfg := Config{GamingMode: GamingModeCompetitive, FPS: 90}
	cfg.ApplyGamingModeDefaults()
	if cfg.FPS != 90 {
		t.Fatalf("expected explicit fps preserved, got %d", cfg.FPS)
	}
}

func TestConfigValidateRejectsBadCodec(t *testing.T) {
	cfg := Config{Codec: "vp9", Width: 1920, Height: 1080}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid codec")
	}
}

func TestConfigValidateRejectsZeroDimensions(t *testing.T) {
	cfg := Config{Codec: media.CodecH264, Width: 0, Height: 1080}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero width")
	}
}

func TestConfigValidateRequiresFingerprintWithDTLS(t *testing.T) {
	cfg := Config{Codec: media.CodecH264, Width: 1920, Height: 1080, UseDTLS: true}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when use_dtls is set without peer_fingerprint")
	}
}

func TestConfigValidateRejectsInvertedBitrateBounds(t *testing.T) {
	cfg := Config{Codec: media.CodecH264, Width: 1920, Height: 1080, MinBitrateKbps: 5000, MaxBitrateKbps: 1000}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for min_bitrate_kbps > max_bitrate_kbps")
	}
}

func TestConfigValidateAcceptsWellFormedConfig(t *testing.T) {
	cfg := Config{Codec: media.CodecH264, Width: 1920, Height: 1080, GamingMode: GamingModeBalanced}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestSessionForceIDRWithoutEncoderErrors(t *testing.T) {
	s := New(Config{SessionID: "s1"}, RoleViewer, Collaborators{})
	if err := s.ForceIDR(); err == nil {
		t.Fatal("expected error forcing IDR on a session with no encoder")
	}
}

func TestSessionSetGamingModeRejectsUnknownMode(t *testing.T) {
	s := New(Config{SessionID: "s1"}, RoleViewer, Collaborators{})
	if err := s.SetGamingMode(GamingMode("nonsense")); err == nil {
		t.Fatal("expected error for unknown gaming mode")
	}
}

func TestSessionStopBeforeStartIsSafe(t *testing.T) {
	s := New(Config{SessionID: "s1"}, RoleViewer, Collaborators{})
	s.Stop() // must not panic
}

// testFactory builds a bare viewer session with no encoder/decoder/
// renderer wired and signaling left unset, so Prepare/Start exercise only
// the P2P gather-and-dial path against a fixed loopback peer (cfg.UseDTLS
// stays false, since test params never set it) rather than needing a
// live peer or handshake partner.
func testFactory(cfg Config) (Role, Collaborators, error) {
	return RoleViewer, Collaborators{}, nil
}

func TestManagerPrepareStartStopLifecycle(t *testing.T) {
	m := NewManager(testFactory)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	prepareParams, _ := json.Marshal(Config{
		SessionID: "sess-1",
		Codec:     media.CodecH264,
		Width:     1920,
		Height:    1080,
		PeerIP:    "127.0.0.1",
		PeerPort:  59999,
	})

	if _, err := m.handlePrepareSession(ctx, prepareParams); err != nil {
		t.Fatalf("prepare_session: %v", err)
	}

	startParams, _ := json.Marshal(sessionIDParams{SessionID: "sess-1"})
	if _, err := m.handleStartSession(ctx, startParams); err != nil {
		t.Fatalf("start_session: %v", err)
	}

	statsParams, _ := json.Marshal(sessionIDParams{SessionID: "sess-1"})
	result, err := m.handleGetStats(ctx, statsParams)
	if err != nil {
		t.Fatalf("get_stats: %v", err)
	}
	if result == nil {
		t.Fatal("expected non-nil get_stats result")
	}

	stopParams, _ := json.Marshal(sessionIDParams{SessionID: "sess-1"})
	if _, err := m.handleStopSession(ctx, stopParams); err != nil {
		t.Fatalf("stop_session: %v", err)
	}

	if _, err := m.handleGetStats(ctx, statsParams); err == nil {
		t.Fatal("expected error for get_stats on a stopped/removed session")
	}
}

func TestManagerGetStatsUnknownSessionErrors(t *testing.T) {
	m := NewManager(testFactory)
	params, _ := json.Marshal(sessionIDParams{SessionID: "does-not-exist"})
	if _, err := m.handleGetStats(context.Background(), params); err == nil {
		t.Fatal("expected error for unknown session_id")
	}
}

func TestManagerPrepareSessionRejectsInvalidConfig(t *testing.T) {
	m := NewManager(testFactory)
	params, _ := json.Marshal(Config{SessionID: "bad", Codec: "vp9", Width: 1920, Height: 1080})
	if _, err := m.handlePrepareSession(context.Background(), params); err == nil {
		t.Fatal("expected prepare_session to reject an invalid codec")
	}
}

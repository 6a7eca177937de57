package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/relaycast/core/internal/control"
)

// Factory constructs the role-specific Collaborators (encoder or
// decoder/renderer/audio sink, plus the signaling server URL) for a new
// session. Supplied by cmd/relaycast-host, which knows which concrete
// capture/codec/render backends this build was linked with.
type Factory func(cfg Config) (Role, Collaborators, error)

// Manager owns every session this host process is a party to, keyed by
// session_id, and is the control channel's command dispatch target
// (§6: prepare_session, start_session, stop_session, get_stats,
// force_idr, reconfigure, set_gaming_mode).
type Manager struct {
	newSession Factory

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager returns an empty Manager. factory is consulted once per
// prepare_session call.
func NewManager(factory Factory) *Manager {
	return &Manager{
		newSession: factory,
		sessions:   make(map[string]*Session),
	}
}

// RegisterHandlers wires every §6 control command onto srv.
func (m *Manager) RegisterHandlers(srv *control.Server) {
	srv.Handle(control.CommandPrepareSession, m.handlePrepareSession)
	srv.Handle(control.CommandStartSession, m.handleStartSession)
	srv.Handle(control.CommandStopSession, m.handleStopSession)
	srv.Handle(control.CommandGetStats, m.handleGetStats)
	srv.Handle(control.CommandForceIDR, m.handleForceIDR)
	srv.Handle(control.CommandReconfigure, m.handleReconfigure)
	srv.Handle(control.CommandSetGamingMode, m.handleSetGamingMode)
}

func (m *Manager) get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session: unknown session_id %q", sessionID)
	}
	return s, nil
}

func (m *Manager) handlePrepareSession(ctx context.Context, params json.RawMessage) (any, error) {
	var cfg Config
	if err := json.Unmarshal(params, &cfg); err != nil {
		return nil, fmt.Errorf("session: parse prepare_session params: %w", err)
	}
	cfg.ApplyGamingModeDefaults()

	role, collab, err := m.newSession(cfg)
	if err != nil {
		return nil, err
	}

	s := New(cfg, role, collab)
	if err := s.Prepare(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[cfg.SessionID] = s
	m.mu.Unlock()

	return map[string]string{"session_id": cfg.SessionID}, nil
}

type sessionIDParams struct {
	SessionID string `json:"session_id"`
}

func (m *Manager) handleStartSession(ctx context.Context, params json.RawMessage) (any, error) {
	var p sessionIDParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("session: parse start_session params: %w", err)
	}
	s, err := m.get(p.SessionID)
	if err != nil {
		return nil, err
	}
	if err := s.Start(ctx); err != nil {
		return nil, err
	}
	return nil, nil
}

func (m *Manager) handleStopSession(ctx context.Context, params json.RawMessage) (any, error) {
	var p sessionIDParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("session: parse stop_session params: %w", err)
	}
	s, err := m.get(p.SessionID)
	if err != nil {
		return nil, err
	}
	s.Stop()

	m.mu.Lock()
	delete(m.sessions, p.SessionID)
	m.mu.Unlock()
	return nil, nil
}

func (m *Manager) handleGetStats(ctx context.Context, params json.RawMessage) (any, error) {
	var p sessionIDParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("session: parse get_stats params: %w", err)
	}
	s, err := m.get(p.SessionID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"state": s.State().String(),
		"stats": s.Stats(),
	}, nil
}

func (m *Manager) handleForceIDR(ctx context.Context, params json.RawMessage) (any, error) {
	var p sessionIDParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("session: parse force_idr params: %w", err)
	}
	s, err := m.get(p.SessionID)
	if err != nil {
		return nil, err
	}
	return nil, s.ForceIDR()
}

type reconfigureParams struct {
	SessionID   string `json:"session_id"`
	BitrateKbps int    `json:"bitrate_kbps"`
	FPS         int    `json:"fps"`
}

func (m *Manager) handleReconfigure(ctx context.Context, params json.RawMessage) (any, error) {
	var p reconfigureParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("session: parse reconfigure params: %w", err)
	}
	s, err := m.get(p.SessionID)
	if err != nil {
		return nil, err
	}
	return nil, s.Reconfigure(p.BitrateKbps, p.FPS)
}

type gamingModeParams struct {
	SessionID  string     `json:"session_id"`
	GamingMode GamingMode `json:"gaming_mode"`
}

func (m *Manager) handleSetGamingMode(ctx context.Context, params json.RawMessage) (any, error) {
	var p gamingModeParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("session: parse set_gaming_mode params: %w", err)
	}
	s, err := m.get(p.SessionID)
	if err != nil {
		return nil, err
	}
	return nil, s.SetGamingMode(p.GamingMode)
}

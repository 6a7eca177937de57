package session

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/relaycast/core/internal/dtlschannel"
	"github.com/relaycast/core/internal/logging"
	"github.com/relaycast/core/internal/media"
	"github.com/relaycast/core/internal/p2p"
	"github.com/relaycast/core/internal/pipeline"
	"github.com/relaycast/core/internal/signaling"
	"github.com/relaycast/core/internal/transport/cache"
	"github.com/relaycast/core/internal/transport/jitter"
	"github.com/relaycast/core/internal/transport/nack"
	"github.com/relaycast/core/internal/transport/qos"
	"github.com/relaycast/core/internal/transport/ratecontrol"
)

var log = logging.L("session")

// Role distinguishes which side of the DTLS handshake and which
// collaborator set (encoder+cache vs. decoder+renderer) this session
// plays; supplied to New by the caller (the Manager takes it from its
// Factory), not negotiated by this package. Start makes RoleHost the
// DTLS server and RoleViewer the client (§4.2, §4.10).
type Role uint8

const (
	RoleHost Role = iota
	RoleViewer
)

// Collaborators are the external capture/render/transport backends a
// Session wires into its pipeline.Coordinator. A host session supplies
// Encoder (+ a capture source outside this package's scope); a viewer
// session supplies Decoder/Renderer/AudioSink. Fields a given Role
// doesn't use are left nil.
type Collaborators struct {
	Encoder      media.Encoder
	Decoder      media.Decoder
	Renderer     media.Renderer
	AudioDecoder media.AudioDecoder
	AudioSink    media.AudioSink

	// SignalingServerURL drives P2P bootstrap together with the session
	// Config's StunServers; if SignalingServerURL is empty, Prepare skips
	// signaling and expects
	// PeerIP/PeerPort to already be set in the Config (a pre-arranged
	// direct connection, e.g. for tests).
	SignalingServerURL string
}

// Session owns one remote-desktop session's full lifecycle: P2P
// candidate gathering, DTLS handshake, and the transport subsystems
// feeding a pipeline.Coordinator. Exactly one Session exists per
// session_id (see Manager).
type Session struct {
	cfg    Config
	role   Role
	collab Collaborators

	mu         sync.Mutex
	identity   *dtlschannel.Identity
	candidates []p2p.Candidate
	socket     *net.UDPConn
	channel    *dtlschannel.Channel
	signaler   *signaling.Client

	sendCache      *cache.Ring
	jitterBuf      *jitter.Buffer
	nackTracker    *nack.Tracker
	qosReporter    *qos.Reporter
	rateController *ratecontrol.Controller

	coordinator *pipeline.Coordinator

	peerReady chan signaling.RemotePeer
}

// New constructs a Session in its pre-Prepare state. cfg.ApplyGamingModeDefaults
// should already have been called by the caller (the Manager's
// prepare_session handler does this).
func New(cfg Config, role Role, collab Collaborators) *Session {
	return &Session{
		cfg:       cfg,
		role:      role,
		collab:    collab,
		peerReady: make(chan signaling.RemotePeer, 1),
	}
}

// Prepare performs the §6 prepare_session work: generates the DTLS
// identity, gathers P2P candidates, and (if SignalingServerURL is set)
// announces them and awaits the signaler's chosen peer. It does not
// start the media pipeline — that is start_session's job.
func (s *Session) Prepare(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	identity, err := dtlschannel.NewIdentity()
	if err != nil {
		return fmt.Errorf("session: generate identity: %w", err)
	}

	result, err := p2p.Gather(s.cfg.StunServers)
	if err != nil {
		return fmt.Errorf("session: gather candidates: %w", err)
	}

	s.mu.Lock()
	s.identity = identity
	s.candidates = result.Candidates
	s.mu.Unlock()

	if s.collab.SignalingServerURL == "" {
		return nil
	}

	signaler := signaling.New(signaling.Config{
		ServerURL: s.collab.SignalingServerURL,
		SessionID: s.cfg.SessionID,
	}, s.onRemotePeer)
	s.mu.Lock()
	s.signaler = signaler
	s.mu.Unlock()

	go signaler.Start()
	return signaler.SendHello(signaling.Hello{
		SessionID:   s.cfg.SessionID,
		Fingerprint: identity.Fingerprint(),
		Candidates:  signaling.ToCandidateDTOs(result.Candidates),
	})
}

func (s *Session) onRemotePeer(peer signaling.RemotePeer) {
	select {
	case s.peerReady <- peer:
	default:
	}
}

// Start performs the §6 start_session work: resolves the remote peer
// (from signaling, or directly from cfg.PeerIP/PeerPort), dials and
// DTLS-handshakes the chosen socket, builds this session's transport
// subsystems, and starts the pipeline coordinator.
func (s *Session) Start(ctx context.Context) error {
	peer, err := s.resolvePeer(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	candidates := s.candidates
	identity := s.identity
	s.mu.Unlock()
	if identity == nil {
		return fmt.Errorf("session: Start called before Prepare")
	}
	if len(candidates) == 0 {
		return fmt.Errorf("session: no local candidates gathered")
	}

	selected := candidates[0]
	for _, c := range candidates {
		if c.Conn != nil {
			selected = c
			break
		}
	}
	conn, err := p2p.Dial(selected.Conn, peer)
	if err != nil {
		return fmt.Errorf("session: dial peer: %w", err)
	}
	p2p.CloseUnused(candidates, selected)

	role := dtlschannel.RoleClient
	if s.role == RoleHost {
		role = dtlschannel.RoleServer
	}

	var channel *dtlschannel.Channel
	if s.cfg.UseDTLS {
		channel, err = dtlschannel.Handshake(ctx, role, conn, identity, s.cfg.PeerFingerprint)
		if err != nil {
			return fmt.Errorf("session: dtls handshake: %w", err)
		}
	}

	s.mu.Lock()
	s.socket = conn
	s.channel = channel
	s.mu.Unlock()

	s.buildTransport()

	pcfg := pipeline.Config{
		Channel:        channel,
		JitterBuffer:   s.jitterBuf,
		NackTracker:    s.nackTracker,
		QoSReporter:    s.qosReporter,
		RateController: s.rateController,
		Decoder:        s.collab.Decoder,
		Renderer:       s.collab.Renderer,
		AudioDecoder:   s.collab.AudioDecoder,
		AudioSink:      s.collab.AudioSink,
	}
	s.coordinator = pipeline.New(pcfg)
	s.coordinator.Start(ctx)
	return nil
}

func (s *Session) resolvePeer(ctx context.Context) (p2p.RemotePeer, error) {
	if s.cfg.PeerIP != "" {
		return p2p.RemotePeer{IP: net.ParseIP(s.cfg.PeerIP), Port: s.cfg.PeerPort}, nil
	}
	select {
	case peer := <-s.peerReady:
		return p2p.RemotePeer{IP: net.ParseIP(peer.IP), Port: peer.Port}, nil
	case <-ctx.Done():
		return p2p.RemotePeer{}, ctx.Err()
	}
}

// buildTransport constructs the transport subsystems appropriate to this
// session's role: a host needs a replay cache feeding rate control; a
// viewer needs the receive-side jitter buffer, NACK emitter, and QoS
// reporter.
func (s *Session) buildTransport() {
	if s.role == RoleHost {
		s.sendCache = cache.New()
		s.rateController = ratecontrol.New(ratecontrol.Config{
			MinBitrateKbps: s.cfg.MinBitrateKbps,
			MaxBitrateKbps: s.cfg.MaxBitrateKbps,
			InitialBitrate: s.cfg.BitrateKbps,
			MaxFPS:         s.cfg.FPS,
			InitialFPS:     s.cfg.FPS,
			Cache:          s.sendCache,
			OnBitrateChange: func(bitrateKbps, fps int) {
				if s.collab.Encoder != nil {
					_ = s.collab.Encoder.Reconfigure(bitrateKbps, fps)
				}
			},
			OnForceIDR: func() {
				if s.collab.Encoder != nil {
					_ = s.collab.Encoder.ForceIDR()
				}
			},
		})
		return
	}

	targetDepthMs, _ := s.cfg.GamingMode.Defaults()
	s.jitterBuf = jitter.New(time.Duration(targetDepthMs) * time.Millisecond)
	s.nackTracker = nack.New()
	s.qosReporter = qos.New()
}

// Stop tears down the pipeline coordinator (if started) and the DTLS
// channel/socket/signaling client. Safe to call multiple times and safe
// to call before Start (it is then a no-op beyond closing the signaler).
func (s *Session) Stop() {
	if s.coordinator != nil {
		s.coordinator.Stop()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.channel != nil {
		_ = s.channel.Shutdown()
	}
	if s.socket != nil {
		_ = s.socket.Close()
	}
	if s.signaler != nil {
		s.signaler.Stop()
	}
}

// Stats returns the pipeline's current metrics snapshot, for get_stats.
func (s *Session) Stats() pipeline.Snapshot {
	if s.coordinator == nil {
		return pipeline.Snapshot{}
	}
	return s.coordinator.Metrics()
}

// State returns the pipeline coordinator's current lifecycle state.
func (s *Session) State() pipeline.State {
	if s.coordinator == nil {
		return pipeline.StateIdle
	}
	return s.coordinator.State()
}

// ForceIDR requests an immediate keyframe from the encoder, for a host
// session handling the force_idr command.
func (s *Session) ForceIDR() error {
	if s.collab.Encoder == nil {
		return fmt.Errorf("session: force_idr: no encoder on this session")
	}
	return s.collab.Encoder.ForceIDR()
}

// Reconfigure applies a new bitrate/fps target directly (bypassing the
// rate controller's AIMD ramp), for the reconfigure command.
func (s *Session) Reconfigure(bitrateKbps, fps int) error {
	if s.collab.Encoder == nil {
		return fmt.Errorf("session: reconfigure: no encoder on this session")
	}
	return s.collab.Encoder.Reconfigure(bitrateKbps, fps)
}

// SetGamingMode updates the session's jitter-buffer target depth and
// frame-rate target from a named preset. Only meaningful for an
// already-running session: a viewer's jitter buffer is retargeted in
// place via SetTargetDepth (rebuilding it would orphan the pointer the
// running pipeline.Coordinator already holds), and a host's rate
// controller gets the new FPS ceiling via SetMaxFPS.
func (s *Session) SetGamingMode(mode GamingMode) error {
	if !mode.Valid() {
		return fmt.Errorf("session: invalid gaming_mode %q", mode)
	}
	s.mu.Lock()
	s.cfg.GamingMode = mode
	targetDepthMs, fps := mode.Defaults()
	s.cfg.FPS = fps
	if s.jitterBuf != nil {
		s.jitterBuf.SetTargetDepth(time.Duration(targetDepthMs) * time.Millisecond)
	}
	if s.rateController != nil {
		s.rateController.SetMaxFPS(fps)
	}
	s.mu.Unlock()
	log.Info("gaming mode changed", "session", s.cfg.SessionID, "mode", mode, "target_depth_ms", targetDepthMs, "target_fps", fps)
	return nil
}

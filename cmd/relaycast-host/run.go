package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/relaycast/core/internal/config"
	"github.com/relaycast/core/internal/control"
	"github.com/relaycast/core/internal/logging"
	"github.com/relaycast/core/internal/media/swcodec"
	"github.com/relaycast/core/internal/session"
)

var log = logging.L("main")

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the relaycast-host control channel and session manager",
	RunE:  runHost,
}

func runHost(cmd *cobra.Command, args []string) error {
	if isWindowsService() {
		ctx, cancel := context.WithCancel(cmd.Context())
		return runAsService(
			func() error { return serve(ctx) },
			cancel,
		)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return serve(ctx)
}

// serve loads configuration, binds the control channel, and blocks
// dispatching §6 commands until ctx is cancelled.
func serve(ctx context.Context) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := initLogging(cfg); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}

	log.Info("starting relaycast-host", "version", version, "control_socket", cfg.ControlSocketPath)

	listener, err := control.Listen(cfg.ControlSocketPath)
	if err != nil {
		return fmt.Errorf("listen on control socket: %w", err)
	}
	defer listener.Close()

	server := control.NewServer(listener)
	manager := session.NewManager(newSessionFactory(cfg))
	manager.RegisterHandlers(server)

	log.Info("control channel ready, waiting for commands")
	if err := server.Serve(ctx); err != nil {
		return fmt.Errorf("serve control channel: %w", err)
	}

	log.Info("relaycast-host shut down cleanly")
	return nil
}

// newSessionFactory returns the session.Factory this build links: a
// software H264 encoder/decoder pair (internal/media/swcodec) for every
// new session, plus the process-wide signaling server URL a session's P2P
// bootstrap announces candidates through. The STUN list a session uses is
// the one in its prepare_session params (session.Config.StunServers); the
// configured stun_servers are not passed on by this factory. Renderer,
// AudioDecoder, and AudioSink are left nil — §6 pins those as external
// platform contracts (screen presentation, audio output) this core never
// implements; a host build that needs them supplies its own Factory.
func newSessionFactory(cfg *config.Config) session.Factory {
	return func(sessCfg session.Config) (session.Role, session.Collaborators, error) {
		role := session.RoleViewer
		collab := session.Collaborators{
			SignalingServerURL: cfg.SignalingServerURL,
		}

		if sessCfg.PeerIP == "" && cfg.SignalingServerURL == "" {
			return role, collab, fmt.Errorf("relaycast-host: no signaling_server_url configured and no direct peer supplied")
		}

		switch sessCfg.Role {
		case "host":
			role = session.RoleHost
			collab.Encoder = swcodec.NewEncoder()
		case "viewer", "":
			role = session.RoleViewer
			collab.Decoder = swcodec.NewDecoder()
		default:
			return role, collab, fmt.Errorf("relaycast-host: unknown session role %q", sessCfg.Role)
		}

		return role, collab, nil
	}
}

// initLogging wires the process log level/format from config, tees output
// to stdout and a size-rotated file when LogFile is set.
func initLogging(cfg *config.Config) error {
	if cfg.LogFile == "" {
		logging.Init(cfg.LogFormat, cfg.LogLevel, nil)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0700); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	rw, err := logging.NewRotatingWriter(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
	if err != nil {
		return fmt.Errorf("open rotating log file: %w", err)
	}

	logging.Init(cfg.LogFormat, cfg.LogLevel, logging.TeeWriter(os.Stdout, rw))
	return nil
}

// Package config loads the relaycast-host process configuration: the
// control channel's pipe path, the default session parameters new
// sessions inherit unless overridden, and logging. This is distinct from
// internal/session.Config, which is the per-session value object
// exchanged over the control channel itself (§6) — this package covers
// what the process needs before any session exists.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"

	"github.com/relaycast/core/internal/logging"
)

var log = logging.L("config")

type Config struct {
	// ControlSocketPath is where internal/control.Listen binds (a Unix
	// domain socket path, or a Windows named pipe path).
	ControlSocketPath string `mapstructure:"control_socket_path"`

	// SignalingServerURL is the external pairing/signaling service new
	// sessions announce their P2P candidates to; empty disables
	// signaling (direct peer configuration only).
	SignalingServerURL string   `mapstructure:"signaling_server_url"`
	StunServers        []string `mapstructure:"stun_servers"`

	// DefaultCodec/DefaultGamingMode seed a prepare_session call that
	// doesn't specify one explicitly.
	DefaultCodec      string `mapstructure:"default_codec"`
	DefaultGamingMode string `mapstructure:"default_gaming_mode"`

	MaxConcurrentSessions int `mapstructure:"max_concurrent_sessions"`

	// Logging configuration
	LogLevel      string `mapstructure:"log_level"`
	LogFormat     string `mapstructure:"log_format"`
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`
}

func Default() *Config {
	return &Config{
		ControlSocketPath:     defaultControlSocketPath(),
		StunServers:           []string{"stun:stun.l.google.com:19302"},
		DefaultCodec:          "h264",
		DefaultGamingMode:     "balanced",
		MaxConcurrentSessions: 4,
		LogLevel:              "info",
		LogFormat:             "text",
		LogMaxSizeMB:          50,
		LogMaxBackups:         3,
	}
}

// Load reads relaycast-host's configuration from cfgFile (or the default
// search path if empty), overlays environment variables prefixed
// RELAYCAST_, and applies §7 Configuration-class validation: fatal
// errors (invalid scheme, unknown codec/gaming mode) block startup;
// everything else is clamped to a safe value and logged as a warning.
func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("host")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(configDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("RELAYCAST")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	result := cfg.ValidateTiered()
	for _, err := range result.Warnings {
		log.Warn("config validation", "error", err)
	}
	if result.HasFatals() {
		for _, err := range result.Fatals {
			log.Error("config validation fatal", "error", err)
		}
		return nil, fmt.Errorf("config has fatal validation errors: %v", result.Fatals[0])
	}

	return cfg, nil
}

func Save(cfg *Config) error {
	return SaveTo(cfg, "")
}

func SaveTo(cfg *Config, cfgFile string) error {
	viper.Set("control_socket_path", cfg.ControlSocketPath)
	viper.Set("signaling_server_url", cfg.SignalingServerURL)
	viper.Set("stun_servers", cfg.StunServers)
	viper.Set("default_codec", cfg.DefaultCodec)
	viper.Set("default_gaming_mode", cfg.DefaultGamingMode)
	viper.Set("max_concurrent_sessions", cfg.MaxConcurrentSessions)
	viper.Set("log_level", cfg.LogLevel)
	viper.Set("log_format", cfg.LogFormat)

	var cfgPath string
	if cfgFile != "" {
		cfgPath = cfgFile
		dir := filepath.Dir(cfgPath)
		if dir != "." {
			if err := os.MkdirAll(dir, 0700); err != nil {
				return err
			}
		}
	} else {
		cfgPath = filepath.Join(configDir(), "host.yaml")
		if err := os.MkdirAll(configDir(), 0700); err != nil {
			return err
		}
	}

	if err := viper.WriteConfigAs(cfgPath); err != nil {
		return err
	}
	return os.Chmod(cfgPath, 0600)
}

// GetDataDir returns the platform-specific data directory for the host
// process (cached certificates, session logs).
func GetDataDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "RelayCast", "data")
	case "darwin":
		return "/Library/Application Support/RelayCast/data"
	default:
		return "/var/lib/relaycast"
	}
}

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "RelayCast")
	case "darwin":
		return "/Library/Application Support/RelayCast"
	default:
		return "/etc/relaycast"
	}
}

func defaultControlSocketPath() string {
	switch runtime.GOOS {
	case "windows":
		return `\\.\pipe\relaycast-control`
	default:
		return "/run/relaycast/control.sock"
	}
}

package config

import (
	"os"
	"strconv"

	"lanbeam/internal/protocol"
)

// Config holds the runtime settings shared by the serve, send, and
// discover commands. Defaults come from the environment; command-line
// flags override them.
type Config struct {
	Port          int    // TCP (or QUIC) transfer port
	DiscoveryPort int    // UDP discovery port
	OutDir        string // where received files land
	LogLevel      string
	Name          string // advertised device name
	Transport     string // "tcp" or "quic"
	Verify        bool   // verify checksums on received files
}

const DefaultDiscoveryPort = 8888

// Default builds a config from environment variables, falling back to
// built-in defaults. Unparseable numeric variables are ignored.
func Default() Config {
	cfg := Config{
		Port:          protocol.DefaultTransferPort,
		DiscoveryPort: DefaultDiscoveryPort,
		OutDir:        ".",
		LogLevel:      "info",
		Transport:     "tcp",
	}

	if v := os.Getenv("LANBEAM_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := os.Getenv("LANBEAM_DISCOVERY_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.DiscoveryPort = p
		}
	}
	if v := os.Getenv("LANBEAM_OUT_DIR"); v != "" {
		cfg.OutDir = v
	}
	if v := os.Getenv("LANBEAM_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LANBEAM_NAME"); v != "" {
		cfg.Name = v
	}
	if v := os.Getenv("LANBEAM_TRANSPORT"); v != "" {
		cfg.Transport = v
	}
	if v := os.Getenv("LANBEAM_VERIFY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Verify = b
		}
	}

	if cfg.Name == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.Name = host
		} else {
			cfg.Name = "lanbeam"
		}
	}
	return cfg
}

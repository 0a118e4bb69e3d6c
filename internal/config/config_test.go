package config

import (
	"testing"

	"lanbeam/internal/protocol"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LANBEAM_PORT", "LANBEAM_DISCOVERY_PORT", "LANBEAM_OUT_DIR",
		"LANBEAM_LOG_LEVEL", "LANBEAM_NAME", "LANBEAM_TRANSPORT", "LANBEAM_VERIFY",
	} {
		t.Setenv(key, "")
	}
}

func TestDefaultValues(t *testing.T) {
	clearEnv(t)
	cfg := Default()

	if cfg.Port != protocol.DefaultTransferPort {
		t.Errorf("Port = %d, want %d", cfg.Port, protocol.DefaultTransferPort)
	}
	if cfg.DiscoveryPort != DefaultDiscoveryPort {
		t.Errorf("DiscoveryPort = %d, want %d", cfg.DiscoveryPort, DefaultDiscoveryPort)
	}
	if cfg.OutDir != "." || cfg.LogLevel != "info" || cfg.Transport != "tcp" || cfg.Verify {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.Name == "" {
		t.Error("Name not defaulted from hostname")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LANBEAM_PORT", "5000")
	t.Setenv("LANBEAM_DISCOVERY_PORT", "9000")
	t.Setenv("LANBEAM_OUT_DIR", "/tmp/incoming")
	t.Setenv("LANBEAM_LOG_LEVEL", "debug")
	t.Setenv("LANBEAM_NAME", "workbench")
	t.Setenv("LANBEAM_TRANSPORT", "quic")
	t.Setenv("LANBEAM_VERIFY", "true")

	cfg := Default()
	if cfg.Port != 5000 || cfg.DiscoveryPort != 9000 {
		t.Errorf("ports = %d/%d, want 5000/9000", cfg.Port, cfg.DiscoveryPort)
	}
	if cfg.OutDir != "/tmp/incoming" || cfg.LogLevel != "debug" {
		t.Errorf("OutDir/LogLevel = %q/%q", cfg.OutDir, cfg.LogLevel)
	}
	if cfg.Name != "workbench" || cfg.Transport != "quic" || !cfg.Verify {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestUnparseableValuesIgnored(t *testing.T) {
	clearEnv(t)
	t.Setenv("LANBEAM_PORT", "not-a-port")
	t.Setenv("LANBEAM_VERIFY", "sometimes")

	cfg := Default()
	if cfg.Port != protocol.DefaultTransferPort {
		t.Errorf("Port = %d after junk env, want default", cfg.Port)
	}
	if cfg.Verify {
		t.Error("Verify = true after junk env")
	}
}

package config

import (
	"testing"
	"time"
)

// clearEnv wipes every variable Load reads so tests start from defaults.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LISTEN_ADDR", "TRANSPORT", "NATS_URL", "REDIS_ADDR", "DATABASE_URL",
		"STATE_FILE", "BAN_THRESHOLD", "BAN_DURATION", "WRITE_TIMEOUT",
		"REQUIRE_FULL_PROFILE", "REQUEUE_SKIPPED",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.Transport != TransportWS {
		t.Errorf("Transport = %q, want ws", cfg.Transport)
	}
	if cfg.BanThreshold != 10 {
		t.Errorf("BanThreshold = %d, want 10", cfg.BanThreshold)
	}
	if cfg.BanDuration != 24*time.Hour {
		t.Errorf("BanDuration = %s, want 24h", cfg.BanDuration)
	}
	if cfg.RequireFullProfile || cfg.RequeueSkipped {
		t.Error("boolean flags should default to false")
	}
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LISTEN_ADDR", ":9999")
	t.Setenv("BAN_THRESHOLD", "3")
	t.Setenv("BAN_DURATION", "1h")
	t.Setenv("REQUIRE_FULL_PROFILE", "true")
	t.Setenv("REQUEUE_SKIPPED", "1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":9999" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.BanThreshold != 3 || cfg.BanDuration != time.Hour {
		t.Errorf("ban settings = %d/%s", cfg.BanThreshold, cfg.BanDuration)
	}
	if !cfg.RequireFullProfile || !cfg.RequeueSkipped {
		t.Error("boolean overrides not applied")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := []struct {
		key, value string
	}{
		{"BAN_THRESHOLD", "zero"},
		{"BAN_THRESHOLD", "-1"},
		{"BAN_DURATION", "soon"},
		{"WRITE_TIMEOUT", "-5s"},
		{"REQUIRE_FULL_PROFILE", "maybe"},
		{"TRANSPORT", "carrier-pigeon"},
	}
	for _, tc := range cases {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tc.key, tc.value)
			if _, err := Load(); err == nil {
				t.Errorf("%s=%q should fail", tc.key, tc.value)
			}
		})
	}
}

func TestLoad_NATSRequiresURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRANSPORT", "nats")

	if _, err := Load(); err == nil {
		t.Fatal("TRANSPORT=nats without NATS_URL should fail")
	}

	t.Setenv("NATS_URL", "nats://localhost:4222")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Transport != TransportNATS {
		t.Errorf("Transport = %q", cfg.Transport)
	}
}

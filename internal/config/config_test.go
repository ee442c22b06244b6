package config

import (
	"os"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"SIGNALCORE_POSTGRES_DSN", "SIGNALCORE_REDIS_ADDR", "SIGNALCORE_REDIS_DB",
		"SIGNALCORE_UPSTREAM_ADDR", "SIGNALCORE_JWT_SECRET", "SIGNALCORE_RISK_POLICY_PATH",
		"SIGNALCORE_IPC_BASE_DIR", "SIGNALCORE_MIGRATIONS_PATH",
		"SIGNALCORE_SHADOW_ONLY", "SIGNALCORE_BRIDGE_ENQUEUE",
		"SIGNALCORE_HTTP_PORT",
	}
	for _, k := range keys {
		orig := os.Getenv(k)
		os.Unsetenv(k)
		t.Cleanup(func() { os.Setenv(k, orig) })
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.ShadowOnly {
		t.Error("ShadowOnly = true, want false")
	}
	if !cfg.BridgeEnqueue {
		t.Error("BridgeEnqueue = false, want true")
	}
	if got := cfg.RouterMode(); got != "shadow" {
		t.Errorf("RouterMode() = %q, want shadow", got)
	}
	if cfg.Observation() {
		t.Error("Observation() = true, want false for the default combination")
	}
	if cfg.HTTPPort != 8080 {
		t.Errorf("HTTPPort = %d, want 8080", cfg.HTTPPort)
	}
	if cfg.RedisDB != 0 {
		t.Errorf("RedisDB = %d, want 0", cfg.RedisDB)
	}
}

func TestFromEnvInvalidBoolFlag(t *testing.T) {
	clearEnv(t)
	os.Setenv("SIGNALCORE_SHADOW_ONLY", "bogus")

	if _, err := FromEnv(); err == nil {
		t.Error("expected error for non-boolean SIGNALCORE_SHADOW_ONLY")
	}
}

func TestFromEnvInvalidPort(t *testing.T) {
	clearEnv(t)
	os.Setenv("SIGNALCORE_HTTP_PORT", "not-a-number")

	if _, err := FromEnv(); err == nil {
		t.Error("expected error for non-numeric port")
	}
}

func TestFromEnvOverrides(t *testing.T) {
	clearEnv(t)
	os.Setenv("SIGNALCORE_SHADOW_ONLY", "true")
	os.Setenv("SIGNALCORE_BRIDGE_ENQUEUE", "true")
	os.Setenv("SIGNALCORE_HTTP_PORT", "9090")
	os.Setenv("SIGNALCORE_REDIS_DB", "3")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if got := cfg.RouterMode(); got != "redis" || cfg.HTTPPort != 9090 || cfg.RedisDB != 3 {
		t.Errorf("unexpected config: %+v (RouterMode=%s)", cfg, got)
	}
}

func TestRouterModeAndObservationCombinations(t *testing.T) {
	cases := []struct {
		shadowOnly, bridgeEnqueue bool
		wantMode                  string
		wantObservation           bool
	}{
		{false, false, "legacy", false},
		{false, true, "shadow", false},
		{true, true, "redis", false},
		{true, false, "redis", true},
	}
	for _, tc := range cases {
		cfg := &Config{ShadowOnly: tc.shadowOnly, BridgeEnqueue: tc.bridgeEnqueue}
		if got := cfg.RouterMode(); got != tc.wantMode {
			t.Errorf("ShadowOnly=%v BridgeEnqueue=%v: RouterMode() = %q, want %q", tc.shadowOnly, tc.bridgeEnqueue, got, tc.wantMode)
		}
		if got := cfg.Observation(); got != tc.wantObservation {
			t.Errorf("ShadowOnly=%v BridgeEnqueue=%v: Observation() = %v, want %v", tc.shadowOnly, tc.bridgeEnqueue, got, tc.wantObservation)
		}
	}
}

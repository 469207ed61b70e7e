package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load with defaults failed: %v", err)
	}
	if cfg.Port != "8085" {
		t.Errorf("expected default port 8085, got %s", cfg.Port)
	}
	if len(cfg.STUNServers) != 2 {
		t.Errorf("expected two default STUN servers, got %v", cfg.STUNServers)
	}
	if cfg.Tavus.BaseURL != "https://tavusapi.com" {
		t.Errorf("unexpected tavus base URL %s", cfg.Tavus.BaseURL)
	}
	if cfg.AgentReapEnabled {
		t.Error("agent reaping should be off by default")
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Port != "9000" {
		t.Errorf("expected port 9000, got %s", cfg.Port)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Errorf("origins not trimmed and split: %v", cfg.CORSOrigins)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("unexpected redis addr %s", cfg.RedisAddr)
	}
}

func TestLoadRejectsReapWithoutAPIKey(t *testing.T) {
	t.Setenv("AGENT_REAP_ENABLED", "true")
	t.Setenv("TAVUS_API_KEY", "")

	if _, err := Load(); err == nil {
		t.Error("reaping without an API key should be rejected")
	}
}

func TestLoadRejectsTurnWithoutCredentials(t *testing.T) {
	t.Setenv("TURN_URL", "turn:turn.example.com:3478")
	t.Setenv("TURN_USERNAME", "")
	t.Setenv("TURN_PASSWORD", "")

	if _, err := Load(); err == nil {
		t.Error("TURN without credentials should be rejected")
	}
}

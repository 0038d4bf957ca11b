package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.DefaultProvider != "claude" {
		t.Errorf("expected claude, got %s", cfg.DefaultProvider)
	}
	if cfg.Session.IdleTimeoutMin != 30 {
		t.Errorf("expected 30, got %d", cfg.Session.IdleTimeoutMin)
	}
	if cfg.Webhook.Port != 8787 {
		t.Errorf("expected 8787, got %d", cfg.Webhook.Port)
	}
}

func TestLoadDeepMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	os.WriteFile(path, []byte(`{
		"telegram": {"token": "bot123"},
		"session": {"daily_reset_hour": 9}
	}`), 0o644)

	cfg := Load(path, nil)
	if cfg.Telegram.Token != "bot123" {
		t.Errorf("expected bot123, got %s", cfg.Telegram.Token)
	}
	if cfg.Session.DailyResetHour != 9 {
		t.Errorf("expected 9, got %d", cfg.Session.DailyResetHour)
	}
	// Defaults not mentioned in the file are preserved.
	if cfg.DefaultProvider != "claude" {
		t.Errorf("default should be preserved, got %s", cfg.DefaultProvider)
	}
	if cfg.Session.IdleTimeoutMin != 30 {
		t.Errorf("default should be preserved, got %d", cfg.Session.IdleTimeoutMin)
	}
}

func TestLoadPreservesUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	os.WriteFile(path, []byte(`{"experimental_flag": true}`), 0o644)

	cfg := Load(path, nil)
	if err := cfg.Save(path); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var roundTripped map[string]any
	if err := json.Unmarshal(data, &roundTripped); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if v, ok := roundTripped["experimental_flag"]; !ok || v != true {
		t.Errorf("expected experimental_flag to round-trip, got %v", roundTripped["experimental_flag"])
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("DUCTOR_BOT_TOKEN", "env-token")
	t.Setenv("DUCTOR_DEFAULT_PROVIDER", "codex")

	cfg := Load("/nonexistent/path.json", nil)
	if cfg.Telegram.Token != "env-token" {
		t.Errorf("expected env-token, got %s", cfg.Telegram.Token)
	}
	if cfg.DefaultProvider != "codex" {
		t.Errorf("expected codex, got %s", cfg.DefaultProvider)
	}
}

func TestEnsureWebhookTokenGeneratesOnlyWhenBlank(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := Default()
	calls := 0
	cfg.EnsureWebhookToken(path, func() string { calls++; return "generated-token" })
	if calls != 1 {
		t.Fatalf("expected 1 generation call, got %d", calls)
	}
	if cfg.Webhook.GlobalToken != "generated-token" {
		t.Errorf("expected generated-token, got %s", cfg.Webhook.GlobalToken)
	}

	cfg.EnsureWebhookToken(path, func() string { calls++; return "other-token" })
	if calls != 1 {
		t.Errorf("expected no further generation once token is set, calls=%d", calls)
	}
}

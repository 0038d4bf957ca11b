// Package config loads the kernel's single config.json: a typed
// Config struct deep-merged against its JSON defaults, preserving any
// key the file carries that the struct doesn't know about, and
// logging whenever a default field is newly added to an existing file.
package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// TelegramConfig holds the bot-ingress identity and allow-list.
type TelegramConfig struct {
	Token          string   `json:"token"`
	AllowedUserIDs []string `json:"allowed_user_ids"`
	BotName        string   `json:"bot_name"`
}

// SessionFreshnessConfig mirrors internal/session.FreshnessConfig in
// JSON-serializable form.
type SessionFreshnessConfig struct {
	MaxMessages      int    `json:"max_messages"`
	IdleTimeoutMin   int    `json:"idle_timeout_minutes"`
	DailyResetHour   int    `json:"daily_reset_hour"`
	DailyResetMinute int    `json:"daily_reset_minute"`
	Timezone         string `json:"timezone"`
}

// WebhookServerConfig configures the Webhook Observer's HTTP ingress.
type WebhookServerConfig struct {
	Enabled      bool   `json:"enabled"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	GlobalToken  string `json:"global_token"`
	MaxBodyBytes int64  `json:"max_body_bytes"`
	RateLimitRPM int    `json:"rate_limit_rpm"`
}

// HeartbeatConfig configures the Heartbeat Observer's cadence.
type HeartbeatConfig struct {
	Enabled         bool   `json:"enabled"`
	IntervalMinutes int    `json:"interval_minutes"`
	QuietStart      string `json:"quiet_start"`
	QuietEnd        string `json:"quiet_end"`
	AckToken        string `json:"ack_token"`
	CooldownMinutes int    `json:"cooldown_minutes"`
	Prompt          string `json:"prompt"`
}

// CleanupConfig configures the Cleanup Observer.
type CleanupConfig struct {
	Enabled  bool `json:"enabled"`
	CheckHour int `json:"check_hour"`
	MaxAgeDays int `json:"max_age_days"`
}

// CronConfig toggles the Cron Observer.
type CronConfig struct {
	Enabled bool `json:"enabled"`
}

// Config is the kernel's single source of runtime configuration.
type Config struct {
	LogLevel        string `json:"log_level"`
	DefaultProvider string `json:"default_provider"`
	DefaultModel    string `json:"default_model"`
	PermissionMode  string `json:"permission_mode"`
	ReasoningEffort string `json:"reasoning_effort"`
	DockerContainer string `json:"docker_container"`
	CLITimeoutSeconds int  `json:"cli_timeout_seconds"`
	StreamingEnabled bool  `json:"streaming_enabled"`
	SessionAgeFooterHours int `json:"session_age_footer_hours"`

	ProviderExtraArgv       map[string][]string `json:"provider_extra_argv"`
	DefaultModelPerProvider map[string]string   `json:"default_model_per_provider"`

	Telegram  TelegramConfig         `json:"telegram"`
	Session   SessionFreshnessConfig `json:"session"`
	Webhook   WebhookServerConfig    `json:"webhook"`
	Heartbeat HeartbeatConfig        `json:"heartbeat"`
	Cleanup   CleanupConfig          `json:"cleanup"`
	Cron      CronConfig             `json:"cron"`

	mu  sync.Mutex     `json:"-"`
	raw map[string]any `json:"-"`
}

// Default returns a Config with every field at its documented default.
func Default() *Config {
	return &Config{
		LogLevel:              "info",
		DefaultProvider:       "claude",
		DefaultModel:          "sonnet",
		PermissionMode:        "default",
		CLITimeoutSeconds:     300,
		StreamingEnabled:      true,
		SessionAgeFooterHours: 12,
		ProviderExtraArgv:       map[string][]string{},
		DefaultModelPerProvider: map[string]string{"claude": "sonnet", "codex": "gpt-5.1-codex", "gemini": "gemini-2.5-pro"},
		Session: SessionFreshnessConfig{
			MaxMessages:      200,
			IdleTimeoutMin:   30,
			DailyResetHour:   4,
			DailyResetMinute: 0,
			Timezone:         "UTC",
		},
		Webhook: WebhookServerConfig{
			Host:         "127.0.0.1",
			Port:         8787,
			MaxBodyBytes: 1 << 20,
			RateLimitRPM: 60,
		},
		Heartbeat: HeartbeatConfig{
			IntervalMinutes: 60,
			AckToken:        "OK",
			CooldownMinutes: 30,
		},
		Cleanup: CleanupConfig{
			CheckHour:  3,
			MaxAgeDays: 7,
		},
		Cron: CronConfig{Enabled: true},
	}
}

// Load reads path, deep-merges it onto Default(), applies env
// overrides, and returns the resolved Config. A corrupt or unreadable
// file is logged and treated as empty, and a missing file is treated
// as empty without a log line — Load never fails on bad
// input, matching the kernel's file-corruption policy (spec §7).
func Load(path string, logger *slog.Logger) *Config {
	if logger == nil {
		logger = slog.Default()
	}
	def := Default()
	defMap := toMap(def)

	fileMap := map[string]any{}
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &fileMap); err != nil {
			logger.Warn("config: corrupt file, using defaults", "path", path, "err", err)
			fileMap = map[string]any{}
		}
	} else if !os.IsNotExist(err) {
		logger.Warn("config: read failed, using defaults", "path", path, "err", err)
	}

	merged := deepMerge(defMap, fileMap, logger, "")

	cfg := Default()
	if data, err := json.Marshal(merged); err == nil {
		_ = json.Unmarshal(data, cfg)
	}
	cfg.raw = merged

	applyEnvOverrides(cfg)
	return cfg
}

// Save writes the current typed fields back over the raw map (so
// unrecognized keys persist) and atomically replaces path.
func (c *Config) Save(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	structMap := toMap(c)
	raw := c.raw
	if raw == nil {
		raw = map[string]any{}
	}
	merged := deepMerge(raw, structMap, slog.Default(), "")

	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// EnsureWebhookToken auto-generates the global webhook bearer token
// if blank, persisting it back to path, per spec §4.7's Webhook
// Observer startup step.
func (c *Config) EnsureWebhookToken(path string, generate func() string) {
	c.mu.Lock()
	blank := c.Webhook.GlobalToken == ""
	if blank {
		c.Webhook.GlobalToken = generate()
	}
	c.mu.Unlock()
	if blank {
		_ = c.Save(path)
	}
}

func toMap(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	_ = json.Unmarshal(data, &m)
	return m
}

// deepMerge overlays b onto a: keys only in a are kept (and logged at
// debug level as newly-added defaults, at every nesting level, by
// their dotted path); keys only in b are
// preserved verbatim (unknown keys round-trip); keys in both recurse
// if both sides are objects, else b wins.
func deepMerge(a, b map[string]any, logger *slog.Logger, path string) map[string]any {
	out := make(map[string]any, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, bv := range b {
		av, existedInDefaults := a[k]
		if !existedInDefaults {
			out[k] = bv
			continue
		}
		aMap, aIsMap := av.(map[string]any)
		bMap, bIsMap := bv.(map[string]any)
		if aIsMap && bIsMap {
			out[k] = deepMerge(aMap, bMap, logger, joinPath(path, k))
		} else {
			out[k] = bv
		}
	}
	for k := range a {
		if _, ok := b[k]; !ok && logger != nil {
			logger.Debug("config: default added", "key", joinPath(path, k))
		}
	}
	return out
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DUCTOR_BOT_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("DUCTOR_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DUCTOR_DEFAULT_PROVIDER"); v != "" {
		cfg.DefaultProvider = v
	}
	if v := os.Getenv("DUCTOR_DEFAULT_MODEL"); v != "" {
		cfg.DefaultModel = v
	}
	if v := os.Getenv("DUCTOR_WEBHOOK_TOKEN"); v != "" {
		cfg.Webhook.GlobalToken = v
	}
	if v := os.Getenv("DUCTOR_ALLOWED_USER_IDS"); v != "" {
		cfg.Telegram.AllowedUserIDs = strings.Split(v, ",")
	}
	if v := os.Getenv("DUCTOR_CLI_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CLITimeoutSeconds = n
		}
	}
}

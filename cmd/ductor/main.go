// Command ductor wires the kernel's collaborators together and runs
// them under one cancellation context until an OS signal requests
// shutdown.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nevindra/ductor"
	"github.com/nevindra/ductor/internal/cleanup"
	"github.com/nevindra/ductor/internal/cliservice"
	"github.com/nevindra/ductor/internal/clock"
	"github.com/nevindra/ductor/internal/config"
	"github.com/nevindra/ductor/internal/cron"
	"github.com/nevindra/ductor/internal/heartbeat"
	"github.com/nevindra/ductor/internal/observability"
	"github.com/nevindra/ductor/internal/orchestrator"
	"github.com/nevindra/ductor/internal/paths"
	"github.com/nevindra/ductor/internal/process"
	"github.com/nevindra/ductor/internal/provider/resolve"
	"github.com/nevindra/ductor/internal/session"
	"github.com/nevindra/ductor/internal/telegram"
	"github.com/nevindra/ductor/internal/webhook"
)

// newFrontend is the plug point for the bot-API glue spec §1 scopes
// out as an external collaborator's job. A deployment that wants the
// Telegram front end links a build that sets this to a real
// telegram.Frontend constructor before main runs; left nil, ductor
// still serves the Webhook Observer and every background observer.
var newFrontend func(cfg config.TelegramConfig, logger *slog.Logger) (telegram.Frontend, error)

func main() {
	home := os.Getenv("DUCTOR_HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
		home = home + "/.ductor"
	}
	layout := paths.New(home)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cfg := config.Load(layout.Config(), logger)
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	cfg.EnsureWebhookToken(layout.Config(), generateToken)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	inst, shutdownObservability, err := observability.Init(ctx)
	if err != nil {
		logger.Warn("main: observability init failed, continuing without metrics/traces", "err", err)
		inst = nil
	} else {
		defer func() {
			if err := shutdownObservability(context.Background()); err != nil {
				logger.Warn("main: observability shutdown failed", "err", err)
			}
		}()
	}

	if err := run(ctx, cfg, layout, logger, inst); err != nil && ctx.Err() == nil {
		logger.Error("main: fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, layout paths.Layout, logger *slog.Logger, inst *observability.Instruments) error {
	available := detectAvailableProviders(logger)

	loc, err := time.LoadLocation(cfg.Session.Timezone)
	if err != nil {
		logger.Warn("main: unknown session timezone, defaulting to UTC", "timezone", cfg.Session.Timezone, "err", err)
		loc = time.UTC
	}
	sessions := session.New(layout.Sessions(), session.FreshnessConfig{
		MaxMessages:      cfg.Session.MaxMessages,
		IdleTimeout:      time.Duration(cfg.Session.IdleTimeoutMin) * time.Minute,
		DailyResetHour:   cfg.Session.DailyResetHour,
		DailyResetMinute: cfg.Session.DailyResetMinute,
		Timezone:         loc,
	}, clock.Real{}, logger)

	registry := process.New(logger)
	if inst != nil {
		registry.SetInstruments(inst)
	}

	resolver := resolve.New(nativeProviderMap(cfg), defaultEquivalents(), logger)

	cli := cliservice.New(cliservice.StaticConfig{
		WorkingDir:              layout.Workspace(),
		DefaultModel:            cfg.DefaultModel,
		DefaultProvider:         cfg.DefaultProvider,
		PermissionMode:          cfg.PermissionMode,
		DockerContainer:         cfg.DockerContainer,
		ReasoningEffort:         cfg.ReasoningEffort,
		ProviderExtraArgv:       cfg.ProviderExtraArgv,
		DefaultModelPerProvider: cfg.DefaultModelPerProvider,
	}, available, registry, resolver, logger)
	if inst != nil {
		cli.SetInstruments(inst)
	}

	cronTaskExec := orchestrator.NewCronTaskExecutor(cli, layout)
	webhookTaskExec := orchestrator.NewWebhookTaskExecutor(cli, layout)

	cronMgr := cron.NewManager(layout.CronJobs(), logger)
	webhookMgr := webhook.NewManager(layout.Webhooks(), logger)

	orch := orchestrator.New(sessions, registry, cli, resolver, cronMgr, webhookMgr, layout, available, orchestrator.Config{
		DefaultProvider:       cfg.DefaultProvider,
		DefaultModel:          cfg.DefaultModel,
		BotName:               cfg.Telegram.BotName,
		SessionAgeFooterHours: time.Duration(cfg.SessionAgeFooterHours) * time.Hour,
		HeartbeatPrompt:       cfg.Heartbeat.Prompt,
		HeartbeatAckToken:     cfg.Heartbeat.AckToken,
		HeartbeatCooldown:     time.Duration(cfg.Heartbeat.CooldownMinutes) * time.Minute,
	}, logger)

	cronObs := cron.NewObserver(cronMgr, cronTaskExec, layout, registry, func(title, text, status string) {
		logger.Info("cron result", "title", title, "status", status, "text_len", len(text))
	}, logger)
	if inst != nil {
		cronObs.SetInstruments(inst)
	}

	webhookObs := webhook.NewObserver(webhookMgr, webhookTaskExec, orch.WakeHandler(), webhook.Config{
		Addr:         fmt.Sprintf("%s:%d", cfg.Webhook.Host, cfg.Webhook.Port),
		GlobalToken:  cfg.Webhook.GlobalToken,
		MaxBodyBytes: cfg.Webhook.MaxBodyBytes,
		RateLimitRPM: cfg.Webhook.RateLimitRPM,
		AllowedChats: cfg.Telegram.AllowedUserIDs,
	}, logger)
	if inst != nil {
		webhookObs.SetInstruments(inst)
	}

	var quiet *ductor.QuietHours
	if cfg.Heartbeat.QuietStart != "" || cfg.Heartbeat.QuietEnd != "" {
		quiet = &ductor.QuietHours{Start: cfg.Heartbeat.QuietStart, End: cfg.Heartbeat.QuietEnd}
	}
	heartbeatObs := heartbeat.NewObserver(registry, orch.HeartbeatHandler(), func(chatID, text string) {
		logger.Info("heartbeat delivered", "chat_id", chatID, "text_len", len(text))
	}, heartbeat.Config{
		Interval:     time.Duration(cfg.Heartbeat.IntervalMinutes) * time.Minute,
		CLITimeout:   time.Duration(cfg.CLITimeoutSeconds) * time.Second,
		QuietHours:   quiet,
		AllowedChats: cfg.Telegram.AllowedUserIDs,
	}, logger)

	cleanupObs := cleanup.NewObserver(cleanup.Config{
		CheckHour: cfg.Cleanup.CheckHour,
		MaxAge:    time.Duration(cfg.Cleanup.MaxAgeDays) * 24 * time.Hour,
		Dirs:      []string{layout.TelegramFilesDir(), layout.OutputToUserDir()},
	}, logger)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Cron.Enabled {
		g.Go(func() error {
			cronObs.Start(gctx)
			<-gctx.Done()
			cronObs.Stop()
			return nil
		})
	}

	if cfg.Webhook.Enabled {
		g.Go(func() error {
			if err := webhookObs.Start(gctx); err != nil {
				return fmt.Errorf("webhook observer: %w", err)
			}
			<-gctx.Done()
			return webhookObs.Stop(context.Background())
		})
	}

	if cfg.Heartbeat.Enabled {
		g.Go(func() error {
			heartbeatObs.Start(gctx)
			<-gctx.Done()
			heartbeatObs.Stop()
			return nil
		})
	}

	if cfg.Cleanup.Enabled {
		g.Go(func() error {
			cleanupObs.Start(gctx)
			<-gctx.Done()
			cleanupObs.Stop()
			return nil
		})
	}

	if newFrontend != nil && cfg.Telegram.Token != "" {
		frontend, err := newFrontend(cfg.Telegram, logger)
		if err != nil {
			return fmt.Errorf("telegram frontend: %w", err)
		}
		router := telegram.NewRouter(frontend,
			func(ctx context.Context, chatID, msgID, text string) telegram.Result {
				res := orch.HandleMessage(ctx, chatID, msgID, text)
				return telegram.Result{Text: res.Text, Suppress: res.Suppress}
			},
			func(ctx context.Context, chatID, msgID, text string, cb cliservice.StreamCallbacks) telegram.Result {
				res := orch.HandleMessageStreaming(ctx, chatID, msgID, text, cb)
				return telegram.Result{Text: res.Text, Suppress: res.Suppress}
			},
			cfg.Telegram.AllowedUserIDs, logger)
		g.Go(func() error {
			return router.Run(gctx)
		})
	} else {
		logger.Info("main: no telegram frontend configured, running webhook ingress and observers only")
	}

	logger.Info("ductor: running", "home", layout.Home, "providers", available)
	waitErr := g.Wait()
	logger.Info("ductor: shut down")
	return waitErr
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// detectAvailableProviders treats a provider CLI as authenticated if
// its binary resolves on PATH; ductor has no separate credential
// store of its own to consult, per spec §4.4's provider-availability
// gate.
func detectAvailableProviders(logger *slog.Logger) map[string]bool {
	available := make(map[string]bool, 3)
	for _, name := range []string{"claude", "codex", "gemini"} {
		if _, err := exec.LookPath(name); err == nil {
			available[name] = true
		} else {
			logger.Debug("main: provider binary not found on PATH", "provider", name)
		}
	}
	return available
}

// nativeProviderMap inverts the configured per-provider default
// models, plus the well-known model aliases each CLI ships with, into
// the model->native-provider lookup the resolver consults first.
func nativeProviderMap(cfg *config.Config) map[string]string {
	native := map[string]string{
		"opus":               "claude",
		"sonnet":             "claude",
		"haiku":              "claude",
		"gpt-5.1-codex":      "codex",
		"gpt-5.1-codex-mini": "codex",
		"gpt-5.2-codex":      "codex",
		"gemini-2.5-pro":     "gemini",
	}
	for provider, model := range cfg.DefaultModelPerProvider {
		native[model] = provider
	}
	if cfg.DefaultModel != "" {
		native[cfg.DefaultModel] = cfg.DefaultProvider
	}
	return native
}

// defaultEquivalents pairs each native model with its cross-provider
// stand-in per spec §4.4's migration fallback: opus<->gpt-5.2-codex,
// sonnet<->gpt-5.1-codex-mini.
func defaultEquivalents() map[string]string {
	return map[string]string{
		"opus":               "gpt-5.2-codex",
		"sonnet":             "gpt-5.1-codex-mini",
		"gpt-5.2-codex":      "opus",
		"gpt-5.1-codex-mini": "sonnet",
	}
}

func generateToken() string {
	buf := make([]byte, 24)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

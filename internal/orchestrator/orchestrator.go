// Package orchestrator implements the central router: command
// dispatch, directive parsing, message hooks, and the normal and
// heartbeat conversation flows described by spec §4.6.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/yuin/goldmark"

	"github.com/nevindra/ductor"
	"github.com/nevindra/ductor/internal/cliservice"
	"github.com/nevindra/ductor/internal/cron"
	"github.com/nevindra/ductor/internal/guardrail"
	"github.com/nevindra/ductor/internal/heartbeat"
	"github.com/nevindra/ductor/internal/middleware"
	"github.com/nevindra/ductor/internal/paths"
	"github.com/nevindra/ductor/internal/process"
	"github.com/nevindra/ductor/internal/provider/resolve"
	"github.com/nevindra/ductor/internal/session"
	"github.com/nevindra/ductor/internal/webhook"
)

// Result is what a command or flow returns to its caller. An empty
// Text with Suppress set means "produce no reply at all" — the abort
// and duplicate-message cases.
type Result struct {
	Text     string
	Suppress bool
}

// Config bundles the Orchestrator's tunables sourced from AgentConfig.
type Config struct {
	DefaultProvider       string
	DefaultModel          string
	BotName               string
	SessionAgeFooterHours time.Duration
	HeartbeatPrompt       string
	HeartbeatAckToken     string
	HeartbeatCooldown     time.Duration
}

// Orchestrator is the central router named in spec §4.6, holding
// every long-lived collaborator the flow and command handlers touch.
type Orchestrator struct {
	Sessions   *session.Store
	Registry   *process.Registry
	CLI        *cliservice.Service
	Resolver   *resolve.Registry
	CronMgr    *cron.Manager
	WebhookMgr *webhook.Manager
	Layout     paths.Layout
	Hooks      *HookRegistry
	Commands   *CommandRegistry
	Locks      *middleware.LockTable
	Dedup      *middleware.Dedup

	available map[string]bool
	cfg       Config
	logger    *slog.Logger

	msgCounter atomic.Int64 // monotonic counter, used by the built-in mainmemory hook
}

func New(sessions *session.Store, registry *process.Registry, cli *cliservice.Service, resolver *resolve.Registry, cronMgr *cron.Manager, webhookMgr *webhook.Manager, layout paths.Layout, available map[string]bool, cfg Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	avail := make(map[string]bool, len(available))
	for k, v := range available {
		avail[k] = v
	}
	o := &Orchestrator{
		Sessions:   sessions,
		Registry:   registry,
		CLI:        cli,
		Resolver:   resolver,
		CronMgr:    cronMgr,
		WebhookMgr: webhookMgr,
		Layout:     layout,
		available:  avail,
		cfg:        cfg,
		logger:     logger,
		Locks:      middleware.NewLockTable(256),
		Dedup:      middleware.NewDedup(1024, 2*time.Minute),
	}
	o.Hooks = NewHookRegistry()
	o.Hooks.Register(mainMemoryReminderHook())
	o.Commands = NewCommandRegistry()
	registerBuiltinCommands(o.Commands)
	return o
}

// HandleMessage implements spec §4.6's handle_message, wrapped by the
// sequential middleware of spec §4.8: quick commands and the abort
// trigger bypass the per-chat lock and dedup entirely; everything
// else is deduplicated by (chat, message id) and run strictly in
// order under the chat's lock.
func (o *Orchestrator) HandleMessage(ctx context.Context, chatID, msgID, text string) Result {
	if middleware.IsQuickCommand(text, o.cfg.BotName) || isAbortTrigger(text) {
		return o.dispatch(ctx, chatID, text, nil)
	}
	if o.Dedup.Check(chatID, msgID) {
		return Result{Suppress: true}
	}

	entry := &ductor.QueueEntry{EntryID: ductor.NewID(), ChatID: chatID, MessageID: msgID, TextPreview: text}
	o.Locks.Enqueue(chatID, entry)

	var res Result
	o.Locks.Run(chatID, entry, func() {
		res = o.dispatch(ctx, chatID, text, nil)
	})
	return res
}

// HandleMessageStreaming is HandleMessage's streaming-callback variant.
func (o *Orchestrator) HandleMessageStreaming(ctx context.Context, chatID, msgID, text string, cb cliservice.StreamCallbacks) Result {
	if middleware.IsQuickCommand(text, o.cfg.BotName) || isAbortTrigger(text) {
		return o.dispatch(ctx, chatID, text, &cb)
	}
	if o.Dedup.Check(chatID, msgID) {
		return Result{Suppress: true}
	}

	entry := &ductor.QueueEntry{EntryID: ductor.NewID(), ChatID: chatID, MessageID: msgID, TextPreview: text}
	o.Locks.Enqueue(chatID, entry)

	var res Result
	o.Locks.Run(chatID, entry, func() {
		res = o.dispatch(ctx, chatID, text, &cb)
	})
	return res
}

func (o *Orchestrator) dispatch(ctx context.Context, chatID, text string, cb *cliservice.StreamCallbacks) Result {
	o.Registry.ClearAbort(chatID)
	guardrail.Scan(o.logger, chatID, text)

	cmd, rest, matched := o.Commands.Match(text, o.cfg.BotName)
	if matched {
		return cmd(ctx, o, chatID, rest)
	}

	directive, content, directiveOnly := parseDirective(text, o.Resolver)
	if directiveOnly {
		return Result{Text: fmt.Sprintf("Put your message after @%s to send it to that model.", directive)}
	}
	if directive != "" {
		text = content
	}

	return o.normalFlow(ctx, chatID, text, directive, cb)
}

// isAbortTrigger is the configurable abort-text matcher named by
// spec §4.8; kept to a fixed phrase since no config-driven override
// surface exists yet.
func isAbortTrigger(text string) bool {
	return strings.EqualFold(strings.TrimSpace(text), "/stop")
}

// normalFlow implements spec §4.6 steps 1-12 of the normal/normal_streaming flow.
func (o *Orchestrator) normalFlow(ctx context.Context, chatID, text, modelOverride string, cb *cliservice.StreamCallbacks) Result {
	model := modelOverride
	if model == "" {
		model = o.cfg.DefaultModel
	}
	provider, ok := o.resolveProvider(model)
	if !ok {
		return Result{Text: "No provider is available for that model right now."}
	}

	sess, isNew := o.Sessions.ResolveSession(chatID, provider, model)
	o.Sessions.SyncSessionTarget(chatID, provider, model)

	var appendSystemPrompt string
	if isNew {
		if data, err := os.ReadFile(o.Layout.MainMemory()); err == nil && len(data) > 0 {
			if validateMarkdown(data) {
				appendSystemPrompt = string(data)
			} else {
				o.logger.Warn("orchestrator: MAINMEMORY.md failed markdown validation, skipping")
			}
		}
	}

	msgCount := int(o.msgCounter.Add(1))
	hookCtx := HookContext{ChatID: chatID, MessageCount: msgCount, IsNewSession: isNew, Provider: provider, Model: model}
	if suffix := o.Hooks.Apply(hookCtx); suffix != "" {
		text = text + "\n\n" + suffix
	}

	resumeID := ""
	if !isNew {
		resumeID = sess.Active().SessionID
	}

	req := ductor.AgentRequest{
		Prompt:             text,
		AppendSystemPrompt: appendSystemPrompt,
		ModelOverride:      model,
		ProviderOverride:   provider,
		ChatID:             chatID,
		Label:              chatID,
		ResumeSessionID:    resumeID,
		ContinueSession:    resumeID != "",
	}

	resp, err := o.invoke(ctx, req, cb)

	if o.Registry.WasAborted(chatID) {
		return Result{Suppress: true}
	}

	if err != nil || resp.IsError {
		if resumeID != "" {
			o.Sessions.ResetProviderSession(chatID, provider)
			req.ResumeSessionID = ""
			req.ContinueSession = false
			resp, err = o.invoke(ctx, req, cb)
		}
	}

	if (err != nil || resp.IsError) && resp.ExitCode == -9 {
		o.Sessions.ResetProviderSession(chatID, provider)
		req.ResumeSessionID = ""
		req.ContinueSession = false
		resp, err = o.invoke(ctx, req, cb)
		if (err != nil || resp.IsError) && resp.ExitCode == -9 {
			return Result{Text: "The agent was interrupted. Please resend your message."}
		}
	}

	if err != nil || resp.IsError {
		return Result{Text: "Something went wrong handling that request. Your session was kept."}
	}

	if resp.SessionID != "" {
		sess.Active().SessionID = resp.SessionID
	}
	o.Sessions.UpdateSession(sess, resp.CostUSD, resp.TotalTokens)

	out := resp.Text
	if o.cfg.SessionAgeFooterHours > 0 && sess.Active().MessageCount%10 == 0 {
		age := time.Since(time.Unix(sess.CreatedAt, 0))
		if age > o.cfg.SessionAgeFooterHours {
			out += fmt.Sprintf("\n\n_session is %.0f hours old_", age.Hours())
		}
	}
	return Result{Text: out}
}

func (o *Orchestrator) invoke(ctx context.Context, req ductor.AgentRequest, cb *cliservice.StreamCallbacks) (ductor.AgentResponse, error) {
	if cb != nil {
		return o.CLI.ExecuteStreaming(ctx, req, *cb)
	}
	return o.CLI.Execute(ctx, req)
}

func (o *Orchestrator) resolveProvider(model string) (string, bool) {
	if p, ok := o.Resolver.ProviderFor(model); ok && o.available[p] {
		return p, true
	}
	for p, ok := range o.available {
		if ok {
			return p, true
		}
	}
	return "", false
}

// HeartbeatFlow implements spec §4.6's heartbeat_flow: a side channel
// that never creates a session and never updates counters unless the
// model produces a genuine alert.
func (o *Orchestrator) HeartbeatFlow(ctx context.Context, chatID string) (string, error) {
	sess, ok := o.Sessions.Get(chatID)
	if !ok {
		return "", nil
	}
	if sess.Provider == "" {
		return "", nil
	}
	idle := time.Since(time.Unix(sess.LastActive, 0))
	if idle < o.cfg.HeartbeatCooldown {
		return "", nil
	}

	req := ductor.AgentRequest{
		Prompt:           o.cfg.HeartbeatPrompt,
		ProviderOverride: sess.Provider,
		ModelOverride:    sess.Model,
		ChatID:           chatID,
		Label:            chatID + ":heartbeat",
		ResumeSessionID:  sess.Active().SessionID,
		ContinueSession:  sess.Active().SessionID != "",
	}
	resp, err := o.CLI.Execute(ctx, req)
	if err != nil || resp.IsError {
		return "", err
	}

	reply := stripAckTokens(resp.Text, o.cfg.HeartbeatAckToken)
	if reply == "" {
		return "", nil
	}
	o.Sessions.UpdateSession(sess, resp.CostUSD, resp.TotalTokens)
	return reply, nil
}

// stripAckTokens removes leading/trailing repeated copies of token
// (and surrounding whitespace) from reply, per SPEC_FULL.md's
// supplemented heartbeat-ack behavior (original_source/ repeats the
// strip, not just once).
func stripAckTokens(reply, token string) string {
	if token == "" {
		return strings.TrimSpace(reply)
	}
	s := strings.TrimSpace(reply)
	for {
		trimmed := strings.TrimSpace(strings.TrimPrefix(s, token))
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, token))
		if trimmed == s {
			break
		}
		s = trimmed
	}
	return s
}

func validateMarkdown(data []byte) bool {
	var sink strings.Builder
	return goldmark.Convert(data, &sink) == nil
}

// WakeHandler adapts the normal conversation flow into the shape the
// Webhook Observer's wake mode expects. It calls normalFlow directly,
// so command dispatch, the per-chat lock and dedup are not applied.
func (o *Orchestrator) WakeHandler() webhook.WakeHandler {
	return func(ctx context.Context, chatID, safePrompt string) (string, error) {
		res := o.normalFlow(ctx, chatID, safePrompt, "", nil)
		if res.Suppress {
			return "", nil
		}
		return res.Text, nil
	}
}

// HeartbeatHandler adapts HeartbeatFlow into the shape the Heartbeat
// Observer expects.
func (o *Orchestrator) HeartbeatHandler() heartbeat.Handler {
	return o.HeartbeatFlow
}

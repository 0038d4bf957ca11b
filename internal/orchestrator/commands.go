package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// CommandHandler executes a matched command; orch is passed in
// rather than closed over so handlers stay registerable before the
// Orchestrator they'll run against exists.
type CommandHandler func(ctx context.Context, orch *Orchestrator, chatID, rest string) Result

// CommandRegistry maps a command token to its handler, per spec
// §4.6's prefix-match-on-lowercased-trimmed-command dispatch.
type CommandRegistry struct {
	handlers map[string]CommandHandler
}

func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{handlers: make(map[string]CommandHandler)}
}

func (r *CommandRegistry) Register(token string, h CommandHandler) {
	r.handlers[token] = h
}

// Match checks whether text names a known command (case-insensitive,
// trimmed, optional "@bot_name" suffix stripped). Returns the handler,
// the remainder of the text after the command token, and whether a
// command matched at all.
func (r *CommandRegistry) Match(text, botName string) (CommandHandler, string, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "/") {
		return nil, "", false
	}
	fields := strings.Fields(trimmed)
	token := strings.ToLower(fields[0])
	if botName != "" {
		token = strings.TrimSuffix(token, "@"+strings.ToLower(botName))
	}
	h, ok := r.handlers[token]
	if !ok {
		return nil, "", false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(trimmed, fields[0]))
	return h, rest, true
}

func registerBuiltinCommands(r *CommandRegistry) {
	r.Register("/new", cmdNew)
	r.Register("/stop", cmdStop)
	r.Register("/status", cmdStatus)
	r.Register("/model", cmdModel)
	r.Register("/memory", cmdMemory)
	r.Register("/cron", cmdCron)
	r.Register("/diagnose", cmdDiagnose)
	r.Register("/upgrade", cmdUpgrade)
}

func cmdNew(ctx context.Context, o *Orchestrator, chatID, rest string) Result {
	provider := o.cfg.DefaultProvider
	model := o.cfg.DefaultModel
	if sess, ok := o.Sessions.Get(chatID); ok {
		provider, model = sess.Provider, sess.Model
	}
	o.Sessions.ResetSession(chatID, provider, model)
	return Result{Text: "Started a new session."}
}

func cmdStop(ctx context.Context, o *Orchestrator, chatID, rest string) Result {
	queued := o.Locks.CancelQueued(chatID)
	n := o.Registry.KillAll(ctx, chatID)
	if n == 0 && queued == 0 {
		return Result{Text: "Nothing was running."}
	}
	if queued == 0 {
		return Result{Text: fmt.Sprintf("Stopped %d running process(es).", n)}
	}
	return Result{Text: fmt.Sprintf("Stopped %d running process(es) and dropped %d queued message(s).", n, queued)}
}

func cmdStatus(ctx context.Context, o *Orchestrator, chatID, rest string) Result {
	sess, ok := o.Sessions.Get(chatID)
	if !ok {
		return Result{Text: "No active session."}
	}
	active := sess.Active()
	age := time.Since(time.Unix(sess.CreatedAt, 0))
	return Result{Text: fmt.Sprintf("Provider: %s\nModel: %s\nMessages: %d\nSession age: %.0fh\nCost: $%.4f",
		sess.Provider, sess.Model, active.MessageCount, age.Hours(), active.TotalCostUSD)}
}

func cmdModel(ctx context.Context, o *Orchestrator, chatID, rest string) Result {
	name := strings.TrimSpace(rest)
	if name == "" {
		sess, ok := o.Sessions.Get(chatID)
		if !ok {
			return Result{Text: fmt.Sprintf("Current default model: %s", o.cfg.DefaultModel)}
		}
		return Result{Text: fmt.Sprintf("Current model: %s (%s)", sess.Model, sess.Provider)}
	}
	provider, known := o.Resolver.ProviderFor(name)
	if !known || !o.available[provider] {
		return Result{Text: "That model isn't available right now."}
	}
	o.Sessions.SyncSessionTarget(chatID, provider, name)
	return Result{Text: fmt.Sprintf("Model set to %s.", name)}
}

func cmdMemory(ctx context.Context, o *Orchestrator, chatID, rest string) Result {
	data, err := readMainMemoryPreview(o)
	if err != nil {
		return Result{Text: "No memory file yet."}
	}
	return Result{Text: data}
}

func cmdCron(ctx context.Context, o *Orchestrator, chatID, rest string) Result {
	if o.CronMgr == nil {
		return Result{Text: "Cron is not enabled."}
	}
	jobs := o.CronMgr.All()
	if len(jobs) == 0 {
		return Result{Text: "No cron jobs configured."}
	}
	var b strings.Builder
	for _, j := range jobs {
		status := j.LastRunStatus
		if status == "" {
			status = "never run"
		}
		fmt.Fprintf(&b, "%s (%s) — %s, last: %s\n", j.Title, j.Schedule, enabledLabel(j.Enabled), status)
	}
	return Result{Text: strings.TrimRight(b.String(), "\n")}
}

func cmdDiagnose(ctx context.Context, o *Orchestrator, chatID, rest string) Result {
	var b strings.Builder
	fmt.Fprintf(&b, "Process registry active: %v\n", o.Registry.HasActive(chatID))
	for p, ok := range o.available {
		fmt.Fprintf(&b, "provider %s: available=%v\n", p, ok)
	}
	return Result{Text: strings.TrimRight(b.String(), "\n")}
}

func cmdUpgrade(ctx context.Context, o *Orchestrator, chatID, rest string) Result {
	return Result{Text: "No upgrade action is configured for this deployment."}
}

func enabledLabel(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}

func readMainMemoryPreview(o *Orchestrator) (string, error) {
	return readFileHead(o.Layout.MainMemory(), 2000)
}

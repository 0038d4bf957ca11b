// Package codex implements the OpenAI Codex CLI provider adapter.
package codex

import (
	"context"

	"github.com/nevindra/ductor"
	"github.com/nevindra/ductor/internal/process"
	"github.com/nevindra/ductor/internal/provider"
	"github.com/nevindra/ductor/internal/stream"
)

// Adapter implements provider.Adapter for the `codex` CLI.
type Adapter struct {
	cfg      provider.Config
	registry *process.Registry
}

var _ provider.Adapter = (*Adapter)(nil)

func New(cfg provider.Config, registry *process.Registry) *Adapter {
	return &Adapter{cfg: cfg, registry: registry}
}

func (a *Adapter) Name() string { return "codex" }

// composePrompt builds Codex's single prompt string, since the CLI
// has no separate system-prompt flag: system + "\n\n" + user + "\n\n"
// + append-system.
func composePrompt(req ductor.AgentRequest) string {
	prompt := req.Prompt
	if req.SystemPrompt != "" {
		prompt = req.SystemPrompt + "\n\n" + prompt
	}
	if req.AppendSystemPrompt != "" {
		prompt = prompt + "\n\n" + req.AppendSystemPrompt
	}
	return prompt
}

func sandboxFlags(cfg provider.Config) []string {
	switch cfg.PermissionMode {
	case "full-auto":
		return []string{"--full-auto"}
	case "bypass":
		return []string{"--dangerously-bypass-approvals-and-sandbox"}
	case "":
		return nil
	default:
		return []string{"--sandbox", cfg.PermissionMode}
	}
}

func (a *Adapter) buildArgv(req ductor.AgentRequest) []string {
	model := req.ModelOverride
	if model == "" {
		model = a.cfg.Model
	}

	var argv []string
	if req.ResumeSessionID != "" {
		argv = append(argv, "codex", "exec", "resume", "--json", "--color", "never")
		argv = append(argv, sandboxFlags(a.cfg)...)
		argv = append(argv, "--skip-git-repo-check")
		if model != "" {
			argv = append(argv, "--model", model)
		}
		if a.cfg.ReasoningEffort != "" {
			argv = append(argv, "-c", "model_reasoning_effort="+a.cfg.ReasoningEffort)
		}
		argv = append(argv, a.cfg.ExtraArgv...)
		argv = append(argv, "--", req.ResumeSessionID, composePrompt(req))
		return argv
	}

	argv = append(argv, "codex", "exec", "--json", "--color", "never")
	argv = append(argv, sandboxFlags(a.cfg)...)
	argv = append(argv, "--skip-git-repo-check")
	if model != "" {
		argv = append(argv, "--model", model)
	}
	if a.cfg.ReasoningEffort != "" {
		argv = append(argv, "-c", "model_reasoning_effort="+a.cfg.ReasoningEffort)
	}
	argv = append(argv, a.cfg.ExtraArgv...)
	argv = append(argv, "--", composePrompt(req))
	return argv
}

func (a *Adapter) Send(ctx context.Context, req ductor.AgentRequest) (ductor.AgentResponse, error) {
	return a.run(ctx, req, nil)
}

func (a *Adapter) SendStreaming(ctx context.Context, req ductor.AgentRequest, onEvent func(ductor.StreamEvent)) (ductor.AgentResponse, error) {
	return a.run(ctx, req, onEvent)
}

func (a *Adapter) run(ctx context.Context, req ductor.AgentRequest, onEvent func(ductor.StreamEvent)) (ductor.AgentResponse, error) {
	argv := provider.DockerizeArgv(a.cfg.DockerContainer, req.ChatID, a.buildArgv(req))
	dir := a.cfg.WorkingDir
	if a.cfg.DockerContainer != "" {
		dir = ""
	}

	ctx, cancel := provider.WithTimeout(ctx, req.Timeout)
	defer cancel()

	sp, err := provider.Spawn(ctx, provider.SpawnOptions{
		Argv:     argv,
		Dir:      dir,
		ChatID:   req.ChatID,
		Label:    req.Label,
		Registry: a.registry,
	})
	if err != nil {
		return ductor.AgentResponse{}, err
	}

	parser := &stream.CodexParser{}
	filter := &stream.ThinkingFilter{}
	var final *ductor.StreamEvent
	var textBuf string

	emit := func(ev ductor.StreamEvent) {
		if ev.Type == ductor.EventAssistantText {
			textBuf += ev.Text
		}
		if ev.IsTerminal() {
			e := ev
			final = &e
			return
		}
		if onEvent != nil {
			onEvent(ev)
		}
	}

	for sp.Stdout.Scan() {
		line := sp.Stdout.Text()
		if line == "" {
			continue
		}
		for _, raw := range parser.Parse(line) {
			for _, ev := range filter.Feed(raw) {
				emit(ev)
			}
		}
	}
	for _, ev := range filter.Flush() {
		emit(ev)
	}

	exitCode := sp.Wait()
	timedOut := provider.TimedOut(ctx)
	if timedOut {
		sp.Kill()
	}

	if timedOut {
		return ductor.AgentResponse{IsError: true, TimedOut: true, ExitCode: exitCode, Text: "request timed out"}, nil
	}
	if final != nil {
		text := final.Text
		if text == "" {
			text = textBuf
		}
		return ductor.AgentResponse{
			Text:         text,
			SessionID:    final.SessionID,
			IsError:      final.IsError,
			InputTokens:  final.Usage.InputTokens,
			OutputTokens: final.Usage.OutputTokens,
			TotalTokens:  final.Usage.TotalTokens,
			ExitCode:     exitCode,
		}, nil
	}
	if exitCode != 0 {
		text := sp.Stderr()
		if len(text) > 500 {
			text = text[:500]
		}
		if text == "" {
			text = textBuf
		}
		if text == "" {
			text = "(no output)"
		}
		return ductor.AgentResponse{Text: text, IsError: true, ExitCode: exitCode}, nil
	}
	return ductor.AgentResponse{Text: textBuf, ExitCode: exitCode}, nil
}

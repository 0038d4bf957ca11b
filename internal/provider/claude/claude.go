// Package claude implements the Claude Code CLI provider adapter.
package claude

import (
	"context"
	"fmt"

	"github.com/nevindra/ductor"
	"github.com/nevindra/ductor/internal/process"
	"github.com/nevindra/ductor/internal/provider"
	"github.com/nevindra/ductor/internal/stream"
)

// Adapter implements provider.Adapter for the `claude` CLI.
type Adapter struct {
	cfg      provider.Config
	registry *process.Registry
}

var _ provider.Adapter = (*Adapter)(nil)

func New(cfg provider.Config, registry *process.Registry) *Adapter {
	return &Adapter{cfg: cfg, registry: registry}
}

func (a *Adapter) Name() string { return "claude" }

// buildArgv constructs `claude -p --output-format ... [...] -- <prompt>`.
// streaming switches the format token and injects --verbose.
func (a *Adapter) buildArgv(req ductor.AgentRequest, streaming bool) []string {
	argv := []string{"claude", "-p", "--output-format"}
	if streaming {
		argv = append(argv, "stream-json", "--verbose")
	} else {
		argv = append(argv, "json")
	}
	if a.cfg.PermissionMode != "" {
		argv = append(argv, "--permission-mode", a.cfg.PermissionMode)
	}
	model := req.ModelOverride
	if model == "" {
		model = a.cfg.Model
	}
	if model != "" {
		argv = append(argv, "--model", model)
	}
	if req.SystemPrompt != "" {
		argv = append(argv, "--system-prompt", req.SystemPrompt)
	}
	if req.AppendSystemPrompt != "" {
		argv = append(argv, "--append-system-prompt", req.AppendSystemPrompt)
	}
	if a.cfg.MaxTurns > 0 {
		argv = append(argv, "--max-turns", fmt.Sprint(a.cfg.MaxTurns))
	}
	if a.cfg.MaxBudgetUSD > 0 {
		argv = append(argv, "--max-budget-usd", fmt.Sprintf("%g", a.cfg.MaxBudgetUSD))
	}
	if len(a.cfg.AllowedTools) > 0 {
		argv = append(argv, "--allowedTools")
		argv = append(argv, a.cfg.AllowedTools...)
	}
	if len(a.cfg.DisallowedTools) > 0 {
		argv = append(argv, "--disallowedTools")
		argv = append(argv, a.cfg.DisallowedTools...)
	}
	if req.ResumeSessionID != "" {
		argv = append(argv, "--resume", req.ResumeSessionID)
	} else if req.ContinueSession {
		argv = append(argv, "--continue")
	}
	argv = append(argv, a.cfg.ExtraArgv...)
	argv = append(argv, "--", req.Prompt)
	return argv
}

func (a *Adapter) Send(ctx context.Context, req ductor.AgentRequest) (ductor.AgentResponse, error) {
	return run(ctx, a.cfg, a.registry, a.buildArgv(req, false), req, nil)
}

func (a *Adapter) SendStreaming(ctx context.Context, req ductor.AgentRequest, onEvent func(ductor.StreamEvent)) (ductor.AgentResponse, error) {
	return run(ctx, a.cfg, a.registry, a.buildArgv(req, true), req, onEvent)
}

func run(ctx context.Context, cfg provider.Config, registry *process.Registry, argv []string, req ductor.AgentRequest, onEvent func(ductor.StreamEvent)) (ductor.AgentResponse, error) {
	argv = provider.DockerizeArgv(cfg.DockerContainer, req.ChatID, argv)
	dir := cfg.WorkingDir
	if cfg.DockerContainer != "" {
		dir = ""
	}

	ctx, cancel := provider.WithTimeout(ctx, req.Timeout)
	defer cancel()

	sp, err := provider.Spawn(ctx, provider.SpawnOptions{
		Argv:     argv,
		Dir:      dir,
		ChatID:   req.ChatID,
		Label:    req.Label,
		Registry: registry,
	})
	if err != nil {
		return ductor.AgentResponse{}, err
	}

	parser := &stream.ClaudeParser{}
	var final *ductor.StreamEvent
	var textBuf string

	for sp.Stdout.Scan() {
		line := sp.Stdout.Text()
		if line == "" {
			continue
		}
		for _, ev := range parser.Parse(line) {
			if ev.Type == ductor.EventAssistantText {
				textBuf += ev.Text
			}
			if ev.IsTerminal() {
				e := ev
				final = &e
				continue
			}
			if onEvent != nil {
				onEvent(ev)
			}
		}
	}

	exitCode := sp.Wait()
	timedOut := provider.TimedOut(ctx)
	if timedOut {
		sp.Kill()
	}

	return finalize(exitCode, timedOut, final, textBuf, sp.Stderr()), nil
}

func finalize(exitCode int, timedOut bool, final *ductor.StreamEvent, textBuf, stderr string) ductor.AgentResponse {
	if timedOut {
		return ductor.AgentResponse{IsError: true, TimedOut: true, ExitCode: exitCode, Text: "request timed out"}
	}
	if final != nil {
		return ductor.AgentResponse{
			Text:         pick(final.Text, textBuf),
			SessionID:    final.SessionID,
			IsError:      final.IsError,
			CostUSD:      final.CostUSD,
			InputTokens:  final.Usage.InputTokens,
			OutputTokens: final.Usage.OutputTokens,
			TotalTokens:  final.Usage.TotalTokens,
			ExitCode:     exitCode,
		}
	}
	if exitCode != 0 {
		text := stderr
		if len(text) > 500 {
			text = text[:500]
		}
		if text == "" {
			text = textBuf
		}
		if text == "" {
			text = "(no output)"
		}
		return ductor.AgentResponse{Text: text, IsError: true, ExitCode: exitCode}
	}
	return ductor.AgentResponse{Text: textBuf, ExitCode: exitCode}
}

func pick(primary, fallback string) string {
	if primary != "" {
		return primary
	}
	return fallback
}

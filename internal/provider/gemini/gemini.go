// Package gemini implements the Gemini CLI provider adapter.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nevindra/ductor"
	"github.com/nevindra/ductor/internal/process"
	"github.com/nevindra/ductor/internal/provider"
	"github.com/nevindra/ductor/internal/stream"
)

// Adapter implements provider.Adapter for the `gemini` CLI.
type Adapter struct {
	cfg      provider.Config
	registry *process.Registry
}

var _ provider.Adapter = (*Adapter)(nil)

func New(cfg provider.Config, registry *process.Registry) *Adapter {
	return &Adapter{cfg: cfg, registry: registry}
}

func (a *Adapter) Name() string { return "gemini" }

func (a *Adapter) buildArgv(req ductor.AgentRequest, streaming bool) []string {
	argv := []string{"gemini", "--output-format"}
	if streaming {
		argv = append(argv, "stream-json")
	} else {
		argv = append(argv, "json")
	}
	argv = append(argv, "--include-directories", ".")

	model := req.ModelOverride
	if model == "" {
		model = a.cfg.Model
	}
	if model != "" {
		argv = append(argv, "--model", model)
	}
	if a.cfg.PermissionMode == "yolo" {
		argv = append(argv, "--approval-mode", "yolo")
	}
	if req.ResumeSessionID != "" {
		argv = append(argv, "--resume", req.ResumeSessionID)
	} else if req.ContinueSession {
		argv = append(argv, "--resume", "latest")
	}
	if len(a.cfg.AllowedTools) > 0 {
		argv = append(argv, "--allowed-tools")
		argv = append(argv, a.cfg.AllowedTools...)
	}
	argv = append(argv, a.cfg.ExtraArgv...)
	return argv
}

// upsertTrustedFolder adds the workspace path into
// ~/.gemini/trustedFolders.json, creating the file if missing.
func upsertTrustedFolder(workspace string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	path := filepath.Join(home, ".gemini", "trustedFolders.json")

	trusted := map[string]string{}
	if data, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(data, &trusted)
	}
	if _, ok := trusted[workspace]; ok {
		return nil
	}
	trusted[workspace] = "TRUST_FOLDER"

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(trusted, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// writeSystemMD writes the system + appended system prompt to a temp
// markdown file for GEMINI_SYSTEM_MD, since Gemini has no inline
// system-prompt flag.
func writeSystemMD(req ductor.AgentRequest) (string, error) {
	if req.SystemPrompt == "" && req.AppendSystemPrompt == "" {
		return "", nil
	}
	f, err := os.CreateTemp("", "ductor-gemini-system-*.md")
	if err != nil {
		return "", err
	}
	defer f.Close()
	content := req.SystemPrompt
	if req.AppendSystemPrompt != "" {
		content += "\n\n" + req.AppendSystemPrompt
	}
	if _, err := f.WriteString(content); err != nil {
		return "", err
	}
	return f.Name(), nil
}

func (a *Adapter) Send(ctx context.Context, req ductor.AgentRequest) (ductor.AgentResponse, error) {
	return a.run(ctx, req, false, nil)
}

func (a *Adapter) SendStreaming(ctx context.Context, req ductor.AgentRequest, onEvent func(ductor.StreamEvent)) (ductor.AgentResponse, error) {
	return a.run(ctx, req, true, onEvent)
}

func (a *Adapter) run(ctx context.Context, req ductor.AgentRequest, streaming bool, onEvent func(ductor.StreamEvent)) (ductor.AgentResponse, error) {
	if a.cfg.DockerContainer == "" && a.cfg.WorkingDir != "" {
		if err := upsertTrustedFolder(a.cfg.WorkingDir); err != nil {
			return ductor.AgentResponse{}, fmt.Errorf("gemini: trusted folders: %w", err)
		}
	}

	systemMDPath, err := writeSystemMD(req)
	if err != nil {
		return ductor.AgentResponse{}, fmt.Errorf("gemini: system prompt file: %w", err)
	}
	if systemMDPath != "" {
		defer os.Remove(systemMDPath)
	}

	argv := provider.DockerizeArgv(a.cfg.DockerContainer, req.ChatID, a.buildArgv(req, streaming))
	dir := a.cfg.WorkingDir
	if a.cfg.DockerContainer != "" {
		dir = ""
	}

	env := append(os.Environ(), "GEMINI_IDE_ENABLED=false")
	if systemMDPath != "" {
		env = append(env, "GEMINI_SYSTEM_MD="+systemMDPath)
	}

	ctx, cancel := provider.WithTimeout(ctx, req.Timeout)
	defer cancel()

	sp, err := provider.Spawn(ctx, provider.SpawnOptions{
		Argv:      argv,
		Dir:       dir,
		Env:       env,
		StdinData: req.Prompt,
		ChatID:    req.ChatID,
		Label:     req.Label,
		Registry:  a.registry,
	})
	if err != nil {
		return ductor.AgentResponse{}, err
	}

	parser := &stream.GeminiParser{}
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
			Duration:     time.Duration(final.DurationMS) * time.Millisecond,
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

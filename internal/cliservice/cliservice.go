// Package cliservice implements the CLI Service: the single gateway
// for every agent invocation, responsible for resolving a request to
// a concrete provider adapter and running the non-streaming and
// streaming execution paths.
package cliservice

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"

	"github.com/nevindra/ductor"
	"github.com/nevindra/ductor/internal/observability"
	"github.com/nevindra/ductor/internal/process"
	"github.com/nevindra/ductor/internal/provider"
	"github.com/nevindra/ductor/internal/provider/claude"
	"github.com/nevindra/ductor/internal/provider/codex"
	"github.com/nevindra/ductor/internal/provider/gemini"
	"github.com/nevindra/ductor/internal/provider/resolve"
)

// StaticConfig is the CLI Service's read-mostly configuration,
// mutated only through the documented mutator hooks (copy-on-write).
type StaticConfig struct {
	WorkingDir              string
	DefaultModel            string
	DefaultProvider         string
	PermissionMode          string
	DockerContainer         string
	ReasoningEffort         string
	ProviderExtraArgv       map[string][]string
	DefaultModelPerProvider map[string]string
}

// Service is the single entry point for every agent invocation.
type Service struct {
	mu        sync.RWMutex
	cfg       StaticConfig
	available map[string]bool

	registry *process.Registry
	resolver *resolve.Registry
	logger   *slog.Logger

	instruments *observability.Instruments
}

// SetInstruments attaches the OTEL instruments every invocation
// reports to. Nil is safe and leaves metrics unrecorded.
func (s *Service) SetInstruments(inst *observability.Instruments) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instruments = inst
}

func New(cfg StaticConfig, available map[string]bool, registry *process.Registry, resolver *resolve.Registry, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	avail := make(map[string]bool, len(available))
	for k, v := range available {
		avail[k] = v
	}
	return &Service{cfg: cfg, available: avail, registry: registry, resolver: resolver, logger: logger}
}

func (s *Service) snapshot() (StaticConfig, map[string]bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	avail := make(map[string]bool, len(s.available))
	for k, v := range s.available {
		avail[k] = v
	}
	return s.cfg, avail
}

// UpdateAvailableProviders replaces the set of authenticated providers.
// Immediate; in-flight calls finish under the previous snapshot.
func (s *Service) UpdateAvailableProviders(available map[string]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.available = make(map[string]bool, len(available))
	for k, v := range available {
		s.available[k] = v
	}
}

// UpdateDefaultModel swaps the default model used when a request has
// no model override.
func (s *Service) UpdateDefaultModel(model string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.DefaultModel = model
}

// UpdateReasoningEffort swaps the default Codex reasoning effort.
func (s *Service) UpdateReasoningEffort(effort string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.ReasoningEffort = effort
}

// UpdateDockerContainer swaps the Docker container name used for new
// invocations (argv-prefix transform only).
func (s *Service) UpdateDockerContainer(container string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.DockerContainer = container
}

// makeAdapter resolves req to a concrete provider.Adapter per spec
// §4.4's _make_cli.
func (s *Service) makeAdapter(req ductor.AgentRequest) (provider.Adapter, error) {
	cfg, available := s.snapshot()

	resolved, err := s.resolver.Resolve(req.ModelOverride, req.ProviderOverride, cfg.DefaultModel, available, cfg.DefaultModelPerProvider)
	if err != nil {
		return nil, &ductor.ErrConfiguration{Message: err.Error()}
	}

	workingDir := cfg.WorkingDir
	if req.WorkingDirOverride != "" {
		workingDir = req.WorkingDirOverride
	}

	pcfg := provider.Config{
		WorkingDir:         workingDir,
		Model:              resolved.Model,
		PermissionMode:     cfg.PermissionMode,
		SystemPrompt:       req.SystemPrompt,
		AppendSystemPrompt: req.AppendSystemPrompt,
		ReasoningEffort:    cfg.ReasoningEffort,
		DockerContainer:    cfg.DockerContainer,
		ExtraArgv:          cfg.ProviderExtraArgv[resolved.Provider],
		ChatID:             req.ChatID,
		Label:              req.Label,
	}

	switch resolved.Provider {
	case "claude":
		return claude.New(pcfg, s.registry), nil
	case "codex":
		return codex.New(pcfg, s.registry), nil
	case "gemini":
		return gemini.New(pcfg, s.registry), nil
	default:
		return nil, &ductor.ErrConfiguration{Message: "unknown provider: " + resolved.Provider}
	}
}

// Execute runs the non-streaming path: build an adapter, call Send,
// log the outcome.
func (s *Service) Execute(ctx context.Context, req ductor.AgentRequest) (ductor.AgentResponse, error) {
	adapter, err := s.makeAdapter(req)
	if err != nil {
		return ductor.AgentResponse{}, err
	}
	start := time.Now()
	resp, err := adapter.Send(ctx, req)
	resp.Duration = time.Since(start)
	s.logger.Info("cli invocation", "label", req.Label, "provider", adapter.Name(), "is_error", resp.IsError, "cost_usd", resp.CostUSD, "tokens", resp.TotalTokens, "ms", resp.Duration.Milliseconds())
	s.recordInvocation(ctx, req.Label, adapter.Name(), resp)
	return resp, err
}

// recordInvocation reports one completed invocation's cost, duration,
// and token usage to the OTEL metric instruments, and mirrors the
// same fields as a structured OTEL log record per spec §4.4's
// "log (label, status, cost, tokens, ms)" requirement. Both are
// no-ops when no Instruments are attached.
func (s *Service) recordInvocation(ctx context.Context, label, provider string, resp ductor.AgentResponse) {
	s.mu.RLock()
	inst := s.instruments
	s.mu.RUnlock()
	if inst == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("provider", provider))
	inst.CLIInvocations.Add(ctx, 1, attrs)
	inst.CLIDuration.Record(ctx, float64(resp.Duration.Milliseconds()), attrs)
	inst.CLICostTotal.Add(ctx, resp.CostUSD, attrs)
	inst.CLITokenUsage.Add(ctx, resp.TotalTokens, attrs)

	status := "ok"
	if resp.IsError {
		status = "error"
	}
	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue("cli invocation completed"))
	rec.AddAttributes(
		otellog.String("label", label),
		otellog.String("provider", provider),
		otellog.String("status", status),
		otellog.Float64("cost_usd", resp.CostUSD),
		otellog.Int64("tokens", resp.TotalTokens),
		otellog.Int64("duration_ms", resp.Duration.Milliseconds()),
	)
	inst.Logger.Emit(ctx, rec)
}

// StreamCallbacks are the CLI Service's dispatch hooks for a streaming
// invocation, per spec §4.4.
type StreamCallbacks struct {
	OnTextDelta    func(text string)
	OnSystemStatus func(status string) // an empty status clears it (CompactBoundary)
	OnToolActivity func(toolName string)
}

// ExecuteStreaming runs the streaming path with graceful fallback to
// the non-streaming path, per spec §4.4.
func (s *Service) ExecuteStreaming(ctx context.Context, req ductor.AgentRequest, cb StreamCallbacks) (ductor.AgentResponse, error) {
	adapter, err := s.makeAdapter(req)
	if err != nil {
		return ductor.AgentResponse{}, err
	}

	start := time.Now()
	var textBuf string
	var streamErr error

	resp, err := adapter.SendStreaming(ctx, req, func(ev ductor.StreamEvent) {
		if s.registry != nil && s.registry.WasAborted(req.ChatID) {
			return
		}
		switch ev.Type {
		case ductor.EventAssistantText:
			textBuf += ev.Text
			if cb.OnTextDelta != nil {
				cb.OnTextDelta(ev.Text)
			}
		case ductor.EventThinking:
			if cb.OnSystemStatus != nil {
				cb.OnSystemStatus("thinking")
			}
		case ductor.EventToolUse:
			if cb.OnToolActivity != nil {
				cb.OnToolActivity(ev.ToolName)
			}
		case ductor.EventSystemStatus:
			if cb.OnSystemStatus != nil {
				cb.OnSystemStatus(ev.Status)
			}
		case ductor.EventCompactBoundary:
			if cb.OnSystemStatus != nil {
				cb.OnSystemStatus("")
			}
			s.logger.Info("compact boundary", "label", req.Label, "trigger", ev.Trigger, "pre_tokens", ev.PreTokens)
		}
	})
	if err != nil {
		streamErr = err
	}

	if s.registry != nil && s.registry.WasAborted(req.ChatID) {
		return ductor.AgentResponse{}, nil
	}

	if streamErr == nil && resp.Text == "" && textBuf != "" {
		resp.Text = textBuf
	}

	// Fallback branch: stream ended without a usable result.
	if streamErr != nil || (resp.Text == "" && !resp.IsError && resp.SessionID == "" && textBuf == "") {
		fallback, ferr := s.Execute(ctx, req)
		fallback.StreamFallback = true
		return fallback, ferr
	}

	resp.Duration = time.Since(start)
	s.logger.Info("cli streaming invocation", "label", req.Label, "provider", adapter.Name(), "is_error", resp.IsError, "cost_usd", resp.CostUSD, "tokens", resp.TotalTokens, "ms", resp.Duration.Milliseconds())
	s.recordInvocation(ctx, req.Label, adapter.Name(), resp)
	return resp, nil
}

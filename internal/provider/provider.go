// Package provider defines the adapter capability every provider CLI
// wrapper (Claude Code, Codex, Gemini) implements, plus the shared
// subprocess spawn protocol they all build on.
package provider

import (
	"context"

	"github.com/nevindra/ductor"
)

// Adapter is the capability set every provider variant exposes. The
// CLI Service dispatches through this interface without knowing which
// concrete provider it holds — a variant type in spirit, a Go
// interface in practice.
type Adapter interface {
	// Name reports the provider name ("claude", "codex", "gemini").
	Name() string

	// Send performs a non-streaming invocation and returns the
	// aggregated final response.
	Send(ctx context.Context, req ductor.AgentRequest) (ductor.AgentResponse, error)

	// SendStreaming performs a streaming invocation, invoking onEvent
	// for every interior event as it arrives, and returns the final
	// aggregated response once the stream ends (naturally, by error,
	// or by abort).
	SendStreaming(ctx context.Context, req ductor.AgentRequest, onEvent func(ductor.StreamEvent)) (ductor.AgentResponse, error)
}

// Config is the fully-populated, immutable configuration an adapter
// is constructed with for one invocation: everything the CLI Service
// resolved plus the process-registry handle it registers under.
type Config struct {
	WorkingDir         string
	Model              string
	PermissionMode     string
	SystemPrompt       string
	AppendSystemPrompt string
	AllowedTools       []string
	DisallowedTools    []string
	MaxTurns           int
	MaxBudgetUSD       float64
	ReasoningEffort    string
	DockerContainer    string
	ExtraArgv          []string
	ChatID             string
	Label              string
}

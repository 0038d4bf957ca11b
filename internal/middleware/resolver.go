package middleware

import (
	"github.com/nevindra/ductor"
)

// claudeModels is the fixed small set of Claude models the Parameter
// Resolver validates override/global model names against.
var claudeModels = map[string]bool{
	"sonnet": true,
	"opus":   true,
	"haiku":  true,
}

// GlobalAgentConfig is the subset of AgentConfig the Parameter
// Resolver merges task overrides against.
type GlobalAgentConfig struct {
	Provider        string
	Model           string
	ReasoningEffort string
	CLIParameters   map[string]string
}

// TaskExecutionConfig is the immutable, fully resolved configuration
// the Cron/Webhook Observers build their argv from.
type TaskExecutionConfig struct {
	Provider        string
	Model           string
	ReasoningEffort string
	CLIParameters   map[string]string
}

// ResolveExecutionConfig implements spec §4.8's Parameter Resolver.
func ResolveExecutionConfig(global GlobalAgentConfig, overrides ductor.ExecutionOverrides, codexCache ductor.CodexModelCache) (TaskExecutionConfig, error) {
	provider := overrides.Provider
	if provider == "" {
		provider = global.Provider
	}

	model := overrides.Model
	if model == "" {
		model = global.Model
	}

	if err := validateModel(provider, model, codexCache); err != nil {
		return TaskExecutionConfig{}, err
	}

	effort := overrides.ReasoningEffort
	if effort == "" {
		effort = global.ReasoningEffort
	}
	if provider == "codex" {
		if !codexCache.SupportsEffort(model, effort) {
			effort = ""
		}
	} else {
		effort = ""
	}

	merged := make(map[string]string, len(global.CLIParameters)+len(overrides.CLIParameters))
	for k, v := range global.CLIParameters {
		merged[k] = v
	}
	for k, v := range overrides.CLIParameters {
		merged[k] = v
	}

	return TaskExecutionConfig{
		Provider:        provider,
		Model:           model,
		ReasoningEffort: effort,
		CLIParameters:   merged,
	}, nil
}

func validateModel(provider, model string, codexCache ductor.CodexModelCache) error {
	switch provider {
	case "claude":
		if !claudeModels[model] {
			return &ductor.ErrValidation{Field: "model", Message: "unknown claude model: " + model}
		}
	case "codex":
		found := false
		for _, m := range codexCache.Models {
			if m.Name == model {
				found = true
				break
			}
		}
		if !found {
			return &ductor.ErrValidation{Field: "model", Message: "unknown codex model: " + model}
		}
	case "gemini":
		// Gemini models are validated by convention only: any
		// non-empty name is accepted, matching spec §4.8 step 3.
		if model == "" {
			return &ductor.ErrValidation{Field: "model", Message: "gemini model must not be empty"}
		}
	default:
		return &ductor.ErrValidation{Field: "provider", Message: "unknown provider: " + provider}
	}
	return nil
}

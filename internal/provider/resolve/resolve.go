// Package resolve implements the CLI Service's request-to-adapter
// resolution (spec §4.4 "_make_cli"): turning a requested model into
// a concrete (model, provider) pair, consulting an equivalence map
// when the native provider isn't authenticated.
package resolve

import (
	"fmt"
	"log/slog"
)

// Registry maps models to their native provider and resolves
// equivalences across providers when the native one is unavailable.
type Registry struct {
	// nativeProvider maps a model name to the provider that serves it
	// natively (e.g. "opus" -> "claude", "gpt-5.2-codex" -> "codex").
	nativeProvider map[string]string

	// equivalents maps a model to an equivalent model on a different
	// provider, e.g. "opus" <-> "gpt-5.2-codex", "sonnet" <-> "gpt-5.1-codex-mini".
	equivalents map[string]string

	logger *slog.Logger
}

// New builds a Registry from its native-provider and equivalence maps.
func New(nativeProvider, equivalents map[string]string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{nativeProvider: nativeProvider, equivalents: equivalents, logger: logger}
}

// ProviderFor reports the native provider for model, if known.
func (r *Registry) ProviderFor(model string) (string, bool) {
	p, ok := r.nativeProvider[model]
	return p, ok
}

// Resolved is the outcome of resolving a requested model/provider
// override pair against available providers.
type Resolved struct {
	Model    string
	Provider string
	Migrated bool // true if an equivalence-map fallback was used
}

// Resolve implements spec §4.4 steps 1-3.
//
//  1. requestedModel = modelOverride or defaultModel.
//  2. If providerOverride is set, use it verbatim with requestedModel.
//  3. Else consult the native-provider map; if that provider is
//     available, use it. Otherwise consult the equivalence map; if an
//     equivalent's provider is available, fall back (logged). Otherwise
//     pick any available provider with its default model. If no
//     providers are authenticated, fail.
func (r *Registry) Resolve(modelOverride, providerOverride, defaultModel string, available map[string]bool, providerDefaultModel map[string]string) (Resolved, error) {
	requested := modelOverride
	if requested == "" {
		requested = defaultModel
	}

	if providerOverride != "" {
		return Resolved{Model: requested, Provider: providerOverride}, nil
	}

	if len(available) == 0 {
		return Resolved{}, fmt.Errorf("resolve: no providers authenticated")
	}

	if native, ok := r.nativeProvider[requested]; ok && available[native] {
		return Resolved{Model: requested, Provider: native}, nil
	}

	if equiv, ok := r.equivalents[requested]; ok {
		if equivProvider, ok := r.nativeProvider[equiv]; ok && available[equivProvider] {
			r.logger.Info("resolve: migrating model via equivalence map",
				"requested_model", requested, "equivalent_model", equiv, "provider", equivProvider)
			return Resolved{Model: equiv, Provider: equivProvider, Migrated: true}, nil
		}
	}

	for provider := range available {
		if !available[provider] {
			continue
		}
		model := providerDefaultModel[provider]
		r.logger.Info("resolve: falling back to any available provider",
			"requested_model", requested, "provider", provider, "model", model)
		return Resolved{Model: model, Provider: provider, Migrated: true}, nil
	}

	return Resolved{}, fmt.Errorf("resolve: no provider available for model %q", requested)
}

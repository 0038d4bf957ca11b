package resolve

import "testing"

func newTestRegistry() *Registry {
	return New(
		map[string]string{
			"opus":               "claude",
			"sonnet":             "claude",
			"gpt-5.2-codex":      "codex",
			"gpt-5.1-codex-mini": "codex",
			"gemini-pro":         "gemini",
		},
		map[string]string{
			"opus":   "gpt-5.2-codex",
			"sonnet": "gpt-5.1-codex-mini",
		},
		nil,
	)
}

func TestResolveProviderOverrideVerbatim(t *testing.T) {
	r := newTestRegistry()
	got, err := r.Resolve("opus", "gemini", "opus", map[string]bool{"gemini": true}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.Provider != "gemini" || got.Model != "opus" {
		t.Fatalf("expected verbatim override, got %+v", got)
	}
}

func TestResolveNativeProviderAvailable(t *testing.T) {
	r := newTestRegistry()
	got, err := r.Resolve("", "", "opus", map[string]bool{"claude": true}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.Provider != "claude" || got.Migrated {
		t.Fatalf("expected native claude resolution, got %+v", got)
	}
}

func TestResolveEquivalenceFallback(t *testing.T) {
	r := newTestRegistry()
	got, err := r.Resolve("", "", "opus", map[string]bool{"codex": true}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.Provider != "codex" || got.Model != "gpt-5.2-codex" || !got.Migrated {
		t.Fatalf("expected equivalence migration to codex, got %+v", got)
	}
}

func TestResolveNoProvidersFails(t *testing.T) {
	r := newTestRegistry()
	_, err := r.Resolve("", "", "opus", map[string]bool{}, nil)
	if err == nil {
		t.Fatal("expected error when no providers authenticated")
	}
}

func TestResolveAnyAvailableFallback(t *testing.T) {
	r := newTestRegistry()
	got, err := r.Resolve("", "", "opus", map[string]bool{"gemini": true}, map[string]string{"gemini": "gemini-pro"})
	if err != nil {
		t.Fatal(err)
	}
	if got.Provider != "gemini" || got.Model != "gemini-pro" {
		t.Fatalf("expected fallback to gemini-pro, got %+v", got)
	}
}

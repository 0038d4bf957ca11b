package orchestrator

import (
	"log/slog"
	"testing"

	"github.com/nevindra/ductor/internal/provider/resolve"
)

func testResolver() *resolve.Registry {
	return resolve.New(map[string]string{
		"opus":   "claude",
		"sonnet": "claude",
		"gpt-5.2-codex": "codex",
	}, nil, slog.Default())
}

func TestParseDirectiveKnownModel(t *testing.T) {
	model, content, only := parseDirective("@opus fix the bug", testResolver())
	if model != "opus" || content != "fix the bug" || only {
		t.Fatalf("got (%q, %q, %v)", model, content, only)
	}
}

func TestParseDirectiveOnly(t *testing.T) {
	model, content, only := parseDirective("@sonnet", testResolver())
	if model != "sonnet" || content != "" || !only {
		t.Fatalf("got (%q, %q, %v)", model, content, only)
	}
}

func TestParseDirectiveUnknownModelPassesThrough(t *testing.T) {
	model, content, only := parseDirective("@notamodel hello", testResolver())
	if model != "" || content != "@notamodel hello" || only {
		t.Fatalf("got (%q, %q, %v)", model, content, only)
	}
}

func TestParseDirectiveNoLeadingAt(t *testing.T) {
	model, content, only := parseDirective("hello @opus", testResolver())
	if model != "" || content != "hello @opus" || only {
		t.Fatalf("got (%q, %q, %v)", model, content, only)
	}
}

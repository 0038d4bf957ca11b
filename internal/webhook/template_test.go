package webhook

import (
	"strings"
	"testing"
)

func TestRenderTemplateSubstitutesKnownKeys(t *testing.T) {
	out := RenderTemplate("Build {{status}} for {{repo}}", map[string]any{
		"status": "failed",
		"repo":   "acme/widgets",
	})
	if out != "Build failed for acme/widgets" {
		t.Fatalf("got %q", out)
	}
}

func TestRenderTemplateUnknownKeyFallsBackVisibly(t *testing.T) {
	out := RenderTemplate("Build {{status}} for {{missing}}", map[string]any{"status": "ok"})
	if out != "Build ok for {{?missing}}" {
		t.Fatalf("got %q", out)
	}
}

func TestWrapUntrustedBracketsBody(t *testing.T) {
	out := WrapUntrusted("some payload text")
	if !strings.Contains(out, "some payload text") {
		t.Fatal("expected body to be present")
	}
	lines := strings.Split(out, "\n")
	if len(lines) != 3 || lines[0] != lines[2] {
		t.Fatalf("expected matching boundary lines, got %v", lines)
	}
}

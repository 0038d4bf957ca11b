package orchestrator

import (
	"strings"

	"github.com/nevindra/ductor/internal/provider/resolve"
)

// parseDirective implements spec §4.6's directive parsing: a leading
// "@<model>" token against the known-model set selects a model
// override. If the entire message is directives-only, directiveOnly
// is true and the caller should return a hint without invoking the
// flow; otherwise content is the message with the directive stripped.
func parseDirective(text string, resolver *resolve.Registry) (model, content string, directiveOnly bool) {
	trimmed := strings.TrimSpace(text)
	fields := strings.Fields(trimmed)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "@") {
		return "", text, false
	}

	candidate := strings.TrimPrefix(fields[0], "@")
	if _, known := resolver.ProviderFor(candidate); !known {
		return "", text, false
	}

	rest := strings.TrimSpace(strings.TrimPrefix(trimmed, fields[0]))
	if rest == "" {
		return candidate, "", true
	}
	return candidate, rest, false
}

package stream

import "github.com/nevindra/ductor"

// ThinkingFilter is a stateful Codex-only post-processor. It buffers
// AssistantTextDelta text. A ToolUse discards the buffer (the model
// was monologuing before a tool call); any other non-thinking event
// flushes the buffer first. Scope is per stream: one filter per
// send_streaming call.
type ThinkingFilter struct {
	buf string
}

// Feed processes one upstream event and returns zero or more events
// to forward downstream.
func (f *ThinkingFilter) Feed(ev ductor.StreamEvent) []ductor.StreamEvent {
	switch ev.Type {
	case ductor.EventAssistantText:
		f.buf += ev.Text
		return nil
	case ductor.EventToolUse:
		f.buf = ""
		return []ductor.StreamEvent{ev}
	case ductor.EventThinking:
		return []ductor.StreamEvent{ev}
	default:
		return f.flushThen(ev)
	}
}

func (f *ThinkingFilter) flushThen(ev ductor.StreamEvent) []ductor.StreamEvent {
	var out []ductor.StreamEvent
	if f.buf != "" {
		out = append(out, ductor.StreamEvent{Type: ductor.EventAssistantText, Text: f.buf})
		f.buf = ""
	}
	out = append(out, ev)
	return out
}

// Flush drains any remaining buffered text at stream end.
func (f *ThinkingFilter) Flush() []ductor.StreamEvent {
	if f.buf == "" {
		return nil
	}
	text := f.buf
	f.buf = ""
	return []ductor.StreamEvent{{Type: ductor.EventAssistantText, Text: text}}
}

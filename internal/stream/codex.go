package stream

import (
	"encoding/json"
	"log/slog"

	"github.com/nevindra/ductor"
)

// CodexParser turns one line of Codex's JSONL stream (item.*,
// thread.started, turn.completed|failed) into zero or more
// StreamEvents.
type CodexParser struct {
	Logger *slog.Logger
}

// codexLine is the flat envelope shape of one Codex JSONL line:
// thread_id, usage, and error all sit at the top level alongside type
// and item, not nested under "thread"/"turn" wrapper objects.
type codexLine struct {
	Type     string      `json:"type"`
	ThreadID string      `json:"thread_id"`
	Item     *codexItem  `json:"item"`
	Usage    *codexUsage `json:"usage"`
	Error    *codexError `json:"error"`
}

type codexItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
	// Used by command_execution/file_change/web_search/todo_list/mcp_tool_call.
	ID string `json:"id"`
}

type codexUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

type codexError struct {
	Message string `json:"message"`
}

// toolCanonicalName maps a Codex item_type to the canonical ToolUse
// tool name surfaced to the rest of the kernel.
var toolCanonicalName = map[string]string{
	"command_execution": "shell",
	"file_change":       "edit",
	"web_search":        "web_search",
	"todo_list":         "todo",
	"mcp_tool_call":     "mcp",
}

func (p *CodexParser) log() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return nopLogger
}

// parseItem maps the item of one item.* line to zero or more events.
// phase is the event's phase suffix: "started", "updated",
// "completed"; ParseLine derives it from the dotted line type via
// itemPhase.
func (p *CodexParser) parseItem(item *codexItem, phase string) []ductor.StreamEvent {
	switch item.Type {
	case "agent_message":
		if phase != "completed" {
			return nil
		}
		return []ductor.StreamEvent{{Type: ductor.EventAssistantText, Text: item.Text}}
	case "reasoning":
		return []ductor.StreamEvent{{Type: ductor.EventThinking, Text: item.Text}}
	case "command_execution", "file_change", "web_search", "todo_list", "mcp_tool_call":
		if phase != "started" {
			return nil
		}
		name := toolCanonicalName[item.Type]
		return []ductor.StreamEvent{{Type: ductor.EventToolUse, ToolName: name, ToolID: item.ID}}
	default:
		return nil
	}
}

// Parse decodes one raw JSONL line, reading its "type" field to
// dispatch to the right shape.
func (p *CodexParser) Parse(line string) []ductor.StreamEvent {
	var head struct {
		Type string `json:"type"`
	}
	raw := []byte(line)
	if err := json.Unmarshal(raw, &head); err != nil {
		p.log().Debug("codex: skipping malformed line", "err", err)
		return nil
	}
	return p.ParseLine(head.Type, raw)
}

// ParseLine decodes a raw JSONL line. kind is the dotted type as
// emitted by Codex, e.g. "item.completed", "thread.started",
// "turn.completed".
func (p *CodexParser) ParseLine(kind string, raw []byte) []ductor.StreamEvent {
	switch {
	case kind == "thread.started":
		var l codexLine
		if err := json.Unmarshal(raw, &l); err != nil {
			p.log().Debug("codex: skipping malformed thread.started", "err", err)
			return nil
		}
		return []ductor.StreamEvent{{Type: ductor.EventSystemInit, SessionID: l.ThreadID}}
	case kind == "turn.completed":
		var l codexLine
		if err := json.Unmarshal(raw, &l); err != nil {
			p.log().Debug("codex: skipping malformed turn.completed", "err", err)
			return nil
		}
		ev := ductor.StreamEvent{Type: ductor.EventResult, IsError: false}
		if l.Usage != nil {
			ev.Usage = ductor.Usage{
				InputTokens:  l.Usage.InputTokens,
				OutputTokens: l.Usage.OutputTokens,
				TotalTokens:  l.Usage.InputTokens + l.Usage.OutputTokens,
			}
		}
		return []ductor.StreamEvent{ev}
	case kind == "turn.failed":
		var l codexLine
		if err := json.Unmarshal(raw, &l); err != nil {
			p.log().Debug("codex: skipping malformed turn.failed", "err", err)
			return nil
		}
		msg := ""
		if l.Error != nil {
			msg = l.Error.Message
		}
		return []ductor.StreamEvent{{Type: ductor.EventResult, IsError: true, Text: msg}}
	default:
		// item.started | item.updated | item.completed
		var l codexLine
		if err := json.Unmarshal(raw, &l); err != nil || l.Item == nil {
			p.log().Debug("codex: skipping malformed item line", "kind", kind, "err", err)
			return nil
		}
		phase := itemPhase(kind)
		return p.parseItem(l.Item, phase)
	}
}

func itemPhase(kind string) string {
	switch kind {
	case "item.started":
		return "started"
	case "item.updated":
		return "updated"
	case "item.completed":
		return "completed"
	default:
		return ""
	}
}

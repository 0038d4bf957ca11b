package stream

import (
	"encoding/json"
	"log/slog"

	"github.com/nevindra/ductor"
)

// GeminiParser turns one line of Gemini CLI's flat NDJSON stream into
// zero or more StreamEvents.
type GeminiParser struct {
	Logger *slog.Logger
}

type geminiLine struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id"`
	Message   *geminiMessage  `json:"message"`
	ToolName  string          `json:"tool_name"`
	ToolID    string          `json:"tool_id"`
	Status    string          `json:"status"`
	Output    string          `json:"output"`
	Result    string          `json:"result"`
	Stats     *geminiStats    `json:"stats"`
	Error     string          `json:"error"`
}

type geminiMessage struct {
	Content json.RawMessage `json:"content"`
}

type geminiContentBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	ToolName string `json:"tool_name"`
	ToolID   string `json:"tool_id"`
}

type geminiStats struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	DurationMS   int64 `json:"duration_ms"`
}

func (p *GeminiParser) log() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return nopLogger
}

// Parse decodes one line of Gemini output into zero or more events.
func (p *GeminiParser) Parse(line string) []ductor.StreamEvent {
	var l geminiLine
	if err := json.Unmarshal([]byte(line), &l); err != nil {
		p.log().Debug("gemini: skipping malformed line", "err", err)
		return nil
	}

	switch l.Type {
	case "init":
		return []ductor.StreamEvent{{Type: ductor.EventSystemInit, SessionID: l.SessionID}}
	case "message":
		if l.Message == nil {
			return nil
		}
		return parseGeminiContent(l.Message.Content)
	case "tool_use":
		return []ductor.StreamEvent{{Type: ductor.EventToolUse, ToolName: l.ToolName, ToolID: l.ToolID}}
	case "tool_result":
		return []ductor.StreamEvent{{Type: ductor.EventToolResult, ToolID: l.ToolID, ToolStatus: l.Status, ToolOutput: l.Output}}
	case "result", "error":
		ev := ductor.StreamEvent{
			Type:      ductor.EventResult,
			SessionID: l.SessionID,
			Text:      l.Result,
			IsError:   l.Type == "error" || l.Status == "error",
		}
		if l.Error != "" && ev.Text == "" {
			ev.Text = l.Error
		}
		if l.Stats != nil {
			ev.DurationMS = l.Stats.DurationMS
			ev.Usage = ductor.Usage{
				InputTokens:  l.Stats.InputTokens,
				OutputTokens: l.Stats.OutputTokens,
				TotalTokens:  l.Stats.InputTokens + l.Stats.OutputTokens,
			}
		}
		return []ductor.StreamEvent{ev}
	default:
		return nil
	}
}

// parseGeminiContent handles the Gemini message.content field, which
// is either a bare string (one text delta) or a list of typed blocks.
func parseGeminiContent(raw json.RawMessage) []ductor.StreamEvent {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if asString == "" {
			return nil
		}
		return []ductor.StreamEvent{{Type: ductor.EventAssistantText, Text: asString}}
	}

	var blocks []geminiContentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil
	}
	var events []ductor.StreamEvent
	for _, b := range blocks {
		switch b.Type {
		case "text":
			events = append(events, ductor.StreamEvent{Type: ductor.EventAssistantText, Text: b.Text})
		case "tool_use":
			events = append(events, ductor.StreamEvent{Type: ductor.EventToolUse, ToolName: b.ToolName, ToolID: b.ToolID})
		}
	}
	return events
}

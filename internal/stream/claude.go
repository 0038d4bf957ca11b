package stream

import (
	"encoding/json"
	"log/slog"

	"github.com/nevindra/ductor"
)

// ClaudeParser turns one line of Claude Code's NDJSON stream into
// zero or more StreamEvents. Malformed lines are skipped with debug
// logging, never fatal.
type ClaudeParser struct {
	Logger *slog.Logger
}

type claudeLine struct {
	Type    string          `json:"type"`
	Subtype string          `json:"subtype"`
	Message *claudeMessage  `json:"message"`
	SessionID string        `json:"session_id"`
	Status  string          `json:"status"`
	Trigger string          `json:"trigger"`
	PreTokens int64         `json:"pre_tokens"`
	Result  string          `json:"result"`
	IsError bool            `json:"is_error"`
	DurationMS int64        `json:"duration_ms"`
	CostUSD json.Number     `json:"total_cost_usd"`
	Usage   *claudeUsage    `json:"usage"`
	NumTurns int            `json:"num_turns"`
}

type claudeMessage struct {
	Content []claudeBlock `json:"content"`
}

type claudeBlock struct {
	Type     string          `json:"type"`
	Text     string          `json:"text"`
	Thinking string          `json:"thinking"`
	Name     string          `json:"name"`
	ID       string          `json:"id"`
	Input    json.RawMessage `json:"input"`
}

type claudeUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

func (p *ClaudeParser) log() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return nopLogger
}

// Parse decodes one line of Claude output into zero or more events.
func (p *ClaudeParser) Parse(line string) []ductor.StreamEvent {
	var l claudeLine
	if err := json.Unmarshal([]byte(line), &l); err != nil {
		p.log().Debug("claude: skipping malformed line", "err", err)
		return nil
	}

	switch l.Type {
	case "system":
		switch l.Subtype {
		case "init":
			return []ductor.StreamEvent{{Type: ductor.EventSystemInit, SessionID: l.SessionID}}
		case "status":
			return []ductor.StreamEvent{{Type: ductor.EventSystemStatus, Status: l.Status}}
		case "compact_boundary":
			return []ductor.StreamEvent{{Type: ductor.EventCompactBoundary, Trigger: l.Trigger, PreTokens: l.PreTokens}}
		}
		return nil
	case "assistant":
		if l.Message == nil {
			return nil
		}
		var events []ductor.StreamEvent
		for _, b := range l.Message.Content {
			switch b.Type {
			case "text":
				events = append(events, ductor.StreamEvent{Type: ductor.EventAssistantText, Text: b.Text})
			case "thinking":
				events = append(events, ductor.StreamEvent{Type: ductor.EventThinking, Text: b.Thinking})
			case "tool_use":
				var params map[string]any
				_ = json.Unmarshal(b.Input, &params)
				events = append(events, ductor.StreamEvent{Type: ductor.EventToolUse, ToolName: b.Name, ToolID: b.ID, Parameters: params})
			}
		}
		return events
	case "result":
		cost, _ := l.CostUSD.Float64()
		ev := ductor.StreamEvent{
			Type:       ductor.EventResult,
			SessionID:  l.SessionID,
			Text:       l.Result,
			IsError:    l.IsError,
			DurationMS: l.DurationMS,
			CostUSD:    cost,
			Turns:      l.NumTurns,
		}
		if l.Usage != nil {
			ev.Usage = ductor.Usage{
				InputTokens:  l.Usage.InputTokens,
				OutputTokens: l.Usage.OutputTokens,
				TotalTokens:  l.Usage.InputTokens + l.Usage.OutputTokens,
			}
		}
		return []ductor.StreamEvent{ev}
	default:
		return nil
	}
}

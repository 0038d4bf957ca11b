package ductor

// StreamEventType identifies the kind of a streamed provider event.
type StreamEventType string

const (
	EventSystemInit      StreamEventType = "system_init"
	EventAssistantText   StreamEventType = "assistant_text_delta"
	EventThinking        StreamEventType = "thinking_delta"
	EventToolUse         StreamEventType = "tool_use"
	EventToolResult      StreamEventType = "tool_result"
	EventSystemStatus    StreamEventType = "system_status"
	EventCompactBoundary StreamEventType = "compact_boundary"
	EventResult          StreamEventType = "result"
)

// Usage carries token accounting as reported by a provider's Result frame.
type Usage struct {
	InputTokens  int64 `json:"input_tokens,omitempty"`
	OutputTokens int64 `json:"output_tokens,omitempty"`
	TotalTokens  int64 `json:"total_tokens,omitempty"`
}

// StreamEvent is the canonical tagged union every per-provider parser
// normalizes its lines into. Only the fields relevant to Type are
// populated; the rest are zero values. Result is always terminal —
// every other variant is interior to a stream.
type StreamEvent struct {
	Type StreamEventType

	// SystemInit
	SessionID string

	// AssistantTextDelta / ThinkingDelta
	Text string

	// ToolUse
	ToolName   string
	ToolID     string
	Parameters map[string]any

	// ToolResult
	ToolStatus string
	ToolOutput string

	// SystemStatus
	Status string

	// CompactBoundary
	Trigger   string
	PreTokens int64

	// Result
	IsError    bool
	DurationMS int64
	CostUSD    float64
	Usage      Usage
	Turns      int
}

// IsTerminal reports whether this event ends a stream.
func (e StreamEvent) IsTerminal() bool {
	return e.Type == EventResult
}

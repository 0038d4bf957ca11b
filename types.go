// Package ductor holds the domain types shared across the kernel's
// internal packages: sessions, scheduled jobs, webhook descriptors,
// process handles, and the request/response carriers that cross
// component boundaries.
package ductor

import (
	"fmt"
	"time"
)

// ProviderSession is one provider's slice of a Session: the opaque
// thread identifier that provider assigned, plus running counters.
type ProviderSession struct {
	SessionID      string  `json:"session_id"`
	MessageCount   int     `json:"message_count"`
	TotalCostUSD   float64 `json:"total_cost_usd"`
	TotalTokens    int64   `json:"total_tokens"`
}

// IsEmpty reports whether the provider has not yet assigned a session id.
func (p ProviderSession) IsEmpty() bool {
	return p.SessionID == ""
}

// Session is the per-chat conversational record. It holds one
// ProviderSession per provider ever used by this chat, plus the
// currently selected provider/model pair. Switching the active
// provider never mutates another provider's stored ProviderSession.
type Session struct {
	ChatID           string                      `json:"chat_id"`
	Provider         string                      `json:"provider"`
	Model            string                      `json:"model"`
	ProviderSessions map[string]*ProviderSession `json:"provider_sessions"`
	CreatedAt        int64                       `json:"created_at"`
	LastActive       int64                       `json:"last_active"`
}

// Active returns the ProviderSession for the session's currently
// selected provider, creating an empty one if this provider has
// never been used by this chat before.
func (s *Session) Active() *ProviderSession {
	if s.ProviderSessions == nil {
		s.ProviderSessions = make(map[string]*ProviderSession)
	}
	ps, ok := s.ProviderSessions[s.Provider]
	if !ok {
		ps = &ProviderSession{}
		s.ProviderSessions[s.Provider] = ps
	}
	return ps
}

// QuietHours is a per-day time-of-day window, possibly wrapping past
// midnight, during which an observer withholds dispatch.
type QuietHours struct {
	Start string `json:"start,omitempty"` // "HH:MM"
	End   string `json:"end,omitempty"`   // "HH:MM"
}

// Contains reports whether now (local time) falls inside the window.
// start == end disables quiet hours entirely.
func (q QuietHours) Contains(now time.Time) bool {
	if q.Start == "" || q.End == "" || q.Start == q.End {
		return false
	}
	start, sok := parseHM(q.Start)
	end, eok := parseHM(q.End)
	if !sok || !eok {
		return false
	}
	cur := now.Hour()*60 + now.Minute()
	if start <= end {
		return cur >= start && cur < end
	}
	return cur >= start || cur < end
}

func parseHM(s string) (int, bool) {
	var h, m int
	if n, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil || n != 2 {
		return 0, false
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

// ExecutionOverrides are the per-job/per-hook knobs that can diverge
// from the global AgentConfig defaults; nil/empty fields fall back.
type ExecutionOverrides struct {
	Provider        string            `json:"provider,omitempty"`
	Model           string            `json:"model,omitempty"`
	ReasoningEffort string            `json:"reasoning_effort,omitempty"`
	CLIParameters   map[string]string `json:"cli_parameters,omitempty"`
}

// CronJob is one scheduled background agent task.
type CronJob struct {
	ID              string              `json:"id"`
	Title           string              `json:"title"`
	Description     string              `json:"description,omitempty"`
	Schedule        string              `json:"schedule"`
	TaskFolder      string              `json:"task_folder"`
	AgentInstruction string             `json:"agent_instruction"`
	Enabled         bool                `json:"enabled"`
	Overrides       ExecutionOverrides  `json:"overrides,omitempty"`
	QuietHours      *QuietHours         `json:"quiet_hours,omitempty"`
	DependsOn       string              `json:"depends_on,omitempty"`
	Timezone        string              `json:"timezone,omitempty"`
	CreatedAt       int64               `json:"created_at"`
	LastRunAt       int64               `json:"last_run_at,omitempty"`
	LastRunStatus   string              `json:"last_run_status,omitempty"`
}

// WebhookMode selects what a WebhookEntry does when it fires.
type WebhookMode string

const (
	WebhookModeWake      WebhookMode = "wake"
	WebhookModeCronTask  WebhookMode = "cron_task"
)

// WebhookAuth describes how a webhook request authenticates itself.
// Exactly one of Bearer or HMAC is meaningfully populated, selected
// by Kind.
type WebhookAuth struct {
	Kind string `json:"kind"` // "bearer" | "hmac"

	// Bearer mode.
	Token string `json:"token,omitempty"`

	// HMAC mode.
	Algorithm       string `json:"algorithm,omitempty"`        // sha256|sha1|sha512
	Encoding        string `json:"encoding,omitempty"`         // hex|base64
	Secret          string `json:"secret,omitempty"`
	SignatureHeader string `json:"signature_header,omitempty"`
	SignatureRegex  string `json:"signature_regex,omitempty"`  // group 1 extracts the sig
	SignaturePrefix string `json:"signature_prefix,omitempty"` // stripped if no regex
	PayloadPrefixRegex string `json:"payload_prefix_regex,omitempty"`
}

// WebhookEntry is one registered HTTP-triggered hook.
type WebhookEntry struct {
	ID              string              `json:"id"`
	Title           string              `json:"title"`
	Description     string              `json:"description,omitempty"`
	Mode            WebhookMode         `json:"mode"`
	PromptTemplate  string              `json:"prompt_template"`
	Enabled         bool                `json:"enabled"`
	TaskFolder      string              `json:"task_folder,omitempty"`
	Auth            WebhookAuth         `json:"auth"`
	Overrides       ExecutionOverrides  `json:"overrides,omitempty"`
	QuietHours      *QuietHours         `json:"quiet_hours,omitempty"`
	TriggerCount    int64               `json:"trigger_count,omitempty"`
	LastTriggeredAt int64               `json:"last_triggered_at,omitempty"`
	LastError       string              `json:"last_error,omitempty"`
}

// CodexModel records one Codex model's catalog entry, including which
// reasoning efforts it accepts — required by the parameter resolver
// even though the upstream spec text never spells out the field.
type CodexModel struct {
	Name              string   `json:"name"`
	SupportedEfforts  []string `json:"supported_efforts"`
}

// CodexModelCache is the on-disk discovered catalog of Codex models.
type CodexModelCache struct {
	Models      []CodexModel `json:"models"`
	LastUpdated string       `json:"last_updated"` // ISO 8601
}

// SupportsEffort reports whether model accepts the given reasoning
// effort string, per the cache's most recent discovery.
func (c CodexModelCache) SupportsEffort(model, effort string) bool {
	if effort == "" {
		return true
	}
	for _, m := range c.Models {
		if m.Name != model {
			continue
		}
		for _, e := range m.SupportedEfforts {
			if e == effort {
				return true
			}
		}
		return false
	}
	return false
}

// AgentRequest is the immutable carrier passed into the CLI Service
// for a single agent invocation.
type AgentRequest struct {
	Prompt              string
	SystemPrompt        string
	AppendSystemPrompt  string
	ModelOverride       string
	ProviderOverride    string
	ChatID              string
	Label               string
	ResumeSessionID     string
	ContinueSession     bool
	Timeout             time.Duration
	WorkingDirOverride  string
}

// AgentResponse is the immutable carrier returned by the CLI Service
// for a single agent invocation.
type AgentResponse struct {
	Text            string
	ExitCode        int
	SessionID       string
	IsError         bool
	CostUSD         float64
	InputTokens     int64
	OutputTokens    int64
	TotalTokens     int64
	TimedOut        bool
	Duration        time.Duration
	StreamFallback  bool
}

// TrackedProcess is a live subprocess handle owned by the Process
// Registry for the duration of one invocation.
type TrackedProcess struct {
	ID           string
	ChatID       string
	Label        string
	RegisteredAt time.Time
}

// DedupEntry records the last-seen monotonic timestamp for one
// (chat, message) pair inside the middleware's bounded dedup cache.
type DedupEntry struct {
	ChatID       string
	MessageID    string
	LastSeenMono int64
}

// QueueEntry tracks one message waiting behind a chat's sequential
// lock so that an abort can drop it without touching the in-flight
// execution.
type QueueEntry struct {
	EntryID     string
	ChatID      string
	MessageID   string
	TextPreview string
	Cancelled   bool
}

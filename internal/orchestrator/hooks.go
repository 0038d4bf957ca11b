package orchestrator

import "sync"

// HookContext is what every registered message hook's condition is
// evaluated against, per spec §4.6 step 5.
type HookContext struct {
	ChatID       string
	MessageCount int
	IsNewSession bool
	Provider     string
	Model        string
}

// MessageHook conditionally appends a suffix to the outgoing prompt.
type MessageHook struct {
	Name      string
	Condition func(HookContext) bool
	Suffix    string
}

// HookRegistry holds every registered MessageHook; Apply joins the
// suffixes of every hook whose condition matches.
type HookRegistry struct {
	mu    sync.Mutex
	hooks []MessageHook
}

func NewHookRegistry() *HookRegistry {
	return &HookRegistry{}
}

func (r *HookRegistry) Register(h MessageHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, h)
}

// Apply evaluates every hook's condition against ctx and joins the
// matching suffixes with a blank line.
func (r *HookRegistry) Apply(ctx HookContext) string {
	r.mu.Lock()
	hooks := make([]MessageHook, len(r.hooks))
	copy(hooks, r.hooks)
	r.mu.Unlock()

	var out string
	for _, h := range hooks {
		if h.Condition(ctx) {
			if out != "" {
				out += "\n\n"
			}
			out += h.Suffix
		}
	}
	return out
}

const mainMemoryReminder = "Reminder: if you learned anything durable this conversation, record it in MAINMEMORY.md."

// mainMemoryReminderHook is the one built-in hook named by spec
// §4.6 step 5: fires every 6th message.
func mainMemoryReminderHook() MessageHook {
	return MessageHook{
		Name: "mainmemory-reminder",
		Condition: func(ctx HookContext) bool {
			return ctx.MessageCount >= 6 && ctx.MessageCount%6 == 0
		},
		Suffix: mainMemoryReminder,
	}
}

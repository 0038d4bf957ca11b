package orchestrator

import "testing"

func TestHookRegistryAppliesMatchingHooks(t *testing.T) {
	r := NewHookRegistry()
	r.Register(MessageHook{
		Name:      "always",
		Condition: func(HookContext) bool { return true },
		Suffix:    "always-on",
	})
	r.Register(MessageHook{
		Name:      "never",
		Condition: func(HookContext) bool { return false },
		Suffix:    "never-on",
	})

	out := r.Apply(HookContext{ChatID: "c1"})
	if out != "always-on" {
		t.Fatalf("got %q", out)
	}
}

func TestHookRegistryJoinsMultipleMatches(t *testing.T) {
	r := NewHookRegistry()
	r.Register(MessageHook{Name: "a", Condition: func(HookContext) bool { return true }, Suffix: "A"})
	r.Register(MessageHook{Name: "b", Condition: func(HookContext) bool { return true }, Suffix: "B"})

	out := r.Apply(HookContext{})
	if out != "A\n\nB" {
		t.Fatalf("got %q", out)
	}
}

func TestMainMemoryReminderFiresEveryNthMessage(t *testing.T) {
	h := mainMemoryReminderHook()
	for count := 1; count <= 13; count++ {
		got := h.Condition(HookContext{MessageCount: count})
		want := count == 6 || count == 12
		if got != want {
			t.Fatalf("count %d: got %v want %v", count, got, want)
		}
	}
}

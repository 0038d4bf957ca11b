package middleware

import (
	"strings"
	"sync"

	"github.com/nevindra/ductor"
)

// quickCommands bypass the per-chat lock entirely, per spec §4.8.
var quickCommands = map[string]bool{
	"/status":   true,
	"/memory":   true,
	"/cron":     true,
	"/diagnose": true,
}

// IsQuickCommand reports whether text (after trim/lowercase, with an
// optional "@bot_name" suffix stripped) names a quick command.
func IsQuickCommand(text, botName string) bool {
	return quickCommands[normalizeCommand(text, botName)]
}

func normalizeCommand(text, botName string) string {
	t := strings.ToLower(strings.TrimSpace(text))
	if botName != "" {
		t = strings.TrimSuffix(t, "@"+strings.ToLower(botName))
	}
	return t
}

type chatLock struct {
	mu    sync.Mutex
	queue []*ductor.QueueEntry
}

// LockTable is the per-chat sequential-lock table, bounded by
// maxLocks; when full, idle (unlocked) entries are culled.
type LockTable struct {
	mu        sync.Mutex
	maxLocks  int
	locks     map[string]*chatLock
}

func NewLockTable(maxLocks int) *LockTable {
	return &LockTable{maxLocks: maxLocks, locks: make(map[string]*chatLock)}
}

func (t *LockTable) getOrCreate(chatID string) *chatLock {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[chatID]
	if ok {
		return l
	}
	if t.maxLocks > 0 && len(t.locks) >= t.maxLocks {
		t.cullIdleLocked()
	}
	l = &chatLock{}
	t.locks[chatID] = l
	return l
}

// cullIdleLocked removes locks that are not currently held. Caller
// must hold t.mu.
func (t *LockTable) cullIdleLocked() {
	for chatID, l := range t.locks {
		if l.mu.TryLock() {
			l.mu.Unlock()
			delete(t.locks, chatID)
		}
	}
}

// Enqueue registers a QueueEntry for chatID so an abort can drop it
// before it runs.
func (t *LockTable) Enqueue(chatID string, entry *ductor.QueueEntry) {
	l := t.getOrCreate(chatID)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.queue = append(l.queue, entry)
}

// CancelQueued marks every currently queued (not yet running) entry
// for chatID as cancelled, without touching the in-flight execution.
func (t *LockTable) CancelQueued(chatID string) int {
	t.mu.Lock()
	l, ok := t.locks[chatID]
	t.mu.Unlock()
	if !ok {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.queue {
		if !e.Cancelled {
			e.Cancelled = true
			n++
		}
	}
	return n
}

// Run executes fn under chatID's sequential lock, honoring entry's
// cancellation: if entry was cancelled while queued, fn is skipped.
func (t *LockTable) Run(chatID string, entry *ductor.QueueEntry, fn func()) {
	l := t.getOrCreate(chatID)
	l.mu.Lock()
	defer l.mu.Unlock()

	// Drop from the pending queue now that our turn has come.
	for i, e := range l.queue {
		if e == entry {
			l.queue = append(l.queue[:i], l.queue[i+1:]...)
			break
		}
	}

	if entry != nil && entry.Cancelled {
		return
	}
	fn()
}

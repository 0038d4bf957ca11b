// Package webhook implements the WebhookEntry manager and the Webhook
// Observer: an HTTP ingress that turns authenticated external events
// into wake or one-shot cron_task agent invocations.
package webhook

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/nevindra/ductor"
)

type hooksFile struct {
	Hooks []ductor.WebhookEntry `json:"hooks"`
}

// Manager persists the WebhookEntry list as one JSON array file, with
// atomic write on mutation and mtime-based reload, mirroring
// internal/cron.Manager's persistence idiom.
type Manager struct {
	mu     sync.Mutex
	path   string
	hooks  map[string]*ductor.WebhookEntry
	mtime  int64
	logger *slog.Logger
}

func NewManager(path string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{path: path, hooks: make(map[string]*ductor.WebhookEntry), logger: logger}
	m.reload()
	return m
}

func (m *Manager) reload() bool {
	info, err := os.Stat(m.path)
	if err != nil {
		return false
	}
	mt := info.ModTime().UnixNano()
	if mt == m.mtime {
		return false
	}

	data, err := os.ReadFile(m.path)
	if err != nil {
		m.logger.Warn("webhook manager: read failed", "err", err)
		return false
	}
	var f hooksFile
	if err := json.Unmarshal(data, &f); err != nil {
		m.logger.Warn("webhook manager: corrupt hooks file, keeping previous state", "err", err)
		return false
	}

	hooks := make(map[string]*ductor.WebhookEntry, len(f.Hooks))
	for i := range f.Hooks {
		h := f.Hooks[i]
		hooks[h.ID] = &h
	}
	m.mu.Lock()
	m.hooks = hooks
	m.mtime = mt
	m.mu.Unlock()
	return true
}

// Reload re-reads the file if it changed; returns true if it did.
func (m *Manager) Reload() bool { return m.reload() }

// All returns a snapshot of every hook.
func (m *Manager) All() []*ductor.WebhookEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*ductor.WebhookEntry, 0, len(m.hooks))
	for _, h := range m.hooks {
		out = append(out, h)
	}
	return out
}

// Get returns one hook by id.
func (m *Manager) Get(id string) (*ductor.WebhookEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hooks[id]
	return h, ok
}

// Put inserts or replaces a hook and persists.
func (m *Manager) Put(hook ductor.WebhookEntry) {
	m.mu.Lock()
	m.hooks[hook.ID] = &hook
	m.mu.Unlock()
	m.persist()
}

// Delete removes a hook and persists.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	delete(m.hooks, id)
	m.mu.Unlock()
	m.persist()
}

// RecordTrigger updates a hook's audit fields and persists.
func (m *Manager) RecordTrigger(id string, at int64, lastError string) {
	m.mu.Lock()
	if h, ok := m.hooks[id]; ok {
		h.TriggerCount++
		h.LastTriggeredAt = at
		h.LastError = lastError
	}
	m.mu.Unlock()
	m.persist()
}

func (m *Manager) persist() {
	m.mu.Lock()
	f := hooksFile{Hooks: make([]ductor.WebhookEntry, 0, len(m.hooks))}
	for _, h := range m.hooks {
		f.Hooks = append(f.Hooks, *h)
	}
	m.mu.Unlock()

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		m.logger.Error("webhook manager: marshal failed", "err", err)
		return
	}
	tmp := m.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		m.logger.Error("webhook manager: mkdir failed", "err", err)
		return
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		m.logger.Error("webhook manager: write temp failed", "err", err)
		return
	}
	if err := os.Rename(tmp, m.path); err != nil {
		m.logger.Error("webhook manager: rename failed", "err", err)
		return
	}
	if info, err := os.Stat(m.path); err == nil {
		m.mu.Lock()
		m.mtime = info.ModTime().UnixNano()
		m.mu.Unlock()
	}
}

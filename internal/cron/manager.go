// Package cron implements the CronJob manager and the Cron Observer:
// one of the four background loops that can invoke fresh one-shot CLI
// processes on a schedule.
package cron

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/nevindra/ductor"
)

type jobsFile struct {
	Jobs []ductor.CronJob `json:"jobs"`
}

// Manager persists the CronJob list as one JSON array file, with
// atomic write on mutation and mtime-based reload.
type Manager struct {
	mu     sync.Mutex
	path   string
	jobs   map[string]*ductor.CronJob
	mtime  int64
	logger *slog.Logger
}

func NewManager(path string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{path: path, jobs: make(map[string]*ductor.CronJob), logger: logger}
	m.reload()
	return m
}

// reload reads the file if its mtime changed since the last load.
// Corrupt files are logged and treated as empty.
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
		m.logger.Warn("cron manager: read failed", "err", err)
		return false
	}
	var f jobsFile
	if err := json.Unmarshal(data, &f); err != nil {
		m.logger.Warn("cron manager: corrupt jobs file, treating as empty", "err", err)
		f = jobsFile{}
	}

	jobs := make(map[string]*ductor.CronJob, len(f.Jobs))
	for i := range f.Jobs {
		j := f.Jobs[i]
		jobs[j.ID] = &j
	}
	m.mu.Lock()
	m.jobs = jobs
	m.mtime = mt
	m.mu.Unlock()
	return true
}

// Reload re-reads the file if it changed; returns true if it did.
func (m *Manager) Reload() bool { return m.reload() }

// All returns a snapshot of every job.
func (m *Manager) All() []*ductor.CronJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*ductor.CronJob, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j)
	}
	return out
}

// Enabled returns only the enabled jobs.
func (m *Manager) Enabled() []*ductor.CronJob {
	var out []*ductor.CronJob
	for _, j := range m.All() {
		if j.Enabled {
			out = append(out, j)
		}
	}
	return out
}

// Get returns one job by id.
func (m *Manager) Get(id string) (*ductor.CronJob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	return j, ok
}

// Put inserts or replaces a job and persists.
func (m *Manager) Put(job ductor.CronJob) {
	m.mu.Lock()
	m.jobs[job.ID] = &job
	m.mu.Unlock()
	m.persist()
}

// Delete removes a job and persists.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	delete(m.jobs, id)
	m.mu.Unlock()
	m.persist()
}

// RecordRun updates a job's audit fields and persists.
func (m *Manager) RecordRun(id string, runAt int64, status string) {
	m.mu.Lock()
	if j, ok := m.jobs[id]; ok {
		j.LastRunAt = runAt
		j.LastRunStatus = status
	}
	m.mu.Unlock()
	m.persist()
}

func (m *Manager) persist() {
	m.mu.Lock()
	f := jobsFile{Jobs: make([]ductor.CronJob, 0, len(m.jobs))}
	for _, j := range m.jobs {
		f.Jobs = append(f.Jobs, *j)
	}
	m.mu.Unlock()

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		m.logger.Error("cron manager: marshal failed", "err", err)
		return
	}
	tmp := m.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		m.logger.Error("cron manager: mkdir failed", "err", err)
		return
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		m.logger.Error("cron manager: write temp failed", "err", err)
		return
	}
	if err := os.Rename(tmp, m.path); err != nil {
		m.logger.Error("cron manager: rename failed", "err", err)
		return
	}
	if info, err := os.Stat(m.path); err == nil {
		m.mu.Lock()
		m.mtime = info.ModTime().UnixNano()
		m.mu.Unlock()
	}
}

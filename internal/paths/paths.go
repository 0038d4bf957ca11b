// Package paths centralizes the kernel's on-disk workspace layout:
// a configurable home directory under which config, persisted state,
// and the agent-writable workspace subtree all live.
package paths

import "path/filepath"

// Layout resolves every well-known path under one home directory.
type Layout struct {
	Home string
}

func New(home string) Layout { return Layout{Home: home} }

func (l Layout) Config() string         { return filepath.Join(l.Home, "config.json") }
func (l Layout) Sessions() string       { return filepath.Join(l.Home, "sessions.json") }
func (l Layout) CronJobs() string       { return filepath.Join(l.Home, "cron_jobs.json") }
func (l Layout) Webhooks() string       { return filepath.Join(l.Home, "webhooks.json") }
func (l Layout) CodexModelCache() string { return filepath.Join(l.Home, "codex_models.json") }

func (l Layout) Workspace() string        { return filepath.Join(l.Home, "workspace") }
func (l Layout) MainMemory() string       { return filepath.Join(l.Workspace(), "MAINMEMORY.md") }
func (l Layout) CronTasksRoot() string    { return filepath.Join(l.Workspace(), "cron_tasks") }
func (l Layout) TelegramFilesDir() string { return filepath.Join(l.Workspace(), "telegram_files") }
func (l Layout) OutputToUserDir() string  { return filepath.Join(l.Workspace(), "output_to_user") }
func (l Layout) LogsDir() string          { return filepath.Join(l.Workspace(), "logs") }

// CronTaskFolder resolves a CronJob/WebhookEntry's relative task
// folder against the configured cron-tasks root.
func (l Layout) CronTaskFolder(relative string) string {
	return filepath.Join(l.CronTasksRoot(), relative)
}

// MemoryFileFor returns the per-task-folder memory file the cron/
// webhook job execution reads and appends to, "<task_folder>_MEMORY.md".
func (l Layout) MemoryFileFor(taskFolder string) string {
	return l.CronTaskFolder(taskFolder) + "_MEMORY.md"
}

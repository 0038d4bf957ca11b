package cron

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/nevindra/ductor"
	"github.com/nevindra/ductor/internal/paths"
)

type fakeExecutor struct {
	mu    sync.Mutex
	calls int
	text  string
	status string
	err   error
}

func (f *fakeExecutor) RunTask(ctx context.Context, job ductor.CronJob, enrichedPrompt string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.text, f.status, f.err
}

func (f *fakeExecutor) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestRunJobSkipsMissingTaskFolder(t *testing.T) {
	home := t.TempDir()
	layout := paths.New(home)
	mgrPath := filepath.Join(home, "cron_jobs.json")
	mgr := NewManager(mgrPath, nil)
	job := ductor.CronJob{ID: "j1", Title: "t", TaskFolder: "missing", Enabled: true}
	mgr.Put(job)

	exec := &fakeExecutor{}
	var resultCalled bool
	obs := NewObserver(mgr, exec, layout, nil, func(title, text, status string) {
		resultCalled = true
	}, nil)

	obs.runJob(context.Background(), job)

	if exec.Calls() != 0 {
		t.Fatal("executor should not run when task folder is missing")
	}
	if resultCalled {
		t.Fatal("result callback should not fire when task folder is missing")
	}
	got, _ := mgr.Get("j1")
	if got.LastRunStatus != "error:folder_missing" {
		t.Fatalf("got status %q", got.LastRunStatus)
	}
}

func TestRunJobExecutesWhenFolderExists(t *testing.T) {
	home := t.TempDir()
	layout := paths.New(home)
	if err := os.MkdirAll(layout.CronTaskFolder("daily"), 0o755); err != nil {
		t.Fatal(err)
	}

	mgrPath := filepath.Join(home, "cron_jobs.json")
	mgr := NewManager(mgrPath, nil)
	job := ductor.CronJob{ID: "j1", Title: "daily report", TaskFolder: "daily", AgentInstruction: "summarize", Enabled: true}
	mgr.Put(job)

	exec := &fakeExecutor{text: "done", status: "ok"}
	var gotTitle, gotText, gotStatus string
	obs := NewObserver(mgr, exec, layout, nil, func(title, text, status string) {
		gotTitle, gotText, gotStatus = title, text, status
	}, nil)

	obs.runJob(context.Background(), job)

	if exec.Calls() != 1 {
		t.Fatalf("expected one execution, got %d", exec.Calls())
	}
	if gotTitle != "daily report" || gotText != "done" || gotStatus != "ok" {
		t.Fatalf("got (%q, %q, %q)", gotTitle, gotText, gotStatus)
	}
	got, _ := mgr.Get("j1")
	if got.LastRunStatus != "ok" {
		t.Fatalf("got status %q", got.LastRunStatus)
	}
}

func TestRunJobRecordsExecutorError(t *testing.T) {
	home := t.TempDir()
	layout := paths.New(home)
	if err := os.MkdirAll(layout.CronTaskFolder("daily"), 0o755); err != nil {
		t.Fatal(err)
	}

	mgrPath := filepath.Join(home, "cron_jobs.json")
	mgr := NewManager(mgrPath, nil)
	job := ductor.CronJob{ID: "j1", TaskFolder: "daily", Enabled: true}
	mgr.Put(job)

	exec := &fakeExecutor{err: context.DeadlineExceeded}
	obs := NewObserver(mgr, exec, layout, nil, nil, nil)
	obs.runJob(context.Background(), job)

	got, _ := mgr.Get("j1")
	if got.LastRunStatus == "" || got.LastRunStatus == "ok" {
		t.Fatalf("expected an error status, got %q", got.LastRunStatus)
	}
}

func TestScheduleJobSkipsInvalidSchedule(t *testing.T) {
	home := t.TempDir()
	layout := paths.New(home)
	mgrPath := filepath.Join(home, "cron_jobs.json")
	mgr := NewManager(mgrPath, nil)
	job := ductor.CronJob{ID: "j1", Schedule: "not a schedule", Enabled: true}

	exec := &fakeExecutor{}
	obs := NewObserver(mgr, exec, layout, nil, nil, nil)
	obs.scheduleJob(context.Background(), job)

	obs.mu.Lock()
	n := len(obs.timers)
	obs.mu.Unlock()
	if n != 0 {
		t.Fatal("invalid schedule should not register a timer")
	}
}

package cron

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nevindra/ductor"
)

func TestManagerPutGetDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cron_jobs.json")
	m := NewManager(path, nil)

	job := ductor.CronJob{ID: "j1", Title: "nightly backup", Schedule: "0 2 * * *", Enabled: true}
	m.Put(job)

	got, ok := m.Get("j1")
	if !ok || got.Title != "nightly backup" {
		t.Fatalf("got %+v, ok=%v", got, ok)
	}

	m.Delete("j1")
	if _, ok := m.Get("j1"); ok {
		t.Fatal("expected job to be deleted")
	}
}

func TestManagerEnabledFiltersDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cron_jobs.json")
	m := NewManager(path, nil)
	m.Put(ductor.CronJob{ID: "a", Enabled: true})
	m.Put(ductor.CronJob{ID: "b", Enabled: false})

	enabled := m.Enabled()
	if len(enabled) != 1 || enabled[0].ID != "a" {
		t.Fatalf("got %+v", enabled)
	}
}

func TestManagerRecordRunPersistsAuditFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cron_jobs.json")
	m := NewManager(path, nil)
	m.Put(ductor.CronJob{ID: "j1", Enabled: true})

	m.RecordRun("j1", 1700000000, "ok")

	got, _ := m.Get("j1")
	if got.LastRunAt != 1700000000 || got.LastRunStatus != "ok" {
		t.Fatalf("got %+v", got)
	}
}

func TestManagerReloadPicksUpExternalWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cron_jobs.json")
	m1 := NewManager(path, nil)
	m1.Put(ductor.CronJob{ID: "j1", Title: "first", Enabled: true})

	m2 := NewManager(path, nil)
	if _, ok := m2.Get("j1"); !ok {
		t.Fatal("second manager should see persisted job on load")
	}
}

func TestManagerSurvivesCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cron_jobs.json")
	writeRaw(t, path, "{not json")

	m := NewManager(path, nil)
	if len(m.All()) != 0 {
		t.Fatal("expected empty job set after corrupt load")
	}
}

func writeRaw(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

package webhook

import (
	"path/filepath"
	"testing"

	"github.com/nevindra/ductor"
)

func TestManagerPutGetDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "webhooks.json")
	m := NewManager(path, nil)

	hook := ductor.WebhookEntry{ID: "h1", Title: "deploy alert", Mode: ductor.WebhookModeWake, Enabled: true}
	m.Put(hook)

	got, ok := m.Get("h1")
	if !ok || got.Title != "deploy alert" {
		t.Fatalf("got %+v, ok=%v", got, ok)
	}

	m.Delete("h1")
	if _, ok := m.Get("h1"); ok {
		t.Fatal("expected hook to be deleted")
	}
}

func TestManagerRecordTriggerPersistsAuditFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "webhooks.json")
	m := NewManager(path, nil)
	m.Put(ductor.WebhookEntry{ID: "h1", Enabled: true})

	m.RecordTrigger("h1", 1700000000, "success")

	got, _ := m.Get("h1")
	if got.LastTriggeredAt != 1700000000 || got.LastError != "success" {
		t.Fatalf("got %+v", got)
	}
}

func TestManagerReloadPicksUpExternalWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "webhooks.json")
	m1 := NewManager(path, nil)
	m1.Put(ductor.WebhookEntry{ID: "h1", Title: "first", Enabled: true})

	m2 := NewManager(path, nil)
	if _, ok := m2.Get("h1"); !ok {
		t.Fatal("second manager should see persisted hook on load")
	}
}

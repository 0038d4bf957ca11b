package session

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/nevindra/ductor"
	"github.com/nevindra/ductor/internal/clock"
)

func newTestStore(t *testing.T, now time.Time) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sessions.json")
	return New(path, FreshnessConfig{IdleTimeout: 30 * time.Minute, DailyResetHour: -1}, clock.Fixed{At: now}, nil)
}

func TestFreshnessIdleBoundary(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store := newTestStore(t, now)

	fresh := &ductor.Session{
		ChatID:           "c1",
		Provider:         "claude",
		ProviderSessions: map[string]*ductor.ProviderSession{"claude": {}},
		LastActive:       now.Add(-29 * time.Minute).Unix(),
	}
	if !store.IsFresh(fresh) {
		t.Fatal("expected session active 29 minutes ago to be fresh")
	}

	stale := &ductor.Session{
		ChatID:           "c2",
		Provider:         "claude",
		ProviderSessions: map[string]*ductor.ProviderSession{"claude": {}},
		LastActive:       now.Add(-30 * time.Minute).Unix(),
	}
	if store.IsFresh(stale) {
		t.Fatal("expected session active 30 minutes ago to be stale")
	}
}

func TestResolveSessionProviderSwitchIsolatesState(t *testing.T) {
	store := newTestStore(t, time.Now())
	sess, isNew := store.ResolveSession("c1", "claude", "opus")
	if !isNew {
		t.Fatal("expected new session")
	}
	sess.Active().SessionID = "S1"
	store.UpdateSession(sess, 0.01, 100)

	sess2, isNew2 := store.ResolveSession("c1", "codex", "gpt-5.2-codex")
	if !isNew2 {
		t.Fatal("expected is_new on provider switch")
	}
	if sess2.ProviderSessions["claude"].SessionID != "S1" {
		t.Fatal("expected claude's provider session untouched by switch")
	}
	if !sess2.ProviderSessions["codex"].IsEmpty() {
		t.Fatal("expected fresh codex provider session")
	}
}

func TestResetProviderSessionClearsExactlyOne(t *testing.T) {
	store := newTestStore(t, time.Now())
	sess, _ := store.ResolveSession("c1", "claude", "opus")
	sess.Active().SessionID = "S1"
	store.UpdateSession(sess, 0, 0)

	sess.ProviderSessions["codex"] = &ductor.ProviderSession{SessionID: "S2"}
	store.SyncSessionTarget("c1", "claude", "opus")

	store.ResetProviderSession("c1", "claude")
	got, _ := store.Get("c1")
	if !got.ProviderSessions["claude"].IsEmpty() {
		t.Fatal("expected claude provider session cleared")
	}
	if got.ProviderSessions["codex"].SessionID != "S2" {
		t.Fatal("expected codex provider session untouched")
	}
}

func TestSessionRoundTrip(t *testing.T) {
	sess := ductor.Session{
		ChatID:   "c1",
		Provider: "claude",
		Model:    "opus",
		ProviderSessions: map[string]*ductor.ProviderSession{
			"claude": {SessionID: "S1", MessageCount: 3, TotalCostUSD: 0.5, TotalTokens: 900},
		},
		CreatedAt:  1000,
		LastActive: 2000,
	}
	data, err := json.Marshal(sess)
	if err != nil {
		t.Fatal(err)
	}
	var out ductor.Session
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out.ChatID != sess.ChatID || out.Provider != sess.Provider || out.Model != sess.Model {
		t.Fatalf("round trip mismatch: %+v vs %+v", out, sess)
	}
	if *out.ProviderSessions["claude"] != *sess.ProviderSessions["claude"] {
		t.Fatalf("provider session round trip mismatch: %+v vs %+v", out.ProviderSessions["claude"], sess.ProviderSessions["claude"])
	}
}

package process

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type fakeKiller struct {
	exited  atomic.Bool
	signals atomic.Int32
	kills   atomic.Int32
}

func (k *fakeKiller) Signal() error {
	k.signals.Add(1)
	return nil
}

func (k *fakeKiller) Kill() error {
	k.kills.Add(1)
	k.exited.Store(true)
	return nil
}

func (k *fakeKiller) Exited() bool { return k.exited.Load() }

func TestKillAllClearsActiveAndSetsAborted(t *testing.T) {
	r := New(nil)
	k := &fakeKiller{}
	tp := r.Register("chat-1", "test", k)
	if !r.HasActive("chat-1") {
		t.Fatal("expected active process after register")
	}

	n := r.KillAll(context.Background(), "chat-1")
	if n != 1 {
		t.Fatalf("expected 1 signalled, got %d", n)
	}
	if r.HasActive("chat-1") {
		t.Fatal("expected no active process after kill_all")
	}
	if !r.WasAborted("chat-1") {
		t.Fatal("expected aborted flag set after kill_all")
	}
	if k.signals.Load() != 1 {
		t.Fatalf("expected graceful signal once, got %d", k.signals.Load())
	}

	r.Unregister(tp)
	r.ClearAbort("chat-1")
	if r.WasAborted("chat-1") {
		t.Fatal("expected abort flag cleared")
	}
}

func TestUnregisterUnknownIsNoop(t *testing.T) {
	r := New(nil)
	k := &fakeKiller{}
	tp := r.Register("chat-1", "test", k)
	r.Unregister(tp)
	r.Unregister(tp) // double-unregister must not panic
	if r.HasActive("chat-1") {
		t.Fatal("expected no active process")
	}
}

func TestKillStaleReapsOldEntries(t *testing.T) {
	r := New(nil)
	k := &fakeKiller{}
	tp := r.Register("chat-1", "test", k)
	r.mu.Lock()
	r.byChat["chat-1"][0].tracked.RegisteredAt = time.Now().Add(-time.Hour)
	r.mu.Unlock()

	n := r.KillStale(time.Minute)
	if n != 1 {
		t.Fatalf("expected 1 reaped, got %d", n)
	}
	if r.HasActive("chat-1") {
		t.Fatal("expected stale process reaped")
	}
	_ = tp
}

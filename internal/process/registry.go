// Package process implements the Process Registry: the single place
// that tracks every live provider subprocess, keyed by chat, and
// coordinates graceful-then-forceful termination and abort-flag
// bookkeeping across the kernel.
package process

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nevindra/ductor"
	"github.com/nevindra/ductor/internal/observability"
)

// GraceWindow is the fixed pause between a graceful termination
// signal and the forceful follow-up.
const GraceWindow = 2 * time.Second

// Killer is the minimal capability a tracked handle must expose so
// the registry can terminate it without depending on os/exec directly.
// Provider adapters satisfy this with a thin wrapper over *exec.Cmd.
type Killer interface {
	// Signal sends a graceful termination request (SIGTERM on unix).
	Signal() error
	// Kill sends a forceful termination request (SIGKILL on unix).
	Kill() error
	// Exited reports whether the process has already exited.
	Exited() bool
}

type entry struct {
	tracked ductor.TrackedProcess
	killer  Killer
}

// Registry tracks live subprocesses keyed by chat id and a parallel
// set of chats whose most recent operation was aborted.
type Registry struct {
	mu      sync.Mutex
	byChat  map[string][]*entry
	aborted map[string]bool
	logger  *slog.Logger

	instruments *observability.Instruments
}

// SetInstruments attaches the OTEL instruments KillAll reports kill
// counts to. Nil is safe and leaves metrics unrecorded.
func (r *Registry) SetInstruments(inst *observability.Instruments) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instruments = inst
}

func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
	}
	return &Registry{
		byChat:  make(map[string][]*entry),
		aborted: make(map[string]bool),
		logger:  logger,
	}
}

// Register adds a tracked handle for chat, returning its TrackedProcess.
func (r *Registry) Register(chatID, label string, k Killer) ductor.TrackedProcess {
	r.mu.Lock()
	defer r.mu.Unlock()
	tp := ductor.TrackedProcess{
		ID:           ductor.NewID(),
		ChatID:       chatID,
		Label:        label,
		RegisteredAt: time.Now(),
	}
	r.byChat[chatID] = append(r.byChat[chatID], &entry{tracked: tp, killer: k})
	r.logger.Debug("process registered", "chat_id", chatID, "label", label, "process_id", tp.ID)
	return tp
}

// Unregister removes tracked by id; a double-unregister or an unknown
// id is a no-op.
func (r *Registry) Unregister(tracked ductor.TrackedProcess) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.byChat[tracked.ChatID]
	for i, e := range list {
		if e.tracked.ID == tracked.ID {
			r.byChat[tracked.ChatID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(r.byChat[tracked.ChatID]) == 0 {
		delete(r.byChat, tracked.ChatID)
	}
}

// HasActive reports whether any tracked entry for chat has not exited.
func (r *Registry) HasActive(chatID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.byChat[chatID] {
		if !e.killer.Exited() {
			return true
		}
	}
	return false
}

// WasAborted reports whether chat's most recent operation was aborted.
func (r *Registry) WasAborted(chatID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.aborted[chatID]
}

// ClearAbort clears chat's abort flag. The orchestrator calls this at
// the start of every new message before routing.
func (r *Registry) ClearAbort(chatID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.aborted, chatID)
}

// KillAll marks chat aborted and drains its tracked list: each live
// entry gets a graceful signal, a fixed grace window, then a forceful
// signal, then a bounded wait for exit. Returns how many entries had
// to be signalled at all. After KillAll returns, no live process
// remains registered for chat.
func (r *Registry) KillAll(ctx context.Context, chatID string) int {
	r.mu.Lock()
	r.aborted[chatID] = true
	list := r.byChat[chatID]
	delete(r.byChat, chatID)
	r.mu.Unlock()

	signalled := 0
	var g errgroup.Group
	for _, e := range list {
		if e.killer.Exited() {
			continue
		}
		signalled++
		e := e
		g.Go(func() error {
			r.terminate(ctx, e)
			return nil
		})
	}
	_ = g.Wait()

	if signalled > 0 {
		r.mu.Lock()
		inst := r.instruments
		r.mu.Unlock()
		if inst != nil {
			inst.ProcessKills.Add(ctx, int64(signalled))
		}
	}
	return signalled
}

func (r *Registry) terminate(ctx context.Context, e *entry) {
	if err := e.killer.Signal(); err != nil {
		r.logger.Debug("graceful signal failed", "process_id", e.tracked.ID, "err", err)
	}

	timer := time.NewTimer(GraceWindow)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}

	if e.killer.Exited() {
		return
	}
	if err := e.killer.Kill(); err != nil {
		r.logger.Debug("force kill failed", "process_id", e.tracked.ID, "err", err)
	}

	// Bounded wait for the forceful signal to take effect.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.killer.Exited() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// KillStale scans every tracked entry and signal-kills those older
// than maxAge wall-clock, returning how many were reaped. Used by the
// heartbeat loop to clean up processes stranded across OS suspend.
func (r *Registry) KillStale(maxAge time.Duration) int {
	r.mu.Lock()
	cutoff := time.Now().Add(-maxAge)
	var stale []*entry
	for chatID, list := range r.byChat {
		kept := list[:0:0]
		for _, e := range list {
			if !e.killer.Exited() && e.tracked.RegisteredAt.Before(cutoff) {
				stale = append(stale, e)
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) == 0 {
			delete(r.byChat, chatID)
		} else {
			r.byChat[chatID] = kept
		}
	}
	r.mu.Unlock()

	for _, e := range stale {
		_ = e.killer.Kill()
		r.logger.Warn("reaped stale process", "process_id", e.tracked.ID, "chat_id", e.tracked.ChatID, "label", e.tracked.Label)
	}
	return len(stale)
}

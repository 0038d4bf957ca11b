package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nevindra/ductor"
)

type fakeWakeExecutor struct {
	text   string
	status string
	err    error
	calls  int
}

func (f *fakeWakeExecutor) RunTask(ctx context.Context, hook ductor.WebhookEntry, enrichedPrompt string) (string, string, error) {
	f.calls++
	return f.text, f.status, f.err
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(filepath.Join(t.TempDir(), "webhooks.json"), nil)
}

func TestDispatchWakeNoHandlerConfigured(t *testing.T) {
	mgr := newTestManager(t)
	hook := ductor.WebhookEntry{ID: "h1", Mode: ductor.WebhookModeWake, Enabled: true}
	mgr.Put(hook)

	obs := NewObserver(mgr, nil, nil, Config{}, nil)
	obs.dispatchWake(context.Background(), hook, "prompt")

	got, _ := mgr.Get("h1")
	if got.LastError != "error:no_wake_handler" {
		t.Fatalf("got %q", got.LastError)
	}
}

func TestDispatchWakeSucceedsWithReply(t *testing.T) {
	mgr := newTestManager(t)
	hook := ductor.WebhookEntry{ID: "h1", Mode: ductor.WebhookModeWake, Enabled: true}
	mgr.Put(hook)

	wake := func(ctx context.Context, chatID, safePrompt string) (string, error) {
		return "got it", nil
	}
	obs := NewObserver(mgr, nil, wake, Config{AllowedChats: []string{"chat1"}}, nil)
	obs.dispatchWake(context.Background(), hook, "prompt")

	got, _ := mgr.Get("h1")
	if got.LastError != "success" {
		t.Fatalf("got %q", got.LastError)
	}
}

func TestDispatchCronTaskNoExecutor(t *testing.T) {
	mgr := newTestManager(t)
	hook := ductor.WebhookEntry{ID: "h1", Mode: ductor.WebhookModeCronTask, Enabled: true}
	mgr.Put(hook)

	obs := NewObserver(mgr, nil, nil, Config{}, nil)
	obs.dispatchCronTask(context.Background(), hook, "prompt")

	got, _ := mgr.Get("h1")
	if got.LastError != "error:no_executor" {
		t.Fatalf("got %q", got.LastError)
	}
}

func TestDispatchCronTaskRunsExecutor(t *testing.T) {
	mgr := newTestManager(t)
	hook := ductor.WebhookEntry{ID: "h1", Mode: ductor.WebhookModeCronTask, Enabled: true}
	mgr.Put(hook)

	exec := &fakeWakeExecutor{status: "ok"}
	obs := NewObserver(mgr, exec, nil, Config{}, nil)
	obs.dispatchCronTask(context.Background(), hook, "prompt")

	if exec.calls != 1 {
		t.Fatalf("expected executor to run once, got %d", exec.calls)
	}
	got, _ := mgr.Get("h1")
	if got.LastError != "ok" {
		t.Fatalf("got %q", got.LastError)
	}
}

func TestHandleDispatchRejectsNonJSON(t *testing.T) {
	mgr := newTestManager(t)
	obs := NewObserver(mgr, nil, nil, Config{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/hooks/h1", strings.NewReader("not json"))
	req.Header.Set("Content-Type", "text/plain")
	rr := httptest.NewRecorder()

	obs.handleDispatch(context.Background())(rr, req)
	if rr.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("got status %d", rr.Code)
	}
}

func TestHandleDispatchRejectsUnknownHook(t *testing.T) {
	mgr := newTestManager(t)
	obs := NewObserver(mgr, nil, nil, Config{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/hooks/missing", strings.NewReader(`{"a":1}`))
	req.Header.Set("Content-Type", "application/json")
	req.SetPathValue("id", "missing")
	rr := httptest.NewRecorder()

	obs.handleDispatch(context.Background())(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("got status %d", rr.Code)
	}
}

func TestHandleDispatchRejectsUnauthenticated(t *testing.T) {
	mgr := newTestManager(t)
	hook := ductor.WebhookEntry{ID: "h1", Enabled: true, Auth: ductor.WebhookAuth{Kind: "bearer", Token: "right"}}
	mgr.Put(hook)
	obs := NewObserver(mgr, nil, nil, Config{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/hooks/h1", strings.NewReader(`{"a":1}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer wrong")
	req.SetPathValue("id", "h1")
	rr := httptest.NewRecorder()

	obs.handleDispatch(context.Background())(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("got status %d", rr.Code)
	}
}

func TestHandleDispatchAcceptsValidRequest(t *testing.T) {
	mgr := newTestManager(t)
	hook := ductor.WebhookEntry{
		ID: "h1", Enabled: true, Mode: ductor.WebhookModeWake, PromptTemplate: "hello {{name}}",
		Auth: ductor.WebhookAuth{Kind: "bearer", Token: "right"},
	}
	mgr.Put(hook)

	received := make(chan string, 1)
	wake := func(ctx context.Context, chatID, safePrompt string) (string, error) {
		received <- safePrompt
		return "", nil
	}
	obs := NewObserver(mgr, nil, wake, Config{AllowedChats: []string{"chat1"}}, nil)

	req := httptest.NewRequest(http.MethodPost, "/hooks/h1", strings.NewReader(`{"name":"world"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer right")
	req.SetPathValue("id", "h1")
	rr := httptest.NewRecorder()

	obs.handleDispatch(context.Background())(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("got status %d: %s", rr.Code, rr.Body.String())
	}

	select {
	case prompt := <-received:
		if !strings.Contains(prompt, "hello world") {
			t.Fatalf("expected rendered+wrapped prompt, got %q", prompt)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("wake handler was never invoked")
	}
}

package telegram

import (
	"context"
	"sync"
	"testing"

	"github.com/nevindra/ductor/internal/cliservice"
)

type fakeFrontend struct {
	mu       sync.Mutex
	sent     []string
	typing   int
	ch       chan IncomingMessage
	sendErr  error
	lastSent string
}

func newFakeFrontend() *fakeFrontend {
	return &fakeFrontend{ch: make(chan IncomingMessage, 4)}
}

func (f *fakeFrontend) Poll(ctx context.Context) (<-chan IncomingMessage, error) {
	return f.ch, nil
}

func (f *fakeFrontend) Send(ctx context.Context, chatID, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	f.lastSent = text
	return "msg-id", f.sendErr
}

func (f *fakeFrontend) SendTyping(ctx context.Context, chatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing++
	return nil
}

func (f *fakeFrontend) DownloadFile(ctx context.Context, fileID string) ([]byte, string, error) {
	return nil, "", nil
}

func (f *fakeFrontend) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestRouterRejectsNonAllowedUser(t *testing.T) {
	fe := newFakeFrontend()
	handled := false
	handle := func(ctx context.Context, chatID, msgID, text string) Result {
		handled = true
		return Result{Text: "hi"}
	}
	r := NewRouter(fe, handle, nil, []string{"allowed-user"}, nil)

	r.dispatch(context.Background(), IncomingMessage{ChatID: "c1", UserID: "someone-else", Text: "hello"})

	if handled {
		t.Fatal("handler should not run for a non-allowed user")
	}
	if fe.sentCount() != 0 {
		t.Fatal("no reply should be sent for a rejected user")
	}
}

func TestRouterAllowsListedUser(t *testing.T) {
	fe := newFakeFrontend()
	handle := func(ctx context.Context, chatID, msgID, text string) Result {
		return Result{Text: "reply: " + text}
	}
	r := NewRouter(fe, handle, nil, []string{"allowed-user"}, nil)

	r.dispatch(context.Background(), IncomingMessage{ChatID: "c1", UserID: "allowed-user", Text: "hello"})

	if fe.sentCount() != 1 || fe.lastSent != "reply: hello" {
		t.Fatalf("got sent=%v", fe.sent)
	}
}

func TestRouterEmptyAllowListAllowsEveryone(t *testing.T) {
	fe := newFakeFrontend()
	handle := func(ctx context.Context, chatID, msgID, text string) Result {
		return Result{Text: "ok"}
	}
	r := NewRouter(fe, handle, nil, nil, nil)

	r.dispatch(context.Background(), IncomingMessage{ChatID: "c1", UserID: "anyone", Text: "hi"})

	if fe.sentCount() != 1 {
		t.Fatal("expected message to be handled when no allow-list is configured")
	}
}

func TestRouterSuppressSendsNoReply(t *testing.T) {
	fe := newFakeFrontend()
	handle := func(ctx context.Context, chatID, msgID, text string) Result {
		return Result{Suppress: true}
	}
	r := NewRouter(fe, handle, nil, nil, nil)

	r.dispatch(context.Background(), IncomingMessage{ChatID: "c1", UserID: "u1", Text: "/stop"})

	if fe.sentCount() != 0 {
		t.Fatal("suppressed result should send nothing")
	}
}

type fakeStreamFrontend struct {
	*fakeFrontend
	edits []string
}

func (f *fakeStreamFrontend) Edit(ctx context.Context, chatID, msgID, text string) error {
	f.edits = append(f.edits, text)
	return nil
}

func TestRouterStreamsTextDeltasViaEdit(t *testing.T) {
	fe := &fakeStreamFrontend{fakeFrontend: newFakeFrontend()}
	streaming := func(ctx context.Context, chatID, msgID, text string, cb cliservice.StreamCallbacks) Result {
		cb.OnTextDelta("Hello")
		cb.OnTextDelta(" world")
		return Result{Text: "Hello world"}
	}
	r := NewRouter(fe, nil, streaming, nil, nil)

	r.dispatch(context.Background(), IncomingMessage{ChatID: "c1", UserID: "u1", Text: "hi"})

	if fe.sentCount() != 1 {
		t.Fatalf("expected one placeholder send, got %d", fe.sentCount())
	}
	if len(fe.edits) != 3 {
		t.Fatalf("expected two delta edits plus a final edit, got %v", fe.edits)
	}
	if fe.edits[len(fe.edits)-1] != "Hello world" {
		t.Fatalf("expected final edit to be the full reply, got %q", fe.edits[len(fe.edits)-1])
	}
}

package heartbeat

import (
	"context"
	"testing"
	"time"

	"github.com/nevindra/ductor"
)

func TestTickSkipsDuringQuietHours(t *testing.T) {
	now := time.Now()
	start := now.Add(-time.Hour).Format("15:04")
	end := now.Add(time.Hour).Format("15:04")

	called := false
	obs := NewObserver(nil, func(ctx context.Context, chatID string) (string, error) {
		called = true
		return "", nil
	}, nil, Config{
		QuietHours:   &ductor.QuietHours{Start: start, End: end},
		AllowedChats: []string{"chat1"},
	}, nil)

	obs.tick(context.Background())
	if called {
		t.Fatal("handler should not run during quiet hours")
	}
}

func TestTickHandlesEveryChatWithNilRegistry(t *testing.T) {
	calledFor := map[string]bool{}
	obs := &Observer{
		handler: func(ctx context.Context, chatID string) (string, error) {
			calledFor[chatID] = true
			return "", nil
		},
		cfg: Config{AllowedChats: []string{"busy", "idle"}},
	}
	obs.registry = nil
	obs.tick(context.Background())

	if !calledFor["busy"] || !calledFor["idle"] {
		t.Fatalf("expected both chats handled with nil registry, got %+v", calledFor)
	}
}

func TestTickDeliversNonEmptyReplyToCallback(t *testing.T) {
	var gotChat, gotText string
	obs := NewObserver(nil, func(ctx context.Context, chatID string) (string, error) {
		return "you have updates", nil
	}, func(chatID, text string) {
		gotChat, gotText = chatID, text
	}, Config{AllowedChats: []string{"chat1"}}, nil)

	obs.tick(context.Background())
	if gotChat != "chat1" || gotText != "you have updates" {
		t.Fatalf("got (%q, %q)", gotChat, gotText)
	}
}

func TestTickSuppressesEmptyReply(t *testing.T) {
	called := false
	obs := NewObserver(nil, func(ctx context.Context, chatID string) (string, error) {
		return "", nil
	}, func(chatID, text string) {
		called = true
	}, Config{AllowedChats: []string{"chat1"}}, nil)

	obs.tick(context.Background())
	if called {
		t.Fatal("empty reply should not invoke the result callback")
	}
}

func TestTickContinuesAfterHandlerError(t *testing.T) {
	var visited []string
	obs := NewObserver(nil, func(ctx context.Context, chatID string) (string, error) {
		visited = append(visited, chatID)
		if chatID == "bad" {
			return "", context.DeadlineExceeded
		}
		return "ok", nil
	}, nil, Config{AllowedChats: []string{"bad", "good"}}, nil)

	obs.tick(context.Background())
	if len(visited) != 2 {
		t.Fatalf("expected both chats visited despite one error, got %v", visited)
	}
}

package orchestrator

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/nevindra/ductor/internal/cliservice"
	"github.com/nevindra/ductor/internal/clock"
	"github.com/nevindra/ductor/internal/paths"
	"github.com/nevindra/ductor/internal/process"
	"github.com/nevindra/ductor/internal/session"
)

func testOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	home := t.TempDir()
	layout := paths.New(home)

	sessions := session.New(layout.Sessions(), session.FreshnessConfig{DailyResetHour: -1}, clock.Real{}, slog.Default())
	registry := process.New(slog.Default())
	resolver := testResolver()
	cli := cliservice.New(cliservice.StaticConfig{DefaultProvider: "claude", DefaultModel: "opus"},
		map[string]bool{"claude": true}, registry, resolver, slog.Default())

	cfg := Config{DefaultProvider: "claude", DefaultModel: "opus", BotName: "testbot"}
	return New(sessions, registry, cli, resolver, nil, nil, layout, map[string]bool{"claude": true}, cfg, slog.Default())
}

func TestCommandRegistryMatchStripsBotNameSuffix(t *testing.T) {
	r := NewCommandRegistry()
	registerBuiltinCommands(r)

	h, rest, matched := r.Match("/status@testbot", "testbot")
	if !matched || rest != "" || h == nil {
		t.Fatalf("expected match, got matched=%v rest=%q", matched, rest)
	}
}

func TestCommandRegistryMatchCaseInsensitive(t *testing.T) {
	r := NewCommandRegistry()
	registerBuiltinCommands(r)

	_, _, matched := r.Match("/STATUS", "")
	if !matched {
		t.Fatal("expected case-insensitive match")
	}
}

func TestCommandRegistryNoMatchForPlainText(t *testing.T) {
	r := NewCommandRegistry()
	registerBuiltinCommands(r)

	_, _, matched := r.Match("hello there", "")
	if matched {
		t.Fatal("plain text should not match any command")
	}
}

func TestCmdNewStartsFreshSession(t *testing.T) {
	o := testOrchestrator(t)
	sess, _ := o.Sessions.ResolveSession("chat1", "claude", "opus")
	o.Sessions.UpdateSession(sess, 1.0, 100)

	res := cmdNew(context.Background(), o, "chat1", "")
	if res.Text != "Started a new session." {
		t.Fatalf("got %q", res.Text)
	}
	reset, ok := o.Sessions.Get("chat1")
	if !ok || reset.Active().MessageCount != 0 {
		t.Fatalf("expected reset session, got %+v", reset.Active())
	}
}

func TestCmdStatusReportsNoSession(t *testing.T) {
	o := testOrchestrator(t)
	res := cmdStatus(context.Background(), o, "nochat", "")
	if res.Text != "No active session." {
		t.Fatalf("got %q", res.Text)
	}
}

func TestCmdModelRejectsUnknownModel(t *testing.T) {
	o := testOrchestrator(t)
	res := cmdModel(context.Background(), o, "chat1", "not-a-real-model")
	if res.Text != "That model isn't available right now." {
		t.Fatalf("got %q", res.Text)
	}
}

func TestCmdCronReportsDisabledWhenNoManager(t *testing.T) {
	o := testOrchestrator(t)
	res := cmdCron(context.Background(), o, "chat1", "")
	if res.Text != "Cron is not enabled." {
		t.Fatalf("got %q", res.Text)
	}
}

func TestHandleMessageDedupSuppressesRepeatedMessageID(t *testing.T) {
	o := testOrchestrator(t)

	first := o.HandleMessage(context.Background(), "chat1", "msg-1", "/new")
	if first.Suppress {
		t.Fatal("first delivery should not be suppressed")
	}

	second := o.HandleMessage(context.Background(), "chat1", "msg-1", "/new")
	if !second.Suppress {
		t.Fatal("duplicate message id should be suppressed")
	}
}

func TestHandleMessageQuickCommandBypassesDedup(t *testing.T) {
	o := testOrchestrator(t)

	first := o.HandleMessage(context.Background(), "chat1", "msg-1", "/status")
	second := o.HandleMessage(context.Background(), "chat1", "msg-1", "/status")
	if first.Suppress || second.Suppress {
		t.Fatal("quick commands must bypass dedup and never suppress")
	}
}

func TestCmdStopReportsNothingRunningWhenIdle(t *testing.T) {
	o := testOrchestrator(t)
	res := cmdStop(context.Background(), o, "chat1", "")
	if res.Text != "Nothing was running." {
		t.Fatalf("got %q", res.Text)
	}
}

func TestStripAckTokensRemovesRepeatedToken(t *testing.T) {
	reply := "ACK ACK all good ACK"
	got := stripAckTokens(reply, "ACK")
	if got != "all good" {
		t.Fatalf("got %q", got)
	}
}

func TestStripAckTokensNoTokenConfigured(t *testing.T) {
	got := stripAckTokens("  hello  ", "")
	if got != "hello" {
		t.Fatalf("got %q", got)
	}
}

func TestValidateMarkdownAcceptsWellFormedMarkdown(t *testing.T) {
	if !validateMarkdown([]byte("# heading\n\nsome *text*")) {
		t.Fatal("expected valid markdown to pass")
	}
}

func TestReadFileHeadTruncates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.md")
	writeFile(t, path, "0123456789")

	got, err := readFileHead(path, 4)
	if err != nil {
		t.Fatal(err)
	}
	if got != "0123" {
		t.Fatalf("got %q", got)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

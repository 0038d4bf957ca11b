package orchestrator

import (
	"context"
	"log/slog"
	"testing"

	"github.com/nevindra/ductor"
	"github.com/nevindra/ductor/internal/cliservice"
	"github.com/nevindra/ductor/internal/paths"
	"github.com/nevindra/ductor/internal/process"
)

func testTaskExecCLI(t *testing.T) *cliservice.Service {
	t.Helper()
	registry := process.New(slog.Default())
	resolver := testResolver()
	return cliservice.New(cliservice.StaticConfig{DefaultProvider: "claude", DefaultModel: "opus"},
		map[string]bool{}, registry, resolver, slog.Default())
}

func TestCronTaskExecutorPropagatesResolveFailure(t *testing.T) {
	layout := paths.New(t.TempDir())
	exec := NewCronTaskExecutor(testTaskExecCLI(t), layout)

	_, _, err := exec.RunTask(context.Background(), ductor.CronJob{ID: "job1", TaskFolder: "daily"}, "do the thing")
	if err == nil {
		t.Fatal("expected an error when no provider is authenticated")
	}
}

func TestWebhookTaskExecutorPropagatesResolveFailure(t *testing.T) {
	layout := paths.New(t.TempDir())
	exec := NewWebhookTaskExecutor(testTaskExecCLI(t), layout)

	_, _, err := exec.RunTask(context.Background(), ductor.WebhookEntry{ID: "hook1", TaskFolder: "daily"}, "do the thing")
	if err == nil {
		t.Fatal("expected an error when no provider is authenticated")
	}
}

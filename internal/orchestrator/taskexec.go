package orchestrator

import (
	"context"
	"fmt"

	"github.com/nevindra/ductor"
	"github.com/nevindra/ductor/internal/cliservice"
	"github.com/nevindra/ductor/internal/paths"
)

// taskExecutor holds the shared run logic behind the Cron and Webhook
// Observers' distinct Executor interfaces. Go forbids two methods
// named RunTask with different parameter types on one receiver, so
// CronTaskExecutor and WebhookTaskExecutor each expose the name their
// respective interface expects and delegate here.
type taskExecutor struct {
	cli    *cliservice.Service
	layout paths.Layout
}

func (e *taskExecutor) run(ctx context.Context, taskFolder, label string, overrides ductor.ExecutionOverrides, prompt string) (string, string, error) {
	req := ductor.AgentRequest{
		Prompt:             prompt,
		ModelOverride:      overrides.Model,
		ProviderOverride:   overrides.Provider,
		ChatID:             label,
		Label:              label,
		WorkingDirOverride: e.layout.CronTaskFolder(taskFolder),
	}
	resp, err := e.cli.Execute(ctx, req)
	if err != nil {
		return "", "", err
	}
	if resp.IsError {
		return resp.Text, "error:agent_error", nil
	}
	return resp.Text, fmt.Sprintf("ok cost=%.4f", resp.CostUSD), nil
}

// CronTaskExecutor adapts taskExecutor to internal/cron.Executor.
type CronTaskExecutor struct{ *taskExecutor }

// NewCronTaskExecutor builds the Cron Observer's executor, pinning
// each job's working directory to its task folder under cli's shared
// provider configuration.
func NewCronTaskExecutor(cli *cliservice.Service, layout paths.Layout) *CronTaskExecutor {
	return &CronTaskExecutor{&taskExecutor{cli: cli, layout: layout}}
}

func (e *CronTaskExecutor) RunTask(ctx context.Context, job ductor.CronJob, enrichedPrompt string) (string, string, error) {
	return e.run(ctx, job.TaskFolder, "cron:"+job.ID, job.Overrides, enrichedPrompt)
}

// WebhookTaskExecutor adapts taskExecutor to internal/webhook.Executor.
type WebhookTaskExecutor struct{ *taskExecutor }

func NewWebhookTaskExecutor(cli *cliservice.Service, layout paths.Layout) *WebhookTaskExecutor {
	return &WebhookTaskExecutor{&taskExecutor{cli: cli, layout: layout}}
}

func (e *WebhookTaskExecutor) RunTask(ctx context.Context, hook ductor.WebhookEntry, enrichedPrompt string) (string, string, error) {
	return e.run(ctx, hook.TaskFolder, "webhook:"+hook.ID, hook.Overrides, enrichedPrompt)
}

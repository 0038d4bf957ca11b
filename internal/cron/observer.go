package cron

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/nevindra/ductor"
	"github.com/nevindra/ductor/internal/observability"
	"github.com/nevindra/ductor/internal/paths"
	"github.com/nevindra/ductor/internal/process"
)

// parser is the standard 5-field POSIX cron-expression iterator the
// Cron Observer schedules every enabled job against.
var parser = cronlib.NewParser(cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow)

// Executor runs one job/hook's enriched prompt through a provider CLI
// and reports the outcome. The Cron and Webhook Observers share this
// shape; the concrete implementation lives in the orchestrator wiring.
type Executor interface {
	RunTask(ctx context.Context, job ductor.CronJob, enrichedPrompt string) (text string, status string, err error)
}

// ResultCallback delivers one job's output to its consumer (e.g. a
// Telegram message to the job's owning chat).
type ResultCallback func(title, resultText, status string)

// Observer is the Cron Observer: loads jobs, schedules a timer per
// enabled job at its next fire time, executes on fire, and reloads
// when cron_jobs.json's mtime changes.
type Observer struct {
	manager  *Manager
	executor Executor
	layout   paths.Layout
	registry *process.Registry
	onResult ResultCallback
	logger   *slog.Logger

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stop    chan struct{}
	done    chan struct{}

	instruments *observability.Instruments
}

// SetInstruments attaches the OTEL instruments every job run reports
// to. Nil is safe and leaves metrics unrecorded.
func (o *Observer) SetInstruments(inst *observability.Instruments) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.instruments = inst
}

func NewObserver(manager *Manager, executor Executor, layout paths.Layout, registry *process.Registry, onResult ResultCallback, logger *slog.Logger) *Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Observer{
		manager:  manager,
		executor: executor,
		layout:   layout,
		registry: registry,
		onResult: onResult,
		logger:   logger,
		timers:   make(map[string]*time.Timer),
	}
}

// Start spawns the background scheduling loop.
func (o *Observer) Start(ctx context.Context) {
	o.stop = make(chan struct{})
	o.done = make(chan struct{})

	o.rescanLocked(ctx)

	go func() {
		defer close(o.done)
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-o.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				func() {
					defer func() {
						if r := recover(); r != nil {
							o.logger.Error("cron observer: tick panic recovered", "panic", r)
						}
					}()
					if o.manager.Reload() {
						o.rescanLocked(ctx)
					}
				}()
			}
		}
	}()
}

// Stop cancels the background loop and awaits its exit.
func (o *Observer) Stop() {
	if o.stop == nil {
		return
	}
	close(o.stop)
	<-o.done
	o.mu.Lock()
	for _, t := range o.timers {
		t.Stop()
	}
	o.timers = make(map[string]*time.Timer)
	o.mu.Unlock()
}

func (o *Observer) rescanLocked(ctx context.Context) {
	o.mu.Lock()
	for id, t := range o.timers {
		t.Stop()
		delete(o.timers, id)
	}
	o.mu.Unlock()

	for _, job := range o.manager.Enabled() {
		o.scheduleJob(ctx, *job)
	}
}

func (o *Observer) scheduleJob(ctx context.Context, job ductor.CronJob) {
	loc := time.UTC
	if job.Timezone != "" {
		if l, err := time.LoadLocation(job.Timezone); err == nil {
			loc = l
		}
	}
	sched, err := parser.Parse(job.Schedule)
	if err != nil {
		o.logger.Warn("cron observer: invalid schedule, skipping job", "job_id", job.ID, "schedule", job.Schedule, "err", err)
		return
	}
	now := time.Now().In(loc)
	next := sched.Next(now)
	delay := next.Sub(now)
	if delay < 0 {
		delay = 0
	}

	timer := time.AfterFunc(delay, func() {
		defer func() {
			if r := recover(); r != nil {
				o.logger.Error("cron observer: job execution panic recovered", "job_id", job.ID, "panic", r)
			}
		}()
		o.mu.Lock()
		delete(o.timers, job.ID)
		o.mu.Unlock()

		o.runJob(ctx, job)

		if current, ok := o.manager.Get(job.ID); ok && current.Enabled {
			o.scheduleJob(ctx, *current)
		}
	})

	o.mu.Lock()
	o.timers[job.ID] = timer
	o.mu.Unlock()
}

func (o *Observer) runJob(ctx context.Context, job ductor.CronJob) {
	folder := o.layout.CronTaskFolder(job.TaskFolder)
	if info, err := os.Stat(folder); err != nil || !info.IsDir() {
		o.manager.RecordRun(job.ID, ductor.NowUnix(), "error:folder_missing")
		o.logger.Warn("cron observer: task folder missing", "job_id", job.ID, "folder", folder)
		return
	}

	memoryFile := o.layout.MemoryFileFor(job.TaskFolder)
	enriched := fmt.Sprintf("%s\n\nBefore responding, read %s if it exists. After completing the task, update %s with anything future runs should know.", job.AgentInstruction, memoryFile, memoryFile)

	text, status, err := o.executor.RunTask(ctx, job, enriched)
	if err != nil {
		status = "error:" + err.Error()
	}
	o.manager.RecordRun(job.ID, ductor.NowUnix(), status)

	o.mu.Lock()
	inst := o.instruments
	o.mu.Unlock()
	if inst != nil {
		inst.CronRuns.Add(ctx, 1, metric.WithAttributes(attribute.String("job_id", job.ID), attribute.String("status", status)))
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				o.logger.Error("cron observer: result callback panic recovered", "job_id", job.ID, "panic", r)
			}
		}()
		if o.onResult != nil {
			o.onResult(job.Title, text, status)
		}
	}()
}

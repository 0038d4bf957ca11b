// Package heartbeat implements the Heartbeat Observer: a periodic
// probe that reaps processes stranded across OS suspend and invokes
// the orchestrator's proactive heartbeat flow for each allowed user.
package heartbeat

import (
	"context"
	"log/slog"
	"time"

	"github.com/nevindra/ductor"
	"github.com/nevindra/ductor/internal/process"
)

// Handler is the orchestrator's heartbeat_flow: given a chat, returns
// text to deliver, or empty if there is nothing to say.
type Handler func(ctx context.Context, chatID string) (string, error)

// ResultCallback delivers one chat's heartbeat output.
type ResultCallback func(chatID, text string)

// Config configures the Heartbeat Observer's cadence and policy.
type Config struct {
	Interval     time.Duration
	CLITimeout   time.Duration
	QuietHours   *ductor.QuietHours
	AllowedChats []string
}

// Observer is the Heartbeat Observer.
type Observer struct {
	registry *process.Registry
	handler  Handler
	onResult ResultCallback
	cfg      Config
	logger   *slog.Logger

	stop chan struct{}
	done chan struct{}
}

func NewObserver(registry *process.Registry, handler Handler, onResult ResultCallback, cfg Config, logger *slog.Logger) *Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Observer{registry: registry, handler: handler, onResult: onResult, cfg: cfg, logger: logger}
}

// Start spawns the background probe loop.
func (o *Observer) Start(ctx context.Context) {
	o.stop = make(chan struct{})
	o.done = make(chan struct{})

	go func() {
		defer close(o.done)
		ticker := time.NewTicker(o.cfg.Interval)
		defer ticker.Stop()
		lastTick := time.Now()
		for {
			select {
			case <-o.stop:
				return
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				gap := now.Sub(lastTick)
				lastTick = now
				if gap > 2*o.cfg.Interval {
					o.logger.Warn("heartbeat observer: large wall-clock gap, likely OS suspend", "gap", gap)
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							o.logger.Error("heartbeat observer: tick panic recovered", "panic", r)
						}
					}()
					o.tick(ctx)
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
}

func (o *Observer) tick(ctx context.Context) {
	maxAge := o.cfg.CLITimeout * 2
	if o.registry != nil && maxAge > 0 {
		if n := o.registry.KillStale(maxAge); n > 0 {
			o.logger.Info("heartbeat observer: reaped stale processes", "count", n)
		}
	}

	if o.cfg.QuietHours != nil && o.cfg.QuietHours.Contains(time.Now()) {
		return
	}

	for _, chat := range o.cfg.AllowedChats {
		if o.registry != nil && o.registry.HasActive(chat) {
			continue
		}
		if o.handler == nil {
			continue
		}
		text, err := o.handler(ctx, chat)
		if err != nil {
			o.logger.Warn("heartbeat observer: handler failed", "chat_id", chat, "err", err)
			continue
		}
		if text != "" && o.onResult != nil {
			o.onResult(chat, text)
		}
	}
}

package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/nevindra/ductor"
	"github.com/nevindra/ductor/internal/observability"
)

// WakeHandler delivers a safe (boundary-wrapped) prompt to one allowed
// chat and returns its non-empty reply text, if any.
type WakeHandler func(ctx context.Context, chatID, safePrompt string) (string, error)

// Executor runs a cron_task-mode hook's enriched prompt through a
// provider CLI in its task folder, mirroring internal/cron.Executor.
type Executor interface {
	RunTask(ctx context.Context, hook ductor.WebhookEntry, enrichedPrompt string) (text string, status string, err error)
}

// Config configures the Webhook Observer's HTTP server and policy
// knobs, all sourced from the global AgentConfig.
type Config struct {
	Addr         string
	GlobalToken  string
	MaxBodyBytes int64
	RateLimitRPM int
	AllowedChats []string
}

// Observer is the Webhook Observer: an HTTP ingress server that
// authenticates, rate-limits, and dispatches registered hooks.
type Observer struct {
	manager  *Manager
	executor Executor
	wake     WakeHandler
	cfg      Config
	logger   *slog.Logger

	limiter *slidingWindowLimiter
	server  *http.Server

	wg sync.WaitGroup

	instruments *observability.Instruments
}

// SetInstruments attaches the OTEL instruments every dispatched
// request reports to. Nil is safe and leaves metrics unrecorded.
func (o *Observer) SetInstruments(inst *observability.Instruments) {
	o.instruments = inst
}

func NewObserver(manager *Manager, executor Executor, wake WakeHandler, cfg Config, logger *slog.Logger) *Observer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	return &Observer{
		manager:  manager,
		executor: executor,
		wake:     wake,
		cfg:      cfg,
		logger:   logger,
		limiter:  newLimiter(cfg.RateLimitRPM),
	}
}

// Start stands up the HTTP server and the mtime-poll reload loop.
func (o *Observer) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", o.handleHealth)
	mux.HandleFunc("POST /hooks/{id}", o.handleDispatch(ctx))

	o.server = &http.Server{Addr: o.cfg.Addr, Handler: mux}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := o.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			o.logger.Error("webhook observer: server exited", "err", err)
		}
	}()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				func() {
					defer func() {
						if r := recover(); r != nil {
							o.logger.Error("webhook observer: reload panic recovered", "panic", r)
						}
					}()
					o.manager.Reload()
				}()
			}
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server and awaits the loops.
func (o *Observer) Stop(ctx context.Context) error {
	var err error
	if o.server != nil {
		err = o.server.Shutdown(ctx)
	}
	o.wg.Wait()
	return err
}

func (o *Observer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (o *Observer) handleDispatch(parent context.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !o.limiter.Allow() {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		ct := r.Header.Get("Content-Type")
		if !strings.HasPrefix(ct, "application/json") {
			http.Error(w, "unsupported media type", http.StatusUnsupportedMediaType)
			return
		}

		body, err := readBounded(r.Body, o.cfg.MaxBodyBytes)
		if err != nil {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			return
		}

		var payload map[string]any
		if len(body) == 0 || json.Unmarshal(body, &payload) != nil || payload == nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		id := r.PathValue("id")
		hook, ok := o.manager.Get(id)
		if !ok {
			http.NotFound(w, r)
			return
		}
		if !hook.Enabled {
			http.Error(w, "hook disabled", http.StatusForbidden)
			return
		}

		headers := make(map[string]string, len(r.Header))
		for k := range r.Header {
			headers[k] = r.Header.Get(k)
		}
		if !Authenticate(hook.Auth, o.cfg.GlobalToken, headers, body) {
			o.logger.Warn("webhook observer: auth failed", "hook_id", id)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		hookCopy := *hook
		go o.dispatch(parent, hookCopy, payload)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]any{"accepted": true, "hook_id": id})
	}
}

func readBounded(r io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(r, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

var errBodyTooLarge = errors.New("webhook: body exceeds max_body_bytes")

func (o *Observer) dispatch(ctx context.Context, hook ductor.WebhookEntry, payload map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("webhook observer: dispatch panic recovered", "hook_id", hook.ID, "panic", r)
		}
	}()

	if o.instruments != nil {
		o.instruments.WebhookRequests.Add(ctx, 1, metric.WithAttributes(attribute.String("hook_id", hook.ID), attribute.String("mode", string(hook.Mode))))
	}

	rendered := RenderTemplate(hook.PromptTemplate, payload)
	safePrompt := WrapUntrusted(rendered)

	switch hook.Mode {
	case ductor.WebhookModeWake:
		o.dispatchWake(ctx, hook, safePrompt)
	case ductor.WebhookModeCronTask:
		o.dispatchCronTask(ctx, hook, safePrompt)
	default:
		o.manager.RecordTrigger(hook.ID, ductor.NowUnix(), "error:unknown_mode")
	}
}

func (o *Observer) dispatchWake(ctx context.Context, hook ductor.WebhookEntry, safePrompt string) {
	if o.wake == nil || len(o.cfg.AllowedChats) == 0 {
		o.manager.RecordTrigger(hook.ID, ductor.NowUnix(), "error:no_wake_handler")
		return
	}
	var replies []string
	for _, chat := range o.cfg.AllowedChats {
		text, err := o.wake(ctx, chat, safePrompt)
		if err != nil {
			o.logger.Warn("webhook observer: wake handler failed", "hook_id", hook.ID, "chat_id", chat, "err", err)
			continue
		}
		if text != "" {
			replies = append(replies, text)
		}
	}
	status := "error:no_reply"
	if len(replies) > 0 {
		status = "success"
	}
	o.manager.RecordTrigger(hook.ID, ductor.NowUnix(), status)
}

func (o *Observer) dispatchCronTask(ctx context.Context, hook ductor.WebhookEntry, safePrompt string) {
	if o.executor == nil {
		o.manager.RecordTrigger(hook.ID, ductor.NowUnix(), "error:no_executor")
		return
	}
	_, status, err := o.executor.RunTask(ctx, hook, safePrompt)
	if err != nil {
		status = "error:" + err.Error()
	}
	o.manager.RecordTrigger(hook.ID, ductor.NowUnix(), status)
}

package telegram

import (
	"context"
	"log/slog"

	"github.com/nevindra/ductor/internal/cliservice"
)

// MessageHandler is the Orchestrator's HandleMessage, narrowed to the
// shape the Router needs.
type MessageHandler func(ctx context.Context, chatID, msgID, text string) Result

// StreamingMessageHandler is MessageHandler's streaming variant.
type StreamingMessageHandler func(ctx context.Context, chatID, msgID, text string, cb cliservice.StreamCallbacks) Result

// Result mirrors orchestrator.Result without importing that package,
// keeping the dependency direction frontend -> orchestrator, not back.
type Result struct {
	Text     string
	Suppress bool
}

// Router is the only piece of Telegram-facing logic that belongs to
// the kernel: it polls Frontend, enforces the user-id allow-list
// named by spec §1's Non-goals, and forwards everything else to the
// Orchestrator.
type Router struct {
	frontend    Frontend
	handle      MessageHandler
	streaming   StreamingMessageHandler
	allowedUser map[string]bool
	logger      *slog.Logger
}

func NewRouter(frontend Frontend, handle MessageHandler, streaming StreamingMessageHandler, allowedUserIDs []string, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	allowed := make(map[string]bool, len(allowedUserIDs))
	for _, id := range allowedUserIDs {
		allowed[id] = true
	}
	return &Router{frontend: frontend, handle: handle, streaming: streaming, allowedUser: allowed, logger: logger}
}

// Run polls Frontend until ctx is cancelled, dispatching each allowed
// message to the Orchestrator and delivering any reply back out.
func (r *Router) Run(ctx context.Context) error {
	msgs, err := r.frontend.Poll(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			go r.dispatch(ctx, msg)
		}
	}
}

func (r *Router) dispatch(ctx context.Context, msg IncomingMessage) {
	if len(r.allowedUser) > 0 && !r.allowedUser[msg.UserID] {
		r.logger.Warn("telegram router: rejected message from non-allowed user", "user_id", msg.UserID, "chat_id", msg.ChatID)
		return
	}

	_ = r.frontend.SendTyping(ctx, msg.ChatID)

	streamFrontend, canStream := r.frontend.(StreamFrontend)
	if canStream && r.streaming != nil {
		r.dispatchStreaming(ctx, streamFrontend, msg)
		return
	}

	res := r.handle(ctx, msg.ChatID, msg.ID, msg.Text)
	if res.Suppress || res.Text == "" {
		return
	}
	if _, err := r.frontend.Send(ctx, msg.ChatID, res.Text); err != nil {
		r.logger.Error("telegram router: send failed", "chat_id", msg.ChatID, "err", err)
	}
}

// dispatchStreaming sends a placeholder message up front and edits it
// as text deltas arrive, so long-running agent turns show progress
// instead of the chat sitting silent until completion.
func (r *Router) dispatchStreaming(ctx context.Context, sf StreamFrontend, msg IncomingMessage) {
	placeholderID, err := sf.Send(ctx, msg.ChatID, "…")
	if err != nil {
		r.logger.Error("telegram router: placeholder send failed", "chat_id", msg.ChatID, "err", err)
		return
	}

	var buf string
	cb := cliservice.StreamCallbacks{
		OnTextDelta: func(text string) {
			buf += text
			if err := sf.Edit(ctx, msg.ChatID, placeholderID, buf); err != nil {
				r.logger.Debug("telegram router: streaming edit failed", "chat_id", msg.ChatID, "err", err)
			}
		},
	}

	res := r.streaming(ctx, msg.ChatID, msg.ID, msg.Text, cb)
	if res.Suppress {
		return
	}
	final := res.Text
	if final == "" {
		final = buf
	}
	if final == "" {
		return
	}
	if err := sf.Edit(ctx, msg.ChatID, placeholderID, final); err != nil {
		r.logger.Warn("telegram router: final edit failed", "chat_id", msg.ChatID, "err", err)
	}
}

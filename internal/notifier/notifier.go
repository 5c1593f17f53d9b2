package notifier

import (
	"context"

	"github.com/rs/zerolog"
)

// CommandHandler is called when a user command is received.
type CommandHandler func(command string) string

// Notifier delivers operator messages and, optionally, accepts commands.
type Notifier interface {
	Send(ctx context.Context, text string) error
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
	// StartPolling blocks until ctx is cancelled.
	StartPolling(ctx context.Context, handler CommandHandler)
}

// NoopNotifier drops every message. Used when no bot token is configured.
type NoopNotifier struct {
	logger zerolog.Logger
}

func NewNoopNotifier(logger zerolog.Logger) *NoopNotifier {
	return &NoopNotifier{logger: logger.With().Str("component", "notifier").Logger()}
}

func (n *NoopNotifier) Send(_ context.Context, text string) error {
	n.logger.Debug().Int("bytes", len(text)).Msg("notification dropped, notifier disabled")
	return nil
}

func (n *NoopNotifier) SendWithRetry(ctx context.Context, text string, _ int) error {
	return n.Send(ctx, text)
}

func (n *NoopNotifier) StartPolling(ctx context.Context, _ CommandHandler) {
	<-ctx.Done()
}

// Package mock provides a mail transport that only logs.
package mock

import (
	"context"
	"log/slog"
	"time"

	"github.com/meetingfeedback/ratings/services/rating/internal/domain"
)

// Transport logs messages and always succeeds. It simulates a short delay
// to mimic real sending latency.
type Transport struct {
	delay  time.Duration
	logger *slog.Logger
}

// NewTransport creates a logging transport with a 10ms simulated delay.
func NewTransport(logger *slog.Logger) *Transport {
	return &Transport{
		delay:  10 * time.Millisecond,
		logger: logger,
	}
}

// Name returns the name of this transport.
func (t *Transport) Name() string {
	return "mock"
}

// Send logs the message after the simulated delay.
func (t *Transport) Send(ctx context.Context, msg *domain.NotificationMessage) error {
	select {
	case <-time.After(t.delay):
	case <-ctx.Done():
		return ctx.Err()
	}

	to := ""
	if len(msg.ToRecipients) > 0 {
		to = msg.ToRecipients[0].Address
	}
	t.logger.InfoContext(ctx, "mock transport: mail sent",
		slog.String("to", to),
		slog.String("from", msg.From.Address),
		slog.String("subject", msg.Subject),
		slog.Int("body_bytes", len(msg.Body)),
	)
	return nil
}

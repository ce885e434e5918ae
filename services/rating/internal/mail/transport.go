// Package mail sends composed rating emails asynchronously through a
// pluggable transport.
package mail

import (
	"context"

	"github.com/meetingfeedback/ratings/services/rating/internal/domain"
)

// Transport delivers one message with exactly one attempt.
type Transport interface {
	Name() string
	Send(ctx context.Context, msg *domain.NotificationMessage) error
}

// Package bus broadcasts submission outcomes to in-process subscribers.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/meetingfeedback/ratings/pkg/logger"
	"github.com/meetingfeedback/ratings/services/rating/internal/domain"
)

// Handler receives one published outcome.
type Handler func(ctx context.Context, outcome domain.SubmissionOutcome)

// SubscriptionID identifies a registered handler.
type SubscriptionID uint64

// Bus is the outcome publish/subscribe channel. It keeps no history: a
// subscriber only sees outcomes published after it subscribed.
type Bus interface {
	Publish(ctx context.Context, outcome domain.SubmissionOutcome)
	Subscribe(h Handler) SubscriptionID
	Unsubscribe(id SubscriptionID)
}

// MemoryBus delivers outcomes synchronously on the publishing goroutine.
type MemoryBus struct {
	mu     sync.RWMutex
	nextID SubscriptionID
	subs   map[SubscriptionID]Handler
	logger *slog.Logger
}

// NewMemoryBus creates an empty bus.
func NewMemoryBus(logger *slog.Logger) *MemoryBus {
	return &MemoryBus{
		subs:   make(map[SubscriptionID]Handler),
		logger: logger,
	}
}

// Subscribe registers h and returns its id.
func (b *MemoryBus) Subscribe(h Handler) SubscriptionID {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	b.subs[b.nextID] = h
	return b.nextID
}

// Unsubscribe removes a handler. Unknown ids are ignored.
func (b *MemoryBus) Unsubscribe(id SubscriptionID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// Len returns the number of current subscribers.
func (b *MemoryBus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish invokes every current subscriber exactly once. A panicking
// subscriber is logged and does not stop delivery to the others.
func (b *MemoryBus) Publish(ctx context.Context, outcome domain.SubmissionOutcome) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs))
	for _, h := range b.subs {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.deliver(ctx, h, outcome)
	}
}

func (b *MemoryBus) deliver(ctx context.Context, h Handler, outcome domain.SubmissionOutcome) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithContext(ctx, b.logger).ErrorContext(ctx, "outcome subscriber panicked",
				slog.String("meeting_id", outcome.MeetingID),
				slog.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	h(ctx, outcome)
}

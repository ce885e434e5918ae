package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/meetingfeedback/ratings/pkg/kafka"
	"github.com/meetingfeedback/ratings/pkg/logger"
	"github.com/meetingfeedback/ratings/pkg/validator"
	"github.com/meetingfeedback/ratings/services/rating/internal/domain"
)

// TopicRatingSubmitted carries ratings captured by other clients.
const TopicRatingSubmitted = "meetingfeedback.rating.submitted"

// Consumer group ID for the rating service.
const ConsumerGroupID = "rating-service"

// RatingSubmittedData is the payload for a rating.submitted event.
type RatingSubmittedData struct {
	MeetingID string `json:"meeting_id" validate:"required,max=512"`
	Score     int    `json:"score" validate:"min=1,max=5"`
	Remarks   string `json:"remarks" validate:"max=4000"`
}

// Submitter starts a rating submission.
type Submitter interface {
	SendRating(ctx context.Context, rating domain.Rating)
}

// SubmissionHandler turns rating.submitted events into submissions.
type SubmissionHandler struct {
	submitter Submitter
	logger    *slog.Logger
}

// NewSubmissionHandler creates a new submission handler.
func NewSubmissionHandler(submitter Submitter, logger *slog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		submitter: submitter,
		logger:    logger,
	}
}

// Handle validates the payload and hands the rating to the submitter.
// Malformed payloads are permanent failures.
func (h *SubmissionHandler) Handle(ctx context.Context, event *pkgkafka.Event) error {
	if event.EventType != TopicRatingSubmitted {
		h.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}

	var data RatingSubmittedData
	if err := event.UnmarshalData(&data); err != nil {
		return pkgkafka.Permanent(fmt.Errorf("decode rating.submitted payload: %w", err))
	}
	if err := validator.Validate(data); err != nil {
		return pkgkafka.Permanent(err)
	}

	if event.CorrelationID != "" {
		ctx = logger.WithCorrelationID(ctx, event.CorrelationID)
	}

	h.logger.InfoContext(ctx, "received rating.submitted event",
		slog.String("event_id", event.EventID),
		slog.String("meeting_id", data.MeetingID),
		slog.String("source", event.Source),
	)

	h.submitter.SendRating(ctx, domain.Rating{
		MeetingID: data.MeetingID,
		Score:     data.Score,
		Remarks:   data.Remarks,
	})
	return nil
}

// IdempotentHandle wraps Handle so redelivered events are submitted once.
func (h *SubmissionHandler) IdempotentHandle(store pkgkafka.IdempotencyStore) pkgkafka.Handler {
	return pkgkafka.IdempotentHandler(store, h.Handle, h.logger)
}

// NewSubmissionConsumer creates the rating.submitted consumer. dlq may be nil.
func NewSubmissionConsumer(
	brokers []string,
	handler *SubmissionHandler,
	store pkgkafka.IdempotencyStore,
	dlq *pkgkafka.DLQProducer,
	logger *slog.Logger,
) *pkgkafka.Consumer {
	cfg := pkgkafka.DefaultConsumerConfig(brokers, ConsumerGroupID, TopicRatingSubmitted)
	consumer := pkgkafka.NewConsumer(cfg, handler.IdempotentHandle(store), logger)
	if dlq != nil {
		consumer = consumer.WithDLQ(dlq)
	}
	return consumer
}

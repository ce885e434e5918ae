package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	pkgkafka "github.com/meetingfeedback/ratings/pkg/kafka"
	"github.com/meetingfeedback/ratings/pkg/logger"
	"github.com/meetingfeedback/ratings/services/rating/internal/domain"
)

// Kafka topic constants for rating domain events.
const (
	TopicRatingSent            = "meetingfeedback.rating.sent"
	TopicRatingFailed          = "meetingfeedback.rating.failed"
	TopicRatingRecordingFailed = "meetingfeedback.rating.recording_failed"
)

// Aggregate type constant.
const AggregateTypeRating = "rating"

// Source identifier for events originating from the rating service.
const SourceRatingService = "rating-service"

// RatingSentData is the payload for a rating.sent event.
type RatingSentData struct {
	MeetingID  string    `json:"meeting_id"`
	Recorded   bool      `json:"recorded"`
	OccurredAt time.Time `json:"occurred_at"`
}

// RatingFailedData is the payload for a rating.failed event.
type RatingFailedData struct {
	MeetingID  string    `json:"meeting_id"`
	Cause      string    `json:"cause"`
	OccurredAt time.Time `json:"occurred_at"`
}

// RatingRecordingFailedData is the payload for a rating.recording_failed event.
type RatingRecordingFailedData struct {
	MeetingID  string    `json:"meeting_id"`
	Error      string    `json:"error"`
	OccurredAt time.Time `json:"occurred_at"`
}

// OutcomeProducer forwards submission outcomes from the bus to Kafka.
type OutcomeProducer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewOutcomeProducer creates a new outcome producer. A nil Kafka producer
// makes every publish a no-op.
func NewOutcomeProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *OutcomeProducer {
	return &OutcomeProducer{
		kafka:  kafka,
		logger: logger,
	}
}

// HandleOutcome is a bus subscriber. Publish errors are logged.
func (p *OutcomeProducer) HandleOutcome(ctx context.Context, outcome domain.SubmissionOutcome) {
	if err := p.PublishOutcome(ctx, outcome); err != nil {
		logger.WithContext(ctx, p.logger).ErrorContext(ctx, "failed to publish rating outcome",
			slog.String("error", err.Error()),
		)
	}
}

// PublishOutcome publishes rating.sent or rating.failed for outcome, plus
// rating.recording_failed for a partial success.
func (p *OutcomeProducer) PublishOutcome(ctx context.Context, outcome domain.SubmissionOutcome) error {
	if p.kafka == nil {
		return nil
	}

	if !outcome.Succeeded() {
		return p.publish(ctx, TopicRatingFailed, outcome.MeetingID, RatingFailedData{
			MeetingID:  outcome.MeetingID,
			Cause:      outcome.CauseText(),
			OccurredAt: outcome.OccurredAt,
		})
	}

	err := p.publish(ctx, TopicRatingSent, outcome.MeetingID, RatingSentData{
		MeetingID:  outcome.MeetingID,
		Recorded:   !outcome.Partial(),
		OccurredAt: outcome.OccurredAt,
	})
	if outcome.Partial() {
		err = errors.Join(err, p.publish(ctx, TopicRatingRecordingFailed, outcome.MeetingID, RatingRecordingFailedData{
			MeetingID:  outcome.MeetingID,
			Error:      outcome.RecordingErr.Error(),
			OccurredAt: outcome.OccurredAt,
		}))
	}
	return err
}

func (p *OutcomeProducer) publish(ctx context.Context, topic, meetingID string, data any) error {
	event, err := pkgkafka.NewEvent(topic, meetingID, AggregateTypeRating, SourceRatingService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published rating event",
		slog.String("topic", topic),
		slog.String("meeting_id", meetingID),
	)
	return nil
}

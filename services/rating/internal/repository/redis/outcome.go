package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/meetingfeedback/ratings/pkg/errors"
	"github.com/meetingfeedback/ratings/services/rating/internal/domain"
)

const outcomeKeyPrefix = "rating:outcome:"

// saveTimeout bounds the write made from a bus subscriber.
const saveTimeout = 2 * time.Second

// OutcomeStore keeps the latest submission outcome per meeting in Redis.
type OutcomeStore struct {
	client redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

// NewOutcomeStore creates an outcome store whose entries expire after ttl.
func NewOutcomeStore(client redis.Cmdable, ttl time.Duration, logger *slog.Logger) *OutcomeStore {
	return &OutcomeStore{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// SaveOutcome replaces the latest outcome for the record's meeting.
func (s *OutcomeStore) SaveOutcome(ctx context.Context, record domain.OutcomeRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}
	if err := s.client.Set(ctx, outcomeKeyPrefix+record.MeetingID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set outcome: %w", err)
	}
	return nil
}

// LatestOutcome returns the latest outcome for a meeting.
func (s *OutcomeStore) LatestOutcome(ctx context.Context, meetingID string) (*domain.OutcomeRecord, error) {
	data, err := s.client.Get(ctx, outcomeKeyPrefix+meetingID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("outcome", meetingID)
		}
		return nil, fmt.Errorf("redis get outcome: %w", err)
	}

	var record domain.OutcomeRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("unmarshal outcome: %w", err)
	}
	return &record, nil
}

// HandleOutcome is a bus subscriber that stores every published outcome.
func (s *OutcomeStore) HandleOutcome(ctx context.Context, outcome domain.SubmissionOutcome) {
	ctx, cancel := context.WithTimeout(ctx, saveTimeout)
	defer cancel()

	if err := s.SaveOutcome(ctx, outcome.Record()); err != nil {
		s.logger.WarnContext(ctx, "failed to store submission outcome",
			slog.String("meeting_id", outcome.MeetingID),
			slog.String("error", err.Error()),
		)
	}
}

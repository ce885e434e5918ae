package repository

import (
	"context"

	"github.com/meetingfeedback/ratings/services/rating/internal/domain"
)

// MeetingRepository defines meeting storage operations.
type MeetingRepository interface {
	// GetMeeting returns the meeting formatted for display. A missing
	// meeting is reported as apperrors.ErrNotFound.
	GetMeeting(ctx context.Context, id string) (*domain.Meeting, error)

	// UpsertMeeting creates or replaces the details of a meeting.
	UpsertMeeting(ctx context.Context, details *domain.MeetingDetails) error
}

// RatingRepository defines rating persistence operations.
type RatingRepository interface {
	// AddRating stores a rating against the meeting owner.
	AddRating(ctx context.Context, owner string, rating domain.Rating) error

	// ListByMeeting returns ratings for a meeting, newest first, with the
	// total count.
	ListByMeeting(ctx context.Context, meetingID string, offset, limit int) ([]domain.StoredRating, int, error)
}

// OutcomeRepository keeps the latest submission outcome per meeting.
type OutcomeRepository interface {
	// SaveOutcome replaces the latest outcome for record.MeetingID.
	SaveOutcome(ctx context.Context, record domain.OutcomeRecord) error

	// LatestOutcome returns the latest outcome or apperrors.ErrNotFound.
	LatestOutcome(ctx context.Context, meetingID string) (*domain.OutcomeRecord, error)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	netmail "net/mail"
	"strings"
	"time"

	apperrors "github.com/meetingfeedback/ratings/pkg/errors"
	"github.com/meetingfeedback/ratings/pkg/pagination"
	"github.com/meetingfeedback/ratings/services/rating/internal/domain"
	"github.com/meetingfeedback/ratings/services/rating/internal/repository"
)

// MeetingService serves meeting registration and the read side of ratings.
type MeetingService struct {
	meetings repository.MeetingRepository
	ratings  repository.RatingRepository
	outcomes repository.OutcomeRepository
	logger   *slog.Logger
}

// NewMeetingService creates a new meeting service. outcomes may be nil when
// no outcome store is configured.
func NewMeetingService(
	meetings repository.MeetingRepository,
	ratings repository.RatingRepository,
	outcomes repository.OutcomeRepository,
	logger *slog.Logger,
) *MeetingService {
	return &MeetingService{
		meetings: meetings,
		ratings:  ratings,
		outcomes: outcomes,
		logger:   logger,
	}
}

// RegisterMeetingInput holds the parameters for registering a meeting.
type RegisterMeetingInput struct {
	ID             string
	OrganizerName  string
	OrganizerEmail string
	Subject        string
	StartsAt       time.Time
}

// RegisterMeeting creates or replaces the stored details of a meeting.
func (s *MeetingService) RegisterMeeting(ctx context.Context, input *RegisterMeetingInput) (*domain.MeetingDetails, error) {
	if strings.TrimSpace(input.ID) == "" {
		return nil, apperrors.InvalidInput("meeting id is required")
	}
	if _, err := netmail.ParseAddress(input.OrganizerEmail); err != nil {
		return nil, apperrors.InvalidInput(fmt.Sprintf("invalid organizer email %q", input.OrganizerEmail))
	}
	if input.StartsAt.IsZero() {
		return nil, apperrors.InvalidInput("starts_at is required")
	}

	details := &domain.MeetingDetails{
		ID:        input.ID,
		Organizer: domain.Recipient{Name: input.OrganizerName, Address: input.OrganizerEmail},
		Subject:   input.Subject,
		StartsAt:  input.StartsAt.UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	if err := s.meetings.UpsertMeeting(ctx, details); err != nil {
		return nil, fmt.Errorf("upsert meeting: %w", err)
	}

	s.logger.InfoContext(ctx, "meeting registered",
		slog.String("meeting_id", details.ID),
		slog.String("organizer", details.Organizer.Address),
	)
	return details, nil
}

// GetMeeting returns a meeting formatted for display.
func (s *MeetingService) GetMeeting(ctx context.Context, id string) (*domain.Meeting, error) {
	meeting, err := s.meetings.GetMeeting(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get meeting: %w", err)
	}
	return meeting, nil
}

// ListRatings returns a page of recorded ratings for a meeting.
func (s *MeetingService) ListRatings(ctx context.Context, meetingID string, params pagination.Params) ([]domain.StoredRating, int, error) {
	ratings, total, err := s.ratings.ListByMeeting(ctx, meetingID, params.Offset(), params.Limit())
	if err != nil {
		return nil, 0, fmt.Errorf("list ratings by meeting: %w", err)
	}
	return ratings, total, nil
}

// LatestOutcome returns the most recent submission outcome for a meeting.
func (s *MeetingService) LatestOutcome(ctx context.Context, meetingID string) (*domain.OutcomeRecord, error) {
	if s.outcomes == nil {
		return nil, apperrors.Unavailable("outcome store", errors.New("not configured"))
	}
	record, err := s.outcomes.LatestOutcome(ctx, meetingID)
	if err != nil {
		return nil, fmt.Errorf("get latest outcome: %w", err)
	}
	return record, nil
}

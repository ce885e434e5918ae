package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/meetingfeedback/ratings/pkg/database"
	apperrors "github.com/meetingfeedback/ratings/pkg/errors"
	"github.com/meetingfeedback/ratings/services/rating/internal/domain"
)

// MeetingRepository implements repository.MeetingRepository using PostgreSQL.
type MeetingRepository struct {
	pool database.DBTX
	loc  *time.Location
}

// NewMeetingRepository creates a meeting repository that formats schedules
// in loc.
func NewMeetingRepository(pool database.DBTX, loc *time.Location) *MeetingRepository {
	if loc == nil {
		loc = time.UTC
	}
	return &MeetingRepository{pool: pool, loc: loc}
}

// GetMeeting retrieves a meeting by its ID.
func (r *MeetingRepository) GetMeeting(ctx context.Context, id string) (*domain.Meeting, error) {
	details, err := r.GetDetails(ctx, id)
	if err != nil {
		return nil, err
	}
	return details.ToMeeting(r.loc), nil
}

// GetDetails retrieves the stored details of a meeting.
func (r *MeetingRepository) GetDetails(ctx context.Context, id string) (_ *domain.MeetingDetails, err error) {
	query := `
		SELECT id, organizer_name, organizer_email, subject, starts_at, updated_at
		FROM meetings
		WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "GetMeeting", query)
	defer func() { end(err) }()

	var d domain.MeetingDetails
	err = r.pool.QueryRow(ctx, query, id).Scan(
		&d.ID,
		&d.Organizer.Name,
		&d.Organizer.Address,
		&d.Subject,
		&d.StartsAt,
		&d.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("meeting", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get meeting by id: %w", err)
	}
	return &d, nil
}

// UpsertMeeting inserts a meeting or replaces the existing row.
func (r *MeetingRepository) UpsertMeeting(ctx context.Context, d *domain.MeetingDetails) (err error) {
	query := `
		INSERT INTO meetings (id, organizer_name, organizer_email, subject, starts_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET organizer_name = EXCLUDED.organizer_name,
		    organizer_email = EXCLUDED.organizer_email,
		    subject = EXCLUDED.subject,
		    starts_at = EXCLUDED.starts_at,
		    updated_at = EXCLUDED.updated_at`

	ctx, end := database.TraceQuery(ctx, "UpsertMeeting", query)
	defer func() { end(err) }()

	_, err = r.pool.Exec(ctx, query,
		d.ID,
		d.Organizer.Name,
		d.Organizer.Address,
		d.Subject,
		d.StartsAt,
		d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert meeting: %w", err)
	}
	return nil
}

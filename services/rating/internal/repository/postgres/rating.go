package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/meetingfeedback/ratings/pkg/database"
	"github.com/meetingfeedback/ratings/services/rating/internal/domain"
)

// RatingRepository implements repository.RatingRepository using PostgreSQL.
// It also serves as the local rating recorder.
type RatingRepository struct {
	pool database.DBTX
	now  func() time.Time
}

// NewRatingRepository creates a new PostgreSQL-backed rating repository.
func NewRatingRepository(pool database.DBTX) *RatingRepository {
	return &RatingRepository{
		pool: pool,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// AddRating inserts a rating recorded against owner.
func (r *RatingRepository) AddRating(ctx context.Context, owner string, rating domain.Rating) (err error) {
	query := `
		INSERT INTO ratings (owner, meeting_id, score, remarks, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	ctx, end := database.TraceQuery(ctx, "AddRating", query)
	defer func() { end(err) }()

	_, err = r.pool.Exec(ctx, query, owner, rating.MeetingID, rating.Score, rating.Remarks, r.now())
	if err != nil {
		return fmt.Errorf("insert rating: %w", err)
	}
	return nil
}

// ListByMeeting returns ratings for a meeting, newest first.
func (r *RatingRepository) ListByMeeting(ctx context.Context, meetingID string, offset, limit int) (_ []domain.StoredRating, _ int, err error) {
	query := `
		SELECT id, owner, meeting_id, score, remarks, created_at,
		       count(*) OVER() AS total_count
		FROM ratings
		WHERE meeting_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`

	ctx, end := database.TraceQuery(ctx, "ListRatingsByMeeting", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, meetingID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list ratings by meeting: %w", err)
	}
	defer rows.Close()

	var totalCount int
	ratings := make([]domain.StoredRating, 0)

	for rows.Next() {
		var sr domain.StoredRating
		if err = rows.Scan(
			&sr.ID,
			&sr.Owner,
			&sr.MeetingID,
			&sr.Score,
			&sr.Remarks,
			&sr.CreatedAt,
			&totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("scan rating row: %w", err)
		}
		ratings = append(ratings, sr)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate rating rows: %w", err)
	}

	return ratings, totalCount, nil
}

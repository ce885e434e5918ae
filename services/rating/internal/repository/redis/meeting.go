package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meetingfeedback/ratings/services/rating/internal/domain"
	"github.com/meetingfeedback/ratings/services/rating/internal/repository"
)

const meetingKeyPrefix = "meeting:"

// MeetingCache is a read-through cache in front of another
// MeetingRepository. Redis failures fall back to the underlying store.
type MeetingCache struct {
	client redis.Cmdable
	next   repository.MeetingRepository
	ttl    time.Duration
	logger *slog.Logger
}

// NewMeetingCache wraps next with a Redis cache holding entries for ttl.
func NewMeetingCache(client redis.Cmdable, next repository.MeetingRepository, ttl time.Duration, logger *slog.Logger) *MeetingCache {
	return &MeetingCache{
		client: client,
		next:   next,
		ttl:    ttl,
		logger: logger,
	}
}

// GetMeeting returns the cached meeting or loads and caches it.
func (c *MeetingCache) GetMeeting(ctx context.Context, id string) (*domain.Meeting, error) {
	key := meetingKeyPrefix + id

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var m domain.Meeting
		if err := json.Unmarshal(data, &m); err == nil {
			return &m, nil
		}
		c.logger.WarnContext(ctx, "dropping undecodable cached meeting", slog.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.logger.WarnContext(ctx, "meeting cache read failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}

	m, err := c.next.GetMeeting(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(m); err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.WarnContext(ctx, "meeting cache write failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}
	return m, nil
}

// UpsertMeeting writes through to the underlying store and evicts the
// cached entry. A failed eviction is logged; the stale entry expires with
// its TTL.
func (c *MeetingCache) UpsertMeeting(ctx context.Context, details *domain.MeetingDetails) error {
	if err := c.next.UpsertMeeting(ctx, details); err != nil {
		return err
	}
	if err := c.client.Del(ctx, meetingKeyPrefix+details.ID).Err(); err != nil {
		c.logger.WarnContext(ctx, "meeting cache eviction failed",
			slog.String("meeting_id", details.ID),
			slog.Duration("ttl", c.ttl),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

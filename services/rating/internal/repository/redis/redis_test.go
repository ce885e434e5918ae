package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/meetingfeedback/ratings/pkg/errors"
	"github.com/meetingfeedback/ratings/pkg/logger"
	"github.com/meetingfeedback/ratings/services/rating/internal/domain"
)

func setupTestRedis(t *testing.T) (*goredis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

type stubMeetings struct {
	meeting  *domain.Meeting
	err      error
	gets     int
	upserted []*domain.MeetingDetails
}

func (s *stubMeetings) GetMeeting(_ context.Context, _ string) (*domain.Meeting, error) {
	s.gets++
	return s.meeting, s.err
}

func (s *stubMeetings) UpsertMeeting(_ context.Context, d *domain.MeetingDetails) error {
	if s.err != nil {
		return s.err
	}
	s.upserted = append(s.upserted, d)
	return nil
}

func sprintReview() *domain.Meeting {
	return &domain.Meeting{
		ID:            "m1",
		Organizer:     domain.Recipient{Name: "Alice", Address: "alice@x.com"},
		Subject:       "Sprint Review",
		ScheduledDate: "Jan 5",
		ScheduledTime: "10:00",
	}
}

// ---------------------------------------------------------------------------
// MeetingCache
// ---------------------------------------------------------------------------

func TestMeetingCache_MissLoadsAndCaches(t *testing.T) {
	client, mr := setupTestRedis(t)
	next := &stubMeetings{meeting: sprintReview()}
	cache := NewMeetingCache(client, next, time.Minute, logger.Discard())

	m, err := cache.GetMeeting(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "Sprint Review", m.Subject)
	assert.Equal(t, 1, next.gets)

	assert.True(t, mr.Exists("meeting:m1"))
	assert.Equal(t, time.Minute, mr.TTL("meeting:m1"))

	m, err = cache.GetMeeting(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "alice@x.com", m.Owner())
	assert.Equal(t, 1, next.gets, "second read served from cache")
}

func TestMeetingCache_ExpiredEntryReloads(t *testing.T) {
	client, mr := setupTestRedis(t)
	next := &stubMeetings{meeting: sprintReview()}
	cache := NewMeetingCache(client, next, time.Minute, logger.Discard())

	_, err := cache.GetMeeting(context.Background(), "m1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = cache.GetMeeting(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, 2, next.gets)
}

func TestMeetingCache_NotFoundIsNotCached(t *testing.T) {
	client, mr := setupTestRedis(t)
	next := &stubMeetings{err: apperrors.NotFound("meeting", "missing")}
	cache := NewMeetingCache(client, next, time.Minute, logger.Discard())

	_, err := cache.GetMeeting(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.False(t, mr.Exists("meeting:missing"))
}

func TestMeetingCache_CorruptEntryFallsThrough(t *testing.T) {
	client, mr := setupTestRedis(t)
	require.NoError(t, mr.Set("meeting:m1", "{not json"))
	next := &stubMeetings{meeting: sprintReview()}
	cache := NewMeetingCache(client, next, time.Minute, logger.Discard())

	m, err := cache.GetMeeting(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "m1", m.ID)
	assert.Equal(t, 1, next.gets)

	raw, err := mr.Get("meeting:m1")
	require.NoError(t, err)
	var cached domain.Meeting
	assert.NoError(t, json.Unmarshal([]byte(raw), &cached))
}

func TestMeetingCache_RedisDownFallsBack(t *testing.T) {
	client, mr := setupTestRedis(t)
	next := &stubMeetings{meeting: sprintReview()}
	cache := NewMeetingCache(client, next, time.Minute, logger.Discard())
	mr.Close()

	m, err := cache.GetMeeting(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "m1", m.ID)
	assert.Equal(t, 1, next.gets)
}

func TestMeetingCache_UpsertEvicts(t *testing.T) {
	client, mr := setupTestRedis(t)
	require.NoError(t, mr.Set("meeting:m1", `{"id":"m1","subject":"Old"}`))
	next := &stubMeetings{}
	cache := NewMeetingCache(client, next, time.Minute, logger.Discard())

	err := cache.UpsertMeeting(context.Background(), &domain.MeetingDetails{ID: "m1", Subject: "New"})
	require.NoError(t, err)
	assert.Len(t, next.upserted, 1)
	assert.False(t, mr.Exists("meeting:m1"))
}

func TestMeetingCache_UpsertSucceedsWhenEvictionFails(t *testing.T) {
	client, mr := setupTestRedis(t)
	next := &stubMeetings{}
	cache := NewMeetingCache(client, next, time.Minute, logger.Discard())
	mr.Close()

	err := cache.UpsertMeeting(context.Background(), &domain.MeetingDetails{ID: "m1", Subject: "New"})
	require.NoError(t, err)
	assert.Len(t, next.upserted, 1)
}

func TestMeetingCache_UpsertStoreErrorKeepsCache(t *testing.T) {
	client, mr := setupTestRedis(t)
	require.NoError(t, mr.Set("meeting:m1", `{"id":"m1"}`))
	next := &stubMeetings{err: errors.New("db down")}
	cache := NewMeetingCache(client, next, time.Minute, logger.Discard())

	err := cache.UpsertMeeting(context.Background(), &domain.MeetingDetails{ID: "m1"})
	assert.EqualError(t, err, "db down")
	assert.True(t, mr.Exists("meeting:m1"))
}

// ---------------------------------------------------------------------------
// OutcomeStore
// ---------------------------------------------------------------------------

func TestOutcomeStore_SaveAndLatest(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewOutcomeStore(client, time.Hour, logger.Discard())

	rec := domain.Failure("m1", errors.New("network timeout")).Record()
	require.NoError(t, store.SaveOutcome(context.Background(), rec))
	assert.Equal(t, time.Hour, mr.TTL("rating:outcome:m1"))

	got, err := store.LatestOutcome(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFailed, got.Status)
	assert.Equal(t, "network timeout", got.Cause)
	assert.True(t, rec.OccurredAt.Equal(got.OccurredAt))
}

func TestOutcomeStore_LatestNotFound(t *testing.T) {
	client, _ := setupTestRedis(t)
	store := NewOutcomeStore(client, time.Hour, logger.Discard())

	_, err := store.LatestOutcome(context.Background(), "m1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestOutcomeStore_HandleOutcomeOverwrites(t *testing.T) {
	client, _ := setupTestRedis(t)
	store := NewOutcomeStore(client, time.Hour, logger.Discard())

	store.HandleOutcome(context.Background(), domain.Failure("m1", errors.New("network timeout")))
	store.HandleOutcome(context.Background(), domain.PartialSuccess("m1", errors.New("recorder down")))

	got, err := store.LatestOutcome(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSucceeded, got.Status)
	assert.Equal(t, "recorder down", got.RecordingError)
	assert.Empty(t, got.Cause)
}

func TestOutcomeStore_HandleOutcomeRedisDown(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewOutcomeStore(client, time.Hour, logger.Discard())
	mr.Close()

	assert.NotPanics(t, func() {
		store.HandleOutcome(context.Background(), domain.Success("m1"))
	})
}

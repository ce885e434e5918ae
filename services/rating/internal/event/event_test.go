package event

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgkafka "github.com/meetingfeedback/ratings/pkg/kafka"
	"github.com/meetingfeedback/ratings/pkg/logger"
	"github.com/meetingfeedback/ratings/pkg/validator"
	"github.com/meetingfeedback/ratings/services/rating/internal/domain"
)

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func (w *fakeWriter) topics() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.msgs))
	for _, m := range w.msgs {
		out = append(out, m.Topic)
	}
	return out
}

func decode(t *testing.T, msg kafka.Message, data any) *pkgkafka.Event {
	t.Helper()
	evt, err := pkgkafka.UnmarshalEvent(msg.Value)
	require.NoError(t, err)
	require.NoError(t, evt.UnmarshalData(data))
	return evt
}

func newOutcomeProducer(w *fakeWriter) *OutcomeProducer {
	return NewOutcomeProducer(pkgkafka.NewProducerWithWriter(w, nil, logger.Discard()), logger.Discard())
}

// ============================================================================
// OutcomeProducer
// ============================================================================

func TestOutcomeProducer_Success(t *testing.T) {
	w := &fakeWriter{}
	p := newOutcomeProducer(w)

	ctx := logger.WithCorrelationID(context.Background(), "corr-1")
	require.NoError(t, p.PublishOutcome(ctx, domain.Success("m1")))

	require.Equal(t, []string{TopicRatingSent}, w.topics())
	var data RatingSentData
	evt := decode(t, w.msgs[0], &data)
	assert.Equal(t, TopicRatingSent, evt.EventType)
	assert.Equal(t, "m1", evt.AggregateID)
	assert.Equal(t, AggregateTypeRating, evt.AggregateType)
	assert.Equal(t, SourceRatingService, evt.Source)
	assert.Equal(t, "corr-1", evt.CorrelationID)
	assert.Equal(t, "m1", data.MeetingID)
	assert.True(t, data.Recorded)
	assert.Equal(t, "m1", string(w.msgs[0].Key))
}

func TestOutcomeProducer_Failure(t *testing.T) {
	w := &fakeWriter{}
	p := newOutcomeProducer(w)

	require.NoError(t, p.PublishOutcome(context.Background(), domain.Failure("m1", errors.New("network timeout"))))

	require.Equal(t, []string{TopicRatingFailed}, w.topics())
	var data RatingFailedData
	decode(t, w.msgs[0], &data)
	assert.Equal(t, "network timeout", data.Cause)
}

func TestOutcomeProducer_PartialSuccess(t *testing.T) {
	w := &fakeWriter{}
	p := newOutcomeProducer(w)

	require.NoError(t, p.PublishOutcome(context.Background(), domain.PartialSuccess("m1", errors.New("recorder down"))))

	require.Equal(t, []string{TopicRatingSent, TopicRatingRecordingFailed}, w.topics())
	var sent RatingSentData
	decode(t, w.msgs[0], &sent)
	assert.False(t, sent.Recorded)

	var failed RatingRecordingFailedData
	decode(t, w.msgs[1], &failed)
	assert.Equal(t, "recorder down", failed.Error)
}

func TestOutcomeProducer_PublishError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := newOutcomeProducer(w)

	err := p.PublishOutcome(context.Background(), domain.Success("m1"))
	assert.ErrorContains(t, err, "broker down")

	assert.NotPanics(t, func() { p.HandleOutcome(context.Background(), domain.Success("m1")) })
}

func TestOutcomeProducer_NilKafkaIsNoop(t *testing.T) {
	p := NewOutcomeProducer(nil, logger.Discard())
	assert.NoError(t, p.PublishOutcome(context.Background(), domain.Success("m1")))
}

// ============================================================================
// SubmissionHandler
// ============================================================================

type recordingSubmitter struct {
	mu      sync.Mutex
	ratings []domain.Rating
	ctxs    []context.Context
}

func (s *recordingSubmitter) SendRating(ctx context.Context, rating domain.Rating) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ratings = append(s.ratings, rating)
	s.ctxs = append(s.ctxs, ctx)
}

func submittedEvent(t *testing.T, data any) *pkgkafka.Event {
	t.Helper()
	evt, err := pkgkafka.NewEvent(TopicRatingSubmitted, "m1", AggregateTypeRating, "outlook-addin", data)
	require.NoError(t, err)
	return evt
}

func TestSubmissionHandler_Valid(t *testing.T) {
	sub := &recordingSubmitter{}
	h := NewSubmissionHandler(sub, logger.Discard())

	evt := submittedEvent(t, RatingSubmittedData{MeetingID: "m1", Score: 4, Remarks: "Keep it short"})
	evt.WithCorrelationID("corr-7")

	require.NoError(t, h.Handle(context.Background(), evt))
	require.Len(t, sub.ratings, 1)
	assert.Equal(t, domain.Rating{MeetingID: "m1", Score: 4, Remarks: "Keep it short"}, sub.ratings[0])
	assert.Equal(t, "corr-7", logger.CorrelationIDFromContext(sub.ctxs[0]))
}

func TestSubmissionHandler_InvalidPayloadIsPermanent(t *testing.T) {
	tests := []struct {
		name string
		data any
	}{
		{"missing meeting", RatingSubmittedData{Score: 3}},
		{"score too high", RatingSubmittedData{MeetingID: "m1", Score: 6}},
		{"score too low", RatingSubmittedData{MeetingID: "m1", Score: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := &recordingSubmitter{}
			h := NewSubmissionHandler(sub, logger.Discard())

			err := h.Handle(context.Background(), submittedEvent(t, tt.data))
			require.Error(t, err)
			assert.True(t, pkgkafka.IsPermanent(err))

			var verr *validator.ValidationError
			assert.True(t, errors.As(err, &verr))
			assert.Empty(t, sub.ratings)
		})
	}
}

func TestSubmissionHandler_UndecodablePayload(t *testing.T) {
	sub := &recordingSubmitter{}
	h := NewSubmissionHandler(sub, logger.Discard())

	evt := submittedEvent(t, nil)
	evt.Data = json.RawMessage(`"not an object"`)

	err := h.Handle(context.Background(), evt)
	assert.True(t, pkgkafka.IsPermanent(err))
	assert.Empty(t, sub.ratings)
}

func TestSubmissionHandler_UnknownTypeIgnored(t *testing.T) {
	sub := &recordingSubmitter{}
	h := NewSubmissionHandler(sub, logger.Discard())

	evt, err := pkgkafka.NewEvent("meetingfeedback.meeting.updated", "m1", "meeting", "calendar", map[string]string{})
	require.NoError(t, err)

	assert.NoError(t, h.Handle(context.Background(), evt))
	assert.Empty(t, sub.ratings)
}

func TestSubmissionHandler_IdempotentHandleSkipsRedelivery(t *testing.T) {
	sub := &recordingSubmitter{}
	h := NewSubmissionHandler(sub, logger.Discard())
	handle := h.IdempotentHandle(pkgkafka.NewMemoryIdempotencyStore(time.Hour))

	evt := submittedEvent(t, RatingSubmittedData{MeetingID: "m1", Score: 5})
	require.NoError(t, handle(context.Background(), evt))
	require.NoError(t, handle(context.Background(), evt))

	assert.Len(t, sub.ratings, 1)
}

func TestNewSubmissionConsumer(t *testing.T) {
	h := NewSubmissionHandler(&recordingSubmitter{}, logger.Discard())
	c := NewSubmissionConsumer([]string{"localhost:9092"}, h, pkgkafka.NewMemoryIdempotencyStore(time.Hour), nil, logger.Discard())
	defer c.Close()

	assert.Equal(t, TopicRatingSubmitted, c.Topic())
}

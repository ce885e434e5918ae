package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeWriter records every message written.
type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
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

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

// fakeReader serves a fixed list of messages then reports io.EOF.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []kafka.Message
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return kafka.Message{}, err
	}
	if len(r.queue) == 0 {
		return kafka.Message{}, io.EOF
	}
	msg := r.queue[0]
	r.queue = r.queue[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error { return nil }

func mustEvent(t *testing.T, eventType, aggregateID string, data any) *Event {
	t.Helper()
	evt, err := NewEvent(eventType, aggregateID, "rating", "test", data)
	require.NoError(t, err)
	return evt
}

func messageFor(t *testing.T, topic string, evt *Event, offset int64) kafka.Message {
	t.Helper()
	raw, err := evt.Marshal()
	require.NoError(t, err)
	return kafka.Message{Topic: topic, Value: raw, Offset: offset}
}

func testConsumerConfig(topic string) ConsumerConfig {
	cfg := DefaultConsumerConfig([]string{"localhost:9092"}, "rating-service", topic)
	cfg.RetryWait = time.Millisecond
	return cfg
}

// --- Event ---

func TestTopic(t *testing.T) {
	assert.Equal(t, "meetingfeedback.rating.sent", Topic("rating", "sent"))
}

func TestNewEvent_Fields(t *testing.T) {
	evt := mustEvent(t, "rating.sent", "m1", map[string]int{"score": 5})

	assert.NotEmpty(t, evt.EventID)
	assert.Equal(t, "rating.sent", evt.EventType)
	assert.Equal(t, "m1", evt.AggregateID)
	assert.Equal(t, 1, evt.Version)
	assert.WithinDuration(t, time.Now().UTC(), evt.Timestamp, 2*time.Second)

	var payload map[string]int
	require.NoError(t, evt.UnmarshalData(&payload))
	assert.Equal(t, 5, payload["score"])
}

func TestNewEvent_UnserializableData(t *testing.T) {
	_, err := NewEvent("x", "a", "rating", "test", make(chan int))
	assert.Error(t, err)
}

func TestEvent_RoundTripKeepsEnvelope(t *testing.T) {
	evt := mustEvent(t, "rating.failed", "m2", nil).
		WithCorrelationID("corr-1").
		WithMetadata("transport", "graph")

	raw, err := evt.Marshal()
	require.NoError(t, err)

	decoded, err := UnmarshalEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, evt.EventID, decoded.EventID)
	assert.Equal(t, "corr-1", decoded.CorrelationID)
	assert.Equal(t, "graph", decoded.Metadata["transport"])
}

func TestEvent_UnmarshalDataEmpty(t *testing.T) {
	evt := &Event{EventID: "e1"}
	var v map[string]any
	assert.Error(t, evt.UnmarshalData(&v))
}

// --- Producer ---

func TestProducer_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, nil, testLogger())
	evt := mustEvent(t, "rating.sent", "m1", nil).WithCorrelationID("corr-9")

	require.NoError(t, p.Publish(context.Background(), Topic("rating", "sent"), evt))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "meetingfeedback.rating.sent", msg.Topic)
	assert.Equal(t, []byte("m1"), msg.Key)
	assert.Equal(t, "rating.sent", NewHeaderCarrier(&msg.Headers).Get("event_type"))
	assert.Equal(t, "corr-9", NewHeaderCarrier(&msg.Headers).Get("correlation_id"))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, evt.EventID, decoded.EventID)
}

func TestProducer_PublishError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p := NewProducerWithWriter(w, nil, testLogger())

	err := p.Publish(context.Background(), "t", mustEvent(t, "x", "a", nil))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
}

func TestProducer_Close(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, NewProducerWithWriter(w, nil, testLogger()).Close())
	assert.True(t, w.closed)
}

func TestPingBrokers_NoneConfigured(t *testing.T) {
	assert.Error(t, PingBrokers(context.Background(), nil))
}

// --- Consumer ---

func TestConsumer_HandlesAndCommits(t *testing.T) {
	topic := Topic("rating", "submitted")
	reader := &fakeReader{queue: []kafka.Message{
		messageFor(t, topic, mustEvent(t, "rating.submitted", "m1", nil), 1),
		messageFor(t, topic, mustEvent(t, "rating.submitted", "m2", nil), 2),
	}}

	var seen []string
	handler := func(_ context.Context, evt *Event) error {
		seen = append(seen, evt.AggregateID)
		return nil
	}

	c := NewConsumerWithReader(reader, testConsumerConfig(topic), handler, testLogger())
	require.NoError(t, c.Start(context.Background()))

	assert.Equal(t, []string{"m1", "m2"}, seen)
	assert.Len(t, reader.committed, 2)
}

func TestConsumer_RetriesTransientErrors(t *testing.T) {
	topic := Topic("rating", "submitted")
	reader := &fakeReader{queue: []kafka.Message{
		messageFor(t, topic, mustEvent(t, "rating.submitted", "m1", nil), 1),
	}}

	calls := 0
	handler := func(context.Context, *Event) error {
		calls++
		if calls < 3 {
			return errors.New("temporarily unavailable")
		}
		return nil
	}

	c := NewConsumerWithReader(reader, testConsumerConfig(topic), handler, testLogger())
	require.NoError(t, c.Start(context.Background()))

	assert.Equal(t, 3, calls)
	assert.Len(t, reader.committed, 1)
}

func TestConsumer_PermanentErrorGoesToDLQ(t *testing.T) {
	topic := Topic("rating", "submitted")
	reader := &fakeReader{queue: []kafka.Message{
		messageFor(t, topic, mustEvent(t, "rating.submitted", "m1", nil), 7),
	}}
	dlqWriter := &fakeWriter{}

	calls := 0
	handler := func(context.Context, *Event) error {
		calls++
		return Permanent(errors.New("score out of range"))
	}

	c := NewConsumerWithReader(reader, testConsumerConfig(topic), handler, testLogger()).
		WithDLQ(NewDLQProducerWithWriter(dlqWriter, testLogger()))
	require.NoError(t, c.Start(context.Background()))

	assert.Equal(t, 1, calls, "permanent errors are not retried")
	assert.Len(t, reader.committed, 1)
	require.Len(t, dlqWriter.msgs, 1)
	dlqMsg := dlqWriter.msgs[0]
	assert.Equal(t, "meetingfeedback.dlq.meetingfeedback.rating.submitted", dlqMsg.Topic)
	assert.Equal(t, "score out of range", NewHeaderCarrier(&dlqMsg.Headers).Get("dlq.error"))
	assert.Equal(t, "7", NewHeaderCarrier(&dlqMsg.Headers).Get("dlq.original_offset"))
}

func TestConsumer_UndecodableMessageIsCommitted(t *testing.T) {
	topic := Topic("rating", "submitted")
	reader := &fakeReader{queue: []kafka.Message{{Topic: topic, Value: []byte("{not json"), Offset: 3}}}

	called := false
	handler := func(context.Context, *Event) error {
		called = true
		return nil
	}

	c := NewConsumerWithReader(reader, testConsumerConfig(topic), handler, testLogger())
	require.NoError(t, c.Start(context.Background()))

	assert.False(t, called)
	assert.Len(t, reader.committed, 1)
}

func TestConsumer_StopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewConsumerWithReader(&fakeReader{}, testConsumerConfig("t"), nil, testLogger())
	assert.NoError(t, c.Start(ctx))
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}

func TestPermanent(t *testing.T) {
	assert.Nil(t, Permanent(nil))

	base := errors.New("bad payload")
	err := Permanent(base)
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(base))
}

// --- Header carrier ---

func TestHeaderCarrier_SetGetKeys(t *testing.T) {
	headers := []kafka.Header{{Key: "existing", Value: []byte("v1")}}
	carrier := NewHeaderCarrier(&headers)

	assert.Equal(t, "v1", carrier.Get("existing"))
	assert.Empty(t, carrier.Get("missing"))

	carrier.Set("traceparent", "00-abc-def-01")
	carrier.Set("existing", "v2")

	assert.Equal(t, "v2", carrier.Get("existing"))
	assert.ElementsMatch(t, []string{"existing", "traceparent"}, carrier.Keys())
	assert.Len(t, headers, 2)
}

func TestDLQTopic(t *testing.T) {
	assert.Equal(t, "meetingfeedback.dlq.orders", DLQTopic("orders"))
}

package graph

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/meetingfeedback/ratings/pkg/errors"
	"github.com/meetingfeedback/ratings/pkg/httpclient"
	"github.com/meetingfeedback/ratings/pkg/logger"
	"github.com/meetingfeedback/ratings/services/rating/internal/domain"
)

func testMessage() *domain.NotificationMessage {
	reviewer := domain.Recipient{Name: "Anonymous Reviewer", Address: "reviewer@example.com"}
	return &domain.NotificationMessage{
		ToRecipients: []domain.Recipient{{Name: "Alice", Address: "alice@x.com"}},
		Sender:       reviewer,
		From:         reviewer,
		ReplyTo:      []domain.Recipient{reviewer},
		Subject:      "Sprint Review was rated!",
		Body:         "Rating: 5",
	}
}

func newTransport(url string, token TokenSource) *Transport {
	return NewTransport(NewClient(logger.Discard()), url, token, logger.Discard())
}

func TestTransport_Send(t *testing.T) {
	var got sendMailRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v2.0/me/sendmail", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	tr := newTransport(server.URL+"/api/v2.0/", StaticToken("secret"))
	require.NoError(t, tr.Send(context.Background(), testMessage()))

	assert.False(t, got.SaveToSentItems)
	assert.Equal(t, "Sprint Review was rated!", got.Message.Subject)
	assert.Equal(t, "Text", got.Message.Body.ContentType)
	assert.Equal(t, "Rating: 5", got.Message.Body.Content)
	require.Len(t, got.Message.ToRecipients, 1)
	assert.Equal(t, "alice@x.com", got.Message.ToRecipients[0].EmailAddress.Address)
	assert.Equal(t, "reviewer@example.com", got.Message.From.EmailAddress.Address)
	assert.Equal(t, "reviewer@example.com", got.Message.Sender.EmailAddress.Address)
	require.Len(t, got.Message.ReplyTo, 1)
}

func TestTransport_SaveToSentItemsIsSerialized(t *testing.T) {
	var raw map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	require.NoError(t, newTransport(server.URL, StaticToken("t")).Send(context.Background(), testMessage()))

	v, ok := raw["SaveToSentItems"]
	require.True(t, ok)
	assert.Equal(t, false, v)
	assert.Contains(t, raw, "Message")
}

func TestTransport_Unauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"code":"InvalidAuthenticationToken","message":"token expired"}}`))
	}))
	defer server.Close()

	err := newTransport(server.URL, StaticToken("stale")).Send(context.Background(), testMessage())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))
	assert.True(t, errors.Is(err, apperrors.ErrDeliveryFailed))

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "InvalidAuthenticationToken", appErr.Code)
}

func TestTransport_ServerErrorIsSingleAttempt(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	err := newTransport(server.URL, StaticToken("t")).Send(context.Background(), testMessage())
	require.Error(t, err)

	var serverErr *httpclient.ServerError
	assert.True(t, errors.As(err, &serverErr))
	assert.True(t, errors.Is(err, apperrors.ErrDeliveryFailed))
	assert.Equal(t, int32(1), hits.Load())
}

func TestTransport_UnreachableIsDeliveryFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	err := newTransport(url, StaticToken("t")).Send(context.Background(), testMessage())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrDeliveryFailed))
}

func TestTransport_MissingTokenIsNotDeliveryFailure(t *testing.T) {
	err := newTransport("http://127.0.0.1:1", StaticToken("")).Send(context.Background(), testMessage())
	require.Error(t, err)
	assert.False(t, errors.Is(err, apperrors.ErrDeliveryFailed))
}

func TestTransport_MissingToken(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	err := newTransport(server.URL, StaticToken("")).Send(context.Background(), testMessage())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no access token")
	assert.Zero(t, hits.Load())
}

func TestNewTransport_DefaultBaseURL(t *testing.T) {
	tr := NewTransport(nil, "", StaticToken("t"), logger.Discard())
	assert.Equal(t, DefaultBaseURL, tr.baseURL)
	assert.Equal(t, "graph", tr.Name())
}

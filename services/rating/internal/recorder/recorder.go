// Package recorder stores ratings in the remote rating web service.
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/meetingfeedback/ratings/pkg/httpclient"
	"github.com/meetingfeedback/ratings/services/rating/internal/domain"
)

const serviceName = "rating-webservice"

type addRatingRequest struct {
	Owner     string `json:"owner"`
	MeetingID string `json:"meeting_id"`
	Score     int    `json:"score"`
	Remarks   string `json:"remarks"`
}

// WebServiceRecorder posts ratings to {baseURL}/ratings.
type WebServiceRecorder struct {
	client  *httpclient.CircuitBreakerClient
	baseURL string
	logger  *slog.Logger
}

// NewWebServiceRecorder creates a recorder for the rating web service.
func NewWebServiceRecorder(client *httpclient.CircuitBreakerClient, baseURL string, logger *slog.Logger) *WebServiceRecorder {
	return &WebServiceRecorder{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// NewClient builds the breaker-wrapped client with the default retry policy.
func NewClient(logger *slog.Logger) *httpclient.CircuitBreakerClient {
	return httpclient.NewCircuitBreakerClient(
		httpclient.New(httpclient.DefaultConfig()),
		httpclient.DefaultCircuitBreakerConfig(serviceName),
		logger,
	)
}

// AddRating records rating against owner.
func (r *WebServiceRecorder) AddRating(ctx context.Context, owner string, rating domain.Rating) error {
	req, err := httpclient.NewJSONRequest(ctx, http.MethodPost, r.baseURL+"/ratings", addRatingRequest{
		Owner:     owner,
		MeetingID: rating.MeetingID,
		Score:     rating.Score,
		Remarks:   rating.Remarks,
	})
	if err != nil {
		return err
	}

	resp, err := r.client.Do(ctx, req)
	if err != nil {
		return fmt.Errorf("record rating: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return httpclient.ParseResponseError(resp, serviceName)
	}
	_ = resp.Body.Close()

	r.logger.DebugContext(ctx, "rating recorded",
		slog.String("owner", owner),
		slog.Int("status", resp.StatusCode),
	)
	return nil
}

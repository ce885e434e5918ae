package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/meetingfeedback/ratings/pkg/httputil"
	"github.com/meetingfeedback/ratings/pkg/logger"
	"github.com/meetingfeedback/ratings/pkg/validator"
	"github.com/meetingfeedback/ratings/services/rating/internal/domain"
	"github.com/meetingfeedback/ratings/services/rating/internal/service"
)

// Submitter starts a rating submission without waiting for its outcome.
type Submitter interface {
	SendRating(ctx context.Context, rating domain.Rating)
}

// RatingHandler handles HTTP requests for rating endpoints.
type RatingHandler struct {
	submitter Submitter
	meetings  *service.MeetingService
	logger    *slog.Logger
}

// NewRatingHandler creates a new rating HTTP handler.
func NewRatingHandler(submitter Submitter, meetings *service.MeetingService, logger *slog.Logger) *RatingHandler {
	return &RatingHandler{
		submitter: submitter,
		meetings:  meetings,
		logger:    logger,
	}
}

// --- Request DTOs ---

// SubmitRatingRequest is the JSON request body for submitting a rating.
type SubmitRatingRequest struct {
	MeetingID string `json:"meeting_id" validate:"required,max=512"`
	Score     int    `json:"score" validate:"min=1,max=5"`
	Remarks   string `json:"remarks" validate:"max=4000"`
}

// SubmitRatingResponse acknowledges an accepted submission.
type SubmitRatingResponse struct {
	MeetingID string `json:"meeting_id"`
	Status    string `json:"status"`
}

// --- Handlers ---

// SubmitRating handles POST /api/v1/ratings. The outcome is published
// asynchronously; poll the outcome endpoint to observe it.
func (h *RatingHandler) SubmitRating(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req SubmitRatingRequest
	if err := validator.DecodeAndValidate(r.Body, &req); err != nil {
		httputil.WriteError(w, r, badRequest(err), h.logger)
		return
	}

	ctx := logger.WithMeetingID(r.Context(), req.MeetingID)
	h.submitter.SendRating(ctx, domain.Rating{
		MeetingID: req.MeetingID,
		Score:     req.Score,
		Remarks:   strings.TrimSpace(req.Remarks),
	})

	httputil.WriteData(w, http.StatusAccepted, SubmitRatingResponse{
		MeetingID: req.MeetingID,
		Status:    "accepted",
	})
}

// GetOutcome handles GET /api/v1/ratings/{meetingId}/outcome
func (h *RatingHandler) GetOutcome(w http.ResponseWriter, r *http.Request) {
	meetingID := chi.URLParam(r, "meetingId")

	record, err := h.meetings.LatestOutcome(r.Context(), meetingID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, record)
}

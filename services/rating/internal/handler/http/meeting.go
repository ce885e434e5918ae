package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/meetingfeedback/ratings/pkg/errors"
	"github.com/meetingfeedback/ratings/pkg/httputil"
	"github.com/meetingfeedback/ratings/pkg/pagination"
	"github.com/meetingfeedback/ratings/pkg/validator"
	"github.com/meetingfeedback/ratings/services/rating/internal/service"
)

// MeetingHandler handles HTTP requests for meeting endpoints.
type MeetingHandler struct {
	service *service.MeetingService
	logger  *slog.Logger
}

// NewMeetingHandler creates a new meeting HTTP handler.
func NewMeetingHandler(svc *service.MeetingService, logger *slog.Logger) *MeetingHandler {
	return &MeetingHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// RegisterMeetingRequest is the JSON request body for registering a meeting.
type RegisterMeetingRequest struct {
	OrganizerName  string    `json:"organizer_name" validate:"max=256"`
	OrganizerEmail string    `json:"organizer_email" validate:"required,email"`
	Subject        string    `json:"subject" validate:"required,max=512"`
	StartsAt       time.Time `json:"starts_at" validate:"required"`
}

// --- Handlers ---

// RegisterMeeting handles PUT /api/v1/meetings/{meetingId}
func (h *MeetingHandler) RegisterMeeting(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req RegisterMeetingRequest
	if err := validator.DecodeAndValidate(r.Body, &req); err != nil {
		httputil.WriteError(w, r, badRequest(err), h.logger)
		return
	}

	details, err := h.service.RegisterMeeting(r.Context(), &service.RegisterMeetingInput{
		ID:             chi.URLParam(r, "meetingId"),
		OrganizerName:  req.OrganizerName,
		OrganizerEmail: req.OrganizerEmail,
		Subject:        req.Subject,
		StartsAt:       req.StartsAt,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, details)
}

// GetMeeting handles GET /api/v1/meetings/{meetingId}
func (h *MeetingHandler) GetMeeting(w http.ResponseWriter, r *http.Request) {
	meeting, err := h.service.GetMeeting(r.Context(), chi.URLParam(r, "meetingId"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteData(w, http.StatusOK, meeting)
}

// ListRatings handles GET /api/v1/meetings/{meetingId}/ratings
func (h *MeetingHandler) ListRatings(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromRequest(r)

	ratings, total, err := h.service.ListRatings(r.Context(), chi.URLParam(r, "meetingId"), params)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, pagination.NewResult(ratings, total, params))
}

// badRequest keeps validation errors intact and turns decode errors into
// INVALID_INPUT.
func badRequest(err error) error {
	var verr *validator.ValidationError
	if errors.As(err, &verr) {
		return err
	}
	return apperrors.InvalidInput("invalid request body: " + err.Error())
}

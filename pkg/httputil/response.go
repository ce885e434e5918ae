package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/meetingfeedback/ratings/pkg/errors"
	"github.com/meetingfeedback/ratings/pkg/logger"
	"github.com/meetingfeedback/ratings/pkg/validator"
)

// Response is the JSON envelope of every API response.
type Response struct {
	Data  any            `json:"data,omitempty"`
	Error *ErrorResponse `json:"error,omitempty"`
}

// ErrorResponse is the error half of Response.
type ErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// WriteJSON writes v as JSON with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteData wraps data in the Response envelope.
func WriteData(w http.ResponseWriter, status int, data any) {
	WriteJSON(w, status, Response{Data: data})
}

// WriteError maps err to a status and error code. Validation errors keep
// their per-field messages; unclassified errors are logged and hidden
// behind INTERNAL_ERROR. The request-scoped logger is preferred over fallback.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	ctx := r.Context()
	requestID := logger.CorrelationIDFromContext(ctx)

	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		WriteJSON(w, http.StatusBadRequest, Response{Error: &ErrorResponse{
			Code:      "VALIDATION_ERROR",
			Message:   "request validation failed",
			Fields:    valErr.Fields(),
			RequestID: requestID,
		}})
		return
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		if appErr.Status >= http.StatusInternalServerError {
			requestLogger(r, fallback).ErrorContext(ctx, "request failed",
				slog.String("code", appErr.Code),
				slog.String("error", err.Error()),
			)
		}
		WriteJSON(w, appErr.Status, Response{Error: &ErrorResponse{
			Code:      appErr.Code,
			Message:   appErr.Message,
			RequestID: requestID,
		}})
		return
	}

	status := apperrors.HTTPStatus(err)
	resp := &ErrorResponse{Code: "INTERNAL_ERROR", Message: "an internal error occurred", RequestID: requestID}
	switch status {
	case http.StatusNotFound:
		resp.Code, resp.Message = "NOT_FOUND", "resource not found"
	case http.StatusBadRequest:
		resp.Code, resp.Message = "INVALID_INPUT", err.Error()
	case http.StatusConflict:
		resp.Code, resp.Message = "CONFLICT", "resource conflict"
	case http.StatusUnauthorized:
		resp.Code, resp.Message = "UNAUTHORIZED", "unauthorized"
	case http.StatusBadGateway:
		resp.Code, resp.Message = "DELIVERY_FAILED", "downstream delivery failed"
	case http.StatusServiceUnavailable:
		resp.Code, resp.Message = "UNAVAILABLE", "a dependency is unavailable"
	default:
		status = http.StatusInternalServerError
		requestLogger(r, fallback).ErrorContext(ctx, "internal error",
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}
	WriteJSON(w, status, Response{Error: resp})
}

// WriteBadRequest writes a 400 INVALID_INPUT error, e.g. for a body that does
// not decode.
func WriteBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	WriteJSON(w, http.StatusBadRequest, Response{Error: &ErrorResponse{
		Code:      "INVALID_INPUT",
		Message:   message,
		RequestID: logger.CorrelationIDFromContext(r.Context()),
	}})
}

func requestLogger(r *http.Request, fallback *slog.Logger) *slog.Logger {
	l := logger.FromContext(r.Context())
	if l == slog.Default() && fallback != nil {
		return fallback
	}
	return l
}

package httpclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/meetingfeedback/ratings/pkg/errors"
)

// DownstreamErrorResponse is the error body shape shared by the rating web
// service ({"error":{"code":..,"message":..}}) and Microsoft Graph.
type DownstreamErrorResponse struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseResponseError reads a non-2xx response and translates it into an
// AppError. The body is consumed and closed.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", serviceName, resp.StatusCode, err)
	}

	var downstream DownstreamErrorResponse
	if json.Unmarshal(bodyBytes, &downstream) == nil && downstream.Error != nil {
		return mapDownstreamError(resp.StatusCode, downstream.Error.Code, downstream.Error.Message, serviceName)
	}

	return mapDownstreamError(resp.StatusCode, "", string(bodyBytes), serviceName)
}

func mapDownstreamError(status int, code, message, serviceName string) error {
	qualifiedMsg := fmt.Sprintf("%s: %s", serviceName, message)
	if message == "" {
		qualifiedMsg = fmt.Sprintf("%s returned status %d", serviceName, status)
	}

	var appErr *apperrors.AppError
	switch {
	case status == http.StatusNotFound:
		appErr = apperrors.NotFound(serviceName, message)
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		appErr = apperrors.InvalidInput(qualifiedMsg)
	case status == http.StatusConflict:
		appErr = apperrors.Conflict(qualifiedMsg)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		appErr = apperrors.Unauthorized(qualifiedMsg)
	case status == http.StatusTooManyRequests, status == http.StatusServiceUnavailable:
		appErr = apperrors.Unavailable(serviceName, errors.New(qualifiedMsg))
	default:
		appErr = &apperrors.AppError{
			Code:    "DOWNSTREAM_ERROR",
			Message: qualifiedMsg,
			Status:  http.StatusBadGateway,
		}
	}
	if code != "" {
		appErr.Code = code
	}
	return appErr
}

// IsClientError reports whether status is a 4xx.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}

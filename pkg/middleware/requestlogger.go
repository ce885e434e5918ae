package middleware

import (
	"log/slog"
	"net/http"

	"github.com/meetingfeedback/ratings/pkg/logger"
)

// MeetingIDHeader lets clients tag a request with the meeting it concerns
// before routing has extracted the path parameter.
const MeetingIDHeader = "X-Meeting-ID"

// RequestLogger stores a logger enriched with correlation_id, meeting_id,
// trace_id and span_id in the request context. Mount it after
// RequestLogging and Tracing; handlers read it with logger.FromContext.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if id := r.Header.Get(MeetingIDHeader); id != "" && logger.MeetingIDFromContext(ctx) == "" {
				ctx = logger.WithMeetingID(ctx, id)
			}
			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

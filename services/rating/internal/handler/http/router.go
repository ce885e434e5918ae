package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meetingfeedback/ratings/pkg/health"
	"github.com/meetingfeedback/ratings/pkg/middleware"
	"github.com/meetingfeedback/ratings/services/rating/internal/service"
)

// RouterConfig holds the optional parts of the HTTP surface.
type RouterConfig struct {
	ServiceName    string
	CORSOrigins    []string
	PprofCIDRs     []string
	RequestTimeout time.Duration
}

// NewRouter creates a chi router with all rating service routes registered.
func NewRouter(
	cfg RouterConfig,
	submitter Submitter,
	meetingService *service.MeetingService,
	healthHandler *health.Handler,
	logger *slog.Logger,
) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	if len(cfg.CORSOrigins) > 0 {
		r.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSOrigins...)))
	}
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(cfg.RequestTimeout))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing())
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	if len(cfg.PprofCIDRs) > 0 {
		middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)
	}

	ratingHandler := NewRatingHandler(submitter, meetingService, logger)
	meetingHandler := NewMeetingHandler(meetingService, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/ratings", ratingHandler.SubmitRating)
		r.Get("/ratings/{meetingId}/outcome", ratingHandler.GetOutcome)

		r.Get("/meetings/{meetingId}", meetingHandler.GetMeeting)
		r.Put("/meetings/{meetingId}", meetingHandler.RegisterMeeting)
		r.Get("/meetings/{meetingId}/ratings", meetingHandler.ListRatings)
	})

	return r
}

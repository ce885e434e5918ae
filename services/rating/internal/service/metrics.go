package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	submissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rating_submissions_total",
			Help: "Rating submissions by published outcome (succeeded, partial, failed)",
		},
		[]string{"status"},
	)

	recordingFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rating_recording_failures_total",
			Help: "Ratings whose email was sent but could not be recorded",
		},
	)
)

package mail

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sendTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mail_send_total",
			Help: "Mail send attempts by transport and result",
		},
		[]string{"transport", "result"},
	)

	sendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mail_send_duration_seconds",
			Help:    "Duration of a single mail send attempt",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"transport"},
	)
)

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blog_http_requests_total",
		Help: "HTTP requests by method, route pattern and status code.",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "blog_http_request_duration_seconds",
		Help:    "HTTP request latency by route pattern.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	SignupsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blog_auth_signups_total",
		Help: "Successful signups.",
	})

	LoginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blog_auth_logins_total",
		Help: "Login attempts by outcome.",
	}, []string{"outcome"})

	TokenRotationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blog_auth_token_rotations_total",
		Help: "Successful refresh token rotations.",
	})

	ReplayDetectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blog_auth_token_replay_detected_total",
		Help: "Refresh tokens presented after rotation; each one wipes its family.",
	})
)

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SeatLockAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seat_lock_attempts_total",
			Help: "Per-seat lock attempts by outcome",
		},
		[]string{"outcome"},
	)

	SeatLocksReleased = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "seat_locks_released_total",
			Help: "Seat locks deleted by explicit release",
		},
	)

	SeatLocksSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "seat_locks_swept_total",
			Help: "Expired seat lock rows physically removed by the sweeper",
		},
	)

	SeatLockTTL = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "seat_lock_ttl_seconds",
			Help:    "Hold duration granted per acquire call",
			Buckets: prometheus.ExponentialBuckets(60, 2, 6),
		},
	)

	BookingCommits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_commits_total",
			Help: "Booking commit attempts by kind and result",
		},
		[]string{"kind", "result"},
	)

	BookingCommitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "booking_commit_duration_seconds",
			Help:    "Duration of the booking commit protocol",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_rate_limited_total",
			Help: "Requests rejected by the booking rate limiter",
		},
		[]string{"route"},
	)
)

// Lock attempt outcomes.
const (
	OutcomeLocked        = "locked"
	OutcomeAlreadyBooked = "already_booked"
	OutcomeHeld          = "held"
	OutcomeError         = "error"
)

// Commit results.
const (
	ResultOK       = "ok"
	ResultConflict = "conflict"
	ResultInvalid  = "invalid"
	ResultAborted  = "aborted"
	ResultError    = "error"
)

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Submissions counts check-in submissions by outcome.
	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkin_submissions_total",
		Help: "Check-in submissions by outcome.",
	}, []string{"outcome"})

	// Loads counts list loads by the source that served them.
	Loads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkin_loads_total",
		Help: "Attendance list loads by source (remote, cache, empty).",
	}, []string{"source"})

	// Deletions counts entries removed through bulk delete or clear.
	Deletions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkin_deleted_entries_total",
		Help: "Entries removed by admin delete or clear.",
	})

	// AdminRejections counts admin operations refused for a wrong key.
	AdminRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkin_admin_rejections_total",
		Help: "Admin operations rejected because the key did not match.",
	})

	// Entries is the size of the in-memory attendance list.
	Entries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "checkin_entries",
		Help: "Entries currently held in memory.",
	})

	// PollSkips counts display ticks skipped because a load was still running.
	PollSkips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkin_poll_skipped_ticks_total",
		Help: "Display poll ticks skipped while the previous load was in flight.",
	})

	// RateLimited counts requests rejected by the rate limiter.
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkin_rate_limited_total",
		Help: "Requests rejected by the per-client rate limiter.",
	})

	// StaleLookups counts debounced phone lookups superseded by newer input.
	StaleLookups = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkin_stale_lookups_total",
		Help: "Phone lookups discarded because newer input arrived.",
	})
)

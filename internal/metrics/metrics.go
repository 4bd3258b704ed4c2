// Package metrics holds the prometheus collectors shared across components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SchedulerTicks counts hourly scheduler wakes.
	SchedulerTicks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "herald_scheduler_ticks_total",
		Help: "Number of scheduler ticks performed.",
	})

	// TrackedEvents reports how many events the scheduler currently tracks.
	TrackedEvents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "herald_scheduler_tracked_events",
		Help: "Number of events currently tracked by the scheduler.",
	})

	// Announcements counts outbound event notifications by kind
	// (created, updated, soon, started, ended, cancelled).
	Announcements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "herald_announcements_total",
		Help: "Number of event announcements emitted.",
	}, []string{"kind"})

	// SendFailures counts dropped outbound chat messages.
	SendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "herald_send_failures_total",
		Help: "Number of outbound chat messages that failed to deliver.",
	})

	// LinksIssued counts one-time links issued by kind (new, edit).
	LinksIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "herald_links_issued_total",
		Help: "Number of one-time event links issued.",
	}, []string{"kind"})

	// LinkRedemptions counts redemption attempts by kind and result
	// (ok, used, verify, permissions, error).
	LinkRedemptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "herald_link_redemptions_total",
		Help: "Number of one-time link redemption attempts.",
	}, []string{"kind", "result"})
)

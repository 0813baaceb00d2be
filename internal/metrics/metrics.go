package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HoldsCreated counts holds granted
	HoldsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "reservations",
			Name:      "holds_created_total",
			Help:      "The total number of seat holds granted",
		},
	)

	// HoldsRejected counts holds refused for lack of capacity
	HoldsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "reservations",
			Name:      "holds_rejected_total",
			Help:      "The total number of seat holds refused because capacity was exceeded",
		},
	)

	// HoldsReleased counts holds given back to the ledger, by reason
	HoldsReleased = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reservations",
			Name:      "holds_released_total",
			Help:      "The total number of seat holds released",
		},
		[]string{"reason"}, // released, expired, converted
	)

	// BookingTransitions counts booking status changes
	BookingTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reservations",
			Name:      "booking_transitions_total",
			Help:      "The total number of booking status transitions",
		},
		[]string{"to"},
	)

	// CodeIssueFailures counts exhausted code issuance attempts. Any value above zero needs attention.
	CodeIssueFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "reservations",
			Name:      "code_issue_failures_total",
			Help:      "Redemption code issuance that exhausted its retry budget",
		},
	)

	// CodeCollisions counts individual draws that hit an existing code
	CodeCollisions = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "reservations",
			Name:      "code_collisions_total",
			Help:      "Redemption code draws that collided with an issued code",
		},
	)

	// Redemptions counts redemption attempts by outcome
	Redemptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reservations",
			Name:      "redemptions_total",
			Help:      "Redemption attempts by outcome",
		},
		[]string{"method", "outcome"},
	)

	// SettledGross sums settled gross amounts in minor units, per currency
	SettledGross = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "settlement",
			Name:      "gross_minor_units_total",
			Help:      "Gross amount settled in minor currency units",
		},
		[]string{"currency"},
	)

	// GatewayCallDuration times payment gateway calls
	GatewayCallDuration = promauto.NewSummaryVec(
		prometheus.SummaryOpts{
			Namespace:  "payment",
			Name:       "gateway_call_duration_seconds",
			Help:       "Time spent in payment gateway calls",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"mode", "operation"},
	)

	// SweepReclaimed counts what the expiry sweep reclaimed
	SweepReclaimed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reservations",
			Name:      "sweep_reclaimed_total",
			Help:      "Bookings and holds reclaimed by the expiry sweep",
		},
		[]string{"kind"}, // bookings, holds
	)
)

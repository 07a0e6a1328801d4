// README: Prometheus metrics for the dispatch engine.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MatchAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ridelink", Name: "match_attempts_total",
		Help: "Pending requests handed to the matcher",
	})
	MatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ridelink", Name: "matches_total",
		Help: "Requests successfully matched and reserved",
	})
	NoMatchTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ridelink", Name: "no_match_total",
		Help: "Match attempts where no eligible driver survived the constraints",
	})
	ReservationLossesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ridelink", Name: "reservation_losses_total",
		Help: "Reservation transactions lost to a concurrent matcher",
	})
	ReservationCompensationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ridelink", Name: "reservation_compensations_total",
		Help: "Driver reservations rolled back after a passenger-side write failure",
	})
	ProposalTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ridelink", Name: "proposal_transitions_total",
		Help: "Proposal status transitions mirrored to the passenger store",
	}, []string{"status"})
	LocationUpdatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ridelink", Name: "location_updates_total",
		Help: "Driver location changes mirrored onto active requests",
	})
	ArrivalsDetectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ridelink", Name: "arrivals_detected_total",
		Help: "Arrivals detected by the proximity heuristic",
	})
	MatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ridelink", Name: "match_latency_seconds",
		Help: "Time from pending notification to reservation outcome",
	})
)

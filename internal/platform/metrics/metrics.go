package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the election subsystem.
type Metrics struct {
	StatusTransitions  *prometheus.CounterVec
	NominationsFiled   prometheus.Counter
	NominationDecided  *prometheus.CounterVec
	OTPIssued          prometheus.Counter
	OTPVerifyFailed    *prometheus.CounterVec
	VotesSubmitted     prometheus.Counter
	VotesAdjudicated   *prometheus.CounterVec
	ResultsCertified   prometheus.Counter
	RequestDuration    *prometheus.HistogramVec
	EligibilityCompute prometheus.Histogram
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		StatusTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sabha_election_status_transitions_total",
			Help: "Election status transitions by action and outcome",
		}, []string{"action", "outcome"}),
		NominationsFiled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sabha_nominations_filed_total",
			Help: "Candidate nominations filed",
		}),
		NominationDecided: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sabha_nominations_decided_total",
			Help: "Nomination approvals and rejections",
		}, []string{"decision"}),
		OTPIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sabha_otp_issued_total",
			Help: "One-time voting codes issued",
		}),
		OTPVerifyFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sabha_otp_verify_failures_total",
			Help: "One-time code verification failures by reason",
		}, []string{"reason"}),
		VotesSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sabha_votes_submitted_total",
			Help: "Ballots accepted into the adjudication queue",
		}),
		VotesAdjudicated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "sabha_votes_adjudicated_total",
			Help: "Adjudication decisions by outcome",
		}, []string{"decision"}),
		ResultsCertified: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sabha_results_certified_total",
			Help: "Election results certified",
		}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sabha_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
		EligibilityCompute: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "sabha_eligibility_compute_seconds",
			Help:    "Latency of voter/candidate eligibility computation",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}
}

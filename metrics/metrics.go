package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ClaimDuration tracks the latency of reward claim requests
	ClaimDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "reward_claim_duration_seconds",
			Help: "Duration of reward claim requests in seconds",
			Buckets: []float64{
				0.001, // 1ms
				0.005, // 5ms
				0.01,  // 10ms
				0.025, // 25ms
				0.05,  // 50ms
				0.1,   // 100ms
				0.25,  // 250ms
				0.5,   // 500ms
				1.0,   // 1s
				2.5,   // 2.5s
				5.0,   // 5s
			},
		},
		[]string{"status"}, // success or failure
	)

	// TriggersProcessed counts processed trigger events by type
	TriggersProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reward_triggers_processed_total",
			Help: "Total number of trigger events processed",
		},
		[]string{"trigger_type"},
	)

	// ClaimsIssued counts successfully issued claims by reward
	ClaimsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reward_claims_issued_total",
			Help: "Total number of reward claims issued",
		},
		[]string{"reward_id"},
	)

	// CouponValidations counts coupon validation requests by outcome
	CouponValidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reward_coupon_validations_total",
			Help: "Total number of coupon validation requests",
		},
		[]string{"result"}, // valid, invalid, not_found
	)
)

// RecordClaimDuration records the duration of a reward claim request
func RecordClaimDuration(status string, duration float64) {
	ClaimDuration.WithLabelValues(status).Observe(duration)
}

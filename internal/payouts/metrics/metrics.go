package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultConflict = "conflict"
	ResultError    = "error"
)

var (
	batchTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payouts_batch_transitions_total",
		Help: "Batch state transitions attempted, by outcome",
	}, []string{
		"from",
		"to",
		"result", // ok, rejected, conflict, error
	})

	withdrawalSubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payouts_withdrawal_submissions_total",
		Help: "Withdrawal requests submitted, by payment method and outcome",
	}, []string{
		"payment_method",
		"result",
	})

	disbursedRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payouts_disbursed_requests_total",
		Help: "Withdrawal requests sent to a payment rail, by confirmation outcome",
	}, []string{
		"payment_method",
		"result", // settled, failed, unconfirmed
	})

	disbursementDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payouts_disbursement_duration_seconds",
		Help:    "Time for a payment rail to answer one disbursement call",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{
		"payment_method",
	})

	lockedBatchAmountUSD = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "payouts_locked_batch_amount_usd",
		Help: "Frozen totals of the most recently locked batch",
	}, []string{
		"payment_method", // paypal, paystack, all
	})

	aggregationMismatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payouts_aggregation_mismatches_total",
		Help: "Recomputed batch totals that disagreed with frozen totals",
	})

	submissionWindow = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "payouts_submission_window",
		Help: "1 while the given submission window flag is set",
	}, []string{
		"flag", // warning, blocked
	})
)

func RecordTransition(from, to, result string) {
	batchTransitionsTotal.WithLabelValues(from, to, result).Inc()
}

func RecordSubmission(paymentMethod, result string) {
	withdrawalSubmissionsTotal.WithLabelValues(paymentMethod, result).Inc()
}

func ObserveDisbursement(paymentMethod string, elapsed time.Duration, settled, failed, unconfirmed int) {
	disbursementDuration.WithLabelValues(paymentMethod).Observe(elapsed.Seconds())
	disbursedRequestsTotal.WithLabelValues(paymentMethod, "settled").Add(float64(settled))
	disbursedRequestsTotal.WithLabelValues(paymentMethod, "failed").Add(float64(failed))
	disbursedRequestsTotal.WithLabelValues(paymentMethod, "unconfirmed").Add(float64(unconfirmed))
}

func SetLockedBatchTotals(total, paypal, paystack decimal.Decimal) {
	lockedBatchAmountUSD.WithLabelValues("all").Set(total.InexactFloat64())
	lockedBatchAmountUSD.WithLabelValues("paypal").Set(paypal.InexactFloat64())
	lockedBatchAmountUSD.WithLabelValues("paystack").Set(paystack.InexactFloat64())
}

func RecordAggregationMismatch() {
	aggregationMismatchesTotal.Inc()
}

func SetSubmissionWindow(warning, blocked bool) {
	submissionWindow.WithLabelValues("warning").Set(boolGauge(warning))
	submissionWindow.WithLabelValues("blocked").Set(boolGauge(blocked))
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

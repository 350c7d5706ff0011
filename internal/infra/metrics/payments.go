package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		checkoutsInitiatedTotal,
		paymentsFinalizedTotal,
		amountMismatchTotal,
	)
}

var (
	checkoutsInitiatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkouts_initiated_total",
			Help: "Charges created at providers, by provider and payment kind.",
		},
		[]string{"provider", "kind"},
	)

	paymentsFinalizedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_finalized_total",
			Help: "Payments moved out of pending, by provider and terminal status.",
		},
		[]string{"provider", "status"},
	)

	amountMismatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_amount_mismatch_total",
			Help: "Events whose reported amount diverged from the charged amount.",
		},
		[]string{"provider"},
	)
)

func IncCheckoutInitiated(provider, kind string) {
	checkoutsInitiatedTotal.WithLabelValues(norm(provider), norm(kind)).Inc()
}

func IncPaymentFinalized(provider, status string) {
	paymentsFinalizedTotal.WithLabelValues(norm(provider), norm(status)).Inc()
}

func IncAmountMismatch(provider string) {
	amountMismatchTotal.WithLabelValues(norm(provider)).Inc()
}

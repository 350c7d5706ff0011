package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		withdrawalsRequestedTotal,
		withdrawalsDecidedTotal,
	)
}

var (
	withdrawalsRequestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "withdrawals_requested_total",
			Help: "Withdrawal requests that passed the risk gate, by initial status.",
		},
		[]string{"status"},
	)

	// decision: approved|rejected|completed
	withdrawalsDecidedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "withdrawals_decided_total",
			Help: "Payout decisions by outcome.",
		},
		[]string{"decision"},
	)
)

func IncWithdrawalRequested(status string) {
	withdrawalsRequestedTotal.WithLabelValues(norm(status)).Inc()
}

func IncWithdrawalDecided(decision string) {
	withdrawalsDecidedTotal.WithLabelValues(norm(decision)).Inc()
}

package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(ledgerOpsTotal, ledgerCoinsMoved)
}

var (
	ledgerOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_ops_total",
			Help: "Wallet ledger entries appended, by transaction type.",
		},
		[]string{"type"},
	)

	ledgerCoinsMoved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_coins_moved_total",
			Help: "Absolute coin volume per transaction type.",
		},
		[]string{"type"},
	)
)

func ObserveLedgerOp(txType string, amount int64) {
	ledgerOpsTotal.WithLabelValues(norm(txType)).Inc()
	if amount < 0 {
		amount = -amount
	}
	ledgerCoinsMoved.WithLabelValues(norm(txType)).Add(float64(amount))
}

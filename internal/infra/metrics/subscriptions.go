package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		subscriptionTransitionsTotal,
		subscriptionsExpiredTotal,
	)
}

var (
	subscriptionTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_transitions_total",
			Help: "Subscription state machine transitions by resulting state.",
		},
		[]string{"state"},
	)

	subscriptionsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscriptions_expired_total",
			Help: "Total number of subscriptions flipped to expired by the sweep.",
		},
	)
)

func IncSubscriptionTransition(state string) {
	subscriptionTransitionsTotal.WithLabelValues(norm(state)).Inc()
}

func IncSubscriptionsExpired(count int) {
	subscriptionsExpiredTotal.Add(float64(count))
}

package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(webhooksReceivedTotal)
}

// result: accepted|duplicate|ignored|orphan|invalid_signature|parse_error
var webhooksReceivedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "webhooks_received_total",
		Help: "Inbound provider webhook deliveries by provider and result.",
	},
	[]string{"provider", "result"},
)

func IncWebhookReceived(provider, result string) {
	webhooksReceivedTotal.WithLabelValues(norm(provider), norm(result)).Inc()
}

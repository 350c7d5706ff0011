package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		httpRequestsTotal,
		rateLimitTriggeredTotal,
	)
}

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route pattern and status class.",
		},
		[]string{"route", "class"}, // class: '2xx', '4xx', '5xx'
	)

	rateLimitTriggeredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rate_limit_triggered_total",
			Help: "Total number of requests rejected by the rate limiter.",
		},
	)
)

func IncHTTPRequest(route, class string) {
	httpRequestsTotal.WithLabelValues(route, norm(class)).Inc()
}

func IncRateLimitTriggered() {
	rateLimitTriggeredTotal.Inc()
}

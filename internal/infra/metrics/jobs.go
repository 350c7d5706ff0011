package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(jobRunsTotal)
}

var jobRunsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "job_runs_total",
		Help: "Background job executions by job name and status.",
	},
	[]string{"job", "status"}, // 'ok', 'error'
)

func IncJobRun(job, status string) {
	jobRunsTotal.WithLabelValues(norm(job), norm(status)).Inc()
}

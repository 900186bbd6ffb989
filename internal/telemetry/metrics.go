package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	SubmittedTotal       = prometheus.NewCounter(prometheus.CounterOpts{Name: "jobs_submitted_total", Help: "Total jobs submitted"})
	ClaimsTotal          = prometheus.NewCounter(prometheus.CounterOpts{Name: "jobs_claimed_total", Help: "Successful claims"})
	CompletedTotal       = prometheus.NewCounter(prometheus.CounterOpts{Name: "jobs_completed_total", Help: "Jobs completed successfully"})
	RetriesTotal         = prometheus.NewCounter(prometheus.CounterOpts{Name: "jobs_retried_total", Help: "Transform failures that were retried"})
	FailuresTotal        = prometheus.NewCounter(prometheus.CounterOpts{Name: "jobs_failed_total", Help: "Jobs that exhausted their retry budget"})
	ReaperReclaimsTotal  = prometheus.NewCounter(prometheus.CounterOpts{Name: "reaper_reclaims_total", Help: "Jobs reset to pending after lease expiry"})
	WorkerRestartsTotal  = prometheus.NewCounter(prometheus.CounterOpts{Name: "worker_restarts_total", Help: "Worker tasks restarted after abnormal termination"})
	QueueDepthGauge      = prometheus.NewGauge(prometheus.GaugeOpts{Name: "queue_depth", Help: "Pending ids currently held by the in-memory queue"})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			SubmittedTotal,
			ClaimsTotal,
			CompletedTotal,
			RetriesTotal,
			FailuresTotal,
			ReaperReclaimsTotal,
			WorkerRestartsTotal,
			QueueDepthGauge,
		)
	})
	return promhttp.Handler()
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	statusOK    = "ok"
	statusError = "error"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailbatch_runs_total",
			Help: "Batch runs by outcome",
		},
		[]string{"status"},
	)

	runMessages = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mailbatch_last_run_messages",
			Help: "Messages of the last run, requested and sent",
		},
		[]string{"state"},
	)

	lastSuccess = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mailbatch_last_success_timestamp_seconds",
			Help: "Unix time of the last run that sent every message",
		},
	)
)

func init() {
	prometheus.MustRegister(runsTotal, runMessages, lastSuccess)
}

// RecordRun stores the outcome of one batch run.
func RecordRun(total, sent int, err error) {
	runMessages.WithLabelValues("total").Set(float64(total))
	runMessages.WithLabelValues("sent").Set(float64(sent))

	if err != nil {
		runsTotal.WithLabelValues(statusError).Inc()
		return
	}
	runsTotal.WithLabelValues(statusOK).Inc()
	lastSuccess.SetToCurrentTime()
}

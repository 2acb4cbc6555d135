package smtp

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	statusOK    = "ok"
	statusError = "error"
)

var (
	sessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailbatch_smtp_sessions_total",
			Help: "SMTP sessions opened, by outcome",
		},
		[]string{"status"},
	)

	messagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mailbatch_smtp_messages_total",
			Help: "Messages handed to the SMTP server, by outcome",
		},
		[]string{"status"},
	)

	sendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mailbatch_smtp_send_duration_seconds",
			Help:    "Duration of a single message transmission",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(sessionsTotal, messagesTotal, sendDuration)
}

func status(err error) string {
	if err != nil {
		return statusError
	}
	return statusOK
}

func recordSession(err error) {
	sessionsTotal.WithLabelValues(status(err)).Inc()
}

func recordSend(err error, seconds float64) {
	s := status(err)
	messagesTotal.WithLabelValues(s).Inc()
	sendDuration.WithLabelValues(s).Observe(seconds)
}

package observability

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	packetsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "seqfetch",
			Subsystem: "session",
			Name:      "packets_received_total",
			Help:      "Packets decoded and stored, by connection phase.",
		},
		[]string{"phase"},
	)
	framesRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "seqfetch",
			Subsystem: "session",
			Name:      "frames_rejected_total",
			Help:      "Frames dropped before reaching the packet store.",
		},
		[]string{"phase", "reason"},
	)
	connectAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "seqfetch",
			Subsystem: "transport",
			Name:      "connect_attempts_total",
			Help:      "TCP dial attempts to the feed server.",
		},
		[]string{"phase", "success"},
	)
	resendRequests = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "seqfetch",
			Subsystem: "session",
			Name:      "resend_requests_total",
			Help:      "Single-sequence resend requests written.",
		},
	)
	resendRounds = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "seqfetch",
			Subsystem: "session",
			Name:      "resend_rounds_total",
			Help:      "Resend rounds started.",
		},
	)
	missingSequences = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "seqfetch",
			Subsystem: "session",
			Name:      "missing_sequences",
			Help:      "Gaps found by the most recent gap check.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			packetsReceived,
			framesRejected,
			connectAttempts,
			resendRequests,
			resendRounds,
			missingSequences,
		)
	})
}

func RecordPacket(phase string) {
	RegisterMetrics()
	packetsReceived.WithLabelValues(phase).Inc()
}

func RecordRejectedFrame(phase, reason string) {
	RegisterMetrics()
	framesRejected.WithLabelValues(phase, reason).Inc()
}

func RecordConnectAttempt(phase string, success bool) {
	RegisterMetrics()
	connectAttempts.WithLabelValues(phase, strconv.FormatBool(success)).Inc()
}

func RecordResendRequests(n int) {
	RegisterMetrics()
	resendRequests.Add(float64(n))
}

func RecordResendRound() {
	RegisterMetrics()
	resendRounds.Inc()
}

func SetMissingSequences(n int) {
	RegisterMetrics()
	missingSequences.Set(float64(n))
}

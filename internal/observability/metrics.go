package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wristlink",
			Subsystem: "link",
			Name:      "frames_received_total",
			Help:      "Frames assembled from the device, by message type.",
		},
		[]string{"type"},
	)
	framesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "wristlink",
			Subsystem: "link",
			Name:      "frames_sent_total",
			Help:      "Outbound frames written to the transport.",
		},
	)
	sendFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "wristlink",
			Subsystem: "link",
			Name:      "send_failures_total",
			Help:      "Outbound writes that failed and reset the connection.",
		},
	)
	protocolErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wristlink",
			Subsystem: "link",
			Name:      "protocol_errors_total",
			Help:      "Frames dropped as malformed or unknown.",
		},
		[]string{"reason"},
	)
	connectAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wristlink",
			Subsystem: "link",
			Name:      "connect_attempts_total",
			Help:      "Transport open attempts by result.",
		},
		[]string{"result"},
	)
	connectionState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "wristlink",
			Subsystem: "link",
			Name:      "connection_state",
			Help:      "Current connection state (0 disconnected, 1 connecting, 2 connected, 3 disconnecting).",
		},
	)
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "wristlink",
			Subsystem: "link",
			Name:      "outbound_queue_depth",
			Help:      "Frames waiting in the outbound queue.",
		},
	)
	rtcRoundTrip = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "wristlink",
			Subsystem: "link",
			Name:      "rtc_round_trip_seconds",
			Help:      "Clock request round trip to the device.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			framesReceived,
			framesSent,
			sendFailures,
			protocolErrors,
			connectAttempts,
			connectionState,
			queueDepth,
			rtcRoundTrip,
		)
	})
}

func RecordFrameReceived(msgType string) {
	RegisterMetrics()
	framesReceived.WithLabelValues(msgType).Inc()
}

func RecordFrameSent(depth int) {
	RegisterMetrics()
	framesSent.Inc()
	queueDepth.Set(float64(depth))
}

func RecordSendFailure() {
	RegisterMetrics()
	sendFailures.Inc()
}

func RecordProtocolError(reason string) {
	RegisterMetrics()
	protocolErrors.WithLabelValues(reason).Inc()
}

func RecordConnectAttempt(ok bool) {
	RegisterMetrics()
	result := "failure"
	if ok {
		result = "success"
	}
	connectAttempts.WithLabelValues(result).Inc()
}

func SetConnectionState(state int) {
	RegisterMetrics()
	connectionState.Set(float64(state))
}

func SetQueueDepth(depth int) {
	RegisterMetrics()
	queueDepth.Set(float64(depth))
}

func ObserveRTCRoundTrip(seconds float64) {
	RegisterMetrics()
	rtcRoundTrip.Observe(seconds)
}

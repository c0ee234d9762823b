package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "efdbridge_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	pollTotal   *prometheus.CounterVec
	pollLatency *prometheus.HistogramVec

	remoteCallTotal   *prometheus.CounterVec
	remoteCallLatency *prometheus.HistogramVec

	checkpointEdgeCount *prometheus.GaugeVec

	sweepTotal      *prometheus.CounterVec
	sweepLatency    prometheus.Histogram
	pmOutcomesTotal *prometheus.CounterVec

	notifyTotal *prometheus.CounterVec
)

// Init registers the bridge metrics with the default registerer.
func Init() {
	InitWith(prometheus.DefaultRegisterer)
}

// InitWith registers the bridge metrics once with reg.
func InitWith(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		pollTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "poll_total",
				Help: "Total channel polls by channel kind and result",
			},
			[]string{"kind", "result"},
		)
		pollLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "poll_latency_seconds",
				Help:    "Channel poll latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		)

		remoteCallTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "remote_calls_total",
				Help: "Total remote calls by service, operation and result",
			},
			[]string{"service", "op", "result"},
		)
		remoteCallLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "remote_call_latency_seconds",
				Help:    "Remote call latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service", "op"},
		)

		checkpointEdgeCount = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "checkpoint_edge_count",
				Help: "Last committed edge count per asset",
			},
			[]string{"asset_id"},
		)

		sweepTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "pm_sweeps_total",
				Help: "Total PM sweeps by result",
			},
			[]string{"result"},
		)
		sweepLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    metricPrefix + "pm_sweep_latency_seconds",
			Help:    "PM sweep latency in seconds",
			Buckets: prometheus.DefBuckets,
		})
		pmOutcomesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "pm_outcomes_total",
				Help: "Total trigger config evaluations by outcome",
			},
			[]string{"outcome"},
		)

		notifyTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notifications_total",
				Help: "Total event notifications by sink and result",
			},
			[]string{"sink", "result"},
		)

		reg.MustRegister(
			pollTotal,
			pollLatency,
			remoteCallTotal,
			remoteCallLatency,
			checkpointEdgeCount,
			sweepTotal,
			sweepLatency,
			pmOutcomesTotal,
			notifyTotal,
		)
	})
}

// ObservePoll records one channel poll.
func ObservePoll(kind, result string, duration time.Duration) {
	if kind == "" {
		kind = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if pollTotal != nil {
		pollTotal.WithLabelValues(kind, result).Inc()
	}
	if pollLatency != nil {
		pollLatency.WithLabelValues(kind).Observe(duration.Seconds())
	}
}

// ObserveRemoteCall records a call to the EFD or the CMMS.
func ObserveRemoteCall(service, op string, err error, duration time.Duration) {
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	if remoteCallTotal != nil {
		remoteCallTotal.WithLabelValues(service, op, result).Inc()
	}
	if remoteCallLatency != nil {
		remoteCallLatency.WithLabelValues(service, op).Observe(duration.Seconds())
	}
}

// SetCheckpoint exposes the committed edge count of an asset.
func SetCheckpoint(assetID string, count int64) {
	if checkpointEdgeCount != nil {
		checkpointEdgeCount.WithLabelValues(assetID).Set(float64(count))
	}
}

// ObserveSweep records one PM sweep.
func ObserveSweep(err error, duration time.Duration) {
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	if sweepTotal != nil {
		sweepTotal.WithLabelValues(result).Inc()
	}
	if sweepLatency != nil {
		sweepLatency.Observe(duration.Seconds())
	}
}

// IncPMOutcome counts the outcome of one trigger config evaluation.
func IncPMOutcome(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	if pmOutcomesTotal != nil {
		pmOutcomesTotal.WithLabelValues(outcome).Inc()
	}
}

// IncNotification counts a notification attempt.
func IncNotification(sink string, err error) {
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	if notifyTotal != nil {
		notifyTotal.WithLabelValues(sink, result).Inc()
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)

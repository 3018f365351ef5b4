package utils

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Tracks performance metrics across the system
type MetricsCollector struct {
	requestCount prometheus.Counter
	errorCount   prometheus.Counter
	onlineUsers  prometheus.Gauge

	// Latencies per operation name
	operationTimes *prometheus.HistogramVec

	systemStartTime time.Time
}

func NewMetricsCollector(reg prometheus.Registerer) *MetricsCollector {
	factory := promauto.With(reg)
	return &MetricsCollector{
		requestCount: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "heartline",
			Name:      "requests_total",
			Help:      "Requests and realtime events handled.",
		}),
		errorCount: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "heartline",
			Name:      "errors_total",
			Help:      "Requests and realtime events that ended in an error.",
		}),
		onlineUsers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "heartline",
			Name:      "online_users",
			Help:      "Users currently registered in the presence registry.",
		}),
		operationTimes: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "heartline",
			Name:      "operation_duration_seconds",
			Help:      "Latency of messaging operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		systemStartTime: time.Now(),
	}
}

func (mc *MetricsCollector) IncrementRequests() {
	mc.requestCount.Inc()
}

func (mc *MetricsCollector) IncrementErrors() {
	mc.errorCount.Inc()
}

func (mc *MetricsCollector) SetOnlineUsers(n int) {
	mc.onlineUsers.Set(float64(n))
}

func (mc *MetricsCollector) AddOperationLatency(operationName string, duration time.Duration) {
	mc.operationTimes.WithLabelValues(operationName).Observe(duration.Seconds())
}

func (mc *MetricsCollector) Uptime() time.Duration {
	return time.Since(mc.systemStartTime)
}

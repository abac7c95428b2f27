package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kinectl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kinectl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)

	masterActiveBlocks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "kinectl",
			Subsystem: "master",
			Name:      "active_blocks",
			Help:      "Blocks currently in a non-stopped state.",
		},
	)
	masterLinkAlive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "kinectl",
			Subsystem: "master",
			Name:      "link_alive",
			Help:      "1 while the link answers heartbeats.",
		},
		[]string{"link"},
	)
	masterRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kinectl",
			Subsystem: "master",
			Name:      "admission_rejections_total",
			Help:      "Move requests rejected by admission control.",
		},
		[]string{"reason"},
	)
	masterCascadeStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kinectl",
			Subsystem: "master",
			Name:      "cascade_stops_total",
			Help:      "Cascading stops after heartbeat loss.",
		},
		[]string{"link"},
	)
	masterEmergencyStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kinectl",
			Subsystem: "master",
			Name:      "emergency_stops_total",
			Help:      "Global emergency stops by trigger.",
		},
		[]string{"reason"},
	)
	masterAutoStops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "kinectl",
			Subsystem: "master",
			Name:      "auto_stops_total",
			Help:      "Blocks stopped by move deadline expiry.",
		},
	)

	nodeRunawayStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kinectl",
			Subsystem: "node",
			Name:      "runaway_stops_total",
			Help:      "Blocks stopped by the actuator runaway timeout.",
		},
		[]string{"node"},
	)
	nodeCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kinectl",
			Subsystem: "node",
			Name:      "commands_total",
			Help:      "Link commands dispatched by an execution node.",
		},
		[]string{"node", "kind"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,
			masterActiveBlocks,
			masterLinkAlive,
			masterRejections,
			masterCascadeStops,
			masterEmergencyStops,
			masterAutoStops,
			nodeRunawayStops,
			nodeCommands,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func SetActiveBlocks(n int) {
	RegisterMetrics()
	masterActiveBlocks.Set(float64(n))
}

func SetLinkAlive(link string, alive bool) {
	RegisterMetrics()
	v := 0.0
	if alive {
		v = 1
	}
	masterLinkAlive.WithLabelValues(link).Set(v)
}

func RecordAdmissionRejection(reason string) {
	RegisterMetrics()
	masterRejections.WithLabelValues(reason).Inc()
}

func RecordCascadeStop(link string) {
	RegisterMetrics()
	masterCascadeStops.WithLabelValues(link).Inc()
}

func RecordEmergencyStop(reason string) {
	RegisterMetrics()
	masterEmergencyStops.WithLabelValues(reason).Inc()
}

func RecordAutoStop() {
	RegisterMetrics()
	masterAutoStops.Inc()
}

func RecordRunawayStop(node string) {
	RegisterMetrics()
	nodeRunawayStops.WithLabelValues(node).Inc()
}

func RecordNodeCommand(node, kind string) {
	RegisterMetrics()
	nodeCommands.WithLabelValues(node, kind).Inc()
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "btd"

var (
	RPCRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rpc_requests_total",
		Help:      "Total RPC requests by method and response code.",
	}, []string{"method", "code"})

	RPCRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "rpc_request_duration_seconds",
		Help:      "RPC request duration in seconds.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	}, []string{"method"})

	ActorCommandsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "actor_commands_total",
		Help:      "Total commands handled by the session actor by kind and result.",
	}, []string{"kind", "result"})

	ActorCommandDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "actor_command_duration_seconds",
		Help:      "Time the session actor spent executing a command.",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	}, []string{"kind"})

	ActorQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "actor_queue_depth",
		Help:      "Number of commands waiting for the session actor.",
	})

	ActiveTorrents = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_torrents",
		Help:      "Number of torrents in the registry.",
	})

	EngineAlertsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "engine_alerts_total",
		Help:      "Total engine alerts drained by kind.",
	}, []string{"kind"})

	DownloadSpeedBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "download_speed_bytes",
		Help:      "Current aggregate download speed in bytes per second.",
	})

	UploadSpeedBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "upload_speed_bytes",
		Help:      "Current aggregate upload speed in bytes per second.",
	})

	PeersConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "peers_connected",
		Help:      "Total number of connected peers across all torrents.",
	})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total admin HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Admin HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 30},
	}, []string{"method", "path"})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		RPCRequestsTotal,
		RPCRequestDuration,
		ActorCommandsTotal,
		ActorCommandDuration,
		ActorQueueDepth,
		ActiveTorrents,
		EngineAlertsTotal,
		DownloadSpeedBytes,
		UploadSpeedBytes,
		PeersConnected,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	SyncEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "granth",
			Name:      "sync_events_total",
			Help:      "Count of sync events processed by the tracker.",
		},
		[]string{"type"},
	)

	SyncSessions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "granth",
			Name:      "sync_sessions_total",
			Help:      "Finished bulk download sessions by outcome.",
		},
		[]string{"outcome"},
	)

	DownloadBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "granth",
			Name:      "download_bytes_total",
			Help:      "Bytes written to local storage by completed downloads.",
		},
	)

	DownloadRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "granth",
			Name:      "download_retries_total",
			Help:      "Retry attempts made by the remote client.",
		},
	)

	Resolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "granth",
			Name:      "resolver_resolutions_total",
			Help:      "Document resolutions by serving source.",
		},
		[]string{"source"},
	)

	SyncActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "granth",
			Name:      "sync_active",
			Help:      "1 while a bulk download session is running.",
		},
	)
)

// Register registers the granthsync metrics into the default registry.
func Register() {
	prometheus.MustRegister(SyncEvents, SyncSessions, DownloadBytes, DownloadRetries, Resolutions, SyncActive)
}

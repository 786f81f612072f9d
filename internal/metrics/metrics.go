// Package metrics exposes Prometheus collectors for the relay server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the lanhub server.
type Metrics struct {
	// Discovery
	DiscoveryRequests prometheus.Counter

	// Chat & presence
	ChatSessions    prometheus.Gauge
	ChatMessages    prometheus.Counter
	PrivateMessages prometheus.Counter
	PresenterGrants prometheus.Counter
	PresenterDenies prometheus.Counter

	// Media relays, labeled by relay name (audio, video)
	DatagramsReceived *prometheus.CounterVec
	DatagramsRelayed  *prometheus.CounterVec
	RelayPeers        *prometheus.GaugeVec

	// Screen share
	ScreenFramesRelayed prometheus.Counter
	ScreenFrameBytes    prometheus.Counter
	ScreenViewers       prometheus.Gauge

	// File transfer
	FileClients   prometheus.Gauge
	FilesUploaded prometheus.Counter
	FilesServed   prometheus.Counter
	FilesDeleted  prometheus.Counter
}

// New creates and registers all metrics on the default registerer.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates all metrics on the given registerer. Tests pass a
// throwaway registry so repeated construction never collides.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		DiscoveryRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "lanhub_discovery_requests_total",
			Help: "Total number of UDP discovery requests answered",
		}),

		ChatSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lanhub_chat_sessions",
			Help: "Current number of registered chat sessions",
		}),
		ChatMessages: factory.NewCounter(prometheus.CounterOpts{
			Name: "lanhub_chat_messages_total",
			Help: "Total number of public chat messages broadcast",
		}),
		PrivateMessages: factory.NewCounter(prometheus.CounterOpts{
			Name: "lanhub_private_messages_total",
			Help: "Total number of private messages delivered",
		}),
		PresenterGrants: factory.NewCounter(prometheus.CounterOpts{
			Name: "lanhub_presenter_grants_total",
			Help: "Total number of granted presentation requests",
		}),
		PresenterDenies: factory.NewCounter(prometheus.CounterOpts{
			Name: "lanhub_presenter_denies_total",
			Help: "Total number of denied presentation requests",
		}),

		DatagramsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lanhub_relay_datagrams_received_total",
			Help: "Total number of datagrams received per media relay",
		}, []string{"relay"}),
		DatagramsRelayed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lanhub_relay_datagrams_relayed_total",
			Help: "Total number of datagrams forwarded per media relay",
		}, []string{"relay"}),
		RelayPeers: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lanhub_relay_peers",
			Help: "Current number of known peers per media relay",
		}, []string{"relay"}),

		ScreenFramesRelayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "lanhub_screen_frames_relayed_total",
			Help: "Total number of screen frames relayed to viewers",
		}),
		ScreenFrameBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "lanhub_screen_frame_bytes_total",
			Help: "Total screen frame payload bytes received from presenters",
		}),
		ScreenViewers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lanhub_screen_viewers",
			Help: "Current number of connected screen viewers",
		}),

		FileClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lanhub_file_clients",
			Help: "Current number of connected file transfer clients",
		}),
		FilesUploaded: factory.NewCounter(prometheus.CounterOpts{
			Name: "lanhub_files_uploaded_total",
			Help: "Total number of completed file uploads",
		}),
		FilesServed: factory.NewCounter(prometheus.CounterOpts{
			Name: "lanhub_files_served_total",
			Help: "Total number of completed file downloads",
		}),
		FilesDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "lanhub_files_deleted_total",
			Help: "Total number of deleted files",
		}),
	}
}

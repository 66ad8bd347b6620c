// Package metrics exposes Prometheus collectors for the chat engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectionsActive tracks currently open WebSocket connections.
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "harbor_connections_active",
			Help: "Currently open WebSocket connections",
		},
	)

	MessagesRouted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harbor_messages_routed_total",
			Help: "Messages persisted and fanned out to recipients",
		},
	)

	MessagesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harbor_messages_dropped_total",
			Help: "Inbound envelopes dropped before persistence",
		},
		[]string{"reason"},
	)

	PresenceBroadcasts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harbor_presence_broadcasts_total",
			Help: "Roster broadcasts pushed to connected clients",
		},
	)

	LivenessEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harbor_liveness_evictions_total",
			Help: "Connections terminated by the heartbeat death timer",
		},
	)

	AttachmentsStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harbor_attachments_stored_total",
			Help: "Attachment blobs written to the upload store",
		},
	)
)

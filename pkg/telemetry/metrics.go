// Package telemetry exposes Prometheus collectors for the chat session
// layer. Everything is registered on the default registry and served by the
// /metrics endpoint.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SubscriptionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "meshchat_subscriptions_active",
		Help: "Live sync subscriptions currently registered against the store.",
	})

	MessagesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meshchat_messages_created_total",
		Help: "Messages created by the local session.",
	})

	MessagesNormalized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meshchat_messages_normalized_total",
		Help: "Legacy-schema messages upgraded to the canonical schema.",
	})

	RoomsArchived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meshchat_rooms_archived_total",
		Help: "Rooms archived by the local session.",
	})

	DocsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meshchat_docs_evicted_total",
		Help: "Documents evicted from the local replica.",
	})

	AttachmentBytesStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meshchat_attachment_bytes_stored_total",
		Help: "Attachment payload bytes written to the attachment store.",
	})
)

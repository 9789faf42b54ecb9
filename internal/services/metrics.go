package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Dispatch and webhook counters. Registered on the default registry, exposed
// by the /metrics endpoint.
var (
	messagesSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wa_messages_sent_total",
		Help: "Messages successfully handed to the WhatsApp gateway.",
	})

	messagesFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wa_messages_failed_total",
		Help: "Messages that entered the failed state during dispatch.",
	})

	dispatchSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wa_dispatch_skipped_total",
		Help: "Due messages skipped before a send attempt, by reason.",
	}, []string{"reason"})

	webhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wa_webhook_events_total",
		Help: "Inbound webhook events received, by event kind.",
	}, []string{"event"})

	acksAppliedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wa_acks_applied_total",
		Help: "Delivery ACKs applied to a message, by resulting status.",
	}, []string{"status"})

	acksDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wa_acks_dropped_total",
		Help: "Delivery ACKs dropped because no message matched the reference.",
	})

	confirmationsResolvedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wa_confirmations_resolved_total",
		Help: "Confirmations resolved from inbound replies, by verdict.",
	}, []string{"verdict"})
)

package rabbitmq

import "github.com/relaypoint/notifier/internal/domain"

// Subjects carried on the notifications topic exchange. Every stage consumes
// from a durable queue bound to exactly one of these routing keys.
const (
	SubjectEvents   = "notifications.events"
	SubjectEnriched = "notifications.enriched"
	SubjectDLQ      = "notifications.dlq"

	subjectRoutedPrefix   = "notifications.routed."
	subjectDeliveryPrefix = "notifications.delivery."
)

// Durable queue names per consumer.
const (
	QueueIngestion   = "ingestion-consumer"
	QueuePreferences = "preferences-consumer"
	QueueDLQ         = "notifications-dlq"
)

// HeaderAttempt carries the redelivery count across republishes. It is 0 on
// first delivery (header absent).
const HeaderAttempt = "x-attempt"

// RoutedSubject returns the per-channel routed routing key.
func RoutedSubject(ch domain.Channel) string { return subjectRoutedPrefix + string(ch) }

// DeliverySubject returns the per-channel delivery routing key.
func DeliverySubject(ch domain.Channel) string { return subjectDeliveryPrefix + string(ch) }

// RouterQueue returns the renderer's durable queue name for a channel.
func RouterQueue(ch domain.Channel) string { return "router-" + string(ch) + "-consumer" }

// WorkerQueue returns the delivery worker's durable queue name for a channel.
func WorkerQueue(ch domain.Channel) string { return string(ch) + "-worker-consumer" }

package analytics

const channelSummarySQL = `
SELECT channel,
       COUNT(*) AS total,
       COUNT(*) FILTER (WHERE status = 'delivered') AS delivered,
       COUNT(*) FILTER (WHERE status = 'failed') AS failed,
       COALESCE(AVG(attempt_count), 0) AS avg_attempts
FROM notification_deliveries
WHERE created_at >= $1
GROUP BY channel
`

const topEventTypesSQL = `
SELECT event_type, COUNT(*) AS total
FROM notification_deliveries
WHERE created_at >= $1
GROUP BY event_type
ORDER BY total DESC, event_type
LIMIT $2
`

const userDeliveriesSQL = `
SELECT id, user_id, channel, event_type, event_id, status,
       attempt_count, metadata, error, created_at, updated_at, delivered_at
FROM notification_deliveries
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2
`

const failedDeliveriesSQL = `
SELECT id, user_id, channel, event_type, event_id, status,
       attempt_count, metadata, error, created_at, updated_at, delivered_at
FROM notification_deliveries
WHERE status = 'failed'
ORDER BY created_at DESC
LIMIT $1
`

const eventDeliveriesSQL = `
SELECT id, user_id, channel, event_type, event_id, status,
       attempt_count, metadata, error, created_at, updated_at, delivered_at
FROM notification_deliveries
WHERE event_id = $1
ORDER BY created_at ASC
`

package postgres

const getUserSQL = `
SELECT id, email, phone, push_tokens, created_at, updated_at
FROM users WHERE id = $1
`

const getPreferenceSQL = `
SELECT id, user_id, channel, event_type, enabled,
       quiet_hours_start, quiet_hours_end, created_at, updated_at
FROM notification_preferences
WHERE user_id = $1 AND channel = $2 AND event_type = $3
`

const getTemplateSQL = `
SELECT id, channel, event_type, subject, body, variables, created_at, updated_at
FROM notification_templates
WHERE channel = $1 AND event_type = $2
`

const insertDeliverySQL = `
INSERT INTO notification_deliveries (
  id, user_id, channel, event_type, event_id, status,
  attempt_count, metadata, error, created_at, updated_at, delivered_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`

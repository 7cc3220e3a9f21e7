// Package analytics reads delivery outcomes back out of the audit table.
// It never writes; the delivery workers own the rows.
package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/relaypoint/notifier/internal/domain"
)

// topEventTypeLimit caps the event-type breakdown in a summary.
const topEventTypeLimit = 10

// ChannelMetrics aggregates one channel's outcomes inside the period.
type ChannelMetrics struct {
	Total       int     `json:"total"`
	Delivered   int     `json:"delivered"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
	AvgAttempts float64 `json:"avg_attempts"`
}

// EventTypeCount is one row of the event-type breakdown.
type EventTypeCount struct {
	EventType string `json:"event_type"`
	Count     int    `json:"count"`
}

// Summary is the period-wide delivery report.
type Summary struct {
	Period          string                    `json:"period"`
	TotalDeliveries int                       `json:"total_deliveries"`
	SuccessRate     float64                   `json:"success_rate"`
	ChannelMetrics  map[string]ChannelMetrics `json:"channel_metrics"`
	TopEventTypes   []EventTypeCount          `json:"top_event_types"`
}

// Reader serves analytics queries over the delivery audit table.
type Reader struct {
	db  *sql.DB
	now func() time.Time
}

// NewReader builds a reader on the shared pool.
func NewReader(db *sql.DB) *Reader {
	return &Reader{db: db, now: time.Now}
}

// Summary aggregates deliveries over the trailing periodHours.
func (r *Reader) Summary(ctx context.Context, periodHours int) (*Summary, error) {
	if periodHours <= 0 {
		periodHours = 24
	}
	since := r.now().UTC().Add(-time.Duration(periodHours) * time.Hour)

	out := &Summary{
		Period:         fmt.Sprintf("%dh", periodHours),
		ChannelMetrics: make(map[string]ChannelMetrics),
	}

	rows, err := r.db.QueryContext(ctx, channelSummarySQL, since)
	if err != nil {
		return nil, fmt.Errorf("channel summary: %w", err)
	}
	defer rows.Close()

	var totalDelivered int
	for rows.Next() {
		var channel string
		var m ChannelMetrics
		var avg float64
		if err := rows.Scan(&channel, &m.Total, &m.Delivered, &m.Failed, &avg); err != nil {
			return nil, fmt.Errorf("scan channel summary: %w", err)
		}
		m.AvgAttempts = round2(avg)
		if m.Total > 0 {
			m.SuccessRate = round2(float64(m.Delivered) / float64(m.Total) * 100)
		}
		out.ChannelMetrics[channel] = m
		out.TotalDeliveries += m.Total
		totalDelivered += m.Delivered
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("channel summary rows: %w", err)
	}

	if out.TotalDeliveries > 0 {
		out.SuccessRate = round2(float64(totalDelivered) / float64(out.TotalDeliveries) * 100)
	}

	top, err := r.topEventTypes(ctx, since)
	if err != nil {
		return nil, err
	}
	out.TopEventTypes = top
	return out, nil
}

func (r *Reader) topEventTypes(ctx context.Context, since time.Time) ([]EventTypeCount, error) {
	rows, err := r.db.QueryContext(ctx, topEventTypesSQL, since, topEventTypeLimit)
	if err != nil {
		return nil, fmt.Errorf("top event types: %w", err)
	}
	defer rows.Close()

	var out []EventTypeCount
	for rows.Next() {
		var c EventTypeCount
		if err := rows.Scan(&c.EventType, &c.Count); err != nil {
			return nil, fmt.Errorf("scan event type count: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("top event type rows: %w", err)
	}
	return out, nil
}

// UserDeliveries returns a user's delivery history, newest first.
func (r *Reader) UserDeliveries(ctx context.Context, userID string, limit int) ([]domain.Delivery, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.queryDeliveries(ctx, userDeliveriesSQL, userID, limit)
}

// FailedDeliveries returns the most recent dead-lettered deliveries.
func (r *Reader) FailedDeliveries(ctx context.Context, limit int) ([]domain.Delivery, error) {
	if limit <= 0 {
		limit = 50
	}
	return r.queryDeliveries(ctx, failedDeliveriesSQL, limit)
}

// DeliveriesByEventID returns every attempt trail for one event, oldest
// first, so the per-channel fan-out reads in order.
func (r *Reader) DeliveriesByEventID(ctx context.Context, eventID string) ([]domain.Delivery, error) {
	return r.queryDeliveries(ctx, eventDeliveriesSQL, eventID)
}

func (r *Reader) queryDeliveries(ctx context.Context, query string, args ...any) ([]domain.Delivery, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	defer rows.Close()

	var out []domain.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("delivery rows: %w", err)
	}
	return out, nil
}

func scanDelivery(rows *sql.Rows) (*domain.Delivery, error) {
	var d domain.Delivery
	var channel, eventType, status string
	var metadata []byte
	var errMsg sql.NullString
	var deliveredAt sql.NullTime

	if err := rows.Scan(
		&d.ID, &d.UserID, &channel, &eventType, &d.EventID, &status,
		&d.AttemptCount, &metadata, &errMsg, &d.CreatedAt, &d.UpdatedAt, &deliveredAt,
	); err != nil {
		return nil, fmt.Errorf("scan delivery: %w", err)
	}

	d.Channel = domain.Channel(channel)
	d.EventType = domain.EventType(eventType)
	d.Status = domain.DeliveryStatus(status)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &d.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	if errMsg.Valid {
		d.Error = errMsg.String
	}
	if deliveredAt.Valid {
		t := deliveredAt.Time
		d.DeliveredAt = &t
	}
	return &d, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

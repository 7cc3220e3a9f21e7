package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/relaypoint/notifier/internal/domain"
)

// DeliveryRepo writes delivery audit rows.
type DeliveryRepo struct {
	db *sql.DB
}

func NewDeliveryRepo(db *sql.DB) *DeliveryRepo { return &DeliveryRepo{db: db} }

// Insert writes one audit row. A missing ID and timestamps are filled in;
// rows are append-only.
func (r *DeliveryRepo) Insert(ctx context.Context, d *domain.Delivery) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	if d.UpdatedAt.IsZero() {
		d.UpdatedAt = now
	}

	var metadata any
	if d.Metadata != nil {
		raw, err := json.Marshal(d.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		metadata = raw
	}

	var errMsg any
	if d.Error != "" {
		errMsg = d.Error
	}

	var deliveredAt any
	if d.DeliveredAt != nil {
		deliveredAt = *d.DeliveredAt
	}

	_, err := r.db.ExecContext(ctx, insertDeliverySQL,
		d.ID, d.UserID, string(d.Channel), string(d.EventType), d.EventID,
		string(d.Status), d.AttemptCount, metadata, errMsg,
		d.CreatedAt, d.UpdatedAt, deliveredAt,
	)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

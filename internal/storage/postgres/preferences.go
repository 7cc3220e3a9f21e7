package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/relaypoint/notifier/internal/domain"
)

// PreferenceRepo reads delivery preferences.
type PreferenceRepo struct {
	db *sql.DB
}

func NewPreferenceRepo(db *sql.DB) *PreferenceRepo { return &PreferenceRepo{db: db} }

// Get returns the preference row for (user, channel, event_type) or
// domain.ErrNotFound when none exists.
func (r *PreferenceRepo) Get(ctx context.Context, userID string, channel domain.Channel, eventType domain.EventType) (*domain.Preference, error) {
	row := r.db.QueryRowContext(ctx, getPreferenceSQL, userID, string(channel), string(eventType))

	var p domain.Preference
	var ch, et string
	var start, end sql.NullString
	err := row.Scan(&p.ID, &p.UserID, &ch, &et, &p.Enabled, &start, &end, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	p.Channel = domain.Channel(ch)
	p.EventType = domain.EventType(et)
	p.QuietHoursStart = start.String
	p.QuietHoursEnd = end.String
	return &p, nil
}

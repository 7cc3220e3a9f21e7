package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/relaypoint/notifier/internal/domain"
)

// TemplateRepo reads rendering templates.
type TemplateRepo struct {
	db *sql.DB
}

func NewTemplateRepo(db *sql.DB) *TemplateRepo { return &TemplateRepo{db: db} }

// Get returns the template for (channel, event_type) or domain.ErrNotFound.
func (r *TemplateRepo) Get(ctx context.Context, channel domain.Channel, eventType domain.EventType) (*domain.Template, error) {
	row := r.db.QueryRowContext(ctx, getTemplateSQL, string(channel), string(eventType))

	var t domain.Template
	var ch, et string
	var subject sql.NullString
	var variables []byte
	err := row.Scan(&t.ID, &ch, &et, &subject, &t.Body, &variables, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	t.Channel = domain.Channel(ch)
	t.EventType = domain.EventType(et)
	t.Subject = subject.String
	if len(variables) > 0 {
		if err := json.Unmarshal(variables, &t.Variables); err != nil {
			return nil, fmt.Errorf("decode variables: %w", err)
		}
	}
	return &t, nil
}

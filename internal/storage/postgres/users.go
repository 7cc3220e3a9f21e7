package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/relaypoint/notifier/internal/domain"
)

// UserRepo reads recipients. The submission layer owns writes.
type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

// GetByID returns a user or domain.ErrNotFound.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, getUserSQL, id)

	var u domain.User
	var phone sql.NullString
	var tokens []byte
	err := row.Scan(&u.ID, &u.Email, &phone, &tokens, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	u.Phone = phone.String
	if len(tokens) > 0 {
		if err := json.Unmarshal(tokens, &u.PushTokens); err != nil {
			return nil, fmt.Errorf("decode push_tokens: %w", err)
		}
	}
	return &u, nil
}

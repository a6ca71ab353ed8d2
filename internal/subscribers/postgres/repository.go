// Package postgres provides PostgreSQL storage for email subscribers.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements subscribers.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// UpsertSubscriber stores an address, ignoring duplicates.
func (r *Repository) UpsertSubscriber(ctx context.Context, email string) error {
	query := `
		INSERT INTO subscribers (email)
		VALUES ($1)
		ON CONFLICT (email) DO NOTHING
	`
	if _, err := r.db.Exec(ctx, query, email); err != nil {
		return fmt.Errorf("upsert subscriber: %w", err)
	}
	return nil
}

// DeleteSubscriber removes an address. Deleting an absent address is not an error.
func (r *Repository) DeleteSubscriber(ctx context.Context, email string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM subscribers WHERE email = $1`, email); err != nil {
		return fmt.Errorf("delete subscriber: %w", err)
	}
	return nil
}

// LoadSubscribers returns all stored addresses, oldest first.
func (r *Repository) LoadSubscribers(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT email FROM subscribers ORDER BY created_at, email`)
	if err != nil {
		return nil, fmt.Errorf("load subscribers: %w", err)
	}

	emails, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan subscribers: %w", err)
	}
	return emails, nil
}

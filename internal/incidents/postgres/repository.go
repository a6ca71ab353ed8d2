// Package postgres provides PostgreSQL storage for observed incidents.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/incident-radar/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no incident has the requested id.
var ErrNotFound = errors.New("incident not found")

// Repository records every incident seen in a snapshot.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

const upsertIncidentQuery = `
	INSERT INTO incidents (
		id, provider, source, title, summary, status, severity, link, published_at,
		first_seen_at, last_seen_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
	ON CONFLICT (id) DO UPDATE SET
		provider     = EXCLUDED.provider,
		source       = EXCLUDED.source,
		title        = EXCLUDED.title,
		summary      = EXCLUDED.summary,
		status       = EXCLUDED.status,
		severity     = EXCLUDED.severity,
		link         = EXCLUDED.link,
		published_at = EXCLUDED.published_at,
		last_seen_at = NOW()
`

// UpsertIncidents writes the incidents in one batch inside a transaction.
// first_seen_at is kept from the first insert.
func (r *Repository) UpsertIncidents(ctx context.Context, incidents []domain.Incident) error {
	if len(incidents) == 0 {
		return nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	seen := make(map[string]struct{}, len(incidents))
	for _, inc := range incidents {
		// fallback ids can collide; the first occurrence wins, as in the snapshot
		if _, dup := seen[inc.ID]; dup {
			continue
		}
		seen[inc.ID] = struct{}{}

		batch.Queue(upsertIncidentQuery,
			inc.ID,
			inc.Provider,
			inc.Source,
			inc.Title,
			inc.Summary,
			string(inc.Status),
			string(inc.Severity),
			inc.Link,
			inc.PublishedAt,
		)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert incidents: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// StoredIncident is an incident with its observation window.
type StoredIncident struct {
	domain.Incident
	FirstSeenAt time.Time
	LastSeenAt  time.Time
}

// GetIncident returns one stored incident by id.
func (r *Repository) GetIncident(ctx context.Context, id string) (*StoredIncident, error) {
	query := `
		SELECT id, provider, source, title, summary, status, severity, link, published_at,
		       first_seen_at, last_seen_at
		FROM incidents
		WHERE id = $1
	`
	var (
		inc              StoredIncident
		status, severity string
	)
	err := r.db.QueryRow(ctx, query, id).Scan(
		&inc.ID,
		&inc.Provider,
		&inc.Source,
		&inc.Title,
		&inc.Summary,
		&status,
		&severity,
		&inc.Link,
		&inc.PublishedAt,
		&inc.FirstSeenAt,
		&inc.LastSeenAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get incident: %w", err)
	}
	inc.Status = domain.IncidentStatus(status)
	inc.Severity = domain.Severity(severity)
	return &inc, nil
}

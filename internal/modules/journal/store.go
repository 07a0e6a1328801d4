// README: Journal store backed by PostgreSQL.
package journal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the journal table when it does not exist yet. The
// daemon calls this once at startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS dispatch_events (
            id BIGSERIAL PRIMARY KEY,
            kind TEXT NOT NULL,
            request_id TEXT NOT NULL DEFAULT '',
            driver_id TEXT NOT NULL DEFAULT '',
            proposal_id TEXT NOT NULL DEFAULT '',
            detail JSONB,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`)
	return err
}

func (s *Store) Append(ctx context.Context, e *Event) error {
	detail := "{}"
	if e.Detail != nil {
		if b, err := json.Marshal(e.Detail); err == nil {
			detail = string(b)
		}
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx, `
        INSERT INTO dispatch_events (kind, request_id, driver_id, proposal_id, detail, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		e.Kind, e.RequestID, e.DriverID, e.ProposalID, detail, created,
	)
	return err
}

package postgres

import (
	"context"
	"database/sql"
	"fmt"

	audit "brickvault/pkg/platform/audit"

	"github.com/google/uuid"
)

// Schema creates the audit_events table. Applied at startup alongside the
// other store schemas.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_events (
	id UUID PRIMARY KEY,
	occurred_at TIMESTAMPTZ NOT NULL,
	action TEXT NOT NULL,
	actor TEXT NOT NULL DEFAULT '',
	subject TEXT NOT NULL DEFAULT '',
	reason TEXT NOT NULL DEFAULT '',
	tx_hash TEXT NOT NULL DEFAULT '',
	request_id TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_audit_events_subject ON audit_events (subject, occurred_at);
CREATE INDEX IF NOT EXISTS idx_audit_events_action ON audit_events (action, occurred_at);
`

// Store persists audit events to PostgreSQL. The table is append-only; there
// are no update or delete paths.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	const q = `
		INSERT INTO audit_events (id, occurred_at, action, actor, subject, reason, tx_hash, request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.db.ExecContext(ctx, q,
		uuid.NewString(),
		event.Timestamp,
		event.Action,
		event.Actor,
		event.Subject,
		event.Reason,
		event.TxHash,
		event.RequestID,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

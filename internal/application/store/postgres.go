package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/lib/pq"

	"brickvault/internal/application/models"
	"brickvault/internal/ledger"
	"brickvault/pkg/platform/sentinel"
)

// uniqueViolation is the postgres error code raised when the live-application
// unique index rejects a concurrent duplicate insert.
const uniqueViolation = "23505"

// Postgres persists application records and document bytes. Status is stored
// in the string encoding; the codec in the ledger package is the only place
// that encoding is interpreted.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Schema is applied by deployments (and the integration tests) before use.
const Schema = `
CREATE TABLE IF NOT EXISTS publisher_applications (
    application_id    TEXT PRIMARY KEY,
    applicant_address TEXT NOT NULL,
    name              TEXT NOT NULL,
    email             TEXT NOT NULL,
    phone             TEXT NOT NULL DEFAULT '',
    company           TEXT NOT NULL DEFAULT '',
    document_hash     TEXT NOT NULL,
    document_type     TEXT NOT NULL DEFAULT '',
    document          BYTEA NOT NULL,
    status            TEXT NOT NULL,
    submitted_at      TIMESTAMPTZ NOT NULL,
    reviewed_at       TIMESTAMPTZ,
    reviewer_address  TEXT NOT NULL DEFAULT '',
    admin_notes       TEXT NOT NULL DEFAULT '',
    rejection_reason  TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_publisher_applications_applicant
    ON publisher_applications (applicant_address, submitted_at DESC);
CREATE INDEX IF NOT EXISTS idx_publisher_applications_status
    ON publisher_applications (status);
CREATE UNIQUE INDEX IF NOT EXISTS idx_publisher_applications_live
    ON publisher_applications (applicant_address)
    WHERE status IN ('pending', 'approved');
`

// Create inserts a Pending record. The guarded insert rejects a duplicate with
// a clean error; the unique partial index on live (pending/approved) rows is
// what actually serializes concurrent submissions — under READ COMMITTED two
// inserts can both pass the NOT EXISTS check before either commits.
func (s *Postgres) Create(ctx context.Context, record *models.PublisherApplication, document []byte) error {
	const query = `
		INSERT INTO publisher_applications (
			application_id, applicant_address, name, email, phone, company,
			document_hash, document_type, document, status, submitted_at
		)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		WHERE NOT EXISTS (
			SELECT 1 FROM publisher_applications
			WHERE applicant_address = $2 AND status IN ($12, $13)
		)
	`
	result, err := s.db.ExecContext(ctx, query,
		record.ApplicationID,
		record.Applicant.Hex(),
		record.Name, record.Email, record.Phone, record.Company,
		record.DocumentHash, record.DocumentType, document,
		record.Status.StoreValue(), record.SubmittedAt,
		ledger.StatusPending.StoreValue(), ledger.StatusApproved.StoreValue(),
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("pending or approved application exists: %w", sentinel.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("pending or approved application exists: %w", sentinel.ErrConflict)
	}
	return nil
}

const selectColumns = `
	application_id, applicant_address, name, email, phone, company,
	document_hash, document_type, status, submitted_at,
	reviewed_at, reviewer_address, admin_notes, rejection_reason
`

func (s *Postgres) FindByAddress(ctx context.Context, applicant common.Address) (*models.PublisherApplication, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM publisher_applications
		WHERE applicant_address = $1
		ORDER BY submitted_at DESC
		LIMIT 1
	`
	record, err := scanApplication(s.db.QueryRowContext(ctx, query, applicant.Hex()))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("application for %s: %w", applicant, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find application: %w", err)
	}
	return record, nil
}

func (s *Postgres) List(ctx context.Context, filter models.ListFilter) ([]*models.PublisherApplication, error) {
	query := `SELECT ` + selectColumns + ` FROM publisher_applications WHERE 1=1`
	args := []any{}
	if filter.HasStatus {
		args = append(args, filter.Status.StoreValue())
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Applicant != (common.Address{}) {
		args = append(args, filter.Applicant.Hex())
		query += fmt.Sprintf(" AND applicant_address = $%d", len(args))
	}
	query += " ORDER BY submitted_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	var out []*models.PublisherApplication
	for rows.Next() {
		record, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("list applications: %w", err)
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

// UpdateStatus mirrors a confirmed ledger transition onto the newest record.
// reviewed_at is set whenever the new status is not pending.
func (s *Postgres) UpdateStatus(ctx context.Context, applicant common.Address, update models.StatusUpdate) (*models.PublisherApplication, error) {
	query := `
		UPDATE publisher_applications
		SET status = $2,
		    reviewer_address = $3,
		    admin_notes = $4,
		    rejection_reason = $5,
		    reviewed_at = CASE WHEN $2 = $6 THEN reviewed_at ELSE $7 END
		WHERE application_id = (
			SELECT application_id FROM publisher_applications
			WHERE applicant_address = $1
			ORDER BY submitted_at DESC
			LIMIT 1
		)
		RETURNING ` + selectColumns

	reviewer := ""
	if update.Reviewer != (common.Address{}) {
		reviewer = update.Reviewer.Hex()
	}
	record, err := scanApplication(s.db.QueryRowContext(ctx, query,
		applicant.Hex(),
		update.Status.StoreValue(),
		reviewer,
		update.AdminNotes,
		update.RejectionReason,
		ledger.StatusPending.StoreValue(),
		update.ReviewedAt,
	))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("application for %s: %w", applicant, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("update application: %w", err)
	}
	return record, nil
}

func (s *Postgres) Document(ctx context.Context, applicationID string) ([]byte, error) {
	var document []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM publisher_applications WHERE application_id = $1`,
		applicationID,
	).Scan(&document)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("document %s: %w", applicationID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	return document, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApplication(row rowScanner) (*models.PublisherApplication, error) {
	var (
		record       models.PublisherApplication
		applicant    string
		status       string
		reviewedAt   sql.NullTime
		reviewerAddr string
	)
	err := row.Scan(
		&record.ApplicationID, &applicant,
		&record.Name, &record.Email, &record.Phone, &record.Company,
		&record.DocumentHash, &record.DocumentType,
		&status, &record.SubmittedAt,
		&reviewedAt, &reviewerAddr,
		&record.AdminNotes, &record.RejectionReason,
	)
	if err != nil {
		return nil, err
	}
	record.Applicant = common.HexToAddress(applicant)
	record.Status, err = ledger.StatusFromStore(status)
	if err != nil {
		return nil, err
	}
	if reviewedAt.Valid {
		t := reviewedAt.Time
		record.ReviewedAt = &t
	}
	if reviewerAddr != "" {
		record.Reviewer = common.HexToAddress(reviewerAddr)
	}
	return &record, nil
}

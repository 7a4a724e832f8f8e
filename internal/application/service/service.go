// Package service implements the publisher application lifecycle over two
// stores: the ledger (authoritative for status) and the document store
// (authoritative for profile and KYC document). Every status transition is
// confirmed on the ledger before the document store is mirrored; a mirror
// failure is reported as a reconciliation gap, never rolled back.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"brickvault/internal/application/models"
	"brickvault/internal/ledger"
	"brickvault/internal/platform/metrics"
	dErrors "brickvault/pkg/domain-errors"
	audit "brickvault/pkg/platform/audit"
	"brickvault/pkg/platform/sentinel"
	"brickvault/pkg/requestcontext"
)

// Store is the document-store surface the service consumes. Create enforces
// the single-pending and approved-exclusive invariants atomically.
type Store interface {
	Create(ctx context.Context, record *models.PublisherApplication, document []byte) error
	FindByAddress(ctx context.Context, applicant common.Address) (*models.PublisherApplication, error)
	List(ctx context.Context, filter models.ListFilter) ([]*models.PublisherApplication, error)
	UpdateStatus(ctx context.Context, applicant common.Address, update models.StatusUpdate) (*models.PublisherApplication, error)
	Document(ctx context.Context, applicationID string) ([]byte, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service orchestrates publisher application submission, review, withdrawal,
// and dual-store reconciliation.
type Service struct {
	store   Store
	chain   ledger.Client
	logger  *slog.Logger
	auditor AuditPublisher
	metrics *metrics.Metrics

	maxDocumentBytes int64
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithMaxDocumentBytes caps uploaded KYC documents. Zero means no cap.
func WithMaxDocumentBytes(n int64) Option {
	return func(s *Service) {
		s.maxDocumentBytes = n
	}
}

func New(store Store, chain ledger.Client, opts ...Option) *Service {
	s := &Service{
		store:  store,
		chain:  chain,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates the profile and document, writes the off-chain record
// first, then submits the ledger application. The off-chain write leads so a
// confirmed ledger entry always has a matching document; the price of that
// ordering is the unsynced-pending state when the ledger transaction never
// confirms, which Reconcile detects and ClearUnsynced resolves.
func (s *Service) Submit(ctx context.Context, applicant common.Address, profile models.Profile, document []byte, documentType string) (*models.PublisherApplication, error) {
	if applicant == (common.Address{}) {
		return nil, dErrors.New(dErrors.CodeValidation, "applicant address cannot be zero")
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	if len(document) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "application document is required")
	}
	if s.maxDocumentBytes > 0 && int64(len(document)) > s.maxDocumentBytes {
		return nil, dErrors.Newf(dErrors.CodeValidation, "document exceeds %d bytes", s.maxDocumentBytes)
	}

	// Check both stores before any side effect. The ledger is ground truth,
	// but a pending off-chain record also blocks: it may be an unsynced
	// submission awaiting admin resolution.
	if existing, err := s.store.FindByAddress(ctx, applicant); err == nil {
		switch existing.Status {
		case ledger.StatusPending:
			return nil, dErrors.New(dErrors.CodePrecondition, "an application is already pending for this address")
		case ledger.StatusApproved:
			return nil, dErrors.New(dErrors.CodePrecondition, "applicant is already an approved publisher")
		}
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to query application record")
	}

	chainApp, err := s.chain.GetApplication(ctx, applicant)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "ledger read failed")
	}
	if chainApp.Status == ledger.StatusPending || chainApp.Status == ledger.StatusApproved {
		return nil, dErrors.Newf(dErrors.CodePrecondition, "ledger already holds a %s application for this address", chainApp.Status)
	}

	docHash := sha256.Sum256(document)
	record, err := models.NewPublisherApplication(
		uuid.NewString(),
		applicant,
		profile,
		hex.EncodeToString(docHash[:]),
		documentType,
		requestcontext.Now(ctx),
	)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
			return nil, dErrors.New(dErrors.CodeValidation, err.Error())
		}
		return nil, err
	}

	if err := s.store.Create(ctx, record, document); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodePrecondition, "an application already exists for this address")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist application record")
	}

	tx, err := s.chain.ApplyForPublisher(ctx, applicant, record.ApplicationID)
	if err != nil {
		if errors.Is(err, sentinel.ErrReverted) {
			// Gas estimation surfaces some reverts before anything is
			// broadcast. A definite refusal either way: retire the record.
			s.incTxOutcome("apply_for_publisher", "revert")
			s.retireRejected(ctx, applicant, record.ApplicationID)
			return nil, dErrors.Wrap(err, dErrors.CodeLedgerRejected, "ledger rejected the application")
		}
		// The off-chain record now exists without a ledger entry. Leave it
		// pending for Reconcile to surface; resubmission is blocked until an
		// admin clears it.
		s.logGap(ctx, "submit", applicant, record.ApplicationID, err)
		return nil, dErrors.Wrap(err, dErrors.CodeUnsynced, "ledger submission failed; record awaits reconciliation")
	}
	s.incTxSubmitted("apply_for_publisher")

	receipt, err := ledger.AwaitConfirmed(ctx, tx)
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrTimedOut):
			s.incTxOutcome("apply_for_publisher", "timeout")
			s.logGap(ctx, "submit", applicant, record.ApplicationID, err)
			return nil, dErrors.Wrap(err, dErrors.CodeUnsynced, "ledger confirmation timed out; record awaits reconciliation")
		case errors.Is(err, sentinel.ErrReverted):
			s.incTxOutcome("apply_for_publisher", "revert")
			s.retireRejected(ctx, applicant, record.ApplicationID)
			return nil, dErrors.Wrap(err, dErrors.CodeLedgerRejected, "ledger rejected the application")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "ledger confirmation failed")
		}
	}
	s.incTxOutcome("apply_for_publisher", "confirmed")

	if s.metrics != nil {
		s.metrics.ApplicationsSubmitted.Inc()
	}
	s.logAudit(ctx, audit.EventApplicationSubmitted, audit.Event{
		Actor:   applicant.Hex(),
		Subject: applicant.Hex(),
		TxHash:  receipt.TxHash.Hex(),
	})
	s.logger.InfoContext(ctx, "publisher application submitted",
		"applicant", applicant,
		"application_id", record.ApplicationID,
		"tx", receipt.TxHash,
	)
	return record, nil
}

// retireRejected marks the just-created record Withdrawn after a definite
// ledger refusal so it does not block a corrected resubmission.
func (s *Service) retireRejected(ctx context.Context, applicant common.Address, applicationID string) {
	if _, err := s.store.UpdateStatus(ctx, applicant, models.StatusUpdate{
		Status:     ledger.StatusWithdrawn,
		AdminNotes: "ledger rejected the submission",
		ReviewedAt: requestcontext.Now(ctx),
	}); err != nil {
		s.logGap(ctx, "submit", applicant, applicationID, err)
	}
}

// Review approves or rejects a pending application. The caller must hold the
// reviewer role on the ledger; an off-chain flag is never consulted. The
// ledger transition is confirmed first, then mirrored to the document store.
func (s *Service) Review(ctx context.Context, reviewer, applicant common.Address, approve bool, reason, notes string) (*models.PublisherApplication, error) {
	ok, err := s.chain.HasRole(ctx, ledger.RoleReviewer, reviewer)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "ledger role check failed")
	}
	if !ok {
		return nil, dErrors.New(dErrors.CodeForbidden, "reviewer role required")
	}
	if !approve && reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "a rejection requires a reason")
	}

	chainApp, err := s.chain.GetApplication(ctx, applicant)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "ledger read failed")
	}
	switch chainApp.Status {
	case ledger.StatusNone:
		return nil, dErrors.New(dErrors.CodeNotFound, "no application found for this address")
	case ledger.StatusPending:
	default:
		return nil, dErrors.Newf(dErrors.CodePrecondition, "invalid transition: application is %s", chainApp.Status)
	}

	tx, err := s.chain.ReviewPublisherApplication(ctx, reviewer, applicant, approve)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeLedgerRejected, "ledger review submission failed")
	}
	s.incTxSubmitted("review_application")

	receipt, err := ledger.AwaitConfirmed(ctx, tx)
	if err != nil {
		// A timed-out review left no off-chain mutation behind, so unlike a
		// timed-out submission there is nothing to reconcile.
		s.incTxOutcome("review_application", outcomeLabel(err))
		return nil, dErrors.Wrap(err, dErrors.CodeLedgerRejected, "ledger did not confirm the review")
	}
	s.incTxOutcome("review_application", "confirmed")

	status := ledger.StatusApproved
	if !approve {
		status = ledger.StatusRejected
	}
	record := s.mirrorStatus(ctx, "review", applicant, models.StatusUpdate{
		Status:          status,
		Reviewer:        reviewer,
		AdminNotes:      notes,
		RejectionReason: reason,
		ReviewedAt:      requestcontext.Now(ctx),
	})

	event := audit.EventApplicationApproved
	if approve {
		if s.metrics != nil {
			s.metrics.ApplicationsApproved.Inc()
		}
	} else {
		event = audit.EventApplicationRejected
		if s.metrics != nil {
			s.metrics.ApplicationsRejected.Inc()
		}
	}
	s.logAudit(ctx, event, audit.Event{
		Actor:   reviewer.Hex(),
		Subject: applicant.Hex(),
		Reason:  reason,
		TxHash:  receipt.TxHash.Hex(),
	})
	s.logger.InfoContext(ctx, "publisher application reviewed",
		"applicant", applicant,
		"reviewer", reviewer,
		"approved", approve,
		"tx", receipt.TxHash,
	)
	return record, nil
}

// Withdraw retracts the caller's own pending application.
func (s *Service) Withdraw(ctx context.Context, actor, applicant common.Address) (*models.PublisherApplication, error) {
	if actor != applicant {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the applicant may withdraw")
	}

	chainApp, err := s.chain.GetApplication(ctx, applicant)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "ledger read failed")
	}
	switch chainApp.Status {
	case ledger.StatusNone:
		return nil, dErrors.New(dErrors.CodeNotFound, "no application found for this address")
	case ledger.StatusPending:
	default:
		return nil, dErrors.Newf(dErrors.CodePrecondition, "invalid transition: application is %s", chainApp.Status)
	}

	tx, err := s.chain.WithdrawApplication(ctx, applicant)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeLedgerRejected, "ledger withdrawal submission failed")
	}
	s.incTxSubmitted("withdraw_application")

	receipt, err := ledger.AwaitConfirmed(ctx, tx)
	if err != nil {
		s.incTxOutcome("withdraw_application", outcomeLabel(err))
		return nil, dErrors.Wrap(err, dErrors.CodeLedgerRejected, "ledger did not confirm the withdrawal")
	}
	s.incTxOutcome("withdraw_application", "confirmed")

	record := s.mirrorStatus(ctx, "withdraw", applicant, models.StatusUpdate{
		Status:     ledger.StatusWithdrawn,
		ReviewedAt: requestcontext.Now(ctx),
	})

	if s.metrics != nil {
		s.metrics.ApplicationsWithdrawn.Inc()
	}
	s.logAudit(ctx, audit.EventApplicationWithdrawn, audit.Event{
		Actor:   actor.Hex(),
		Subject: applicant.Hex(),
		TxHash:  receipt.TxHash.Hex(),
	})
	return record, nil
}

// Get returns the off-chain record for an applicant.
func (s *Service) Get(ctx context.Context, applicant common.Address) (*models.PublisherApplication, error) {
	record, err := s.store.FindByAddress(ctx, applicant)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no application found for this address")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load application")
	}
	return record, nil
}

// List returns applications matching the filter. Restricted to ledger
// reviewers and admins.
func (s *Service) List(ctx context.Context, actor common.Address, filter models.ListFilter) ([]*models.PublisherApplication, error) {
	if err := s.requireRole(ctx, actor, ledger.RoleReviewer); err != nil {
		return nil, err
	}
	records, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list applications")
	}
	return records, nil
}

// Document returns the stored KYC document. Restricted to ledger admins.
func (s *Service) Document(ctx context.Context, actor common.Address, applicationID string) ([]byte, error) {
	if err := s.requireRole(ctx, actor, ledger.RoleAdmin); err != nil {
		return nil, err
	}
	doc, err := s.store.Document(ctx, applicationID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "document not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load document")
	}
	return doc, nil
}

// Reconcile compares the two stores for one applicant and classifies the
// result. It reports only; resolving a disagreement is a separate, explicit
// admin action.
func (s *Service) Reconcile(ctx context.Context, applicant common.Address) (*models.ReconcileReport, error) {
	offStatus := ledger.StatusNone
	applicationID := ""
	if record, err := s.store.FindByAddress(ctx, applicant); err == nil {
		offStatus = record.Status
		applicationID = record.ApplicationID
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load application record")
	}

	chainApp, err := s.chain.GetApplication(ctx, applicant)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "ledger read failed")
	}

	report := &models.ReconcileReport{
		Outcome:       models.ReconcileConsistent,
		OffChain:      offStatus,
		OnChain:       chainApp.Status,
		ApplicationID: applicationID,
	}
	switch {
	case offStatus == chainApp.Status:
	case chainApp.Status == ledger.StatusNone && offStatus == ledger.StatusPending:
		report.Outcome = models.ReconcileUnsyncedPendingNoChainRecord
	case chainApp.Status == ledger.StatusNone && offStatus != ledger.StatusApproved:
		// A terminal off-chain record with no ledger counterpart is history:
		// a cleared unsynced submission or a ledger-refused one.
	default:
		report.Outcome = models.ReconcileStatusMismatch
	}
	if report.Outcome != models.ReconcileConsistent {
		s.logger.WarnContext(ctx, "store disagreement detected",
			"applicant", applicant,
			"outcome", report.Outcome,
			"off_chain", offStatus,
			"on_chain", chainApp.Status,
		)
	}
	return report, nil
}

// ClearUnsynced retires an off-chain pending record that has no ledger
// counterpart. Restricted to ledger admins; the record is marked withdrawn
// with the admin's notes rather than deleted, preserving the audit trail.
func (s *Service) ClearUnsynced(ctx context.Context, actor, applicant common.Address, notes string) (*models.PublisherApplication, error) {
	if err := s.requireRole(ctx, actor, ledger.RoleAdmin); err != nil {
		return nil, err
	}
	if notes == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "clearing an unsynced record requires notes")
	}

	report, err := s.Reconcile(ctx, applicant)
	if err != nil {
		return nil, err
	}
	if report.Outcome != models.ReconcileUnsyncedPendingNoChainRecord {
		return nil, dErrors.Newf(dErrors.CodePrecondition, "record is not unsynced: %s", report.Outcome)
	}

	record, err := s.store.UpdateStatus(ctx, applicant, models.StatusUpdate{
		Status:     ledger.StatusWithdrawn,
		Reviewer:   actor,
		AdminNotes: notes,
		ReviewedAt: requestcontext.Now(ctx),
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to clear unsynced record")
	}

	s.logAudit(ctx, audit.EventUnsyncedCleared, audit.Event{
		Actor:   actor.Hex(),
		Subject: applicant.Hex(),
		Reason:  notes,
	})
	s.logger.InfoContext(ctx, "unsynced application cleared",
		"applicant", applicant,
		"admin", actor,
	)
	return record, nil
}

func (s *Service) requireRole(ctx context.Context, actor common.Address, role ledger.Role) error {
	ok, err := s.chain.HasRole(ctx, role, actor)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "ledger role check failed")
	}
	if !ok {
		// Admins may do anything reviewers may.
		if role == ledger.RoleReviewer {
			if isAdmin, aerr := s.chain.HasRole(ctx, ledger.RoleAdmin, actor); aerr == nil && isAdmin {
				return nil
			}
		}
		return dErrors.Newf(dErrors.CodeForbidden, "%s required", role)
	}
	return nil
}

// mirrorStatus applies a confirmed ledger transition to the document store.
// A failure here leaves the stores disagreeing; log the gap and return the
// ledger-truth view rather than failing an operation the ledger has already
// committed.
func (s *Service) mirrorStatus(ctx context.Context, op string, applicant common.Address, update models.StatusUpdate) *models.PublisherApplication {
	record, err := s.store.UpdateStatus(ctx, applicant, update)
	if err == nil {
		return record
	}
	s.logGap(ctx, op, applicant, "", err)

	// Best effort: return the pre-update record with the transition applied
	// in memory so the caller sees the committed ledger state. If the store
	// cannot even be read, the caller still gets a record, never nil — the
	// ledger transition is already committed.
	stale, ferr := s.store.FindByAddress(ctx, applicant)
	if ferr != nil {
		s.logGap(ctx, op, applicant, "", ferr)
		stale = &models.PublisherApplication{Applicant: applicant}
	}
	copied := *stale
	copied.Status = update.Status
	copied.Reviewer = update.Reviewer
	copied.AdminNotes = update.AdminNotes
	copied.RejectionReason = update.RejectionReason
	reviewedAt := update.ReviewedAt
	copied.ReviewedAt = &reviewedAt
	return &copied
}

func (s *Service) logGap(ctx context.Context, op string, applicant common.Address, applicationID string, err error) {
	if s.metrics != nil {
		s.metrics.ReconciliationGaps.Inc()
	}
	s.logger.ErrorContext(ctx, "dual-store gap",
		"op", op,
		"applicant", applicant,
		"application_id", applicationID,
		"error", err,
	)
	s.logAudit(ctx, audit.EventReconciliationGap, audit.Event{
		Subject: applicant.Hex(),
		Reason:  op,
	})
}

func (s *Service) logAudit(ctx context.Context, action audit.AuditEvent, event audit.Event) {
	if s.auditor == nil {
		return
	}
	event.Action = string(action)
	event.RequestID = requestcontext.RequestID(ctx)
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "action", action, "error", err)
	}
}

func (s *Service) incTxSubmitted(op string) {
	if s.metrics != nil {
		s.metrics.LedgerTxSubmitted.WithLabelValues(op).Inc()
	}
}

func (s *Service) incTxOutcome(op, outcome string) {
	if s.metrics != nil {
		s.metrics.LedgerTxOutcome.WithLabelValues(op, outcome).Inc()
	}
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, sentinel.ErrReverted):
		return "revert"
	case errors.Is(err, sentinel.ErrTimedOut):
		return "timeout"
	default:
		return "error"
	}
}

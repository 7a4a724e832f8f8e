package models

import (
	"encoding/json"
	"net/mail"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"brickvault/internal/ledger"
	dErrors "brickvault/pkg/domain-errors"
)

// PublisherApplication is the off-chain record of a publisher onboarding
// request. It is an advisory cache: the ledger's application entry is ground
// truth for status, and this record is mutated only after ledger confirmation.
//
// Invariants:
//   - At most one record per applicant has Status=Pending at any time
//     (enforced by the store's Create).
//   - Approved is terminal and exclusive per applicant.
//   - DocumentHash is the content hash binding the record to the uploaded
//     file; it never changes after submission.
type PublisherApplication struct {
	ApplicationID string         `json:"application_id"`
	Applicant     common.Address `json:"applicant_address"`

	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Company string `json:"company,omitempty"`

	DocumentHash string `json:"document_hash"`
	DocumentType string `json:"document_type"`

	Status      ledger.Status `json:"-"`
	SubmittedAt time.Time     `json:"submitted_at"`

	ReviewedAt      *time.Time     `json:"reviewed_at,omitempty"`
	Reviewer        common.Address `json:"reviewer_address,omitempty"`
	AdminNotes      string         `json:"admin_notes,omitempty"`
	RejectionReason string         `json:"rejection_reason,omitempty"`
}

// MarshalJSON renders Status with its store string form so API responses and
// the document store speak the same vocabulary.
func (a PublisherApplication) MarshalJSON() ([]byte, error) {
	type alias PublisherApplication
	return json.Marshal(struct {
		alias
		Status string `json:"status"`
	}{alias: alias(a), Status: a.Status.StoreValue()})
}

// Profile carries the applicant-supplied identity fields.
type Profile struct {
	Name    string
	Email   string
	Phone   string
	Company string
}

// Validate rejects malformed profiles before any side effect.
func (p Profile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	if len(p.Name) > 128 {
		return dErrors.New(dErrors.CodeValidation, "name must be 128 characters or less")
	}
	if strings.TrimSpace(p.Email) == "" {
		return dErrors.New(dErrors.CodeValidation, "email is required")
	}
	if _, err := mail.ParseAddress(p.Email); err != nil {
		return dErrors.New(dErrors.CodeValidation, "email is not a valid address")
	}
	if len(p.Company) > 256 {
		return dErrors.New(dErrors.CodeValidation, "company must be 256 characters or less")
	}
	return nil
}

// NewPublisherApplication builds a Pending record. The caller supplies the
// already-computed content hash of the uploaded document.
func NewPublisherApplication(applicationID string, applicant common.Address, profile Profile, documentHash, documentType string, now time.Time) (*PublisherApplication, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	if applicant == (common.Address{}) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "applicant address cannot be zero")
	}
	if documentHash == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "document hash cannot be empty")
	}
	return &PublisherApplication{
		ApplicationID: applicationID,
		Applicant:     applicant,
		Name:          strings.TrimSpace(profile.Name),
		Email:         strings.TrimSpace(profile.Email),
		Phone:         strings.TrimSpace(profile.Phone),
		Company:       strings.TrimSpace(profile.Company),
		DocumentHash:  documentHash,
		DocumentType:  documentType,
		Status:        ledger.StatusPending,
		SubmittedAt:   now,
	}, nil
}

// CanReview checks the Pending precondition for a reviewer transition.
func (a *PublisherApplication) CanReview() error {
	if a.Status != ledger.StatusPending {
		return dErrors.Newf(dErrors.CodeInvariantViolation, "invalid transition: application is %s", a.Status)
	}
	return nil
}

// ApplyReview records a confirmed ledger review outcome on the cache record.
func (a *PublisherApplication) ApplyReview(approve bool, reviewer common.Address, reason, notes string, now time.Time) {
	if approve {
		a.Status = ledger.StatusApproved
	} else {
		a.Status = ledger.StatusRejected
		a.RejectionReason = reason
	}
	a.Reviewer = reviewer
	a.AdminNotes = notes
	a.ReviewedAt = &now
}

// ApplyWithdrawal records a confirmed withdrawal.
func (a *PublisherApplication) ApplyWithdrawal(now time.Time) {
	a.Status = ledger.StatusWithdrawn
	a.ReviewedAt = &now
}

// StatusUpdate is the mirror write applied after a confirmed ledger
// transition, or by the admin clear-unsynced flow.
type StatusUpdate struct {
	Status          ledger.Status
	Reviewer        common.Address
	AdminNotes      string
	RejectionReason string
	ReviewedAt      time.Time
}

// ListFilter narrows List queries. Zero values mean "any".
type ListFilter struct {
	Status    ledger.Status
	HasStatus bool
	Applicant common.Address
}

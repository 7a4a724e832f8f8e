// Package store persists the off-chain publisher application records and the
// uploaded KYC documents. The memory implementation backs unit tests and dev
// mode; postgres is production.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"brickvault/internal/application/models"
	"brickvault/internal/ledger"
	"brickvault/pkg/platform/sentinel"
)

// Memory keeps full per-applicant history; the newest record is the advisory
// cache the service reads.
type Memory struct {
	mu        sync.RWMutex
	records   map[common.Address][]*models.PublisherApplication
	documents map[string][]byte

	// failUpdates forces UpdateStatus to fail, for exercising the
	// mirror-write gap path in service tests.
	failUpdates bool
}

func NewMemory() *Memory {
	return &Memory{
		records:   make(map[common.Address][]*models.PublisherApplication),
		documents: make(map[string][]byte),
	}
}

// FailUpdates makes every subsequent UpdateStatus return an error.
func (s *Memory) FailUpdates(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failUpdates = fail
}

func (s *Memory) Create(_ context.Context, record *models.PublisherApplication, document []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.records[record.Applicant] {
		if existing.Status == ledger.StatusPending {
			return fmt.Errorf("pending application exists: %w", sentinel.ErrConflict)
		}
		if existing.Status == ledger.StatusApproved {
			return fmt.Errorf("applicant already approved: %w", sentinel.ErrConflict)
		}
	}

	clone := *record
	s.records[record.Applicant] = append(s.records[record.Applicant], &clone)
	s.documents[record.ApplicationID] = append([]byte(nil), document...)
	return nil
}

func (s *Memory) FindByAddress(_ context.Context, applicant common.Address) (*models.PublisherApplication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.records[applicant]
	if len(history) == 0 {
		return nil, fmt.Errorf("application for %s: %w", applicant, sentinel.ErrNotFound)
	}
	clone := *history[len(history)-1]
	return &clone, nil
}

func (s *Memory) List(_ context.Context, filter models.ListFilter) ([]*models.PublisherApplication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.PublisherApplication
	for applicant, history := range s.records {
		if filter.Applicant != (common.Address{}) && filter.Applicant != applicant {
			continue
		}
		for _, record := range history {
			if filter.HasStatus && record.Status != filter.Status {
				continue
			}
			clone := *record
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (s *Memory) UpdateStatus(_ context.Context, applicant common.Address, update models.StatusUpdate) (*models.PublisherApplication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failUpdates {
		return nil, fmt.Errorf("document store write failed: %w", sentinel.ErrUnavailable)
	}

	history := s.records[applicant]
	if len(history) == 0 {
		return nil, fmt.Errorf("application for %s: %w", applicant, sentinel.ErrNotFound)
	}
	record := history[len(history)-1]
	record.Status = update.Status
	record.Reviewer = update.Reviewer
	record.AdminNotes = update.AdminNotes
	record.RejectionReason = update.RejectionReason
	if update.Status != ledger.StatusPending {
		reviewedAt := update.ReviewedAt
		record.ReviewedAt = &reviewedAt
	}
	clone := *record
	return &clone, nil
}

func (s *Memory) Document(_ context.Context, applicationID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	document, ok := s.documents[applicationID]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", applicationID, sentinel.ErrNotFound)
	}
	return append([]byte(nil), document...), nil
}

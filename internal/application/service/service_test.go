package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/suite"

	"brickvault/internal/application/models"
	"brickvault/internal/application/store"
	"brickvault/internal/ledger"
	ledgermem "brickvault/internal/ledger/memory"
	dErrors "brickvault/pkg/domain-errors"
	auditpub "brickvault/pkg/platform/audit/publisher"
	auditmem "brickvault/pkg/platform/audit/store/memory"
	"brickvault/pkg/platform/sentinel"
)

var (
	applicant = common.HexToAddress("0x00000000000000000000000000000000000000B1")
	reviewer  = common.HexToAddress("0x00000000000000000000000000000000000000A1")
	admin     = common.HexToAddress("0x00000000000000000000000000000000000000AD")
	stranger  = common.HexToAddress("0x00000000000000000000000000000000000000FF")
)

type ApplicationServiceSuite struct {
	suite.Suite
	docs    *store.Memory
	chain   *ledgermem.Ledger
	audits  *auditmem.InMemoryStore
	service *Service
}

func TestApplicationServiceSuite(t *testing.T) {
	suite.Run(t, new(ApplicationServiceSuite))
}

func (s *ApplicationServiceSuite) SetupTest() {
	s.docs = store.NewMemory()
	s.chain = ledgermem.New()
	s.chain.GrantRole(ledger.RoleReviewer, reviewer)
	s.chain.GrantRole(ledger.RoleAdmin, admin)
	s.audits = auditmem.New()

	s.service = New(s.docs, s.chain,
		WithAuditPublisher(auditpub.New(s.audits)),
		WithMaxDocumentBytes(1<<20),
	)
}

func validProfile() models.Profile {
	return models.Profile{Name: "Acme Estates", Email: "ops@acme.example", Company: "Acme"}
}

func (s *ApplicationServiceSuite) submit() *models.PublisherApplication {
	record, err := s.service.Submit(context.Background(), applicant, validProfile(), []byte("kyc-doc"), "application/pdf")
	s.Require().NoError(err)
	return record
}

func (s *ApplicationServiceSuite) TestSubmit() {
	ctx := context.Background()

	s.Run("valid submission lands in both stores", func() {
		record := s.submit()
		s.Equal(ledger.StatusPending, record.Status)
		s.NotEmpty(record.ApplicationID)
		s.Len(record.DocumentHash, 64)

		chainApp, err := s.chain.GetApplication(ctx, applicant)
		s.Require().NoError(err)
		s.Equal(ledger.StatusPending, chainApp.Status)
		s.Equal(record.ApplicationID, chainApp.ApplicationID)

		stored, err := s.docs.FindByAddress(ctx, applicant)
		s.Require().NoError(err)
		s.Equal(record.ApplicationID, stored.ApplicationID)

		events := s.audits.BySubject(applicant.Hex())
		s.Require().Len(events, 1)
		s.Equal("application_submitted", events[0].Action)
		s.NotEmpty(events[0].TxHash)
	})
}

func (s *ApplicationServiceSuite) TestSubmitValidation() {
	ctx := context.Background()

	s.Run("zero address rejected", func() {
		_, err := s.service.Submit(ctx, common.Address{}, validProfile(), []byte("doc"), "application/pdf")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("missing email rejected", func() {
		p := validProfile()
		p.Email = ""
		_, err := s.service.Submit(ctx, applicant, p, []byte("doc"), "application/pdf")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("empty document rejected", func() {
		_, err := s.service.Submit(ctx, applicant, validProfile(), nil, "application/pdf")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("oversized document rejected before any side effect", func() {
		_, err := s.service.Submit(ctx, applicant, validProfile(), make([]byte, 2<<20), "application/pdf")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		_, err = s.docs.FindByAddress(ctx, applicant)
		s.Error(err)
	})
}

func (s *ApplicationServiceSuite) TestSubmitDuplicate() {
	ctx := context.Background()
	s.submit()

	s.Run("second pending submission blocked", func() {
		_, err := s.service.Submit(ctx, applicant, validProfile(), []byte("doc2"), "application/pdf")
		s.True(dErrors.HasCode(err, dErrors.CodePrecondition))
	})

	s.Run("approved applicant cannot reapply", func() {
		_, err := s.service.Review(ctx, reviewer, applicant, true, "", "looks good")
		s.Require().NoError(err)

		_, err = s.service.Submit(ctx, applicant, validProfile(), []byte("doc3"), "application/pdf")
		s.True(dErrors.HasCode(err, dErrors.CodePrecondition))
	})
}

func (s *ApplicationServiceSuite) TestSubmitUnsynced() {
	ctx := context.Background()

	s.Run("confirmation timeout leaves unsynced pending record", func() {
		s.chain.FailNextTx(ledger.TxTimedOut, "")
		_, err := s.service.Submit(ctx, applicant, validProfile(), []byte("doc"), "application/pdf")
		s.True(dErrors.HasCode(err, dErrors.CodeUnsynced))

		// Off-chain record exists, ledger has nothing.
		report, err := s.service.Reconcile(ctx, applicant)
		s.Require().NoError(err)
		s.Equal(models.ReconcileUnsyncedPendingNoChainRecord, report.Outcome)
	})

	s.Run("resubmission blocked until cleared", func() {
		_, err := s.service.Submit(ctx, applicant, validProfile(), []byte("doc"), "application/pdf")
		s.True(dErrors.HasCode(err, dErrors.CodePrecondition))
	})

	s.Run("non-admin cannot clear", func() {
		_, err := s.service.ClearUnsynced(ctx, stranger, applicant, "notes")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("admin clear retires the record and unblocks resubmission", func() {
		record, err := s.service.ClearUnsynced(ctx, admin, applicant, "tx never confirmed, applicant notified")
		s.Require().NoError(err)
		s.Equal(ledger.StatusWithdrawn, record.Status)
		s.Equal("tx never confirmed, applicant notified", record.AdminNotes)

		report, err := s.service.Reconcile(ctx, applicant)
		s.Require().NoError(err)
		s.Equal(models.ReconcileConsistent, report.Outcome)

		s.submit()
	})
}

func (s *ApplicationServiceSuite) TestSubmitReverted() {
	ctx := context.Background()

	s.chain.FailNextTx(ledger.TxReverted, "application already pending")
	_, err := s.service.Submit(ctx, applicant, validProfile(), []byte("doc"), "application/pdf")
	s.True(dErrors.HasCode(err, dErrors.CodeLedgerRejected))

	// A definite revert retires the off-chain record so a corrected
	// resubmission is not blocked.
	report, rerr := s.service.Reconcile(ctx, applicant)
	s.Require().NoError(rerr)
	s.Equal(models.ReconcileConsistent, report.Outcome)
	s.Equal(ledger.StatusWithdrawn, report.OffChain)

	s.submit()
}

// rejectingChain refuses the first ApplyForPublisher before anything is
// broadcast, the way the EVM adapter surfaces a gas-estimation revert
// synchronously.
type rejectingChain struct {
	*ledgermem.Ledger
	refused bool
}

func (c *rejectingChain) ApplyForPublisher(ctx context.Context, applicant common.Address, applicationID string) (*ledger.PendingTx, error) {
	if !c.refused {
		c.refused = true
		return nil, fmt.Errorf("estimate gas: application already pending: %w", sentinel.ErrReverted)
	}
	return c.Ledger.ApplyForPublisher(ctx, applicant, applicationID)
}

func (s *ApplicationServiceSuite) TestSubmitRevertedBeforeBroadcast() {
	ctx := context.Background()
	svc := New(s.docs, &rejectingChain{Ledger: s.chain}, WithMaxDocumentBytes(1<<20))

	_, err := svc.Submit(ctx, applicant, validProfile(), []byte("doc"), "application/pdf")
	s.True(dErrors.HasCode(err, dErrors.CodeLedgerRejected))

	// A pre-broadcast refusal retires the record like a confirmed revert
	// would, so the corrected resubmission goes through.
	record, err := s.docs.FindByAddress(ctx, applicant)
	s.Require().NoError(err)
	s.Equal(ledger.StatusWithdrawn, record.Status)

	resubmitted, err := svc.Submit(ctx, applicant, validProfile(), []byte("doc"), "application/pdf")
	s.Require().NoError(err)
	s.Equal(ledger.StatusPending, resubmitted.Status)
}

// unreadableStore simulates a document store that is down for both the status
// mirror and the fallback read.
type unreadableStore struct {
	*store.Memory
	down bool
}

func (u *unreadableStore) FindByAddress(ctx context.Context, applicant common.Address) (*models.PublisherApplication, error) {
	if u.down {
		return nil, fmt.Errorf("store unavailable")
	}
	return u.Memory.FindByAddress(ctx, applicant)
}

func (s *ApplicationServiceSuite) TestWithdrawWithStoreDown() {
	ctx := context.Background()
	docs := &unreadableStore{Memory: s.docs}
	svc := New(docs, s.chain, WithMaxDocumentBytes(1<<20))

	_, err := svc.Submit(ctx, applicant, validProfile(), []byte("doc"), "application/pdf")
	s.Require().NoError(err)

	s.docs.FailUpdates(true)
	docs.down = true

	// The ledger transition committed, so the caller gets a record reflecting
	// it even though neither store access worked.
	record, err := svc.Withdraw(ctx, applicant, applicant)
	s.Require().NoError(err)
	s.Require().NotNil(record)
	s.Equal(ledger.StatusWithdrawn, record.Status)
	s.Equal(applicant, record.Applicant)
}

func (s *ApplicationServiceSuite) TestReview() {
	ctx := context.Background()

	s.Run("approve marks both stores", func() {
		s.submit()
		record, err := s.service.Review(ctx, reviewer, applicant, true, "", "docs verified")
		s.Require().NoError(err)
		s.Equal(ledger.StatusApproved, record.Status)
		s.Equal(reviewer, record.Reviewer)
		s.NotNil(record.ReviewedAt)

		chainApp, err := s.chain.GetApplication(ctx, applicant)
		s.Require().NoError(err)
		s.Equal(ledger.StatusApproved, chainApp.Status)
	})

	s.Run("approved is terminal", func() {
		_, err := s.service.Review(ctx, reviewer, applicant, false, "changed my mind", "")
		s.True(dErrors.HasCode(err, dErrors.CodePrecondition))
	})
}

func (s *ApplicationServiceSuite) TestReviewReject() {
	ctx := context.Background()
	s.submit()

	s.Run("rejection requires a reason", func() {
		_, err := s.service.Review(ctx, reviewer, applicant, false, "", "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("rejection records the reason", func() {
		record, err := s.service.Review(ctx, reviewer, applicant, false, "incomplete documents", "")
		s.Require().NoError(err)
		s.Equal(ledger.StatusRejected, record.Status)
		s.Equal("incomplete documents", record.RejectionReason)
	})

	s.Run("rejected applicant may reapply", func() {
		s.submit()
	})
}

func (s *ApplicationServiceSuite) TestReviewAuthorization() {
	ctx := context.Background()
	s.submit()

	s.Run("non-reviewer forbidden", func() {
		_, err := s.service.Review(ctx, stranger, applicant, true, "", "")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("unknown applicant not found", func() {
		_, err := s.service.Review(ctx, reviewer, stranger, true, "", "")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ApplicationServiceSuite) TestReviewMirrorGap() {
	ctx := context.Background()
	s.submit()

	// The ledger transition commits even when the document store write fails;
	// the response reflects ledger truth and the gap is surfaced elsewhere.
	s.docs.FailUpdates(true)
	record, err := s.service.Review(ctx, reviewer, applicant, true, "", "")
	s.Require().NoError(err)
	s.Equal(ledger.StatusApproved, record.Status)

	chainApp, err := s.chain.GetApplication(ctx, applicant)
	s.Require().NoError(err)
	s.Equal(ledger.StatusApproved, chainApp.Status)

	s.docs.FailUpdates(false)
	report, err := s.service.Reconcile(ctx, applicant)
	s.Require().NoError(err)
	s.Equal(models.ReconcileStatusMismatch, report.Outcome)
	s.Equal(ledger.StatusPending, report.OffChain)
	s.Equal(ledger.StatusApproved, report.OnChain)
}

func (s *ApplicationServiceSuite) TestReviewLedgerTimeout() {
	ctx := context.Background()
	s.submit()

	s.chain.FailNextTx(ledger.TxTimedOut, "")
	_, err := s.service.Review(ctx, reviewer, applicant, true, "", "")
	s.True(dErrors.HasCode(err, dErrors.CodeLedgerRejected))

	// An unconfirmed review mutates nothing off-chain.
	report, rerr := s.service.Reconcile(ctx, applicant)
	s.Require().NoError(rerr)
	s.Equal(models.ReconcileConsistent, report.Outcome)
	s.Equal(ledger.StatusPending, report.OffChain)
}

func (s *ApplicationServiceSuite) TestWithdraw() {
	ctx := context.Background()

	s.Run("applicant withdraws own pending application", func() {
		s.submit()
		record, err := s.service.Withdraw(ctx, applicant, applicant)
		s.Require().NoError(err)
		s.Equal(ledger.StatusWithdrawn, record.Status)

		chainApp, err := s.chain.GetApplication(ctx, applicant)
		s.Require().NoError(err)
		s.Equal(ledger.StatusWithdrawn, chainApp.Status)
	})

	s.Run("withdrawn applicant may reapply", func() {
		s.submit()
	})

	s.Run("others cannot withdraw", func() {
		_, err := s.service.Withdraw(ctx, stranger, applicant)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *ApplicationServiceSuite) TestListAndDocument() {
	ctx := context.Background()
	record := s.submit()

	s.Run("list requires reviewer or admin role", func() {
		_, err := s.service.List(ctx, stranger, models.ListFilter{})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

		records, err := s.service.List(ctx, reviewer, models.ListFilter{})
		s.Require().NoError(err)
		s.Len(records, 1)

		records, err = s.service.List(ctx, admin, models.ListFilter{Status: ledger.StatusPending, HasStatus: true})
		s.Require().NoError(err)
		s.Len(records, 1)
	})

	s.Run("document requires admin role", func() {
		_, err := s.service.Document(ctx, reviewer, record.ApplicationID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

		doc, err := s.service.Document(ctx, admin, record.ApplicationID)
		s.Require().NoError(err)
		s.Equal([]byte("kyc-doc"), doc)
	})

	s.Run("unknown document not found", func() {
		_, err := s.service.Document(ctx, admin, "no-such-id")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ApplicationServiceSuite) TestReconcileConsistentWhenEmpty() {
	report, err := s.service.Reconcile(context.Background(), stranger)
	s.Require().NoError(err)
	s.Equal(models.ReconcileConsistent, report.Outcome)
	s.Equal(ledger.StatusNone, report.OffChain)
	s.Equal(ledger.StatusNone, report.OnChain)
}

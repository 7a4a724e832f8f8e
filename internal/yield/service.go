// Package yield manages per-issuance financial accounting: property creation
// and financials, guarantee fund deposits, proportional yield claims, and the
// irreversible closure that the guarantee gate protects.
package yield

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"brickvault/internal/guarantee"
	"brickvault/internal/ledger"
	"brickvault/internal/platform/metrics"
	dErrors "brickvault/pkg/domain-errors"
	audit "brickvault/pkg/platform/audit"
	"brickvault/pkg/platform/sentinel"
	"brickvault/pkg/requestcontext"
)

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// FundingView extends the batched ledger snapshot with the shortfall and a
// suggested top-up sized to the yield accrued since the last deposit.
type FundingView struct {
	PropertyID     uint64   `json:"property_id"`
	Required       *big.Int `json:"required_reserve"`
	Deposited      *big.Int `json:"deposited"`
	Sufficient     bool     `json:"sufficient"`
	Shortfall      *big.Int `json:"shortfall"`
	SuggestedTopUp *big.Int `json:"suggested_top_up"`
}

type Service struct {
	chain   ledger.Client
	logger  *slog.Logger
	auditor AuditPublisher
	metrics *metrics.Metrics
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

func New(chain ledger.Client, opts ...Option) *Service {
	s := &Service{chain: chain, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateProperty registers a new issuance. Only an approved publisher may
// create one; the ledger enforces the same rule, this check just fails fast.
func (s *Service) CreateProperty(ctx context.Context, publisher common.Address, def ledger.PropertyDefinition) (ledger.Property, error) {
	if err := validateDefinition(def); err != nil {
		return ledger.Property{}, err
	}

	app, err := s.chain.GetApplication(ctx, publisher)
	if err != nil {
		return ledger.Property{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "ledger read failed")
	}
	if app.Status != ledger.StatusApproved {
		return ledger.Property{}, dErrors.New(dErrors.CodeForbidden, "only an approved publisher may create a property")
	}

	nextID, err := s.chain.NextPropertyID(ctx)
	if err != nil {
		return ledger.Property{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "ledger read failed")
	}

	tx, err := s.chain.CreateProperty(ctx, publisher, def)
	if err != nil {
		return ledger.Property{}, dErrors.Wrap(err, dErrors.CodeLedgerRejected, "property creation submission failed")
	}
	s.incTxSubmitted("create_property")

	receipt, err := s.await(ctx, "create_property", tx)
	if err != nil {
		return ledger.Property{}, err
	}

	prop, err := s.chain.GetProperty(ctx, nextID)
	if err != nil {
		return ledger.Property{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "created property read failed")
	}

	s.logAudit(ctx, audit.EventPropertyCreated, audit.Event{
		Actor:   publisher.Hex(),
		Subject: subjectProperty(prop.ID),
		TxHash:  receipt.TxHash.Hex(),
	})
	s.logger.InfoContext(ctx, "property created",
		"property_id", prop.ID,
		"publisher", publisher,
		"tx", receipt.TxHash,
	)
	return prop, nil
}

// SetFinancials updates unit price and yield rate for an open issuance.
func (s *Service) SetFinancials(ctx context.Context, actor common.Address, propertyID uint64, unitPriceWei *big.Int, annualYieldBps uint32) error {
	if unitPriceWei == nil || unitPriceWei.Sign() < 0 {
		return dErrors.New(dErrors.CodeValidation, "unit price must be zero or positive")
	}
	if annualYieldBps > guarantee.BpsDenominator {
		return dErrors.New(dErrors.CodeValidation, "annual yield cannot exceed 10000 basis points")
	}

	prop, err := s.ownedOpenProperty(ctx, actor, propertyID)
	if err != nil {
		return err
	}

	tx, err := s.chain.SetPropertyFinancials(ctx, prop.ID, unitPriceWei, annualYieldBps)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeLedgerRejected, "financials submission failed")
	}
	s.incTxSubmitted("set_financials")

	if _, err := s.await(ctx, "set_financials", tx); err != nil {
		return err
	}
	return nil
}

// Deposit adds reward tokens to a property's yield pool. Publisher-only: the
// check here fails fast with Forbidden, and the ledger enforces the same rule.
func (s *Service) Deposit(ctx context.Context, actor common.Address, propertyID uint64, amount *big.Int) (*FundingView, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "deposit amount must be positive")
	}
	prop, err := s.property(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	if prop.Publisher != actor {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the property's publisher may deposit yield")
	}

	tx, err := s.chain.DepositYield(ctx, actor, propertyID, amount)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeLedgerRejected, "deposit submission failed")
	}
	s.incTxSubmitted("deposit_yield")

	receipt, err := s.await(ctx, "deposit_yield", tx)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.YieldDeposits.Inc()
	}
	s.logAudit(ctx, audit.EventYieldDeposited, audit.Event{
		Actor:   actor.Hex(),
		Subject: subjectProperty(propertyID),
		Reason:  amount.String(),
		TxHash:  receipt.TxHash.Hex(),
	})
	return s.Funding(ctx, propertyID)
}

// Claim pays out the caller's proportional share of the pool. The claimable
// amount is read first so the response can report what was paid; the ledger's
// own per-holder accounting remains the double-claim authority.
func (s *Service) Claim(ctx context.Context, holder common.Address, propertyID uint64) (*big.Int, error) {
	if _, err := s.property(ctx, propertyID); err != nil {
		return nil, err
	}

	claimable, err := s.chain.GetClaimableYield(ctx, propertyID, holder)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "claimable read failed")
	}
	if claimable.Sign() == 0 {
		return nil, dErrors.New(dErrors.CodePrecondition, "no claimable yield for this holder")
	}

	tx, err := s.chain.ClaimYield(ctx, holder, propertyID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeLedgerRejected, "claim submission failed")
	}
	s.incTxSubmitted("claim_yield")

	receipt, err := s.await(ctx, "claim_yield", tx)
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.YieldClaims.Inc()
	}
	s.logAudit(ctx, audit.EventYieldClaimed, audit.Event{
		Actor:   holder.Hex(),
		Subject: subjectProperty(propertyID),
		Reason:  claimable.String(),
		TxHash:  receipt.TxHash.Hex(),
	})
	return claimable, nil
}

// Claimable is a read-only projection of a holder's share.
func (s *Service) Claimable(ctx context.Context, propertyID uint64, holder common.Address) (*big.Int, error) {
	if _, err := s.property(ctx, propertyID); err != nil {
		return nil, err
	}
	amount, err := s.chain.GetClaimableYield(ctx, propertyID, holder)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "claimable read failed")
	}
	return amount, nil
}

// Pool returns the property's cumulative deposited balance.
func (s *Service) Pool(ctx context.Context, propertyID uint64) (*big.Int, error) {
	if _, err := s.property(ctx, propertyID); err != nil {
		return nil, err
	}
	pool, err := s.chain.GetYieldPool(ctx, propertyID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "pool read failed")
	}
	return pool, nil
}

// Funding combines the batched ledger snapshot with the shortfall and a
// top-up suggestion covering yield accrued since lastYieldTimestamp.
func (s *Service) Funding(ctx context.Context, propertyID uint64) (*FundingView, error) {
	prop, err := s.property(ctx, propertyID)
	if err != nil {
		return nil, err
	}

	status, err := s.chain.FundingStatus(ctx, propertyID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "funding status read failed")
	}

	var elapsed uint64
	if now := uint64(requestcontext.Now(ctx).Unix()); prop.LastYieldAt > 0 && now > prop.LastYieldAt {
		elapsed = now - prop.LastYieldAt
	}
	return &FundingView{
		PropertyID:     propertyID,
		Required:       status.Required,
		Deposited:      status.Deposited,
		Sufficient:     status.Sufficient,
		Shortfall:      guarantee.Shortfall(status.Deposited, status.Required),
		SuggestedTopUp: guarantee.SuggestedTopUp(prop.MaxSupply, prop.UnitPriceWei, prop.AnnualYieldBps, elapsed),
	}, nil
}

// Close irreversibly ends an issuance. The guarantee gate is checked here to
// fail fast with a precise error; the ledger re-checks it atomically and is
// the final authority.
func (s *Service) Close(ctx context.Context, actor common.Address, propertyID uint64, endTime time.Time) error {
	prop, err := s.ownedOpenProperty(ctx, actor, propertyID)
	if err != nil {
		return err
	}
	if endTime.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "end time is required")
	}

	sufficient, err := s.chain.IsGuaranteeFundSufficient(ctx, propertyID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "sufficiency read failed")
	}
	if !sufficient {
		return dErrors.New(dErrors.CodePrecondition, "guarantee fund is below the required reserve")
	}

	tx, err := s.chain.SetProjectEndTime(ctx, prop.ID, uint64(endTime.Unix()))
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeLedgerRejected, "closure submission failed")
	}
	s.incTxSubmitted("set_project_end_time")

	receipt, err := s.await(ctx, "set_project_end_time", tx)
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.ProjectsClosed.Inc()
	}
	s.logAudit(ctx, audit.EventProjectClosed, audit.Event{
		Actor:   actor.Hex(),
		Subject: subjectProperty(propertyID),
		TxHash:  receipt.TxHash.Hex(),
	})
	s.logger.InfoContext(ctx, "issuance closed",
		"property_id", propertyID,
		"end_time", endTime.Unix(),
		"tx", receipt.TxHash,
	)
	return nil
}

func (s *Service) property(ctx context.Context, propertyID uint64) (ledger.Property, error) {
	prop, err := s.chain.GetProperty(ctx, propertyID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return ledger.Property{}, dErrors.New(dErrors.CodeNotFound, "property not found")
		}
		return ledger.Property{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "ledger read failed")
	}
	return prop, nil
}

// ownedOpenProperty loads the property and requires the actor to be its
// publisher (or a ledger admin) and the issuance to still be open.
func (s *Service) ownedOpenProperty(ctx context.Context, actor common.Address, propertyID uint64) (ledger.Property, error) {
	prop, err := s.property(ctx, propertyID)
	if err != nil {
		return ledger.Property{}, err
	}
	if prop.Publisher != actor {
		isAdmin, aerr := s.chain.HasRole(ctx, ledger.RoleAdmin, actor)
		if aerr != nil {
			return ledger.Property{}, dErrors.Wrap(aerr, dErrors.CodeUnavailable, "ledger role check failed")
		}
		if !isAdmin {
			return ledger.Property{}, dErrors.New(dErrors.CodeForbidden, "only the publisher may manage this property")
		}
	}
	if prop.Closed() {
		return ledger.Property{}, dErrors.New(dErrors.CodePrecondition, "issuance is already closed")
	}
	return prop, nil
}

func (s *Service) await(ctx context.Context, op string, tx *ledger.PendingTx) (*ledger.Receipt, error) {
	receipt, err := ledger.AwaitConfirmed(ctx, tx)
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrReverted):
			s.incTxOutcome(op, "revert")
			return nil, dErrors.Wrap(err, dErrors.CodeLedgerRejected, "ledger rejected the transaction")
		case errors.Is(err, sentinel.ErrTimedOut):
			s.incTxOutcome(op, "timeout")
			return nil, dErrors.Wrap(err, dErrors.CodeLedgerRejected, "ledger did not confirm in time")
		default:
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "ledger confirmation failed")
		}
	}
	s.incTxOutcome(op, "confirmed")
	return receipt, nil
}

func validateDefinition(def ledger.PropertyDefinition) error {
	switch {
	case def.Name == "":
		return dErrors.New(dErrors.CodeValidation, "property name is required")
	case def.MaxSupply == nil || def.MaxSupply.Sign() <= 0:
		return dErrors.New(dErrors.CodeValidation, "max supply must be positive")
	case def.UnitPriceWei == nil || def.UnitPriceWei.Sign() < 0:
		return dErrors.New(dErrors.CodeValidation, "unit price must be zero or positive")
	case def.AnnualYieldBps > guarantee.BpsDenominator:
		return dErrors.New(dErrors.CodeValidation, "annual yield cannot exceed 10000 basis points")
	}
	return nil
}

func subjectProperty(propertyID uint64) string {
	return "property:" + new(big.Int).SetUint64(propertyID).String()
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

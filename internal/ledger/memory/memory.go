// Package memory implements the ledger interface with full contract semantics:
// role table, application state machine, supply accounting, yield pooling, and
// the guarantee-gated closure. It backs unit tests and dev mode.
package memory

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"brickvault/internal/guarantee"
	"brickvault/internal/ledger"
	"brickvault/pkg/platform/sentinel"
)

type propertyState struct {
	prop ledger.Property
	// pool is the cumulative deposited reward-token balance. Claims do not
	// shrink it; per-holder entitlement is derived from it at claim time.
	pool     *big.Int
	holdings map[common.Address]*big.Int
	claimed  map[common.Address]*big.Int
}

// Ledger is an in-memory ledger. Writes resolve their PendingTx immediately,
// with reverts produced by the same rules the contract enforces. FailNextTx
// forces the next write to time out or revert, for exercising the unsynced
// and rejection paths.
type Ledger struct {
	mu sync.Mutex

	roles map[ledger.Role]map[common.Address]bool
	apps  map[common.Address]ledger.Application
	props map[uint64]*propertyState

	nextPropertyID uint64
	txCounter      uint64
	blockNumber    uint64

	forced *ledger.TxResult

	// Clock is injectable for deterministic timestamps in tests.
	Clock func() time.Time
}

var _ ledger.Client = (*Ledger)(nil)

func New() *Ledger {
	return &Ledger{
		roles:          make(map[ledger.Role]map[common.Address]bool),
		apps:           make(map[common.Address]ledger.Application),
		props:          make(map[uint64]*propertyState),
		nextPropertyID: 1,
		Clock:          time.Now,
	}
}

// GrantRole records a capability. Test and seed helper; on the real ledger
// role grants are contract transactions outside this service's scope.
func (l *Ledger) GrantRole(role ledger.Role, account common.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.roles[role] == nil {
		l.roles[role] = make(map[common.Address]bool)
	}
	l.roles[role][account] = true
}

// FailNextTx forces the next submitted write to resolve with the given
// outcome instead of executing. The write's mutation is dropped, exactly as a
// reverted or never-mined transaction leaves no state behind.
func (l *Ledger) FailNextTx(outcome ledger.TxOutcome, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.forced = &ledger.TxResult{Outcome: outcome, RevertReason: reason}
}

// MintTokens increases a holder's balance and the property's total supply,
// bounded by max supply. Test and seed helper standing in for the contract's
// purchase path.
func (l *Ledger) MintTokens(propertyID uint64, holder common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	ps, ok := l.props[propertyID]
	if !ok {
		return sentinel.ErrNotFound
	}
	newSupply := new(big.Int).Add(ps.prop.TotalSupply, amount)
	if newSupply.Cmp(ps.prop.MaxSupply) > 0 {
		return fmt.Errorf("mint exceeds max supply: %w", sentinel.ErrInvalidState)
	}
	ps.prop.TotalSupply = newSupply
	if ps.holdings[holder] == nil {
		ps.holdings[holder] = new(big.Int)
	}
	ps.holdings[holder] = new(big.Int).Add(ps.holdings[holder], amount)
	return nil
}

func (l *Ledger) submit(mutate func() error) (*ledger.PendingTx, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.txCounter++
	tx := ledger.NewPendingTx(common.BigToHash(new(big.Int).SetUint64(l.txCounter)))

	if l.forced != nil {
		result := *l.forced
		l.forced = nil
		tx.Resolve(result)
		return tx, nil
	}

	if err := mutate(); err != nil {
		tx.Resolve(ledger.TxResult{Outcome: ledger.TxReverted, RevertReason: err.Error()})
		return tx, nil
	}

	l.blockNumber++
	tx.Resolve(ledger.TxResult{
		Outcome: ledger.TxConfirmed,
		Receipt: &ledger.Receipt{TxHash: tx.Hash(), BlockNumber: l.blockNumber, GasUsed: 21000},
	})
	return tx, nil
}

func (l *Ledger) HasRole(_ context.Context, role ledger.Role, account common.Address) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.roles[role][account], nil
}

func (l *Ledger) GetApplication(_ context.Context, applicant common.Address) (ledger.Application, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if app, ok := l.apps[applicant]; ok {
		return app, nil
	}
	return ledger.Application{Applicant: applicant, Status: ledger.StatusNone}, nil
}

func (l *Ledger) ApplyForPublisher(_ context.Context, applicant common.Address, applicationID string) (*ledger.PendingTx, error) {
	return l.submit(func() error {
		current := l.apps[applicant].Status
		if !current.CanTransitionTo(ledger.StatusPending) {
			return fmt.Errorf("application already %s", current)
		}
		l.apps[applicant] = ledger.Application{
			Applicant:     applicant,
			ApplicationID: applicationID,
			Status:        ledger.StatusPending,
		}
		return nil
	})
}

func (l *Ledger) ReviewPublisherApplication(_ context.Context, reviewer, applicant common.Address, approve bool) (*ledger.PendingTx, error) {
	return l.submit(func() error {
		if !l.roles[ledger.RoleReviewer][reviewer] {
			return errors.New("missing reviewer role")
		}
		app, ok := l.apps[applicant]
		if !ok || app.Status != ledger.StatusPending {
			return fmt.Errorf("invalid transition from %s", app.Status)
		}
		if approve {
			app.Status = ledger.StatusApproved
		} else {
			app.Status = ledger.StatusRejected
		}
		l.apps[applicant] = app
		return nil
	})
}

func (l *Ledger) WithdrawApplication(_ context.Context, applicant common.Address) (*ledger.PendingTx, error) {
	return l.submit(func() error {
		app, ok := l.apps[applicant]
		if !ok || app.Status != ledger.StatusPending {
			return fmt.Errorf("invalid transition from %s", app.Status)
		}
		app.Status = ledger.StatusWithdrawn
		l.apps[applicant] = app
		return nil
	})
}

func (l *Ledger) NextPropertyID(_ context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nextPropertyID, nil
}

func (l *Ledger) GetProperty(_ context.Context, propertyID uint64) (ledger.Property, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ps, ok := l.props[propertyID]
	if !ok {
		return ledger.Property{}, fmt.Errorf("property %d: %w", propertyID, sentinel.ErrNotFound)
	}
	return ps.prop, nil
}

// GetProperties mirrors the contract's batched getter: unknown IDs yield
// zero-valued slots rather than errors.
func (l *Ledger) GetProperties(_ context.Context, propertyIDs []uint64) ([]ledger.Property, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ledger.Property, len(propertyIDs))
	for i, id := range propertyIDs {
		if ps, ok := l.props[id]; ok {
			out[i] = ps.prop
		}
	}
	return out, nil
}

func (l *Ledger) CreateProperty(_ context.Context, publisher common.Address, def ledger.PropertyDefinition) (*ledger.PendingTx, error) {
	return l.submit(func() error {
		if l.apps[publisher].Status != ledger.StatusApproved {
			return errors.New("publisher not approved")
		}
		if def.MaxSupply == nil || def.MaxSupply.Sign() <= 0 {
			return errors.New("max supply must be positive")
		}
		if def.AnnualYieldBps > guarantee.BpsDenominator {
			return errors.New("yield exceeds 10000 bps")
		}
		id := l.nextPropertyID
		l.nextPropertyID++
		l.props[id] = &propertyState{
			prop: ledger.Property{
				ID:             id,
				Name:           def.Name,
				Location:       def.Location,
				MetadataURI:    def.MetadataURI,
				TokenID:        id,
				Publisher:      publisher,
				TotalSupply:    new(big.Int),
				MaxSupply:      new(big.Int).Set(def.MaxSupply),
				UnitPriceWei:   new(big.Int).Set(def.UnitPriceWei),
				AnnualYieldBps: def.AnnualYieldBps,
				Active:         true,
			},
			pool:     new(big.Int),
			holdings: make(map[common.Address]*big.Int),
			claimed:  make(map[common.Address]*big.Int),
		}
		return nil
	})
}

func (l *Ledger) SetPropertyFinancials(_ context.Context, propertyID uint64, unitPriceWei *big.Int, annualYieldBps uint32) (*ledger.PendingTx, error) {
	return l.submit(func() error {
		ps, ok := l.props[propertyID]
		if !ok {
			return errors.New("unknown property")
		}
		if ps.prop.Closed() {
			return errors.New("project already closed")
		}
		if annualYieldBps > guarantee.BpsDenominator {
			return errors.New("yield exceeds 10000 bps")
		}
		ps.prop.UnitPriceWei = new(big.Int).Set(unitPriceWei)
		ps.prop.AnnualYieldBps = annualYieldBps
		return nil
	})
}

func (l *Ledger) SetProjectEndTime(_ context.Context, propertyID uint64, endTime uint64) (*ledger.PendingTx, error) {
	return l.submit(func() error {
		ps, ok := l.props[propertyID]
		if !ok {
			return errors.New("unknown property")
		}
		if ps.prop.Closed() {
			return errors.New("project already closed")
		}
		if endTime == 0 {
			return errors.New("end time must be non-zero")
		}
		required := l.requiredReserve(ps)
		if !guarantee.IsSufficient(ps.pool, required) {
			return errors.New("guarantee fund insufficient")
		}
		ps.prop.ProjectEndTime = endTime
		ps.prop.Active = false
		return nil
	})
}

func (l *Ledger) DepositYield(_ context.Context, from common.Address, propertyID uint64, amount *big.Int) (*ledger.PendingTx, error) {
	return l.submit(func() error {
		ps, ok := l.props[propertyID]
		if !ok {
			return errors.New("unknown property")
		}
		if from != ps.prop.Publisher {
			return errors.New("only the publisher may deposit")
		}
		if amount == nil || amount.Sign() <= 0 {
			return errors.New("deposit must be positive")
		}
		ps.pool = new(big.Int).Add(ps.pool, amount)
		ps.prop.LastYieldAt = uint64(l.Clock().Unix())
		return nil
	})
}

func (l *Ledger) ClaimYield(_ context.Context, holder common.Address, propertyID uint64) (*ledger.PendingTx, error) {
	return l.submit(func() error {
		ps, ok := l.props[propertyID]
		if !ok {
			return errors.New("unknown property")
		}
		claimable := l.claimable(ps, holder)
		if claimable.Sign() <= 0 {
			return errors.New("no claimable yield")
		}
		if ps.claimed[holder] == nil {
			ps.claimed[holder] = new(big.Int)
		}
		ps.claimed[holder] = new(big.Int).Add(ps.claimed[holder], claimable)
		return nil
	})
}

func (l *Ledger) GetYieldPool(_ context.Context, propertyID uint64) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ps, ok := l.props[propertyID]
	if !ok {
		return nil, fmt.Errorf("property %d: %w", propertyID, sentinel.ErrNotFound)
	}
	return new(big.Int).Set(ps.pool), nil
}

func (l *Ledger) GetClaimableYield(_ context.Context, propertyID uint64, holder common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ps, ok := l.props[propertyID]
	if !ok {
		return nil, fmt.Errorf("property %d: %w", propertyID, sentinel.ErrNotFound)
	}
	return l.claimable(ps, holder), nil
}

func (l *Ledger) CalculateAnnualYield(_ context.Context, propertyID uint64) (*big.Int, error) {
	return l.CalculateRequiredGuaranteeFund(context.Background(), propertyID)
}

func (l *Ledger) CalculateRequiredGuaranteeFund(_ context.Context, propertyID uint64) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ps, ok := l.props[propertyID]
	if !ok {
		return nil, fmt.Errorf("property %d: %w", propertyID, sentinel.ErrNotFound)
	}
	return l.requiredReserve(ps), nil
}

func (l *Ledger) IsGuaranteeFundSufficient(_ context.Context, propertyID uint64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ps, ok := l.props[propertyID]
	if !ok {
		return false, fmt.Errorf("property %d: %w", propertyID, sentinel.ErrNotFound)
	}
	return guarantee.IsSufficient(ps.pool, l.requiredReserve(ps)), nil
}

func (l *Ledger) FundingStatus(_ context.Context, propertyID uint64) (ledger.FundingStatus, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ps, ok := l.props[propertyID]
	if !ok {
		return ledger.FundingStatus{}, fmt.Errorf("property %d: %w", propertyID, sentinel.ErrNotFound)
	}
	required := l.requiredReserve(ps)
	return ledger.FundingStatus{
		Required:   required,
		Deposited:  new(big.Int).Set(ps.pool),
		Sufficient: guarantee.IsSufficient(ps.pool, required),
	}, nil
}

// claimable derives the holder's unpaid proportional share of the cumulative
// pool. Callers hold l.mu.
func (l *Ledger) claimable(ps *propertyState, holder common.Address) *big.Int {
	holding := ps.holdings[holder]
	if holding == nil || holding.Sign() == 0 || ps.prop.TotalSupply.Sign() == 0 {
		return new(big.Int)
	}
	entitled := new(big.Int).Mul(ps.pool, holding)
	entitled.Div(entitled, ps.prop.TotalSupply)
	if already := ps.claimed[holder]; already != nil {
		entitled.Sub(entitled, already)
	}
	if entitled.Sign() < 0 {
		return new(big.Int)
	}
	return entitled
}

// requiredReserve computes the closure gate. Callers hold l.mu.
func (l *Ledger) requiredReserve(ps *propertyState) *big.Int {
	return guarantee.RequiredReserve(ps.prop.MaxSupply, ps.prop.UnitPriceWei, ps.prop.AnnualYieldBps)
}

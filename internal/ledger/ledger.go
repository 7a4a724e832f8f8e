// Package ledger defines the narrow interface to the authoritative,
// consensus-ordered store of application status, issuance parameters, and
// token balances. Two implementations exist: evm (production, go-ethereum)
// and memory (tests and dev mode).
package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Client is the full ledger surface consumed by the services. Every write
// returns a PendingTx future; no write is ever synchronous. Reads are
// stale-tolerant snapshots.
type Client interface {
	// HasRole consults the ledger's access-control state.
	HasRole(ctx context.Context, role Role, account common.Address) (bool, error)

	// GetApplication returns the authoritative application record for an
	// applicant. A never-seen address yields StatusNone, not an error.
	GetApplication(ctx context.Context, applicant common.Address) (Application, error)
	ApplyForPublisher(ctx context.Context, applicant common.Address, applicationID string) (*PendingTx, error)
	ReviewPublisherApplication(ctx context.Context, reviewer, applicant common.Address, approve bool) (*PendingTx, error)
	WithdrawApplication(ctx context.Context, applicant common.Address) (*PendingTx, error)

	// NextPropertyID returns the next unassigned property ID; valid IDs are
	// [1, NextPropertyID).
	NextPropertyID(ctx context.Context) (uint64, error)
	GetProperty(ctx context.Context, propertyID uint64) (Property, error)
	// GetProperties reads many properties in a single batched multi-call.
	GetProperties(ctx context.Context, propertyIDs []uint64) ([]Property, error)
	CreateProperty(ctx context.Context, publisher common.Address, def PropertyDefinition) (*PendingTx, error)
	SetPropertyFinancials(ctx context.Context, propertyID uint64, unitPriceWei *big.Int, annualYieldBps uint32) (*PendingTx, error)
	// SetProjectEndTime irreversibly closes an issuance. The ledger itself
	// rejects the closure while the guarantee fund is insufficient.
	SetProjectEndTime(ctx context.Context, propertyID uint64, endTime uint64) (*PendingTx, error)

	DepositYield(ctx context.Context, from common.Address, propertyID uint64, amount *big.Int) (*PendingTx, error)
	ClaimYield(ctx context.Context, holder common.Address, propertyID uint64) (*PendingTx, error)
	GetYieldPool(ctx context.Context, propertyID uint64) (*big.Int, error)
	GetClaimableYield(ctx context.Context, propertyID uint64, holder common.Address) (*big.Int, error)

	CalculateAnnualYield(ctx context.Context, propertyID uint64) (*big.Int, error)
	CalculateRequiredGuaranteeFund(ctx context.Context, propertyID uint64) (*big.Int, error)
	IsGuaranteeFundSufficient(ctx context.Context, propertyID uint64) (bool, error)
	// FundingStatus batches the three reads above into one multi-call.
	FundingStatus(ctx context.Context, propertyID uint64) (FundingStatus, error)
}

package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Role names a capability recorded by the ledger's own access-control state.
// Capability checks always go through HasRole; an off-chain flag is never the
// authority.
type Role string

const (
	RoleAdmin    Role = "ADMIN_ROLE"
	RoleReviewer Role = "REVIEWER_ROLE"
)

// Application is the ledger-resident mirror of a publisher application. The
// ledger is ground truth; the document store record is an advisory cache.
type Application struct {
	Applicant     common.Address
	ApplicationID string
	Status        Status
}

// Property is a ledger-resident issuance. Amounts are wei-scaled integers
// (10^18), rates are basis points (10000 = 100%).
type Property struct {
	ID             uint64
	Name           string
	Location       string
	MetadataURI    string
	TokenID        uint64
	Publisher      common.Address
	TotalSupply    *big.Int
	MaxSupply      *big.Int
	UnitPriceWei   *big.Int
	AnnualYieldBps uint32
	LastYieldAt    uint64
	Active         bool
	// ProjectEndTime is zero while the issuance is ongoing. A non-zero value
	// is set exactly once and never changes.
	ProjectEndTime uint64
}

// Closed reports whether the issuance has been irreversibly closed.
func (p Property) Closed() bool { return p.ProjectEndTime != 0 }

// HasPublisher reports whether the publisher slot is populated. Ledger reads
// over sparse ID ranges can yield zero-valued slots.
func (p Property) HasPublisher() bool { return p.Publisher != (common.Address{}) }

// PropertyDefinition carries the creation parameters for a new issuance.
type PropertyDefinition struct {
	Name           string
	Location       string
	MetadataURI    string
	MaxSupply      *big.Int
	UnitPriceWei   *big.Int
	AnnualYieldBps uint32
}

// FundingStatus is a snapshot of a property's guarantee funding, read as one
// batched multi-call. Each field is an independent stale-tolerant read, not a
// transaction.
type FundingStatus struct {
	Required   *big.Int
	Deposited  *big.Int
	Sufficient bool
}

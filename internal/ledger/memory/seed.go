package memory

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"brickvault/internal/ledger"
)

// SeedDevLedger populates a dev-mode ledger with a reviewer, an approved
// publisher, and two funded issuances so the HTTP surface is exercisable
// without a chain.
func SeedDevLedger(l *Ledger) (reviewer, publisher common.Address) {
	ctx := context.Background()
	reviewer = common.HexToAddress("0x00000000000000000000000000000000000000A1")
	publisher = common.HexToAddress("0x00000000000000000000000000000000000000B1")

	l.GrantRole(ledger.RoleAdmin, reviewer)
	l.GrantRole(ledger.RoleReviewer, reviewer)

	_, _ = l.ApplyForPublisher(ctx, publisher, "seed-application")
	_, _ = l.ReviewPublisherApplication(ctx, reviewer, publisher, true)

	oneToken := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	_, _ = l.CreateProperty(ctx, publisher, ledger.PropertyDefinition{
		Name:           "Harbor View Apartments",
		Location:       "Lisbon, PT",
		MetadataURI:    "ipfs://bafybeigdev0harborview/metadata.json",
		MaxSupply:      big.NewInt(5000),
		UnitPriceWei:   new(big.Int).Mul(big.NewInt(2), oneToken),
		AnnualYieldBps: 1000,
	})
	_, _ = l.CreateProperty(ctx, publisher, ledger.PropertyDefinition{
		Name:           "Old Town Offices",
		Location:       "Krakow, PL",
		MetadataURI:    "ipfs://bafybeigdev1oldtown/metadata.json",
		MaxSupply:      big.NewInt(1200),
		UnitPriceWei:   new(big.Int).Mul(big.NewInt(5), oneToken),
		AnnualYieldBps: 750,
	})

	_ = l.MintTokens(1, publisher, big.NewInt(100))
	deposit := new(big.Int).Mul(big.NewInt(50), oneToken)
	_, _ = l.DepositYield(ctx, publisher, 1, deposit)

	return reviewer, publisher
}

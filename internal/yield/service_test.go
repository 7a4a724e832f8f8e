package yield

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/suite"

	"brickvault/internal/ledger"
	ledgermem "brickvault/internal/ledger/memory"
	dErrors "brickvault/pkg/domain-errors"
	auditpub "brickvault/pkg/platform/audit/publisher"
	auditmem "brickvault/pkg/platform/audit/store/memory"
	"brickvault/pkg/requestcontext"
)

var (
	publisher = common.HexToAddress("0x00000000000000000000000000000000000000B1")
	holderOne = common.HexToAddress("0x00000000000000000000000000000000000000C1")
	holderTwo = common.HexToAddress("0x00000000000000000000000000000000000000C2")
	outsider  = common.HexToAddress("0x00000000000000000000000000000000000000FF")
)

func wei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

type YieldServiceSuite struct {
	suite.Suite
	chain   *ledgermem.Ledger
	audits  *auditmem.InMemoryStore
	service *Service
}

func TestYieldServiceSuite(t *testing.T) {
	suite.Run(t, new(YieldServiceSuite))
}

func (s *YieldServiceSuite) SetupTest() {
	s.chain = ledgermem.New()
	s.audits = auditmem.New()
	s.service = New(s.chain, WithAuditPublisher(auditpub.New(s.audits)))

	// Approve the publisher directly on the ledger.
	tx, err := s.chain.ApplyForPublisher(context.Background(), publisher, "app-1")
	s.Require().NoError(err)
	_, err = ledger.AwaitConfirmed(context.Background(), tx)
	s.Require().NoError(err)

	reviewer := common.HexToAddress("0x00000000000000000000000000000000000000A1")
	s.chain.GrantRole(ledger.RoleReviewer, reviewer)
	tx, err = s.chain.ReviewPublisherApplication(context.Background(), reviewer, publisher, true)
	s.Require().NoError(err)
	_, err = ledger.AwaitConfirmed(context.Background(), tx)
	s.Require().NoError(err)
}

func (s *YieldServiceSuite) createProperty(maxSupply int64, unitPrice *big.Int, bps uint32) ledger.Property {
	prop, err := s.service.CreateProperty(context.Background(), publisher, ledger.PropertyDefinition{
		Name:           "Harbor View Lofts",
		Location:       "Lisbon",
		MetadataURI:    "ipfs://QmMeta",
		MaxSupply:      big.NewInt(maxSupply),
		UnitPriceWei:   unitPrice,
		AnnualYieldBps: bps,
	})
	s.Require().NoError(err)
	return prop
}

func (s *YieldServiceSuite) TestCreateProperty() {
	ctx := context.Background()

	s.Run("approved publisher creates a property", func() {
		prop := s.createProperty(5000, wei(2), 1000)
		s.Equal(uint64(1), prop.ID)
		s.Equal(publisher, prop.Publisher)
		s.True(prop.Active)
		s.False(prop.Closed())
	})

	s.Run("unapproved address is refused", func() {
		_, err := s.service.CreateProperty(ctx, outsider, ledger.PropertyDefinition{
			Name: "Nope", MaxSupply: big.NewInt(1), UnitPriceWei: wei(1),
		})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("invalid definition is refused", func() {
		_, err := s.service.CreateProperty(ctx, publisher, ledger.PropertyDefinition{
			Name: "Bad", MaxSupply: big.NewInt(0), UnitPriceWei: wei(1),
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		_, err = s.service.CreateProperty(ctx, publisher, ledger.PropertyDefinition{
			Name: "Bad", MaxSupply: big.NewInt(1), UnitPriceWei: wei(1), AnnualYieldBps: 10001,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

// TestClosureGate walks the funding boundary: depositing one wei-unit short
// of the reserve leaves the gate shut and the closure rejected; topping up by
// exactly one unit opens it.
func (s *YieldServiceSuite) TestClosureGate() {
	ctx := context.Background()

	// maxSupply 5000 x 2e18 wei x 1000 bps => required reserve 1000e18.
	prop := s.createProperty(5000, wei(2), 1000)

	s.Run("one unit short is insufficient", func() {
		view, err := s.service.Deposit(ctx, publisher, prop.ID, wei(999))
		s.Require().NoError(err)
		s.Equal(wei(1000), view.Required)
		s.Equal(wei(999), view.Deposited)
		s.False(view.Sufficient)
		s.Equal(wei(1), view.Shortfall)
	})

	s.Run("closure rejected while under-funded", func() {
		err := s.service.Close(ctx, publisher, prop.ID, time.Now().Add(time.Hour))
		s.True(dErrors.HasCode(err, dErrors.CodePrecondition))

		got, gerr := s.chain.GetProperty(ctx, prop.ID)
		s.Require().NoError(gerr)
		s.False(got.Closed())
	})

	s.Run("exact reserve opens the gate", func() {
		view, err := s.service.Deposit(ctx, publisher, prop.ID, wei(1))
		s.Require().NoError(err)
		s.True(view.Sufficient)
		s.Equal(int64(0), view.Shortfall.Int64())

		err = s.service.Close(ctx, publisher, prop.ID, time.Now().Add(time.Hour))
		s.Require().NoError(err)

		got, gerr := s.chain.GetProperty(ctx, prop.ID)
		s.Require().NoError(gerr)
		s.True(got.Closed())
		s.False(got.Active)
	})

	s.Run("second closure is rejected", func() {
		err := s.service.Close(ctx, publisher, prop.ID, time.Now().Add(2*time.Hour))
		s.True(dErrors.HasCode(err, dErrors.CodePrecondition))
	})
}

func (s *YieldServiceSuite) TestDeposit() {
	ctx := context.Background()
	prop := s.createProperty(100, wei(1), 500)

	s.Run("non-positive amounts refused", func() {
		_, err := s.service.Deposit(ctx, publisher, prop.ID, big.NewInt(0))
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		_, err = s.service.Deposit(ctx, publisher, prop.ID, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("only the publisher may deposit", func() {
		_, err := s.service.Deposit(ctx, outsider, prop.ID, wei(1))
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("unknown property not found", func() {
		_, err := s.service.Deposit(ctx, publisher, 99, wei(1))
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("deposit accrues and emits audit", func() {
		view, err := s.service.Deposit(ctx, publisher, prop.ID, wei(3))
		s.Require().NoError(err)
		s.Equal(wei(3), view.Deposited)

		events := s.audits.BySubject("property:1")
		var actions []string
		for _, e := range events {
			actions = append(actions, e.Action)
		}
		s.Contains(actions, "yield_deposited")
	})
}

func (s *YieldServiceSuite) TestProportionalClaims() {
	ctx := context.Background()
	prop := s.createProperty(1000, wei(1), 1000)

	// 750 / 250 token split.
	s.Require().NoError(s.chain.MintTokens(prop.ID, holderOne, big.NewInt(750)))
	s.Require().NoError(s.chain.MintTokens(prop.ID, holderTwo, big.NewInt(250)))

	_, err := s.service.Deposit(ctx, publisher, prop.ID, wei(100))
	s.Require().NoError(err)

	s.Run("claimable is proportional to holding", func() {
		one, err := s.service.Claimable(ctx, prop.ID, holderOne)
		s.Require().NoError(err)
		s.Equal(wei(75), one)

		two, err := s.service.Claimable(ctx, prop.ID, holderTwo)
		s.Require().NoError(err)
		s.Equal(wei(25), two)
	})

	s.Run("claim pays out and resets", func() {
		paid, err := s.service.Claim(ctx, holderOne, prop.ID)
		s.Require().NoError(err)
		s.Equal(wei(75), paid)

		remaining, err := s.service.Claimable(ctx, prop.ID, holderOne)
		s.Require().NoError(err)
		s.Equal(int64(0), remaining.Int64())
	})

	s.Run("double claim refused", func() {
		_, err := s.service.Claim(ctx, holderOne, prop.ID)
		s.True(dErrors.HasCode(err, dErrors.CodePrecondition))
	})

	s.Run("later deposits reopen claims", func() {
		_, err := s.service.Deposit(ctx, publisher, prop.ID, wei(100))
		s.Require().NoError(err)

		one, err := s.service.Claimable(ctx, prop.ID, holderOne)
		s.Require().NoError(err)
		s.Equal(wei(75), one)

		two, err := s.service.Claimable(ctx, prop.ID, holderTwo)
		s.Require().NoError(err)
		s.Equal(wei(50), two)
	})
}

func (s *YieldServiceSuite) TestSetFinancials() {
	ctx := context.Background()
	prop := s.createProperty(100, wei(1), 500)

	s.Run("publisher updates price and rate", func() {
		s.Require().NoError(s.service.SetFinancials(ctx, publisher, prop.ID, wei(2), 800))

		got, err := s.chain.GetProperty(ctx, prop.ID)
		s.Require().NoError(err)
		s.Equal(wei(2), got.UnitPriceWei)
		s.Equal(uint32(800), got.AnnualYieldBps)
	})

	s.Run("outsider refused", func() {
		err := s.service.SetFinancials(ctx, outsider, prop.ID, wei(3), 100)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("rate above denominator refused", func() {
		err := s.service.SetFinancials(ctx, publisher, prop.ID, wei(1), 10001)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *YieldServiceSuite) TestFundingSuggestedTopUp() {
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.chain.Clock = func() time.Time { return base }

	// maxSupply 100 x 1e18 x 1000 bps => annual yield 10e18.
	prop := s.createProperty(100, wei(1), 1000)
	_, err := s.service.Deposit(ctx, publisher, prop.ID, wei(1))
	s.Require().NoError(err)

	// Half a year after the deposit the suggested top-up is half the annual
	// yield.
	halfYear := base.Add(365 * 24 * time.Hour / 2)
	ctx = requestcontext.WithTime(ctx, halfYear)

	view, err := s.service.Funding(ctx, prop.ID)
	s.Require().NoError(err)
	s.Equal(wei(5), view.SuggestedTopUp)
	s.Equal(wei(10), view.Required)
}

func (s *YieldServiceSuite) TestLedgerTimeoutSurfacesAsRejected() {
	ctx := context.Background()
	prop := s.createProperty(100, wei(1), 500)

	s.chain.FailNextTx(ledger.TxTimedOut, "")
	_, err := s.service.Deposit(ctx, publisher, prop.ID, wei(1))
	s.True(dErrors.HasCode(err, dErrors.CodeLedgerRejected))

	pool, perr := s.service.Pool(ctx, prop.ID)
	s.Require().NoError(perr)
	s.Equal(int64(0), pool.Int64())
}

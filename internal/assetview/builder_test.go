package assetview

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"brickvault/internal/assetview/mocks"
	"brickvault/internal/content"
	"brickvault/internal/ledger"
	ledgermem "brickvault/internal/ledger/memory"
)

var publisher = common.HexToAddress("0x00000000000000000000000000000000000000B1")

func approvedPublisherLedger(t *testing.T) *ledgermem.Ledger {
	t.Helper()
	chain := ledgermem.New()
	ctx := context.Background()

	tx, err := chain.ApplyForPublisher(ctx, publisher, "app-1")
	require.NoError(t, err)
	_, err = ledger.AwaitConfirmed(ctx, tx)
	require.NoError(t, err)

	reviewer := common.HexToAddress("0x00000000000000000000000000000000000000A1")
	chain.GrantRole(ledger.RoleReviewer, reviewer)
	tx, err = chain.ReviewPublisherApplication(ctx, reviewer, publisher, true)
	require.NoError(t, err)
	_, err = ledger.AwaitConfirmed(ctx, tx)
	require.NoError(t, err)
	return chain
}

func createProperty(t *testing.T, chain *ledgermem.Ledger, name, uri string, unitPriceWei *big.Int) uint64 {
	t.Helper()
	ctx := context.Background()
	next, err := chain.NextPropertyID(ctx)
	require.NoError(t, err)

	tx, err := chain.CreateProperty(ctx, publisher, ledger.PropertyDefinition{
		Name:           name,
		Location:       "Lisbon",
		MetadataURI:    uri,
		MaxSupply:      big.NewInt(1000),
		UnitPriceWei:   unitPriceWei,
		AnnualYieldBps: 500,
	})
	require.NoError(t, err)
	_, err = ledger.AwaitConfirmed(ctx, tx)
	require.NoError(t, err)
	return next
}

func closeProperty(t *testing.T, chain *ledgermem.Ledger, propertyID uint64) {
	t.Helper()
	ctx := context.Background()

	required, err := chain.CalculateRequiredGuaranteeFund(ctx, propertyID)
	require.NoError(t, err)
	if required.Sign() > 0 {
		tx, derr := chain.DepositYield(ctx, publisher, propertyID, required)
		require.NoError(t, derr)
		_, derr = ledger.AwaitConfirmed(ctx, tx)
		require.NoError(t, derr)
	}

	tx, err := chain.SetProjectEndTime(ctx, propertyID, uint64(time.Now().Unix()))
	require.NoError(t, err)
	_, err = ledger.AwaitConfirmed(ctx, tx)
	require.NoError(t, err)
}

func TestListActiveAssets_EmptyLedger(t *testing.T) {
	ctrl := gomock.NewController(t)
	resolver := mocks.NewMockResolver(ctrl)

	builder := New(ledgermem.New(), resolver)
	assets, err := builder.ListActiveAssets(context.Background())
	require.NoError(t, err)
	assert.Empty(t, assets)
}

func TestListActiveAssets_JoinsMetadata(t *testing.T) {
	chain := approvedPublisherLedger(t)
	id := createProperty(t, chain, "Harbor View", "ipfs://QmA", big.NewInt(5))

	ctrl := gomock.NewController(t)
	resolver := mocks.NewMockResolver(ctrl)
	resolver.EXPECT().Resolve(gomock.Any(), "ipfs://QmA").Return(&content.Metadata{
		Name:        "Harbor View Lofts",
		Description: "Waterfront residential issuance",
		Image:       "ipfs://QmImg",
		Attributes:  []content.Attribute{{TraitType: "city", Value: "Lisbon"}},
	}, nil)

	builder := New(chain, resolver)
	assets, err := builder.ListActiveAssets(context.Background())
	require.NoError(t, err)
	require.Len(t, assets, 1)

	asset := assets[0]
	assert.Equal(t, id+DisplayIDOffset, asset.DisplayID)
	assert.Equal(t, "Harbor View Lofts", asset.Name)
	assert.Equal(t, "Waterfront residential issuance", asset.Description)
	assert.Equal(t, "ipfs://QmImg", asset.Image)
	assert.Equal(t, big.NewInt(5), asset.UnitPriceWei)
	require.Len(t, asset.Attributes, 1)
}

func TestListActiveAssets_Exclusions(t *testing.T) {
	chain := approvedPublisherLedger(t)

	keep := createProperty(t, chain, "Open", "ipfs://QmKeep", big.NewInt(1))
	closed := createProperty(t, chain, "Closed", "ipfs://QmClosed", big.NewInt(1))
	closeProperty(t, chain, closed)

	ctrl := gomock.NewController(t)
	resolver := mocks.NewMockResolver(ctrl)
	resolver.EXPECT().Resolve(gomock.Any(), "ipfs://QmKeep").Return(&content.Metadata{}, nil)

	builder := New(chain, resolver)
	assets, err := builder.ListActiveAssets(context.Background())
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, keep, assets[0].PropertyID)
}

// zeroSlotChain advertises one property ID beyond what exists and marks the
// empty slot active, the shape a half-initialized contract slot reads as.
type zeroSlotChain struct {
	*ledgermem.Ledger
}

func (c *zeroSlotChain) NextPropertyID(ctx context.Context) (uint64, error) {
	next, err := c.Ledger.NextPropertyID(ctx)
	return next + 1, err
}

func (c *zeroSlotChain) GetProperties(ctx context.Context, ids []uint64) ([]ledger.Property, error) {
	props, err := c.Ledger.GetProperties(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range props {
		if !props[i].HasPublisher() {
			props[i].Active = true
		}
	}
	return props, nil
}

func TestListActiveAssets_ZeroPublisherExcluded(t *testing.T) {
	chain := approvedPublisherLedger(t)
	keep := createProperty(t, chain, "Open", "ipfs://QmKeep", big.NewInt(1))

	ctrl := gomock.NewController(t)
	resolver := mocks.NewMockResolver(ctrl)
	resolver.EXPECT().Resolve(gomock.Any(), "ipfs://QmKeep").Return(&content.Metadata{}, nil)

	builder := New(&zeroSlotChain{Ledger: chain}, resolver)
	assets, err := builder.ListActiveAssets(context.Background())
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, keep, assets[0].PropertyID)
}

func TestListActiveAssets_AllExcluded(t *testing.T) {
	chain := approvedPublisherLedger(t)
	closed := createProperty(t, chain, "Closed", "ipfs://QmClosed", big.NewInt(1))
	closeProperty(t, chain, closed)

	ctrl := gomock.NewController(t)
	resolver := mocks.NewMockResolver(ctrl)

	builder := New(chain, resolver)
	assets, err := builder.ListActiveAssets(context.Background())
	require.NoError(t, err)
	assert.Empty(t, assets)
}

// TestListActiveAssets_ContentFailure verifies ledger truth survives a
// content-store outage: the asset is listed with empty descriptive fields.
func TestListActiveAssets_ContentFailure(t *testing.T) {
	chain := approvedPublisherLedger(t)
	createProperty(t, chain, "Harbor View", "ipfs://QmGone", big.NewInt(5))

	ctrl := gomock.NewController(t)
	resolver := mocks.NewMockResolver(ctrl)
	resolver.EXPECT().Resolve(gomock.Any(), "ipfs://QmGone").Return(nil, errors.New("gateway down"))

	builder := New(chain, resolver)
	assets, err := builder.ListActiveAssets(context.Background())
	require.NoError(t, err)
	require.Len(t, assets, 1)

	asset := assets[0]
	assert.Equal(t, "Harbor View", asset.Name, "ledger name kept")
	assert.Empty(t, asset.Description)
	assert.Empty(t, asset.Image)
	assert.Equal(t, big.NewInt(5), asset.UnitPriceWei)
}

func TestApplyMetadata_PricePrecedence(t *testing.T) {
	t.Run("positive ledger price is never overridden", func(t *testing.T) {
		asset := Asset{UnitPriceWei: big.NewInt(7), MaxSupply: big.NewInt(100)}
		applyMetadata(&asset, &content.Metadata{
			Properties: map[string]any{"totalValue": "99999"},
		})
		assert.Equal(t, big.NewInt(7), asset.UnitPriceWei)
	})

	t.Run("zero ledger price derives display price from totalValue", func(t *testing.T) {
		asset := Asset{UnitPriceWei: new(big.Int), MaxSupply: big.NewInt(100)}
		applyMetadata(&asset, &content.Metadata{
			Properties: map[string]any{"totalValue": "5000"},
		})
		assert.Equal(t, big.NewInt(50), asset.UnitPriceWei)
	})

	t.Run("zero max supply derives nothing", func(t *testing.T) {
		asset := Asset{UnitPriceWei: new(big.Int), MaxSupply: new(big.Int)}
		applyMetadata(&asset, &content.Metadata{
			Properties: map[string]any{"totalValue": "5000"},
		})
		assert.Equal(t, 0, asset.UnitPriceWei.Sign())
	})

	t.Run("malformed totalValue ignored", func(t *testing.T) {
		asset := Asset{UnitPriceWei: new(big.Int), MaxSupply: big.NewInt(100)}
		applyMetadata(&asset, &content.Metadata{
			Properties: map[string]any{"totalValue": "not-a-number"},
		})
		assert.Equal(t, 0, asset.UnitPriceWei.Sign())
	})
}

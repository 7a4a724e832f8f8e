// Package assetview builds the public listing read model: ledger-authoritative
// numbers joined with content-store descriptive fields.
package assetview

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"golang.org/x/sync/errgroup"

	"brickvault/internal/content"
	"brickvault/internal/ledger"
	"brickvault/internal/platform/metrics"
	dErrors "brickvault/pkg/domain-errors"
)

// DisplayIDOffset shifts public asset identifiers into a numeric range
// disjoint from raw ledger property IDs, so locally seeded sample data can
// never collide with production identifiers.
const DisplayIDOffset = 10000

// resolveConcurrency bounds parallel content-store fetches per listing call.
const resolveConcurrency = 8

// Asset is one listed issuance. Numeric fields come from the ledger;
// descriptive fields come from the content store and may be empty when it is
// unreachable.
type Asset struct {
	DisplayID  uint64 `json:"id"`
	PropertyID uint64 `json:"property_id"`
	Name       string `json:"name"`
	Location   string `json:"location"`

	Description string              `json:"description"`
	Image       string              `json:"image"`
	Attributes  []content.Attribute `json:"attributes,omitempty"`

	TotalSupply    *big.Int `json:"-"`
	MaxSupply      *big.Int `json:"-"`
	UnitPriceWei   *big.Int `json:"-"`
	AnnualYieldBps uint32   `json:"annual_yield_bps"`
}

//go:generate mockgen -source=builder.go -destination=mocks/resolver.go -package=mocks Resolver

// Resolver is the content-store surface the builder consumes.
type Resolver interface {
	Resolve(ctx context.Context, uri string) (*content.Metadata, error)
}

type Builder struct {
	chain    ledger.Client
	resolver Resolver
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type Option func(*Builder)

func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Builder) {
		b.metrics = m
	}
}

func New(chain ledger.Client, resolver Resolver, opts ...Option) *Builder {
	b := &Builder{chain: chain, resolver: resolver, logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ListActiveAssets reads every property in [1, nextPropertyID) with one
// batched multi-call, drops closed, inactive, and unpopulated slots, then
// joins the survivors with content-store metadata. A content failure never
// drops an asset: ledger truth stays visible with empty descriptive fields.
func (b *Builder) ListActiveAssets(ctx context.Context) ([]Asset, error) {
	start := time.Now()
	defer func() {
		if b.metrics != nil {
			b.metrics.AssetListDuration.Observe(time.Since(start).Seconds())
		}
	}()

	nextID, err := b.chain.NextPropertyID(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "ledger read failed")
	}
	if nextID <= 1 {
		return []Asset{}, nil
	}

	ids := make([]uint64, 0, nextID-1)
	for id := uint64(1); id < nextID; id++ {
		ids = append(ids, id)
	}
	props, err := b.chain.GetProperties(ctx, ids)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "ledger batch read failed")
	}

	assets := make([]Asset, 0, len(props))
	for _, prop := range props {
		if !prop.Active || prop.Closed() || !prop.HasPublisher() {
			continue
		}
		assets = append(assets, assetFromProperty(prop))
	}

	b.decorate(ctx, assets, props)
	return assets, nil
}

// decorate joins each surviving asset with its metadata, bounded-parallel.
func (b *Builder) decorate(ctx context.Context, assets []Asset, props []ledger.Property) {
	uriByProperty := make(map[uint64]string, len(props))
	for _, prop := range props {
		uriByProperty[prop.ID] = prop.MetadataURI
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resolveConcurrency)
	for i := range assets {
		g.Go(func() error {
			uri := uriByProperty[assets[i].PropertyID]
			meta, err := b.resolver.Resolve(gctx, uri)
			if err != nil {
				if b.metrics != nil {
					b.metrics.ContentResolveFails.Inc()
				}
				b.logger.WarnContext(gctx, "metadata resolve failed",
					"property_id", assets[i].PropertyID,
					"uri", uri,
					"error", err,
				)
				return nil
			}
			applyMetadata(&assets[i], meta)
			return nil
		})
	}
	// Workers only ever return nil; the group exists for the limit and the
	// shared cancel.
	_ = g.Wait()
}

func assetFromProperty(prop ledger.Property) Asset {
	return Asset{
		DisplayID:      prop.ID + DisplayIDOffset,
		PropertyID:     prop.ID,
		Name:           prop.Name,
		Location:       prop.Location,
		TotalSupply:    prop.TotalSupply,
		MaxSupply:      prop.MaxSupply,
		UnitPriceWei:   prop.UnitPriceWei,
		AnnualYieldBps: prop.AnnualYieldBps,
	}
}

// applyMetadata fills descriptive fields. When the ledger price is unset and
// the metadata carries a totalValue, a display price is derived; a positive
// ledger price is always authoritative and never overridden.
func applyMetadata(asset *Asset, meta *content.Metadata) {
	asset.Description = meta.Description
	asset.Image = meta.Image
	asset.Attributes = meta.Attributes
	if meta.Name != "" {
		asset.Name = meta.Name
	}

	if (asset.UnitPriceWei == nil || asset.UnitPriceWei.Sign() == 0) &&
		asset.MaxSupply != nil && asset.MaxSupply.Sign() > 0 {
		if totalValue := metadataTotalValue(meta); totalValue != nil {
			asset.UnitPriceWei = new(big.Int).Quo(totalValue, asset.MaxSupply)
		}
	}
}

// metadataTotalValue extracts an optional properties.totalValue field, a
// decimal wei string.
func metadataTotalValue(meta *content.Metadata) *big.Int {
	raw, ok := meta.Properties["totalValue"]
	if !ok {
		return nil
	}
	str, ok := raw.(string)
	if !ok {
		return nil
	}
	n, ok := new(big.Int).SetString(str, 10)
	if !ok || n.Sign() <= 0 {
		return nil
	}
	return n
}

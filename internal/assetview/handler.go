package assetview

import (
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"brickvault/internal/platform/metrics"
	"brickvault/internal/platform/middleware"
	"brickvault/internal/transport/http/shared"
)

// Handler serves the public listing. No authentication: the listing is the
// marketplace's storefront.
type Handler struct {
	builder *Builder
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewHandler(builder *Builder, logger *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{builder: builder, logger: logger, metrics: m}
}

func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Recovery(h.logger))
		r.Use(middleware.RequestID)
		r.Use(middleware.RequestTime)
		r.Use(middleware.Logger(h.logger))
		r.Use(middleware.Timeout(30 * time.Second))
		r.Use(middleware.Latency(h.metrics))

		r.Get("/assets", h.handleList)
	})
}

type assetResponse struct {
	ID             uint64             `json:"id"`
	Name           string             `json:"name"`
	Location       string             `json:"location"`
	Description    string             `json:"description"`
	Image          string             `json:"image"`
	Attributes     []contentAttribute `json:"attributes,omitempty"`
	TotalSupply    string             `json:"total_supply"`
	MaxSupply      string             `json:"max_supply"`
	UnitPriceWei   string             `json:"unit_price_wei"`
	AnnualYieldBps uint32             `json:"annual_yield_bps"`
}

type contentAttribute struct {
	TraitType string `json:"trait_type"`
	Value     any    `json:"value"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	assets, err := h.builder.ListActiveAssets(r.Context())
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	out := make([]assetResponse, 0, len(assets))
	for _, a := range assets {
		resp := assetResponse{
			ID:             a.DisplayID,
			Name:           a.Name,
			Location:       a.Location,
			Description:    a.Description,
			Image:          a.Image,
			TotalSupply:    bigString(a.TotalSupply),
			MaxSupply:      bigString(a.MaxSupply),
			UnitPriceWei:   bigString(a.UnitPriceWei),
			AnnualYieldBps: a.AnnualYieldBps,
		}
		for _, attr := range a.Attributes {
			resp.Attributes = append(resp.Attributes, contentAttribute{TraitType: attr.TraitType, Value: attr.Value})
		}
		out = append(out, resp)
	}
	shared.WriteJSON(w, http.StatusOK, out)
}

func bigString(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}

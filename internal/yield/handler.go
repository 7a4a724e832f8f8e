package yield

import (
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"brickvault/internal/content"
	"brickvault/internal/ledger"
	"brickvault/internal/platform/metrics"
	"brickvault/internal/platform/middleware"
	"brickvault/internal/transport/http/shared"
	dErrors "brickvault/pkg/domain-errors"
	"brickvault/pkg/requestcontext"
)

type Handler struct {
	service   *Service
	logger    *slog.Logger
	metrics   *metrics.Metrics
	validator middleware.TokenValidator
	publisher content.Publisher
}

type HandlerOption func(*Handler)

// WithContentPublisher lets property creation accept an inline metadata
// document: the handler uploads it to the content store and records the
// returned URI on the ledger.
func WithContentPublisher(publisher content.Publisher) HandlerOption {
	return func(h *Handler) {
		h.publisher = publisher
	}
}

func NewHandler(service *Service, logger *slog.Logger, m *metrics.Metrics, validator middleware.TokenValidator, opts ...HandlerOption) *Handler {
	h := &Handler{service: service, logger: logger, metrics: m, validator: validator}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the property and yield routes. Writes relay through the
// operator, so every route requires an authenticated wallet.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Recovery(h.logger))
		r.Use(middleware.RequestID)
		r.Use(middleware.RequestTime)
		r.Use(middleware.Logger(h.logger))
		r.Use(middleware.Timeout(2 * time.Minute))
		r.Use(middleware.Latency(h.metrics))
		r.Use(middleware.RequireAuth(h.validator, h.logger))

		r.Post("/properties", h.handleCreate)
		r.Patch("/properties/{propertyId}/financials", h.handleSetFinancials)
		r.Post("/properties/{propertyId}/yield/deposits", h.handleDeposit)
		r.Post("/properties/{propertyId}/yield/claims", h.handleClaim)
		r.Get("/properties/{propertyId}/yield/claimable", h.handleClaimable)
		r.Get("/properties/{propertyId}/yield/pool", h.handlePool)
		r.Get("/properties/{propertyId}/funding", h.handleFunding)
		r.Post("/properties/{propertyId}/close", h.handleClose)
	})
}

type createPropertyRequest struct {
	Name        string `json:"name"`
	Location    string `json:"location"`
	MetadataURI string `json:"metadata_uri"`
	// Metadata may be supplied inline instead of a pre-published URI; the
	// handler uploads it and records the resulting content URI.
	Metadata       *content.Metadata `json:"metadata,omitempty"`
	MaxSupply      string            `json:"max_supply"`
	UnitPriceWei   string            `json:"unit_price_wei"`
	AnnualYieldBps uint32            `json:"annual_yield_bps"`
}

type propertyResponse struct {
	PropertyID     uint64 `json:"property_id"`
	Name           string `json:"name"`
	Location       string `json:"location"`
	MetadataURI    string `json:"metadata_uri"`
	Publisher      string `json:"publisher_address"`
	TotalSupply    string `json:"total_supply"`
	MaxSupply      string `json:"max_supply"`
	UnitPriceWei   string `json:"unit_price_wei"`
	AnnualYieldBps uint32 `json:"annual_yield_bps"`
	Active         bool   `json:"active"`
	ProjectEndTime uint64 `json:"project_end_time"`
}

func toPropertyResponse(p ledger.Property) propertyResponse {
	return propertyResponse{
		PropertyID:     p.ID,
		Name:           p.Name,
		Location:       p.Location,
		MetadataURI:    p.MetadataURI,
		Publisher:      p.Publisher.Hex(),
		TotalSupply:    bigString(p.TotalSupply),
		MaxSupply:      bigString(p.MaxSupply),
		UnitPriceWei:   bigString(p.UnitPriceWei),
		AnnualYieldBps: p.AnnualYieldBps,
		Active:         p.Active,
		ProjectEndTime: p.ProjectEndTime,
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createPropertyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	maxSupply, ok := parseAmount(req.MaxSupply)
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "max_supply must be a decimal integer"))
		return
	}
	unitPrice, ok := parseAmount(req.UnitPriceWei)
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "unit_price_wei must be a decimal integer"))
		return
	}

	if req.MetadataURI == "" && req.Metadata != nil {
		if h.publisher == nil {
			shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "inline metadata is not supported; supply metadata_uri"))
			return
		}
		uri, err := h.publisher.Publish(ctx, req.Metadata)
		if err != nil {
			shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnavailable, "metadata publish failed"))
			return
		}
		req.MetadataURI = uri
	}

	prop, err := h.service.CreateProperty(ctx, requestcontext.Actor(ctx), ledger.PropertyDefinition{
		Name:           req.Name,
		Location:       req.Location,
		MetadataURI:    req.MetadataURI,
		MaxSupply:      maxSupply,
		UnitPriceWei:   unitPrice,
		AnnualYieldBps: req.AnnualYieldBps,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toPropertyResponse(prop))
}

type setFinancialsRequest struct {
	UnitPriceWei   string `json:"unit_price_wei"`
	AnnualYieldBps uint32 `json:"annual_yield_bps"`
}

func (h *Handler) handleSetFinancials(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	propertyID, ok := pathPropertyID(w, r)
	if !ok {
		return
	}

	var req setFinancialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	unitPrice, okPrice := parseAmount(req.UnitPriceWei)
	if !okPrice {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "unit_price_wei must be a decimal integer"))
		return
	}

	if err := h.service.SetFinancials(ctx, requestcontext.Actor(ctx), propertyID, unitPrice, req.AnnualYieldBps); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type depositRequest struct {
	Amount string `json:"amount"`
}

func (h *Handler) handleDeposit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	propertyID, ok := pathPropertyID(w, r)
	if !ok {
		return
	}

	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	amount, okAmount := parseAmount(req.Amount)
	if !okAmount {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "amount must be a decimal integer"))
		return
	}

	view, err := h.service.Deposit(ctx, requestcontext.Actor(ctx), propertyID, amount)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toFundingResponse(view))
}

func (h *Handler) handleClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	propertyID, ok := pathPropertyID(w, r)
	if !ok {
		return
	}

	claimed, err := h.service.Claim(ctx, requestcontext.Actor(ctx), propertyID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]string{"claimed": claimed.String()})
}

func (h *Handler) handleClaimable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	propertyID, ok := pathPropertyID(w, r)
	if !ok {
		return
	}

	holder := requestcontext.Actor(ctx)
	if raw := r.URL.Query().Get("holder"); raw != "" {
		if !common.IsHexAddress(raw) {
			shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid holder address"))
			return
		}
		holder = common.HexToAddress(raw)
	}

	amount, err := h.service.Claimable(ctx, propertyID, holder)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]string{"claimable": amount.String()})
}

func (h *Handler) handlePool(w http.ResponseWriter, r *http.Request) {
	propertyID, ok := pathPropertyID(w, r)
	if !ok {
		return
	}
	pool, err := h.service.Pool(r.Context(), propertyID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]string{"pool": pool.String()})
}

type fundingResponse struct {
	PropertyID     uint64 `json:"property_id"`
	Required       string `json:"required_reserve"`
	Deposited      string `json:"deposited"`
	Sufficient     bool   `json:"sufficient"`
	Shortfall      string `json:"shortfall"`
	SuggestedTopUp string `json:"suggested_top_up"`
}

func toFundingResponse(v *FundingView) fundingResponse {
	return fundingResponse{
		PropertyID:     v.PropertyID,
		Required:       bigString(v.Required),
		Deposited:      bigString(v.Deposited),
		Sufficient:     v.Sufficient,
		Shortfall:      bigString(v.Shortfall),
		SuggestedTopUp: bigString(v.SuggestedTopUp),
	}
}

func (h *Handler) handleFunding(w http.ResponseWriter, r *http.Request) {
	propertyID, ok := pathPropertyID(w, r)
	if !ok {
		return
	}
	view, err := h.service.Funding(r.Context(), propertyID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toFundingResponse(view))
}

type closeRequest struct {
	EndTime int64 `json:"end_time"`
}

func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	propertyID, ok := pathPropertyID(w, r)
	if !ok {
		return
	}

	var req closeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.EndTime <= 0 {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "end_time must be a positive unix timestamp"))
		return
	}

	if err := h.service.Close(ctx, requestcontext.Actor(ctx), propertyID, time.Unix(req.EndTime, 0)); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathPropertyID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	raw := chi.URLParam(r, "propertyId")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid property id"))
		return 0, false
	}
	return id, true
}

func parseAmount(raw string) (*big.Int, bool) {
	if raw == "" {
		return new(big.Int), true
	}
	n, ok := new(big.Int).SetString(raw, 10)
	if !ok || n.Sign() < 0 {
		return nil, false
	}
	return n, true
}

func bigString(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}

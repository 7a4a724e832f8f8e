// Package handler exposes the publisher application lifecycle over HTTP.
// Handlers stay thin: they parse, delegate to the service, and translate
// domain errors through the shared envelope.
package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"brickvault/internal/application/models"
	"brickvault/internal/ledger"
	"brickvault/internal/platform/metrics"
	"brickvault/internal/platform/middleware"
	"brickvault/internal/transport/http/shared"
	dErrors "brickvault/pkg/domain-errors"
	"brickvault/pkg/requestcontext"
)

// Service is the application lifecycle surface consumed by the handler.
type Service interface {
	Submit(ctx context.Context, applicant common.Address, profile models.Profile, document []byte, documentType string) (*models.PublisherApplication, error)
	Review(ctx context.Context, reviewer, applicant common.Address, approve bool, reason, notes string) (*models.PublisherApplication, error)
	Withdraw(ctx context.Context, actor, applicant common.Address) (*models.PublisherApplication, error)
	Get(ctx context.Context, applicant common.Address) (*models.PublisherApplication, error)
	List(ctx context.Context, actor common.Address, filter models.ListFilter) ([]*models.PublisherApplication, error)
	Document(ctx context.Context, actor common.Address, applicationID string) ([]byte, error)
	Reconcile(ctx context.Context, applicant common.Address) (*models.ReconcileReport, error)
	ClearUnsynced(ctx context.Context, actor, applicant common.Address, notes string) (*models.PublisherApplication, error)
}

type Handler struct {
	service   Service
	logger    *slog.Logger
	metrics   *metrics.Metrics
	validator middleware.TokenValidator

	maxDocumentBytes int64
}

func New(service Service, logger *slog.Logger, m *metrics.Metrics, validator middleware.TokenValidator, maxDocumentBytes int64) *Handler {
	return &Handler{
		service:          service,
		logger:           logger,
		metrics:          m,
		validator:        validator,
		maxDocumentBytes: maxDocumentBytes,
	}
}

// Register mounts the application routes. All routes require a bearer token;
// finer-grained authorization is role-checked against the ledger inside the
// service.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.Recovery(h.logger))
		r.Use(middleware.RequestID)
		r.Use(middleware.RequestTime)
		r.Use(middleware.Logger(h.logger))
		r.Use(middleware.Timeout(2 * time.Minute))
		r.Use(middleware.Latency(h.metrics))
		r.Use(middleware.RequireAuth(h.validator, h.logger))

		r.Post("/applications", h.handleSubmit)
		r.Get("/applications", h.handleList)
		r.Get("/applications/{address}", h.handleGet)
		r.Patch("/applications/{address}", h.handleReview)
		r.Post("/applications/{address}/withdraw", h.handleWithdraw)
		r.Get("/applications/{address}/reconcile", h.handleReconcile)
		r.Post("/applications/{address}/clear-unsynced", h.handleClearUnsynced)
		r.Get("/documents/{applicationId}", h.handleDocument)
	})
}

// handleSubmit accepts a multipart form: profile fields plus the KYC document
// under the "document" part. The authenticated wallet is the applicant.
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := requestcontext.Actor(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxDocumentBytes+(1<<16))
	if err := r.ParseMultipartForm(h.maxDocumentBytes); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid multipart form"))
		return
	}

	profile := models.Profile{
		Name:    r.FormValue("name"),
		Email:   r.FormValue("email"),
		Phone:   r.FormValue("phone"),
		Company: r.FormValue("company"),
	}

	file, header, err := r.FormFile("document")
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "application document is required"))
		return
	}
	defer file.Close()

	document, err := io.ReadAll(file)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "failed to read document"))
		return
	}

	record, err := h.service.Submit(ctx, actor, profile, document, header.Header.Get("Content-Type"))
	if err != nil {
		h.logFailure(ctx, "submit application", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, record)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	applicant, ok := pathAddress(w, r)
	if !ok {
		return
	}
	record, err := h.service.Get(r.Context(), applicant)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter := models.ListFilter{}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := ledger.StatusFromStore(raw)
		if err != nil {
			shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unknown status filter"))
			return
		}
		filter.Status = status
		filter.HasStatus = true
	}
	if raw := r.URL.Query().Get("applicantAddress"); raw != "" {
		if !common.IsHexAddress(raw) {
			shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid applicant address"))
			return
		}
		filter.Applicant = common.HexToAddress(raw)
	}

	records, err := h.service.List(ctx, requestcontext.Actor(ctx), filter)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, records)
}

type reviewRequest struct {
	Approve bool   `json:"approve"`
	Reason  string `json:"reason"`
	Notes   string `json:"notes"`
}

func (h *Handler) handleReview(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	applicant, ok := pathAddress(w, r)
	if !ok {
		return
	}

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	record, err := h.service.Review(ctx, requestcontext.Actor(ctx), applicant, req.Approve, req.Reason, req.Notes)
	if err != nil {
		h.logFailure(ctx, "review application", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	applicant, ok := pathAddress(w, r)
	if !ok {
		return
	}
	record, err := h.service.Withdraw(ctx, requestcontext.Actor(ctx), applicant)
	if err != nil {
		h.logFailure(ctx, "withdraw application", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	applicant, ok := pathAddress(w, r)
	if !ok {
		return
	}
	report, err := h.service.Reconcile(r.Context(), applicant)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, reconcileResponse{
		Outcome:       string(report.Outcome),
		OffChain:      report.OffChain.String(),
		OnChain:       report.OnChain.String(),
		ApplicationID: report.ApplicationID,
	})
}

type reconcileResponse struct {
	Outcome       string `json:"outcome"`
	OffChain      string `json:"off_chain_status"`
	OnChain       string `json:"on_chain_status"`
	ApplicationID string `json:"application_id,omitempty"`
}

type clearUnsyncedRequest struct {
	Notes string `json:"notes"`
}

func (h *Handler) handleClearUnsynced(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	applicant, ok := pathAddress(w, r)
	if !ok {
		return
	}

	var req clearUnsyncedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	record, err := h.service.ClearUnsynced(ctx, requestcontext.Actor(ctx), applicant, req.Notes)
	if err != nil {
		h.logFailure(ctx, "clear unsynced application", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) handleDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	applicationID := chi.URLParam(r, "applicationId")

	document, err := h.service.Document(ctx, requestcontext.Actor(ctx), applicationID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(document)
}

func pathAddress(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	raw := chi.URLParam(r, "address")
	if !common.IsHexAddress(raw) {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid wallet address"))
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func (h *Handler) logFailure(ctx context.Context, op string, err error) {
	if dErrors.HasCode(err, dErrors.CodeInternal) || dErrors.HasCode(err, dErrors.CodeUnavailable) {
		h.logger.ErrorContext(ctx, op+" failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return
	}
	h.logger.WarnContext(ctx, op+" refused",
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"obligation_manager/internal/domain"
	"obligation_manager/internal/processor"
	"obligation_manager/internal/repository"
	"obligation_manager/pkg/crypto"
	"obligation_manager/pkg/metrics"
	"obligation_manager/pkg/validator"
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

type APIHandler struct {
	processor      *processor.ObligationProcessor
	metrics        *metrics.MetricsCollector
	signer         *crypto.Signer
	validator      *validator.ObligationValidator
	logger         *slog.Logger
	requestTimeout time.Duration
}

func NewAPIHandler(
	proc *processor.ObligationProcessor,
	metricsCollector *metrics.MetricsCollector,
	signer *crypto.Signer,
	logger *slog.Logger,
) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &APIHandler{
		processor:      proc,
		metrics:        metricsCollector,
		signer:         signer,
		validator:      validator.NewObligationValidator(),
		logger:         logger,
		requestTimeout: 30 * time.Second,
	}
}

type CreateObligationRequest struct {
	WorkspaceID   string                `json:"workspace_id"`
	AccountID     string                `json:"account_id"`
	CategoryID    string                `json:"category_id"`
	SubcategoryID string                `json:"subcategory_id,omitempty"`
	Kind          domain.ObligationKind `json:"kind"`
	Amount        decimal.Decimal       `json:"amount"`
	Currency      string                `json:"currency"`
	Schedule      domain.Schedule       `json:"schedule"`
	ValidFrom     string                `json:"valid_from"`
	ValidUntil    string                `json:"valid_until,omitempty"`
	NextRunDate   string                `json:"next_run_date,omitempty"`
}

type UpdateObligationRequest struct {
	ID            string                 `json:"id"`
	AccountID     *string                `json:"account_id,omitempty"`
	CategoryID    *string                `json:"category_id,omitempty"`
	SubcategoryID *string                `json:"subcategory_id,omitempty"`
	Kind          *domain.ObligationKind `json:"kind,omitempty"`
	Amount        *decimal.Decimal       `json:"amount,omitempty"`
	Currency      *string                `json:"currency,omitempty"`
	Schedule      *domain.Schedule       `json:"schedule,omitempty"`
	ValidFrom     *string                `json:"valid_from,omitempty"`
	ValidUntil    *string                `json:"valid_until,omitempty"`
}

type ProcessRequest struct {
	WorkspaceID string `json:"workspace_id"`
	AsOf        string `json:"as_of,omitempty"`
	Signature   string `json:"signature,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func (h *APIHandler) CreateObligationHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	var req CreateObligationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}

	validFrom, err := parseDate(req.ValidFrom)
	if err != nil {
		h.sendError(w, "valid_from must be a YYYY-MM-DD date", http.StatusBadRequest, "VALIDATION_ERROR")
		return
	}
	validUntil, err := parseDatePtr(req.ValidUntil)
	if err != nil {
		h.sendError(w, "valid_until must be a YYYY-MM-DD date", http.StatusBadRequest, "VALIDATION_ERROR")
		return
	}
	nextRunDate, err := parseDatePtr(req.NextRunDate)
	if err != nil {
		h.sendError(w, "next_run_date must be a YYYY-MM-DD date", http.StatusBadRequest, "VALIDATION_ERROR")
		return
	}

	params := domain.ObligationParams{
		WorkspaceID:   req.WorkspaceID,
		AccountID:     req.AccountID,
		CategoryID:    req.CategoryID,
		SubcategoryID: req.SubcategoryID,
		Kind:          req.Kind,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Schedule:      req.Schedule,
		ValidFrom:     validFrom,
		ValidUntil:    validUntil,
		NextRunDate:   nextRunDate,
	}

	if err := h.validator.ValidateObligation(params); err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest, "VALIDATION_ERROR")
		return
	}
	if err := h.validator.ValidateAmount(params.Amount, params.Currency); err != nil {
		h.sendError(w, err.Error(), http.StatusBadRequest, "VALIDATION_ERROR")
		return
	}

	obligation, err := h.processor.CreateObligation(ctx, params)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}

	h.sendJSON(w, obligation, http.StatusCreated)
	h.logger.Info("Obligation created",
		slog.String("obligation_id", obligation.ID),
		slog.String("workspace_id", obligation.WorkspaceID))
}

func (h *APIHandler) GetObligationHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	if id := r.URL.Query().Get("id"); id != "" {
		obligation, err := h.processor.GetObligation(ctx, id)
		if err != nil {
			h.sendDomainError(w, err)
			return
		}
		h.sendJSON(w, obligation, http.StatusOK)
		return
	}

	workspaceID := r.URL.Query().Get("workspace_id")
	if workspaceID == "" {
		h.sendError(w, "id or workspace_id is required", http.StatusBadRequest, "MISSING_ID")
		return
	}

	obligations, err := h.processor.ListObligations(ctx, workspaceID)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}

	if h.metrics != nil {
		counts := map[domain.ObligationStatus]int{}
		for _, o := range obligations {
			counts[o.Status()]++
		}
		for _, status := range []domain.ObligationStatus{domain.ObligationActive, domain.ObligationPaused, domain.ObligationArchived} {
			h.metrics.SetObligationsByStatus(workspaceID, string(status), counts[status])
		}
	}

	h.sendJSON(w, obligations, http.StatusOK)
}

func (h *APIHandler) UpdateObligationHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	var req UpdateObligationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}
	if req.ID == "" {
		h.sendError(w, "Obligation ID is required", http.StatusBadRequest, "MISSING_ID")
		return
	}

	update := domain.ObligationUpdate{
		AccountID:     req.AccountID,
		CategoryID:    req.CategoryID,
		SubcategoryID: req.SubcategoryID,
		Kind:          req.Kind,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Schedule:      req.Schedule,
	}

	var err error
	if update.ValidFrom, err = parseDatePtr(stringValue(req.ValidFrom)); err != nil {
		h.sendError(w, "valid_from must be a YYYY-MM-DD date", http.StatusBadRequest, "VALIDATION_ERROR")
		return
	}
	if update.ValidUntil, err = parseDatePtr(stringValue(req.ValidUntil)); err != nil {
		h.sendError(w, "valid_until must be a YYYY-MM-DD date", http.StatusBadRequest, "VALIDATION_ERROR")
		return
	}

	obligation, err := h.processor.UpdateObligation(ctx, req.ID, update)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendJSON(w, obligation, http.StatusOK)
}

func (h *APIHandler) PauseObligationHandler(w http.ResponseWriter, r *http.Request) {
	h.transitionHandler(w, r, h.processor.PauseObligation)
}

func (h *APIHandler) ResumeObligationHandler(w http.ResponseWriter, r *http.Request) {
	h.transitionHandler(w, r, h.processor.ResumeObligation)
}

func (h *APIHandler) ArchiveObligationHandler(w http.ResponseWriter, r *http.Request) {
	h.transitionHandler(w, r, h.processor.ArchiveObligation)
}

func (h *APIHandler) transitionHandler(
	w http.ResponseWriter,
	r *http.Request,
	transition func(context.Context, string) (*domain.Obligation, error),
) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		h.sendError(w, "Obligation ID is required", http.StatusBadRequest, "MISSING_ID")
		return
	}

	obligation, err := transition(ctx, req.ID)
	if err != nil {
		h.sendDomainError(w, err)
		return
	}
	h.sendJSON(w, obligation, http.StatusOK)
}

func (h *APIHandler) ProcessDueHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	var req ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST")
		return
	}
	if req.WorkspaceID == "" {
		h.sendError(w, "workspace_id is required", http.StatusBadRequest, "MISSING_ID")
		return
	}

	asOf := time.Now()
	if req.AsOf != "" {
		parsed, err := parseDate(req.AsOf)
		if err != nil {
			h.sendError(w, "as_of must be a YYYY-MM-DD date", http.StatusBadRequest, "VALIDATION_ERROR")
			return
		}
		asOf = parsed
	}

	// A configured secret makes the signature mandatory; omitting it must
	// not bypass verification.
	if h.signer.Enabled() && req.Signature == "" {
		h.sendError(w, "Signature is required", http.StatusUnauthorized, "MISSING_SIGNATURE")
		return
	}
	if req.Signature != "" {
		if valid, err := h.signer.VerifyProcessingTrigger(req.WorkspaceID, asOf.Unix(), req.Signature); !valid || err != nil {
			h.sendError(w, "Invalid signature", http.StatusUnauthorized, "INVALID_SIGNATURE")
			return
		}
	}

	report, err := h.processor.ProcessDue(ctx, req.WorkspaceID, asOf)
	if err != nil {
		h.logger.Error("Processing run failed",
			slog.String("workspace_id", req.WorkspaceID),
			slog.String("error", err.Error()))
		h.sendError(w, fmt.Sprintf("Processing failed: %v", err), http.StatusInternalServerError, "PROCESSING_ERROR")
		return
	}

	h.sendJSON(w, report, http.StatusOK)
}

func (h *APIHandler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   "1.0.0",
	}
	h.sendJSON(w, response, http.StatusOK)
}

func (h *APIHandler) sendDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrTransferNotAllowed):
		h.sendError(w, err.Error(), http.StatusBadRequest, "TRANSFER_NOT_ALLOWED")
	case errors.Is(err, domain.ErrInvalidDateRange):
		h.sendError(w, err.Error(), http.StatusBadRequest, "INVALID_DATE_RANGE")
	case errors.Is(err, domain.ErrInvalidFrequency),
		errors.Is(err, domain.ErrInvalidInterval),
		errors.Is(err, domain.ErrMissingAnchor),
		errors.Is(err, domain.ErrUnexpectedAnchor),
		errors.Is(err, domain.ErrInvalidAnchor):
		h.sendError(w, err.Error(), http.StatusBadRequest, "INVALID_SCHEDULE")
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrInvalidKind):
		h.sendError(w, err.Error(), http.StatusBadRequest, "VALIDATION_ERROR")
	case errors.Is(err, domain.ErrAlreadyPaused):
		h.sendError(w, err.Error(), http.StatusConflict, "ALREADY_PAUSED")
	case errors.Is(err, domain.ErrAlreadyActive):
		h.sendError(w, err.Error(), http.StatusConflict, "ALREADY_ACTIVE")
	case errors.Is(err, processor.ErrObligationArchived):
		h.sendError(w, err.Error(), http.StatusConflict, "ARCHIVED")
	case errors.Is(err, repository.ErrVersionConflict):
		h.sendError(w, err.Error(), http.StatusConflict, "VERSION_CONFLICT")
	case errors.Is(err, repository.ErrNotFound):
		h.sendError(w, "Obligation not found", http.StatusNotFound, "NOT_FOUND")
	default:
		h.sendError(w, "Internal server error", http.StatusInternalServerError, "SERVER_ERROR")
	}
}

func (h *APIHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", slog.String("error", err.Error()))
	}
}

func (h *APIHandler) sendError(w http.ResponseWriter, message string, statusCode int, code string) {
	errorResponse := ErrorResponse{
		Error: message,
		Code:  code,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(errorResponse)

	h.logger.Warn("API error response",
		slog.String("message", message),
		slog.String("code", code),
		slog.Int("status", statusCode))
}

func (h *APIHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/obligations", h.CreateObligationHandler)
	mux.HandleFunc("GET /api/v1/obligations", h.GetObligationHandler)
	mux.HandleFunc("PATCH /api/v1/obligations", h.UpdateObligationHandler)
	mux.HandleFunc("POST /api/v1/obligations/pause", h.PauseObligationHandler)
	mux.HandleFunc("POST /api/v1/obligations/resume", h.ResumeObligationHandler)
	mux.HandleFunc("POST /api/v1/obligations/archive", h.ArchiveObligationHandler)
	mux.HandleFunc("POST /api/v1/process", h.ProcessDueHandler)
	mux.HandleFunc("GET /api/health", h.HealthCheckHandler)
}

func parseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}

func parseDatePtr(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

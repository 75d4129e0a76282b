package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/expenso/policy-engine/middleware"
	"github.com/expenso/policy-engine/models"
	"github.com/expenso/policy-engine/services"
	"github.com/expenso/policy-engine/services/batch"
	"github.com/expenso/policy-engine/services/compliance"
	"github.com/expenso/policy-engine/utils"
)

// CheckItemRequest is the request body for the real-time single-item check
type CheckItemRequest struct {
	Item       models.ExpenseItem `json:"item" validate:"required"`
	Department string             `json:"department,omitempty"`
	TripType   string             `json:"trip_type,omitempty"`
}

// CheckReimbursementRequest is the request body for the full pre-submission
// compliance check and for batch limit evaluation
type CheckReimbursementRequest struct {
	Items      []models.ExpenseItem `json:"items" validate:"required,min=1"`
	Department string               `json:"department,omitempty"`
	TripType   string               `json:"trip_type,omitempty"`
}

// ComplianceHandler handles compliance evaluation HTTP requests
type ComplianceHandler struct {
	compliance *compliance.Service
	batch      *batch.Service
	logger     *zap.Logger
}

// NewComplianceHandler creates a new ComplianceHandler
func NewComplianceHandler(complianceSvc *compliance.Service, batchSvc *batch.Service, logger *zap.Logger) *ComplianceHandler {
	return &ComplianceHandler{
		compliance: complianceSvc,
		batch:      batchSvc,
		logger:     logger,
	}
}

// HandleCheckItem handles POST /api/v1/compliance/items/check.
// It evaluates one expense item as the user types; nothing is persisted.
func (h *ComplianceHandler) HandleCheckItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	evalCtx, ok := h.evalContext(w, r)
	if !ok {
		return
	}

	var req CheckItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if req.Item.Category == "" {
		_ = utils.WriteBadRequest(w, "item category is required", nil)
		return
	}
	if req.Item.Date.IsZero() {
		_ = utils.WriteBadRequest(w, "item date is required", nil)
		return
	}

	evalCtx.Department = req.Department
	evalCtx.TripType = req.TripType

	result, err := h.compliance.CheckItem(ctx, req.Item, evalCtx)
	if err != nil {
		h.logger.Error("item check failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, result)
}

// HandleCheckReimbursement handles POST /api/v1/compliance/check.
// It runs the full pre-submission pass over all items of a reimbursement,
// including the cross-item per-day aggregation.
func (h *ComplianceHandler) HandleCheckReimbursement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	evalCtx, ok := h.evalContext(w, r)
	if !ok {
		return
	}

	req, ok := h.decodeItems(w, r, requestID)
	if !ok {
		return
	}

	evalCtx.Department = req.Department
	evalCtx.TripType = req.TripType

	report, err := h.compliance.CheckReimbursement(ctx, req.Items, evalCtx)
	if err != nil {
		h.logger.Error("reimbursement check failed",
			zap.String("request_id", requestID),
			zap.Int("items", len(req.Items)),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("reimbursement checked",
		zap.String("request_id", requestID),
		zap.Int("items", len(req.Items)),
		zap.Int("issues", len(report.Issues)),
		zap.Bool("passed", report.Passed))

	_ = utils.WriteOK(w, report)
}

// HandleEvaluateBatch handles POST /api/v1/compliance/batch.
// It evaluates limits across the whole batch in submission order and
// returns per-item adjusted amounts.
func (h *ComplianceHandler) HandleEvaluateBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	evalCtx, ok := h.evalContext(w, r)
	if !ok {
		return
	}

	req, ok := h.decodeItems(w, r, requestID)
	if !ok {
		return
	}

	evalCtx.Department = req.Department
	evalCtx.TripType = req.TripType

	policies, err := h.compliance.ActivePolicies(ctx, evalCtx.TenantID)
	if err != nil {
		h.logger.Error("failed to fetch policies",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	result, err := h.batch.EvaluateBatch(ctx, req.Items, evalCtx, policies)
	if err != nil {
		h.logger.Error("batch evaluation failed",
			zap.String("request_id", requestID),
			zap.Int("items", len(req.Items)),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("batch evaluated",
		zap.String("request_id", requestID),
		zap.Int("items", len(req.Items)),
		zap.Int("adjustments", len(result.Messages)))

	_ = utils.WriteOK(w, result)
}

// evalContext builds an EvaluationContext from the identity middleware.
// Returns false after writing a 401 when identity is missing.
func (h *ComplianceHandler) evalContext(w http.ResponseWriter, r *http.Request) (models.EvaluationContext, bool) {
	ctx := r.Context()
	tenantID := middleware.GetTenantIDFromContext(ctx)
	userID := middleware.GetUserIDFromContext(ctx)

	if tenantID == uuid.Nil || userID == uuid.Nil {
		h.logger.Error("missing identity in context")
		_ = utils.WriteUnauthorized(w, "Missing tenant or user identity")
		return models.EvaluationContext{}, false
	}

	return models.EvaluationContext{
		TenantID: tenantID,
		UserID:   userID,
	}, true
}

// decodeItems parses and validates a multi-item request body.
// Returns false after writing a 400 on failure.
func (h *ComplianceHandler) decodeItems(w http.ResponseWriter, r *http.Request, requestID string) (CheckReimbursementRequest, bool) {
	var req CheckReimbursementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return req, false
	}

	if len(req.Items) == 0 {
		HandleServiceError(w, services.ErrEmptyReimbursement, h.logger)
		return req, false
	}
	for i, item := range req.Items {
		if item.Category == "" {
			_ = utils.WriteBadRequest(w, "item category is required", map[string]interface{}{"index": i})
			return req, false
		}
		if item.Date.IsZero() {
			_ = utils.WriteBadRequest(w, "item date is required", map[string]interface{}{"index": i})
			return req, false
		}
	}

	return req, true
}

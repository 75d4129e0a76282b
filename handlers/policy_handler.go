package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/expenso/policy-engine/middleware"
	"github.com/expenso/policy-engine/models"
	"github.com/expenso/policy-engine/repositories"
	"github.com/expenso/policy-engine/services"
	"github.com/expenso/policy-engine/services/compliance"
	"github.com/expenso/policy-engine/utils"
)

// RuleLimitRequest represents a spending limit in API requests
type RuleLimitRequest struct {
	Type     models.LimitType `json:"type" validate:"required,oneof=per_item per_day per_month per_year"`
	Amount   decimal.Decimal  `json:"amount" validate:"required"`
	Currency string           `json:"currency" validate:"required"`
	Cities   []string         `json:"cities,omitempty"`
}

// RuleRequest represents a single policy rule in API requests
type RuleRequest struct {
	Name             string                `json:"name" validate:"required"`
	Category         string                `json:"category" validate:"required"`
	SharedCategories []string              `json:"shared_categories,omitempty"`
	Department       *string               `json:"department,omitempty"`
	TripType         *string               `json:"trip_type,omitempty"`
	Limit            *RuleLimitRequest     `json:"limit,omitempty"`
	Condition        *models.RuleCondition `json:"condition,omitempty"`
	RequiresReceipt  bool                  `json:"requires_receipt"`
	RequiresApproval bool                  `json:"requires_approval"`
	Message          string                `json:"message"`
	Suggestion       string                `json:"suggestion"`
	Position         int                   `json:"position" validate:"gte=0"`
}

// CreatePolicyRequest represents a request to create a policy
type CreatePolicyRequest struct {
	Name     string        `json:"name" validate:"required"`
	Priority int           `json:"priority" validate:"gte=0"`
	IsActive *bool         `json:"is_active,omitempty"`
	Rules    []RuleRequest `json:"rules" validate:"dive"`
}

// UpdatePolicyRequest represents a request to update a policy.
// Rules, when present, replace the policy's rule set wholesale.
type UpdatePolicyRequest struct {
	Name     *string        `json:"name,omitempty"`
	Priority *int           `json:"priority,omitempty" validate:"omitempty,gte=0"`
	IsActive *bool          `json:"is_active,omitempty"`
	Rules    *[]RuleRequest `json:"rules,omitempty" validate:"omitempty,dive"`
}

// PolicyHandler handles policy management HTTP requests
type PolicyHandler struct {
	policyRepo repositories.PolicyRepository
	compliance *compliance.Service
	logger     *zap.Logger
}

// NewPolicyHandler creates a new PolicyHandler
func NewPolicyHandler(policyRepo repositories.PolicyRepository, complianceSvc *compliance.Service, logger *zap.Logger) *PolicyHandler {
	return &PolicyHandler{
		policyRepo: policyRepo,
		compliance: complianceSvc,
		logger:     logger,
	}
}

// HandleListPolicies handles GET /api/v1/policies
func (h *PolicyHandler) HandleListPolicies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	tenantID := middleware.GetTenantIDFromContext(ctx)
	if tenantID == uuid.Nil {
		h.logger.Error("missing tenant ID in context")
		_ = utils.WriteUnauthorized(w, "Missing tenant identity")
		return
	}

	policies, err := h.policyRepo.ListByTenant(ctx, tenantID)
	if err != nil {
		h.logger.Error("failed to list policies",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("listed policies",
		zap.String("request_id", requestID),
		zap.String("tenant_id", tenantID.String()),
		zap.Int("count", len(policies)))

	_ = utils.WriteOK(w, policies)
}

// HandleGetPolicy handles GET /api/v1/policies/{id}
func (h *PolicyHandler) HandleGetPolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID := middleware.GetTenantIDFromContext(ctx)
	if tenantID == uuid.Nil {
		h.logger.Error("missing tenant ID in context")
		_ = utils.WriteUnauthorized(w, "Missing tenant identity")
		return
	}

	policyID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid policy ID format", nil)
		return
	}

	policy, err := h.policyRepo.GetByID(ctx, policyID, tenantID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, policy)
}

// HandleCreatePolicy handles POST /api/v1/policies
func (h *PolicyHandler) HandleCreatePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	tenantID := middleware.GetTenantIDFromContext(ctx)
	if tenantID == uuid.Nil {
		h.logger.Error("missing tenant ID in context")
		_ = utils.WriteUnauthorized(w, "Missing tenant identity")
		return
	}

	var req CreatePolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if err := validateRuleLimits(req.Rules); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	policy := models.NewPolicy(tenantID, req.Name, req.Priority)
	if req.IsActive != nil {
		policy.IsActive = *req.IsActive
	}
	policy.Rules = buildRules(policy.ID, req.Rules)

	if err := h.policyRepo.Create(ctx, policy); err != nil {
		h.logger.Error("failed to create policy",
			zap.String("request_id", requestID),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	h.compliance.InvalidatePolicies(tenantID)

	h.logger.Info("policy created",
		zap.String("request_id", requestID),
		zap.String("policy_id", policy.ID.String()),
		zap.Int("rules", len(policy.Rules)))

	_ = utils.WriteCreated(w, policy)
}

// HandleUpdatePolicy handles PUT /api/v1/policies/{id}
func (h *PolicyHandler) HandleUpdatePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	tenantID := middleware.GetTenantIDFromContext(ctx)
	if tenantID == uuid.Nil {
		h.logger.Error("missing tenant ID in context")
		_ = utils.WriteUnauthorized(w, "Missing tenant identity")
		return
	}

	policyID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid policy ID format", nil)
		return
	}

	var req UpdatePolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to parse request body",
			zap.String("request_id", requestID),
			zap.Error(err))
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if req.Rules != nil {
		if err := validateRuleLimits(*req.Rules); err != nil {
			HandleServiceError(w, err, h.logger)
			return
		}
	}

	policy, err := h.policyRepo.GetByID(ctx, policyID, tenantID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if req.Name != nil {
		policy.Name = *req.Name
	}
	if req.Priority != nil {
		policy.Priority = *req.Priority
	}
	if req.IsActive != nil {
		policy.IsActive = *req.IsActive
	}
	if req.Rules != nil {
		policy.Rules = buildRules(policy.ID, *req.Rules)
	}

	if err := h.policyRepo.Update(ctx, policy); err != nil {
		h.logger.Error("failed to update policy",
			zap.String("request_id", requestID),
			zap.String("policy_id", policyID.String()),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	h.compliance.InvalidatePolicies(tenantID)

	h.logger.Info("policy updated",
		zap.String("request_id", requestID),
		zap.String("policy_id", policyID.String()))

	_ = utils.WriteOK(w, policy)
}

// HandleDeletePolicy handles DELETE /api/v1/policies/{id}
func (h *PolicyHandler) HandleDeletePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)

	tenantID := middleware.GetTenantIDFromContext(ctx)
	if tenantID == uuid.Nil {
		h.logger.Error("missing tenant ID in context")
		_ = utils.WriteUnauthorized(w, "Missing tenant identity")
		return
	}

	policyID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		_ = utils.WriteBadRequest(w, "Invalid policy ID format", nil)
		return
	}

	if err := h.policyRepo.Delete(ctx, policyID, tenantID); err != nil {
		h.logger.Error("failed to delete policy",
			zap.String("request_id", requestID),
			zap.String("policy_id", policyID.String()),
			zap.Error(err))
		HandleServiceError(w, err, h.logger)
		return
	}

	h.compliance.InvalidatePolicies(tenantID)

	h.logger.Info("policy deleted",
		zap.String("request_id", requestID),
		zap.String("policy_id", policyID.String()))

	utils.WriteNoContent(w)
}

// validateRuleLimits enforces the positive-amount invariant on rule limits,
// which the struct validator cannot express for decimal fields.
func validateRuleLimits(rules []RuleRequest) error {
	for _, rule := range rules {
		if rule.Limit != nil && rule.Limit.Amount.Sign() <= 0 {
			return services.ErrInvalidRuleLimit
		}
	}
	return nil
}

// buildRules converts request rules into model rules owned by the policy
func buildRules(policyID uuid.UUID, reqs []RuleRequest) []models.PolicyRule {
	rules := make([]models.PolicyRule, len(reqs))
	for i, req := range reqs {
		rule := models.PolicyRule{
			ID:               uuid.New(),
			PolicyID:         policyID,
			Name:             req.Name,
			Category:         req.Category,
			SharedCategories: req.SharedCategories,
			Department:       req.Department,
			TripType:         req.TripType,
			Condition:        req.Condition,
			RequiresReceipt:  req.RequiresReceipt,
			RequiresApproval: req.RequiresApproval,
			Message:          req.Message,
			Suggestion:       req.Suggestion,
			Position:         req.Position,
		}
		if req.Limit != nil {
			rule.Limit = &models.RuleLimit{
				Type:     req.Limit.Type,
				Amount:   req.Limit.Amount,
				Currency: req.Limit.Currency,
				Cities:   req.Limit.Cities,
			}
		}
		rules[i] = rule
	}
	return rules
}

package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/underwrite-labs/harrier/internal/coverage"
	"github.com/underwrite-labs/harrier/internal/domain"
	"github.com/underwrite-labs/harrier/internal/learning"
	"github.com/underwrite-labs/harrier/internal/repository"
	"github.com/underwrite-labs/harrier/internal/rules"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo       domain.Repository
	cache      domain.Cache
	bus        domain.EventBus
	engine     *rules.Engine
	matcher    *coverage.Matcher
	recorder   *learning.Recorder
	similarity *learning.Similarity
	insights   *learning.Insights
	version    string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *rules.Engine, matcher *coverage.Matcher, recorder *learning.Recorder, similarity *learning.Similarity, insights *learning.Insights, version string) *Handler {
	return &Handler{
		repo:       repo,
		cache:      cache,
		bus:        bus,
		engine:     engine,
		matcher:    matcher,
		recorder:   recorder,
		similarity: similarity,
		insights:   insights,
		version:    version,
	}
}

// GlobalTenantID is used for rules that apply to all tenants.
const GlobalTenantID = "*"

// ============================================================================
// CASE HANDLERS
// ============================================================================

// CreateCase handles POST /cases: stores or updates an underwriting case.
func (h *Handler) CreateCase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var c domain.Case
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if c.Applicant.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "applicant.name is required",
		})
		return
	}

	now := time.Now().UTC()
	created := false
	if c.ID == "" {
		c.ID = uuid.New().String()
		c.CreatedAt = now
		created = true
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	c.TenantID = tenantID
	if c.Status == "" {
		c.Status = "open"
	}

	if err := h.repo.SaveCase(ctx, tenantID, &c); err != nil {
		slog.Error("failed to save case", "id", c.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save case",
		})
		return
	}

	if created && h.bus != nil {
		payload, _ := json.Marshal(map[string]string{"caseId": c.ID})
		if err := h.bus.Publish(ctx, tenantID, domain.TopicCaseCreated, payload); err != nil {
			slog.Warn("failed to publish case created event", "case_id", c.ID, "error", err)
		}
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, &c)
}

// GetCase handles GET /cases/{id}.
func (h *Handler) GetCase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	caseID := chi.URLParam(r, "id")

	c, err := h.repo.GetCase(ctx, tenantID, caseID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "case not found",
			})
			return
		}
		slog.Error("failed to get case", "id", caseID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get case",
		})
		return
	}

	writeJSON(w, http.StatusOK, c)
}

// EvaluateResponse is the response for case evaluation.
type EvaluateResponse struct {
	CaseID   string             `json:"caseId,omitempty"`
	Matches  []domain.RuleMatch `json:"matches"`
	Metadata struct {
		TraceID        string `json:"traceId"`
		RulesEvaluated int    `json:"rulesEvaluated"`
		TotalMs        int64  `json:"totalMs"`
		Version        string `json:"version"`
	} `json:"metadata"`
}

// EvaluateCase handles POST /cases/{id}/evaluate: runs the rule engine
// against a stored case.
func (h *Handler) EvaluateCase(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	caseID := chi.URLParam(r, "id")

	c, err := h.repo.GetCase(ctx, tenantID, caseID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "case not found",
			})
			return
		}
		slog.Error("failed to get case", "id", caseID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get case",
		})
		return
	}

	resp, err := h.evaluate(r, c, start)
	if err != nil {
		slog.Error("rule evaluation failed", "case_id", caseID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "rule evaluation failed",
		})
		return
	}
	resp.CaseID = caseID

	if h.bus != nil {
		payload, _ := json.Marshal(map[string]interface{}{
			"caseId":  caseID,
			"matches": len(resp.Matches),
		})
		if err := h.bus.Publish(ctx, tenantID, domain.TopicCaseEvaluated, payload); err != nil {
			slog.Warn("failed to publish case evaluated event", "case_id", caseID, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// Evaluate handles POST /evaluate: runs the rule engine against a case
// supplied inline. The case is not persisted.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var c domain.Case
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	resp, err := h.evaluate(r, &c, start)
	if err != nil {
		slog.Error("rule evaluation failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "rule evaluation failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) evaluate(r *http.Request, c *domain.Case, start time.Time) (*EvaluateResponse, error) {
	caseCtx, err := c.Context()
	if err != nil {
		return nil, err
	}

	matches, err := h.engine.EvaluateAll(r.Context(), caseCtx)
	if err != nil {
		return nil, err
	}
	if matches == nil {
		matches = []domain.RuleMatch{}
	}

	resp := &EvaluateResponse{Matches: matches}
	resp.Metadata.TraceID = GetTraceID(r.Context())
	resp.Metadata.RulesEvaluated = h.engine.RulesCount()
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version
	return resp, nil
}

// SimilarCases handles GET /cases/{id}/similar?limit=N.
func (h *Handler) SimilarCases(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	caseID := chi.URLParam(r, "id")

	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a positive integer",
			})
			return
		}
		limit = n
	}

	similar, err := h.similarity.FindSimilar(ctx, tenantID, caseID, limit)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "case not found",
			})
			return
		}
		slog.Error("similarity lookup failed", "case_id", caseID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "similarity lookup failed",
		})
		return
	}
	if similar == nil {
		similar = []*domain.SimilarCase{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"caseId":  caseID,
		"similar": similar,
		"count":   len(similar),
	})
}

// CaseInsights handles GET /cases/{id}/insights.
func (h *Handler) CaseInsights(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	caseID := chi.URLParam(r, "id")

	insights, err := h.insights.ForCase(ctx, tenantID, caseID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "case not found",
			})
			return
		}
		slog.Error("insights computation failed", "case_id", caseID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "insights computation failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, insights)
}

// CaseCoverage handles GET /cases/{id}/coverage?documents=a,b,c.
// The documents parameter lists document types already on file.
func (h *Handler) CaseCoverage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	caseID := chi.URLParam(r, "id")

	if h.matcher == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "coverage matcher not configured",
		})
		return
	}

	c, err := h.repo.GetCase(ctx, tenantID, caseID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "case not found",
			})
			return
		}
		slog.Error("failed to get case", "id", caseID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get case",
		})
		return
	}

	var documentTypes []string
	if v := r.URL.Query().Get("documents"); v != "" {
		for _, dt := range strings.Split(v, ",") {
			if dt = strings.TrimSpace(dt); dt != "" {
				documentTypes = append(documentTypes, dt)
			}
		}
	}

	writeJSON(w, http.StatusOK, h.matcher.Assess(c, documentTypes))
}

// ListCaseOverrides handles GET /cases/{id}/overrides.
func (h *Handler) ListCaseOverrides(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	caseID := chi.URLParam(r, "id")

	overrides, err := h.repo.ListOverridesByCase(ctx, tenantID, caseID)
	if err != nil {
		slog.Error("failed to list case overrides", "case_id", caseID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list overrides",
		})
		return
	}
	if overrides == nil {
		overrides = []*domain.Override{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"caseId":    caseID,
		"overrides": overrides,
		"count":     len(overrides),
	})
}

// ============================================================================
// OVERRIDE HANDLERS
// ============================================================================

// RecordOverrideRequest is the request body for POST /overrides.
type RecordOverrideRequest struct {
	CaseID string `json:"caseId"`

	OverrideType string `json:"overrideType"`
	Direction    string `json:"direction"`

	SystemRecommendation string                 `json:"systemRecommendation"`
	SystemDetails        map[string]interface{} `json:"systemDetails,omitempty"`
	SystemConfidence     *float64               `json:"systemConfidence,omitempty"`

	UnderwriterChoice string                 `json:"underwriterChoice"`
	ChoiceDetails     map[string]interface{} `json:"choiceDetails,omitempty"`

	Reasoning     string   `json:"reasoning"`
	ReasoningTags []string `json:"reasoningTags,omitempty"`

	UnderwriterID              string `json:"underwriterId"`
	UnderwriterName            string `json:"underwriterName,omitempty"`
	UnderwriterExperienceYears int    `json:"underwriterExperienceYears,omitempty"`
}

// RecordOverride handles POST /overrides: records a human decision that
// diverged from the system recommendation.
func (h *Handler) RecordOverride(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req RecordOverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	o, err := h.recorder.Record(ctx, tenantID, &learning.RecordInput{
		CaseID:                     req.CaseID,
		OverrideType:               req.OverrideType,
		Direction:                  req.Direction,
		SystemRecommendation:       req.SystemRecommendation,
		SystemDetails:              req.SystemDetails,
		SystemConfidence:           req.SystemConfidence,
		UnderwriterChoice:          req.UnderwriterChoice,
		ChoiceDetails:              req.ChoiceDetails,
		Reasoning:                  req.Reasoning,
		ReasoningTags:              req.ReasoningTags,
		UnderwriterID:              req.UnderwriterID,
		UnderwriterName:            req.UnderwriterName,
		UnderwriterExperienceYears: req.UnderwriterExperienceYears,
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "case not found",
			})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	slog.Info("override recorded",
		"override_id", o.ID,
		"case_id", o.CaseID,
		"override_type", o.OverrideType,
		"direction", o.Direction,
	)
	writeJSON(w, http.StatusCreated, o)
}

// GetOverride handles GET /overrides/{id}.
func (h *Handler) GetOverride(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	overrideID := chi.URLParam(r, "id")

	o, err := h.repo.GetOverride(ctx, tenantID, overrideID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "override not found",
			})
			return
		}
		slog.Error("failed to get override", "id", overrideID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get override",
		})
		return
	}

	writeJSON(w, http.StatusOK, o)
}

// ValidateOverrideRequest is the request body for override validation.
type ValidateOverrideRequest struct {
	ValidatedBy string `json:"validatedBy"`
	Notes       string `json:"notes,omitempty"`
}

// ValidateOverride handles POST /overrides/{id}/validate.
func (h *Handler) ValidateOverride(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	overrideID := chi.URLParam(r, "id")

	var req ValidateOverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.ValidatedBy == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "validatedBy is required",
		})
		return
	}

	o, err := h.recorder.Validate(ctx, tenantID, overrideID, req.ValidatedBy, req.Notes)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "override not found",
			})
			return
		}
		slog.Error("failed to validate override", "id", overrideID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to validate override",
		})
		return
	}

	writeJSON(w, http.StatusOK, o)
}

// FlagOverrideRequest is the request body for flagging an override.
type FlagOverrideRequest struct {
	Reason string `json:"reason"`
}

// FlagOverride handles POST /overrides/{id}/flag.
func (h *Handler) FlagOverride(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	overrideID := chi.URLParam(r, "id")

	var req FlagOverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.Reason == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "reason is required",
		})
		return
	}

	o, err := h.recorder.FlagForReview(ctx, tenantID, overrideID, req.Reason)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "override not found",
			})
			return
		}
		slog.Error("failed to flag override", "id", overrideID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to flag override",
		})
		return
	}

	writeJSON(w, http.StatusOK, o)
}

// PendingOverrides handles GET /overrides/pending.
func (h *Handler) PendingOverrides(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	overrides, err := h.repo.ListOverridesPendingValidation(ctx, tenantID)
	if err != nil {
		slog.Error("failed to list pending overrides", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list pending overrides",
		})
		return
	}
	if overrides == nil {
		overrides = []*domain.Override{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"overrides": overrides,
		"count":     len(overrides),
	})
}

// TrainingOverrides handles GET /overrides/training?type=T&since=RFC3339.
// Consumed by the external ML training pipeline.
func (h *Handler) TrainingOverrides(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	overrideType := r.URL.Query().Get("type")
	if overrideType == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "type query parameter is required",
		})
		return
	}

	since := time.Now().UTC().AddDate(0, -3, 0)
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "since must be an RFC 3339 timestamp",
			})
			return
		}
		since = t
	}

	overrides, err := h.repo.ListOverridesForTraining(ctx, tenantID, overrideType, since)
	if err != nil {
		slog.Error("failed to list training overrides", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list training overrides",
		})
		return
	}
	if overrides == nil {
		overrides = []*domain.Override{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"overrides": overrides,
		"count":     len(overrides),
		"since":     since.Format(time.RFC3339),
	})
}

// Patterns handles GET /patterns?type=T: recurring override patterns.
// When a type is given the worker's warm cache is consulted first.
func (h *Handler) Patterns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	overrideType := r.URL.Query().Get("type")

	if overrideType != "" && h.cache != nil {
		if data, err := h.cache.Get(ctx, tenantID, learning.PatternCacheKey(overrideType)); err == nil && data != nil {
			var patterns []domain.OverridePattern
			if json.Unmarshal(data, &patterns) == nil {
				writeJSON(w, http.StatusOK, map[string]interface{}{
					"patterns": patterns,
					"count":    len(patterns),
					"source":   "cache",
				})
				return
			}
		}
	}

	var overrides []*domain.Override
	var err error
	if overrideType != "" {
		overrides, err = h.repo.ListOverridesByType(ctx, tenantID, overrideType)
	} else {
		overrides, err = h.repo.ListOverrides(ctx, tenantID, 500)
	}
	if err != nil {
		slog.Error("failed to list overrides for pattern mining", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to mine patterns",
		})
		return
	}

	patterns := learning.MinePatterns(overrides, overrideType)
	if patterns == nil {
		patterns = []domain.OverridePattern{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"patterns": patterns,
		"count":    len(patterns),
		"source":   "mined",
	})
}

// ============================================================================
// RULE HANDLERS
// ============================================================================

// ListRules returns all loaded rules from the engine.
// Rules are loaded from the database at startup and can be reloaded via POST /rules/reload.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loadedRules := h.engine.LoadedRules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  loadedRules,
		"count":  len(loadedRules),
		"source": "database",
	})
}

// GetRule retrieves a rule by ID from the loaded engine rules.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	for _, rule := range h.engine.LoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "rule not found",
	})
}

// CreateRuleRequest is the request body for creating a rule.
type CreateRuleRequest struct {
	ID            string                 `json:"id"`
	Name          string                 `json:"name"`
	Description   string                 `json:"description,omitempty"`
	Category      string                 `json:"category"`
	Conditions    domain.Condition       `json:"conditions"`
	Actions       map[string]interface{} `json:"actions,omitempty"`
	Priority      int                    `json:"priority"`
	AlwaysInclude bool                   `json:"alwaysInclude"`
	Enabled       bool                   `json:"enabled"`
}

func (req *CreateRuleRequest) toRule() *domain.Rule {
	return &domain.Rule{
		ID:            req.ID,
		TenantID:      GlobalTenantID,
		Name:          req.Name,
		Description:   req.Description,
		Category:      req.Category,
		Conditions:    req.Conditions,
		Actions:       req.Actions,
		Priority:      req.Priority,
		AlwaysInclude: req.AlwaysInclude,
		Enabled:       req.Enabled,
	}
}

// CreateRule creates a new rule and saves it to the database.
// Rules are saved globally (tenant_id = "*") so they apply to all tenants.
// The rule is also hot-loaded into the engine.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id and name are required",
		})
		return
	}

	rule := req.toRule()

	// Compiling also validates the condition tree and any regex patterns
	if err := h.engine.LoadRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid rule: " + err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveRule(ctx, GlobalTenantID, rule); err != nil {
			slog.Error("failed to save rule", "id", rule.ID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save rule",
			})
			return
		}
	}

	slog.Info("rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":    rule,
		"message": "Rule created and loaded into the engine.",
	})
}

// ValidateRule compiles a rule without loading or persisting it.
func (h *Handler) ValidateRule(w http.ResponseWriter, r *http.Request) {
	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if err := h.engine.ValidateRule(req.toRule()); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"valid": false,
			"error": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid": true,
	})
}

// ReloadRules reloads all rules from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	dbRules, err := h.repo.ListRules(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules from database",
		})
		return
	}

	if err := h.engine.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	if h.bus != nil {
		payload, _ := json.Marshal(map[string]int{"count": len(dbRules)})
		if err := h.bus.Publish(ctx, tenantID, domain.TopicRulesReloaded, payload); err != nil {
			slog.Warn("failed to publish rules reloaded event", "error", err)
		}
	}

	slog.Info("rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   len(dbRules),
	})
}

// ============================================================================
// HEALTH HANDLERS
// ============================================================================

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

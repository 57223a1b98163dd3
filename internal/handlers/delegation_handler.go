package handlers

import (
	"net/http"
	"strconv"
	"time"

	"delegation-service/internal/repository"
	"delegation-service/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DelegationHandler handles HTTP requests for delegation grants
type DelegationHandler struct {
	service *services.DelegationService
}

// NewDelegationHandler creates a new DelegationHandler
func NewDelegationHandler(service *services.DelegationService) *DelegationHandler {
	return &DelegationHandler{service: service}
}

func currentActor(c *gin.Context) (services.Actor, bool) {
	userID, err := uuid.Parse(c.GetString("user_id"))
	if err != nil {
		return services.Actor{}, false
	}
	return services.Actor{
		ID:   userID,
		Name: c.GetString("user_name"),
		Role: c.GetString("user_role"),
	}, true
}

func statusForError(err error) int {
	switch err {
	case services.ErrGrantNotFound:
		return http.StatusNotFound
	case services.ErrInvalidWindow, services.ErrSelfDelegation, services.ErrInvalidProxyAction:
		return http.StatusBadRequest
	case services.ErrAlreadyTerminal:
		return http.StatusConflict
	case repository.ErrVersionConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func pagination(c *gin.Context) (int, int) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// CreateGrant creates a new delegation grant
// @Summary Create delegation grant
// @Tags Delegations
// @Accept json
// @Produce json
// @Param request body services.CreateGrantInput true "Create Grant"
// @Success 201 {object} map[string]interface{}
// @Router /api/v1/delegations [post]
func (h *DelegationHandler) CreateGrant(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id is required"})
		return
	}

	actor, ok := currentActor(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
		return
	}

	var input services.CreateGrantInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Callers delegating their own authority may omit the delegator block.
	if input.Delegator.ID == uuid.Nil {
		input.Delegator = services.PartyInput{ID: actor.ID, Name: actor.Name, Role: actor.Role}
	}

	grant, conflicts, err := h.service.CreateGrant(c.Request.Context(), tenantID, actor, input)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"data":      grant,
		"conflicts": conflicts,
	})
}

// ListGrants lists delegation grants with optional filters
// @Summary List delegation grants
// @Tags Delegations
// @Produce json
// @Param status query string false "Status filter (scheduled, active, expired, revoked)"
// @Param delegatorId query string false "Delegator filter"
// @Param delegateId query string false "Delegate filter"
// @Param kind query string false "Kind filter (full, specific_workflows, temporary)"
// @Param limit query int false "Limit" default(20)
// @Param offset query int false "Offset" default(0)
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/delegations [get]
func (h *DelegationHandler) ListGrants(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	filter := repository.GrantFilter{
		Status: c.Query("status"),
		Kind:   c.Query("kind"),
	}
	filter.Limit, filter.Offset = pagination(c)

	if s := c.Query("delegatorId"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid delegatorId"})
			return
		}
		filter.DelegatorID = &id
	}
	if s := c.Query("delegateId"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid delegateId"})
			return
		}
		filter.DelegateID = &id
	}

	grants, total, err := h.service.ListGrants(c.Request.Context(), tenantID, filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An internal error occurred"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":   grants,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// GetGrant retrieves a delegation grant by ID
// @Summary Get delegation grant
// @Tags Delegations
// @Produce json
// @Param id path string true "Grant ID"
// @Success 200 {object} models.DelegationGrant
// @Router /api/v1/delegations/{id} [get]
func (h *DelegationHandler) GetGrant(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid grant id"})
		return
	}

	grant, err := h.service.GetGrant(c.Request.Context(), tenantID, id)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, grant)
}

// UpdateGrant updates a delegation grant
// @Summary Update delegation grant
// @Tags Delegations
// @Accept json
// @Produce json
// @Param id path string true "Grant ID"
// @Param request body services.UpdateGrantInput true "Update Grant"
// @Success 200 {object} models.DelegationGrant
// @Router /api/v1/delegations/{id} [put]
func (h *DelegationHandler) UpdateGrant(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid grant id"})
		return
	}

	actor, ok := currentActor(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
		return
	}

	var input services.UpdateGrantInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	existing, err := h.service.GetGrant(c.Request.Context(), tenantID, id)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	// Only the delegator or an admin may modify.
	if existing.DelegatorID != actor.ID && actor.Role != "admin" && actor.Role != "owner" {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the delegator or an admin can modify a delegation"})
		return
	}

	grant, err := h.service.UpdateGrant(c.Request.Context(), tenantID, id, actor, input)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, grant)
}

// RevokeGrant revokes a delegation grant
// @Summary Revoke delegation grant
// @Tags Delegations
// @Accept json
// @Produce json
// @Param id path string true "Grant ID"
// @Param request body map[string]string false "Reason"
// @Success 200 {object} models.DelegationGrant
// @Router /api/v1/delegations/{id}/revoke [post]
func (h *DelegationHandler) RevokeGrant(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid grant id"})
		return
	}

	actor, ok := currentActor(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&body)

	grant, err := h.service.GetGrant(c.Request.Context(), tenantID, id)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	// Only the delegator or an admin may revoke.
	if grant.DelegatorID != actor.ID && actor.Role != "admin" && actor.Role != "owner" {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the delegator or an admin can revoke a delegation"})
		return
	}

	grant, err = h.service.RevokeGrant(c.Request.Context(), tenantID, id, actor, body.Reason)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, grant)
}

// DeleteGrant hard-deletes a delegation grant and its audit trail
// @Summary Delete delegation grant
// @Tags Delegations
// @Param id path string true "Grant ID"
// @Success 204
// @Router /api/v1/delegations/{id} [delete]
func (h *DelegationHandler) DeleteGrant(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid grant id"})
		return
	}

	if err := h.service.DeleteGrant(c.Request.Context(), tenantID, id); err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusNoContent)
}

// ActiveGrants lists the grants currently in effect for a user
// @Summary Active grants for user
// @Tags Delegations
// @Produce json
// @Param userId path string true "User ID"
// @Success 200 {object} services.ActiveGrants
// @Router /api/v1/delegations/active/{userId} [get]
func (h *DelegationHandler) ActiveGrants(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	grants, err := h.service.ActiveGrantsFor(c.Request.Context(), tenantID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An internal error occurred"})
		return
	}

	c.JSON(http.StatusOK, grants)
}

// EligibleDelegates lists candidate delegation recipients
// @Summary Eligible delegates
// @Tags Delegations
// @Produce json
// @Param search query string false "Name search"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/delegations/eligible-delegates [get]
func (h *DelegationHandler) EligibleDelegates(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	var exclude *uuid.UUID
	if userID, err := uuid.Parse(c.GetString("user_id")); err == nil {
		exclude = &userID
	}

	candidates, err := h.service.EligibleDelegates(c.Request.Context(), tenantID, exclude, c.Query("search"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An internal error occurred"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": candidates})
}

// GetStats returns delegation statistics for the tenant
// @Summary Delegation statistics
// @Tags Delegations
// @Produce json
// @Success 200 {object} services.Stats
// @Router /api/v1/delegations/stats [get]
func (h *DelegationHandler) GetStats(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	stats, err := h.service.GetStats(c.Request.Context(), tenantID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An internal error occurred"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// CheckConflicts reports existing grants overlapping a candidate window
// @Summary Check delegation conflicts
// @Tags Delegations
// @Produce json
// @Param delegatorId query string true "Delegator ID"
// @Param startDate query string true "Start date (YYYY-MM-DD)"
// @Param endDate query string true "End date (YYYY-MM-DD)"
// @Param excludeId query string false "Grant to exclude (when editing)"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/delegations/check-conflicts [get]
func (h *DelegationHandler) CheckConflicts(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	delegatorID, err := uuid.Parse(c.Query("delegatorId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid delegatorId"})
		return
	}

	start, err := time.Parse("2006-01-02", c.Query("startDate"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid startDate, expected YYYY-MM-DD"})
		return
	}
	end, err := time.Parse("2006-01-02", c.Query("endDate"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid endDate, expected YYYY-MM-DD"})
		return
	}

	var excludeID *uuid.UUID
	if s := c.Query("excludeId"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid excludeId"})
			return
		}
		excludeID = &id
	}

	conflicts, err := h.service.CheckConflicts(c.Request.Context(), tenantID, delegatorID, start, end, excludeID)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"hasConflicts": len(conflicts) > 0,
		"conflicts":    conflicts,
	})
}

// CheckReDelegation checks whether a user may receive a new delegation
// @Summary Check re-delegation eligibility
// @Tags Delegations
// @Produce json
// @Param userId path string true "Candidate user ID"
// @Success 200 {object} services.EligibilityResult
// @Router /api/v1/delegations/re-delegation/{userId} [get]
func (h *DelegationHandler) CheckReDelegation(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	result, err := h.service.CheckReDelegation(c.Request.Context(), tenantID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An internal error occurred"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// ValidateLimits checks a proposed action against a grant's limits
// @Summary Validate action against grant limits
// @Tags Delegations
// @Accept json
// @Produce json
// @Param id path string true "Grant ID"
// @Param request body object true "Action to validate"
// @Success 200 {object} services.ValidationResult
// @Router /api/v1/delegations/{id}/validate [post]
func (h *DelegationHandler) ValidateLimits(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid grant id"})
		return
	}

	var body struct {
		Amount    *float64 `json:"amount"`
		Category  string   `json:"category"`
		TierLevel *int     `json:"tierLevel"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.service.ValidateGrantLimits(c.Request.Context(), tenantID, id, body.Amount, body.Category, body.TierLevel)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// AuditTrail retrieves the audit trail for a grant
// @Summary Grant audit trail
// @Tags Delegations
// @Produce json
// @Param id path string true "Grant ID"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/delegations/{id}/audit [get]
func (h *DelegationHandler) AuditTrail(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid grant id"})
		return
	}

	entries, err := h.service.AuditTrail(c.Request.Context(), tenantID, id)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entries})
}

// History lists summaries of ended delegations
// @Summary Delegation history
// @Tags Delegations
// @Produce json
// @Param delegatorId query string false "Delegator filter"
// @Param delegateId query string false "Delegate filter"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/delegations/history [get]
func (h *DelegationHandler) History(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	var filter services.HistoryFilter
	if s := c.Query("delegatorId"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid delegatorId"})
			return
		}
		filter.DelegatorID = &id
	}
	if s := c.Query("delegateId"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid delegateId"})
			return
		}
		filter.DelegateID = &id
	}

	entries, err := h.service.History(c.Request.Context(), tenantID, filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An internal error occurred"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entries})
}

// RegisterRoutes registers all delegation routes
func (h *DelegationHandler) RegisterRoutes(rg *gin.RouterGroup) {
	delegations := rg.Group("/delegations")
	{
		delegations.POST("", h.CreateGrant)
		delegations.GET("", h.ListGrants)
		delegations.GET("/stats", h.GetStats)
		delegations.GET("/history", h.History)
		delegations.GET("/eligible-delegates", h.EligibleDelegates)
		delegations.GET("/check-conflicts", h.CheckConflicts)
		delegations.GET("/re-delegation/:userId", h.CheckReDelegation)
		delegations.GET("/active/:userId", h.ActiveGrants)
		delegations.GET("/:id", h.GetGrant)
		delegations.PUT("/:id", h.UpdateGrant)
		delegations.DELETE("/:id", h.DeleteGrant)
		delegations.POST("/:id/revoke", h.RevokeGrant)
		delegations.GET("/:id/audit", h.AuditTrail)
		delegations.POST("/:id/validate", h.ValidateLimits)
	}
}

package handlers

import (
	"net/http"

	"delegation-service/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ProxyApprovalHandler handles HTTP requests for the proxy approval ledger
type ProxyApprovalHandler struct {
	service *services.DelegationService
}

// NewProxyApprovalHandler creates a new ProxyApprovalHandler
func NewProxyApprovalHandler(service *services.DelegationService) *ProxyApprovalHandler {
	return &ProxyApprovalHandler{service: service}
}

// RecordProxyApproval appends a proxy approval record
// @Summary Record proxy approval
// @Tags ProxyApprovals
// @Accept json
// @Produce json
// @Param request body services.RecordProxyApprovalInput true "Proxy Approval"
// @Success 201 {object} models.ProxyApprovalRecord
// @Router /api/v1/proxy-approvals [post]
func (h *ProxyApprovalHandler) RecordProxyApproval(c *gin.Context) {
	tenantID := c.GetString("tenant_id")
	if tenantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id is required"})
		return
	}

	var input services.RecordProxyApprovalInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record, err := h.service.RecordProxyApproval(c.Request.Context(), tenantID, input)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, record)
}

// ListProxyApprovals retrieves the ledger for a grant
// @Summary List proxy approvals for grant
// @Tags ProxyApprovals
// @Produce json
// @Param id path string true "Grant ID"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/delegations/{id}/proxy-approvals [get]
func (h *ProxyApprovalHandler) ListProxyApprovals(c *gin.Context) {
	tenantID := c.GetString("tenant_id")

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid grant id"})
		return
	}

	records, err := h.service.ListProxyApprovals(c.Request.Context(), tenantID, id)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": records})
}

// RegisterRoutes registers proxy approval routes
func (h *ProxyApprovalHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/proxy-approvals", h.RecordProxyApproval)
	rg.GET("/delegations/:id/proxy-approvals", h.ListProxyApprovals)
}

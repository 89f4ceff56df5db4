package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"task-inbox-go/internal/service"
)

// GetAccountStatus returns the last sync time and error of the project's account
func (h *Handlers) GetAccountStatus(c *gin.Context) {
	projectID, ok := parseID(c, "project_id")
	if !ok {
		return
	}

	status, err := h.svc.AccountStatus(c.Request.Context(), projectID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// ConfigureAccount creates or replaces the project's mail account
func (h *Handlers) ConfigureAccount(c *gin.Context) {
	projectID, ok := parseID(c, "project_id")
	if !ok {
		return
	}

	var req service.AccountInput
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}

	account, err := h.svc.ConfigureAccount(c.Request.Context(), projectID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, account)
}

// VerifyTransport checks the outbound credentials of the project's account
func (h *Handlers) VerifyTransport(c *gin.Context) {
	projectID, ok := parseID(c, "project_id")
	if !ok {
		return
	}

	if err := h.svc.VerifyTransport(c.Request.Context(), projectID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

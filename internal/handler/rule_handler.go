package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"task-inbox-go/internal/service"
)

// ListRules returns the project's inbox rules in evaluation order
func (h *Handlers) ListRules(c *gin.Context) {
	projectID, ok := parseID(c, "project_id")
	if !ok {
		return
	}

	list, err := h.svc.ListRules(c.Request.Context(), projectID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// CreateRule creates a new inbox rule
func (h *Handlers) CreateRule(c *gin.Context) {
	projectID, ok := parseID(c, "project_id")
	if !ok {
		return
	}

	var req service.RuleInput
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}

	rule, err := h.svc.CreateRule(c.Request.Context(), projectID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rule)
}

// GetRule returns a specific rule
func (h *Handlers) GetRule(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	rule, err := h.svc.GetRule(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// UpdateRule replaces a rule's conditions and actions
func (h *Handlers) UpdateRule(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req service.RuleInput
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}

	rule, err := h.svc.UpdateRule(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// DeleteRule deletes a rule
func (h *Handlers) DeleteRule(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.svc.DeleteRule(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Rule deleted successfully"})
}

// EnableRule enables a rule
func (h *Handlers) EnableRule(c *gin.Context) {
	h.setRuleEnabled(c, true)
}

// DisableRule disables a rule
func (h *Handlers) DisableRule(c *gin.Context) {
	h.setRuleEnabled(c, false)
}

func (h *Handlers) setRuleEnabled(c *gin.Context, enabled bool) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	rule, err := h.svc.SetRuleEnabled(c.Request.Context(), id, enabled)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"task-inbox-go/internal/repository"
)

// TriggerSync runs a manual sync of the project's mailbox
func (h *Handlers) TriggerSync(c *gin.Context) {
	projectID, ok := parseID(c, "project_id")
	if !ok {
		return
	}

	report, err := h.svc.TriggerSync(c.Request.Context(), projectID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// ListMessages returns a filtered page of the project's inbox
func (h *Handlers) ListMessages(c *gin.Context) {
	projectID, ok := parseID(c, "project_id")
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}

	since, ok := parseTime(c, "since")
	if !ok {
		return
	}
	until, ok := parseTime(c, "until")
	if !ok {
		return
	}

	includeSpam, _ := strconv.ParseBool(c.Query("include_spam"))
	filter := repository.MessageFilter{
		Status:      c.Query("status"),
		FromEmail:   c.Query("from"),
		Since:       since,
		Until:       until,
		Search:      c.Query("q"),
		IncludeSpam: includeSpam,
		Page:        page,
		Limit:       limit,
	}

	result, err := h.svc.ListMessages(c.Request.Context(), projectID, filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetMessage returns one message with its attachments
func (h *Handlers) GetMessage(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	detail, err := h.svc.GetMessage(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// ConvertMessage turns a message into a task on behalf of a user
func (h *Handlers) ConvertMessage(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req ConvertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}

	task, err := h.svc.ConvertMessage(c.Request.Context(), id, req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

// SendComment mails a task comment to the thread's latest sender
func (h *Handlers) SendComment(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	res, err := h.svc.SendCommentAsEmail(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message_id": res.MessageID,
		"recipients": res.Recipients,
	})
}

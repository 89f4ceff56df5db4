package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"task-inbox-go/internal/credential"
	"task-inbox-go/internal/outbound"
	"task-inbox-go/internal/repository"
	"task-inbox-go/internal/rules"
	"task-inbox-go/internal/scheduler"
	"task-inbox-go/internal/service"
)

// ConvertRequest is the body of a manual conversion
type ConvertRequest struct {
	UserID uint `json:"user_id" binding:"required"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string     `json:"status"`
	Timestamp time.Time  `json:"timestamp"`
	Database  string     `json:"database"`
	Scheduler string     `json:"scheduler"`
	NextRun   *time.Time `json:"next_run,omitempty"`
	LastRun   *time.Time `json:"last_run,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func abort(c *gin.Context, code int, kind, message string) {
	c.JSON(code, ErrorResponse{Error: kind, Message: message, Code: code})
}

// respondError maps a service error to its HTTP status.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrInboxNotFound),
		errors.Is(err, repository.ErrAccountNotFound),
		errors.Is(err, repository.ErrMessageNotFound),
		errors.Is(err, repository.ErrRuleNotFound),
		errors.Is(err, repository.ErrTaskNotFound),
		errors.Is(err, repository.ErrCommentNotFound),
		errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, repository.ErrProjectNotFound):
		abort(c, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, rules.ErrInvalidRule), errors.Is(err, service.ErrInvalidAccount):
		abort(c, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, service.ErrCommentAlreadySent),
		errors.Is(err, scheduler.ErrSyncLocked),
		errors.Is(err, scheduler.ErrSyncInProgress):
		abort(c, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, service.ErrRepliesDisabled),
		errors.Is(err, service.ErrNoInboundMessage),
		errors.Is(err, scheduler.ErrAccountDisabled):
		abort(c, http.StatusUnprocessableEntity, "unprocessable", err.Error())
	case errors.Is(err, outbound.ErrTransport):
		abort(c, http.StatusBadGateway, "transport_error", err.Error())
	case errors.Is(err, credential.ErrDecrypt):
		logrus.WithError(err).Error("Stored credential cannot be decrypted")
		abort(c, http.StatusInternalServerError, "credential_error", "Stored credentials cannot be decrypted")
	default:
		logrus.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
		abort(c, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		abort(c, http.StatusBadRequest, "invalid_id", "Invalid "+name)
		return 0, false
	}
	return uint(id), true
}

func parseTime(c *gin.Context, key string) (*time.Time, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		abort(c, http.StatusBadRequest, "validation_error", key+" must be an RFC 3339 timestamp")
		return nil, false
	}
	return &t, true
}

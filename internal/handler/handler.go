package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"task-inbox-go/internal/scheduler"
	"task-inbox-go/internal/service"
)

// Scheduler is the control surface of the periodic sync.
type Scheduler interface {
	Start() error
	Stop() error
	IsRunning() bool
	RunOnce(ctx context.Context) (scheduler.Report, error)
	Status() scheduler.Status
	GetLastRun() time.Time
}

// Handlers contains all HTTP handlers
type Handlers struct {
	db        *gorm.DB
	svc       *service.Service
	scheduler Scheduler
}

// NewHandlers creates new HTTP handlers
func NewHandlers(db *gorm.DB, svc *service.Service, scheduler Scheduler) *Handlers {
	return &Handlers{
		db:        db,
		svc:       svc,
		scheduler: scheduler,
	}
}

// SetupRoutes sets up all HTTP routes
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	router.GET("/healthz", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	{
		project := api.Group("/projects/:project_id")
		project.POST("/sync", h.TriggerSync)
		project.GET("/messages", h.ListMessages)
		project.GET("/rules", h.ListRules)
		project.POST("/rules", h.CreateRule)
		project.GET("/account", h.GetAccountStatus)
		project.PUT("/account", h.ConfigureAccount)
		project.POST("/account/verify", h.VerifyTransport)

		api.GET("/messages/:id", h.GetMessage)
		api.POST("/messages/:id/convert", h.ConvertMessage)

		api.GET("/rules/:id", h.GetRule)
		api.PUT("/rules/:id", h.UpdateRule)
		api.DELETE("/rules/:id", h.DeleteRule)
		api.PATCH("/rules/:id/enable", h.EnableRule)
		api.PATCH("/rules/:id/disable", h.DisableRule)

		api.POST("/comments/:id/send", h.SendComment)

		api.POST("/scheduler/start", h.StartScheduler)
		api.POST("/scheduler/stop", h.StopScheduler)
		api.POST("/scheduler/run-once", h.RunOnce)
		api.GET("/scheduler/status", h.GetSchedulerStatus)
	}
}

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Database:  "ok",
		Scheduler: "stopped",
	}

	if err := h.ping(c.Request.Context()); err != nil {
		response.Status = "error"
		response.Database = "error"
		logrus.Errorf("Database health check failed: %v", err)
	}

	if h.scheduler != nil {
		st := h.scheduler.Status()
		if st.Running {
			response.Scheduler = "running"
			response.NextRun = &st.NextRun
		}
		if last := h.scheduler.GetLastRun(); !last.IsZero() {
			response.LastRun = &last
		}
	}

	statusCode := http.StatusOK
	if response.Status == "error" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, response)
}

func (h *Handlers) ping(ctx context.Context) error {
	sqlDB, err := h.db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

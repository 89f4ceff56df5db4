package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"gorm.io/gorm"

	"task-inbox-go/internal/config"
	"task-inbox-go/internal/correlate"
	"task-inbox-go/internal/credential"
	"task-inbox-go/internal/db"
	"task-inbox-go/internal/fetcher"
	"task-inbox-go/internal/handler"
	"task-inbox-go/internal/ingest"
	"task-inbox-go/internal/metrics"
	"task-inbox-go/internal/outbound"
	"task-inbox-go/internal/repository"
	"task-inbox-go/internal/router"
	"task-inbox-go/internal/scheduler"
	"task-inbox-go/internal/service"
	"task-inbox-go/internal/storage"
	"task-inbox-go/internal/synclock"
)

// Name and Version identify the client to IMAP servers.
var (
	Name    = "task-inbox"
	Version = "dev"
)

// App holds the wired components of one process.
type App struct {
	Config    *config.Config
	DB        *gorm.DB
	Repo      *repository.Repository
	Metrics   *metrics.Metrics
	Syncer    *scheduler.Syncer
	Scheduler *scheduler.Scheduler
	Service   *service.Service

	closers []io.Closer
}

// LoadConfig configures logging and returns the validated configuration
func LoadConfig() (*config.Config, error) {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)

	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		logrus.WithField("level", cfg.Log.Level).Warn("Unknown log level, using info")
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	return cfg, nil
}

// New opens the database and wires every component. reg receives the
// service metrics.
func New(cfg *config.Config, reg prometheus.Registerer) (*App, error) {
	dbConn, err := db.Init(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	a := &App{
		Config:  cfg,
		DB:      dbConn,
		Repo:    repository.New(dbConn),
		Metrics: metrics.NewMetricsWith(reg),
	}
	if sqlDB, err := dbConn.DB(); err == nil {
		a.closers = append(a.closers, sqlDB)
	}

	cipher, err := credential.New(cfg.Security.EncryptionKey)
	if err != nil {
		a.Close()
		return nil, err
	}

	blobs, err := storage.NewLocalStore(cfg.Storage.Dir, cfg.Storage.BaseURL)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize attachment storage: %w", err)
	}

	locker, err := a.newLocker(cfg.Redis)
	if err != nil {
		a.Close()
		return nil, err
	}

	transports := outbound.NewTransportFactory(cipher, cfg.Gmail, cfg.Mail.SendTimeout)
	composer := outbound.NewComposer(transports, cfg.Mail.MessageIDDomain, cfg.Mail.FromName)
	resolver := correlate.NewResolver(a.Repo, correlate.NewProvisioner(a.Repo))
	pipeline := ingest.NewPipeline(a.Repo, blobs, resolver, composer, a.Metrics, cfg.Mail.MessageIDDomain)

	a.Syncer = scheduler.NewSyncer(a.Repo, fetcher.NewIMAPDialer(Name, Version), pipeline, cipher, locker, a.Metrics, scheduler.Options{
		ConnectTimeout: cfg.IMAP.ConnectTimeout,
		CommandTimeout: cfg.IMAP.CommandTimeout,
		SendID:         cfg.IMAP.SendID,
		LockTTL:        cfg.Redis.LockTTL,
		Gmail:          cfg.Gmail,
	})
	a.Scheduler = scheduler.NewScheduler(&cfg.Scheduler, a.Syncer)
	a.Service = service.New(a.Repo, a.Syncer, resolver, composer, transports, cipher)
	return a, nil
}

func (a *App) newLocker(cfg config.RedisConfig) (synclock.Locker, error) {
	if cfg.URL == "" {
		logrus.Info("Using in-process sync lock")
		return synclock.NewLocalLocker(), nil
	}

	locker, err := synclock.NewRedisLocker(cfg.URL)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := locker.Ping(ctx); err != nil {
		locker.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	a.closers = append(a.closers, locker)
	logrus.Info("Using redis sync lock")
	return locker, nil
}

// Close releases the database and redis connections.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close resource")
		}
	}
	a.closers = nil
}

// Run initializes and starts the application
func Run() error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}

	logrus.Info("Starting task inbox service")

	a, err := New(cfg, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	defer a.Close()

	h := handler.NewHandlers(a.DB, a.Service, a.Scheduler)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.SetupRouter(h),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	if cfg.Scheduler.Enabled {
		if err := a.Scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	} else {
		logrus.Info("Scheduler disabled; sync runs only on demand")
	}

	serverErr := make(chan error, 1)
	go func() {
		logrus.Infof("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-quit:
	case runErr = <-serverErr:
		logrus.WithError(runErr).Error("HTTP server error")
	}

	logrus.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.Scheduler.Stop(); err != nil {
		logrus.Errorf("Failed to stop scheduler: %v", err)
	}
	a.Scheduler.Wait()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("HTTP server shutdown error: %v", err)
	}

	logrus.Info("Server stopped gracefully")
	return runErr
}

// SyncOnce runs one synchronous sync: every due account, or the given
// project forced when projectID is non-zero.
func SyncOnce(ctx context.Context, projectID uint) (scheduler.Report, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return scheduler.Report{}, err
	}
	a, err := New(cfg, prometheus.NewRegistry())
	if err != nil {
		return scheduler.Report{}, err
	}
	defer a.Close()

	if projectID != 0 {
		return a.Syncer.TriggerProject(ctx, projectID)
	}
	return a.Syncer.SyncDue(ctx, time.Now())
}

// Migrate runs the schema migrations and exits.
func Migrate() error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	conn, err := db.Init(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	if sqlDB, err := conn.DB(); err == nil {
		sqlDB.Close()
	}
	return nil
}

// GmailOAuthConfig returns the OAuth client used to authorize Gmail
// accounts for IMAP reads and API sends.
func GmailOAuthConfig() (*oauth2.Config, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Gmail.ClientID == "" || cfg.Gmail.ClientSecret == "" {
		return nil, fmt.Errorf("gmail client_id and client_secret are required")
	}
	return &oauth2.Config{
		ClientID:     cfg.Gmail.ClientID,
		ClientSecret: cfg.Gmail.ClientSecret,
		Scopes:       []string{"https://mail.google.com/", gmail.GmailSendScope},
		Endpoint:     google.Endpoint,
		RedirectURL:  "http://localhost:8080/callback",
	}, nil
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/rentals_backend/config"
	"github.com/mmdatafocus/rentals_backend/handlers"
	"github.com/mmdatafocus/rentals_backend/models"
	"github.com/mmdatafocus/rentals_backend/repository"
	"github.com/mmdatafocus/rentals_backend/workflow"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		gin.SetMode(gin.ReleaseMode)
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// Until storage is connected every route but /healthz answers 503, which
	// makes the provider retry the callback later instead of losing it.
	var active atomic.Value
	active.Store(http.Handler(bootRouter()))

	srv := &http.Server{
		Addr: ":" + port,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			active.Load().(http.Handler).ServeHTTP(w, r)
		}),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	store, closeStore := openStore(logger)
	defer closeStore()

	reconciler := workflow.NewReconciler(store, logger)
	if config.RedisConfigured() && config.ConnectRedisWithRetry(3) {
		reconciler.Locker = workflow.RedisTransactionLocker{Client: config.GetRedisLock()}
	} else {
		logger.WithFields(logrus.Fields{"field": "redis"}).Warn("redis unavailable; callbacks run without the per-transaction lock")
	}

	if topic := config.ReconciliationEventsTopic(); topic != "" {
		dispatcher := workflow.NewOutboxDispatcher(store.Outbox(), config.PubSubPublisher{}, topic, logger)
		go dispatcher.Run(sigCtx)
		defer config.ClosePubSub()
	}

	router := handlers.NewRouter(handlers.Dependencies{
		Store:          store,
		Reconciler:     reconciler,
		Recorder:       workflow.NewPaymentRecorder(store, logger),
		Logger:         logger,
		Location:       reconciler.Location,
		PhoneRegion:    config.PhoneDefaultRegion(),
		AllowedOrigins: splitAndTrim(os.Getenv("CORS_ALLOWED_ORIGINS")),
	})
	active.Store(http.Handler(router))
	logger.WithFields(logrus.Fields{"field": "server", "port": port}).Info("rentals backend ready")

	select {
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	case err := <-serverErrCh:
		if err != nil && err != http.ErrServerClosed {
			logger.WithFields(logrus.Fields{"field": "server"}).Error(err)
		}
	}
}

func bootRouter() *gin.Engine {
	r := gin.New()
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.NoRoute(func(c *gin.Context) {
		c.AbortWithStatus(http.StatusServiceUnavailable)
	})
	return r
}

func openStore(logger *logrus.Logger) (repository.Store, func()) {
	if config.UseMemoryStore() {
		logger.WithFields(logrus.Fields{"field": "store"}).Warn("USE_MEMORY_STORE set; data lives in process memory only")
		return repository.NewMemoryStore(), func() {}
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		if err := models.MigrateTable(db); err != nil {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Fatal(err)
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}
	return repository.NewGormStore(db), func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

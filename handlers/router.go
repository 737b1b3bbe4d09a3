package handlers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/rentals_backend/middlewares"
	"github.com/mmdatafocus/rentals_backend/repository"
	"github.com/mmdatafocus/rentals_backend/workflow"
	"github.com/sirupsen/logrus"
)

type Dependencies struct {
	Store       repository.Store
	Reconciler  CallbackReconciler
	Recorder    *workflow.PaymentRecorder
	Logger      *logrus.Logger
	Location    *time.Location
	PhoneRegion string
	// AllowedOrigins restricts the admin API; empty means any origin. The
	// callback always allows any origin so it can never be refused.
	AllowedOrigins []string
}

func NewRouter(deps Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())
	if deps.Logger != nil {
		r.Use(middlewares.RequestLogger(deps.Logger))
	}
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	// Preflight requests are answered by the CORS middleware itself.
	preflight := func(c *gin.Context) { c.Status(http.StatusNoContent) }

	mpesaGroup := r.Group("/api/mpesa", cors.New(corsConfig(nil)))
	mpesaGroup.OPTIONS("/callback", preflight)
	mpesaGroup.POST("/callback", MpesaCallbackHandler(deps.Reconciler, CallbackOptions{
		Logger:      deps.Logger,
		Location:    deps.Location,
		PhoneRegion: deps.PhoneRegion,
	}))

	admin := r.Group("/api/admin", cors.New(corsConfig(deps.AllowedOrigins)))
	admin.OPTIONS("/*path", preflight)
	admin.Use(middlewares.AdminMiddleware())
	admin.GET("/mpesa-transactions", ListMpesaTransactionsHandler(deps.Store.MpesaTransactions()))
	if deps.Recorder != nil {
		admin.POST("/rent-records/:id/payments", RecordPaymentHandler(deps.Recorder))
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})
	return r
}

func corsConfig(allowedOrigins []string) cors.Config {
	cfg := cors.DefaultConfig()
	if len(allowedOrigins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = allowedOrigins
		cfg.AllowCredentials = true
	}
	cfg.AddAllowMethods("GET", "POST", "OPTIONS")
	cfg.AddAllowHeaders("Origin", "Content-Type", "Authorization", "x-client-info", "apikey", middlewares.CorrelationHeader)
	cfg.AddExposeHeaders("Content-Length", middlewares.CorrelationHeader)
	return cfg
}

package handler

import (
	"wallet-ledger-core/internal/adapter/http/middleware"
	"wallet-ledger-core/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	LedgerSvc      ports.LedgerService
	LedgerRepo     ports.LedgerRepository
	TransferSvc    ports.TransferExecutor
	Pipeline       ports.WebhookPipeline
	Reconciler     ports.Reconciler
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep — verifies PostgreSQL + Redis)
	r.GET("/healthz", HealthCheck(deps.HealthCheckers...))

	v1 := r.Group("/api/v1")

	// --- Provider-facing: inbound funding events ---
	webhookHandler := NewWebhookHandler(deps.Pipeline)
	v1.POST("/webhooks/:provider", webhookHandler.Receive)

	// --- Wallet-facing ---
	walletHandler := NewWalletHandler(deps.LedgerSvc, deps.LedgerRepo)
	transferHandler := NewTransferHandler(deps.TransferSvc)
	wallets := v1.Group("/wallets")
	{
		wallets.GET("/:id/balance", walletHandler.GetBalance)
		wallets.GET("/:id/entries", walletHandler.ListEntries)
		wallets.POST("/:id/transfers", transferHandler.Submit)
	}

	// --- Operator-facing ---
	adminHandler := NewAdminHandler(deps.LedgerSvc, deps.Reconciler)
	admin := v1.Group("/admin")
	{
		admin.POST("/adjustments", adminHandler.Adjust)
		admin.POST("/reconciliation/run", adminHandler.RunReconciliation)
	}

	return r
}

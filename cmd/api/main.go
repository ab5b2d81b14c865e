package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"wallet-ledger-core/config"
	httpHandler "wallet-ledger-core/internal/adapter/http/handler"
	"wallet-ledger-core/internal/adapter/provider"
	pgStorage "wallet-ledger-core/internal/adapter/storage/postgres"
	redisStorage "wallet-ledger-core/internal/adapter/storage/redis"
	"wallet-ledger-core/internal/core/ports"
	"wallet-ledger-core/internal/service"
	"wallet-ledger-core/pkg/logger"

	"github.com/robfig/cron/v3"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("wallet-ledger-core", cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting Wallet Ledger Core")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize repositories
	walletRepo := pgStorage.NewWalletRepo(pool)
	ledgerRepo := pgStorage.NewLedgerRepo(pool)
	auditRepo := pgStorage.NewAuditRepo(pool)
	eventRepo := pgStorage.NewWebhookEventRepo(pool)
	feeRepo := pgStorage.NewFeeConfigRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Initialize Redis stores
	dedupeCache := redisStorage.NewDedupeCache(rdb)

	// Initialize collaborator services
	pinSvc := service.NewArgon2PinService()
	sigSvc := service.NewHMACSignatureService()
	feeCalc := service.NewFeeCalculator()

	// Transfer providers, ascending priority. Webhook secrets key off the
	// provider name.
	providerCfgs := make([]config.ProviderConfig, len(cfg.Providers))
	copy(providerCfgs, cfg.Providers)
	sort.Slice(providerCfgs, func(i, j int) bool {
		return providerCfgs[i].Priority < providerCfgs[j].Priority
	})

	providers := make([]ports.TransferProvider, 0, len(providerCfgs))
	secrets := make(map[string]string, len(providerCfgs))
	for _, pc := range providerCfgs {
		providers = append(providers, provider.NewClient(pc, log))
		secrets[pc.Name] = pc.WebhookSecret
	}

	// Initialize business services
	ledgerSvc := service.NewLedgerService(walletRepo, ledgerRepo, auditRepo, feeCalc, transactor, log)
	transferSvc := service.NewTransferExecutor(ledgerSvc, walletRepo, feeRepo, pinSvc, providers, log)
	pipeline := service.NewWebhookPipeline(eventRepo, walletRepo, ledgerSvc, dedupeCache, sigSvc, secrets,
		service.PipelineConfig{
			Workers:       cfg.Webhook.Workers,
			MaxAttempts:   cfg.Webhook.MaxAttempts,
			RetryBaseWait: cfg.Webhook.RetryBaseWait,
			MaxAmount:     cfg.Webhook.MaxAmount,
		}, log)
	reconciler := service.NewReconciler(walletRepo, ledgerRepo, auditRepo, eventRepo, pipeline,
		service.ReconcilerConfig{
			StuckEventAfter:   cfg.Reconciliation.StuckEventAfter,
			PendingDebitAfter: cfg.Reconciliation.PendingDebitAfter,
		}, log)

	// Webhook worker pool
	pipeline.Start(ctx)

	// Scheduled reconciliation
	scheduler := cron.New()
	if cfg.Reconciliation.Schedule != "" {
		_, err := scheduler.AddFunc(cfg.Reconciliation.Schedule, func() {
			if _, err := reconciler.Run(ctx); err != nil {
				log.Error().Err(err).Msg("Scheduled reconciliation failed")
			}
		})
		if err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.Reconciliation.Schedule).Msg("Invalid reconciliation schedule")
		}
		scheduler.Start()
		log.Info().Str("schedule", cfg.Reconciliation.Schedule).Msg("Reconciliation scheduled")
	}

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		LedgerSvc:      ledgerSvc,
		LedgerRepo:     ledgerRepo,
		TransferSvc:    transferSvc,
		Pipeline:       pipeline,
		Reconciler:     reconciler,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop cron and the webhook workers after the HTTP surface is closed.
	<-scheduler.Stop().Done()
	cancel()

	log.Info().Msg("Server exited")
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/medbridge/satusehat-bridge/internal/api"
	"github.com/medbridge/satusehat-bridge/internal/auth"
	"github.com/medbridge/satusehat-bridge/internal/config"
	"github.com/medbridge/satusehat-bridge/internal/db"
	"github.com/medbridge/satusehat-bridge/internal/lis"
	"github.com/medbridge/satusehat-bridge/internal/metrics"
	"github.com/medbridge/satusehat-bridge/internal/pipeline"
	"github.com/medbridge/satusehat-bridge/internal/repository"
	"github.com/medbridge/satusehat-bridge/internal/satusehat"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ---- database ----
	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("database migrations applied")

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	repo := repository.NewPgOrderRepository(pool)

	tokens := auth.NewTokenCache(cfg.AuthBaseURL, cfg.ClientID, cfg.ClientSecret, cfg.AuthTimeout, logger)
	tokens.OnRefresh = m.TokenRefreshTotal.Inc

	lisClient := lis.NewClient(cfg.LISBaseURL, cfg.LISTimeout, logger)
	fhirClient := satusehat.NewClient(cfg.FHIRBaseURL, cfg.OrganizationID, cfg.SubmitTimeout, logger)

	limiter := rate.NewLimiter(rate.Limit(cfg.LISRatePerSec), cfg.LISRatePerSec)

	onOutcome, onRun := m.PipelineHooks()
	p := pipeline.New(repo, tokens, lisClient, fhirClient, limiter,
		pipeline.Options{
			BatchLimit: cfg.BatchLimit,
			Workers:    cfg.BridgeWorkers,
			StartDate:  cfg.StartDate,
		},
		logger,
		pipeline.MetricHooks{OnOutcome: onOutcome, OnRun: onRun},
	)

	// ---- interval runner ----
	// Context for all background goroutines; cancelled on shutdown signal.
	runnerCtx, cancelRunner := context.WithCancel(ctx)
	defer cancelRunner()

	runner := pipeline.NewRunner(p, cfg.PollInterval, logger)
	runnerDone := make(chan struct{})
	go func() {
		defer close(runnerDone)
		runner.Run(runnerCtx)
	}()

	// ---- HTTP server ----
	router := api.NewRouter(p, reg, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// Start server in a goroutine so it does not block the shutdown listener.
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	// 1. Stop accepting new HTTP requests.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	// 2. Signal the runner to stop scheduling new bridging runs.
	cancelRunner()

	// 3. Wait for an in-flight run to finish its current candidate.
	<-runnerDone

	logger.Info("server stopped cleanly")
}

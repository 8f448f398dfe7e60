package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"girochain/observability/logging"
	"girochain/observability/otel"
	"girochain/services/achievements-gateway/auth"
	"girochain/services/achievements-gateway/config"
	"girochain/services/achievements-gateway/mirror"
	"girochain/services/achievements-gateway/models"
	"girochain/services/achievements-gateway/nodeclient"
	"girochain/services/achievements-gateway/orchestrator"
	"girochain/services/achievements-gateway/recon"
	"girochain/services/achievements-gateway/server"
	"girochain/services/achievements-gateway/storage"
	"girochain/services/achievements-gateway/watcher"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("config error", slog.Any("error", err))
		os.Exit(1)
	}
	logger := logging.Setup("achievements-gateway", cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.OTLPEndpoint != "" {
		shutdown, err := otel.Init(ctx, otel.Config{
			ServiceName: "achievements-gateway",
			Environment: cfg.Environment,
			Endpoint:    cfg.OTLPEndpoint,
			Insecure:    cfg.OTLPInsecure,
			Headers:     otel.ParseHeaders(cfg.OTLPHeaders),
			Metrics:     true,
			Traces:      true,
		})
		if err != nil {
			logger.Error("otel init", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.Warn("otel shutdown", slog.Any("error", err))
			}
		}()
	}

	var dialector gorm.Dialector
	if cfg.DatabaseDSN != "" {
		dialector = postgres.Open(cfg.DatabaseDSN)
	} else {
		dialector = sqlite.Open(cfg.SQLitePath)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		logger.Error("database connection", slog.Any("error", err))
		os.Exit(1)
	}
	if err := models.AutoMigrate(db); err != nil {
		logger.Error("auto migrate", slog.Any("error", err))
		os.Exit(1)
	}
	store := mirror.NewStore(db)

	idem, err := storage.NewSQLiteStore(cfg.IdempotencyPath)
	if err != nil {
		logger.Error("idempotency store", slog.Any("error", err))
		os.Exit(1)
	}
	defer idem.Close()

	node := nodeclient.New(cfg.NodeURL, cfg.NodeAuthToken)
	claims := orchestrator.New(store, node, logger)

	authMW, err := auth.NewMiddleware(auth.Options{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	})
	if err != nil {
		logger.Error("auth init", slog.Any("error", err))
		os.Exit(1)
	}

	srv := server.New(server.Config{
		Store:           store,
		Orchestrator:    claims,
		Auth:            authMW,
		Idempotency:     idem,
		RateLimitPerMin: cfg.RateLimitPerMin,
		AllowedOrigins:  cfg.AllowedOrigins,
		Logger:          logger,
	})

	go watcher.New(node, store, cfg.NodeWSURL, logger).Run(ctx)

	reconciler, err := recon.NewReconciler(recon.Config{
		Store:     store,
		Chain:     node,
		OutputDir: cfg.ReconOutputDir,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("reconciler init", slog.Any("error", err))
		os.Exit(1)
	}
	go recon.NewScheduler(recon.SchedulerConfig{
		Reconciler: reconciler,
		Interval:   cfg.ReconInterval,
		Logger:     logger,
	}).Start(ctx)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", slog.Any("error", err))
		}
	}()

	logger.Info("starting achievements-gateway", slog.String("listen", cfg.ListenAddress))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", slog.Any("error", err))
		os.Exit(1)
	}
}

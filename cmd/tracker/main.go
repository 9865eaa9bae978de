package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"btc_portfolio/internal/client"
	"btc_portfolio/internal/config"
	"btc_portfolio/internal/httpclient"
	"btc_portfolio/internal/pkg/address"
	"btc_portfolio/internal/pkg/apierrors"
	"btc_portfolio/internal/pkg/logger"
	"btc_portfolio/internal/pkg/metrics"
	"btc_portfolio/internal/restapi"
	"btc_portfolio/internal/service"
	"btc_portfolio/internal/storage"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func main() {
	// Load configuration (logrus covers bootstrap logging before zap exists)
	cfgPath := getEnv("CONFIG_PATH", "config/config.yaml")
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.New(cfg.Logging.Level)
	if err != nil {
		logrus.Fatalf("Failed to initialize zap logger: %v", err)
	}
	defer zapLogger.Sync() // flushes buffer, if any

	zapLogger.Info("Configuration loaded", zap.String("path", cfgPath))

	// Initialize Prometheus metrics
	metrics.MustRegisterMetrics()

	// Storage backend and snapshot adapter
	apiErrors := apierrors.NewLog()
	var kv storage.KeyValueStore
	switch cfg.Storage.Backend {
	case "sqlite":
		kv, err = storage.NewSQLiteStore(cfg.Storage.Path)
	default:
		kv, err = storage.NewFileStore(cfg.Storage.Dir)
	}
	if err != nil {
		zapLogger.Fatal("Failed to initialize storage backend", zap.Error(err))
	}
	defer kv.Close()
	snapshotStore := storage.NewSnapshotStore(kv, apiErrors, zapLogger)
	zapLogger.Info("Storage backend initialized", zap.String("backend", cfg.Storage.Backend))

	// Outbound API clients
	requester := httpclient.NewRequester(httpclient.Options{
		Timeout:       time.Duration(cfg.Request.TimeoutMs) * time.Millisecond,
		RetryAttempts: cfg.Request.RetryAttempts,
		RetryDelay:    time.Duration(cfg.Request.RetryDelayMs) * time.Millisecond,
	}, cfg.Request.RateLimit, cfg.Request.BurstLimit, zapLogger)

	priceSvc := client.NewPriceService(requester, cfg.PriceAPI, apiErrors, zapLogger)
	balanceSvc := client.NewBalanceService(requester, cfg.BalanceAPI, apiErrors, zapLogger)
	zapLogger.Info("Price and balance clients initialized")

	// Portfolio engine
	engine := service.NewPortfolioEngine(priceSvc, balanceSvc, snapshotStore, address.Validate, apiErrors, zapLogger)

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	hydrateCtx, cancelHydrate := context.WithTimeout(rootCtx, 5*time.Minute)
	engine.Hydrate(hydrateCtx)
	cancelHydrate()

	// Auto-refresh scheduler
	scheduler := service.NewScheduler(engine,
		time.Duration(cfg.Scheduler.RefreshIntervalSeconds)*time.Second,
		time.Duration(cfg.Scheduler.ClockIntervalSeconds)*time.Second,
		nil, zapLogger)
	scheduler.Start(rootCtx)
	defer scheduler.Stop()

	// HTTP server
	handler := restapi.NewPortfolioHandler(engine)
	router := restapi.SetupRouter(handler, zapLogger)

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	g, gCtx := errgroup.WithContext(rootCtx)

	g.Go(func() error {
		zapLogger.Info(fmt.Sprintf("Server starting on %s", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
		case <-gCtx.Done():
			return gCtx.Err()
		}

		zapLogger.Info("Shutting down server...")
		scheduler.Stop()

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		zapLogger.Fatal("Shutdown with error", zap.Error(err))
	}
	zapLogger.Info("Server exiting")
}

// Package main provides the dashboard server entry point. It polls the
// trading backend and serves the latest snapshot over HTTP and websocket.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trading-dashboard/internal/adapter"
	"github.com/trading-dashboard/internal/api"
	"github.com/trading-dashboard/internal/config"
	"github.com/trading-dashboard/internal/logging"
	"github.com/trading-dashboard/internal/retry"
	"github.com/trading-dashboard/internal/service"
	"github.com/trading-dashboard/internal/storage"
	"github.com/trading-dashboard/internal/types"
	"github.com/trading-dashboard/internal/view"
	"github.com/trading-dashboard/internal/worker"
)

func main() {
	fmt.Println("Trading Dashboard")
	log.Println("Server starting...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	backendLoc, err := cfg.BackendLocation()
	if err != nil {
		logger.WithError(err).Fatal("Invalid backend timezone")
	}
	types.NaiveLocation = backendLoc

	displayLoc, err := cfg.DisplayLocation()
	if err != nil {
		logger.WithError(err).Fatal("Invalid display timezone")
	}
	formatter, err := view.NewFormatter(cfg.Display.Currency, displayLoc, cfg.Display.DateTimeLayout)
	if err != nil {
		logger.WithError(err).Fatal("Invalid display settings")
	}

	client, err := adapter.NewBackendClient(adapter.BackendClientConfig{
		BaseURL:         cfg.Backend.BaseURL,
		TradesDays:      cfg.Backend.TradesDays,
		AnalysisDays:    cfg.Backend.AnalysisDays,
		PerformanceDays: cfg.Backend.PerformanceDays,
		Timeout:         cfg.Backend.RequestTimeout,
		RateLimitRPS:    cfg.Backend.RateLimitRPS,
		Logger:          logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create backend client")
	}

	monitor := service.NewTickMonitor()
	breakers := service.NewFetchBreakers(cfg.Poll.BreakerFailures, cfg.Poll.BreakerCooldown, logger)

	var retryConfig *retry.RetryConfig
	if cfg.Poll.RetryAttempts > 1 {
		retryConfig = retry.DefaultRetryConfig()
		retryConfig.MaxAttempts = cfg.Poll.RetryAttempts
		retryConfig.InitialDelay = cfg.Poll.RetryDelay
	}

	aggregator, err := service.NewAggregator(client, service.AggregatorConfig{
		FetchTimeout: cfg.Poll.FetchTimeout,
		Retry:        retryConfig,
		Breakers:     breakers,
		Monitor:      monitor,
		Logger:       logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create aggregator")
	}

	store := storage.NewSnapshotStore(logger)

	scheduler, err := worker.NewPollScheduler(&worker.PollSchedulerConfig{
		Builder: aggregator,
		Store:   store,
		Monitor: monitor,
		Logger:  logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create poll scheduler")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Optional fan-out to other dashboard replicas
	var broadcaster *storage.RedisBroadcaster
	if cfg.Redis.Enabled {
		broadcaster, err = storage.NewRedisBroadcaster(&cfg.Redis, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer broadcaster.Close()
		go broadcaster.Run(ctx, store)
	}

	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		RateLimitRPS:    cfg.Server.RateLimitRPS,
		RateLimitBurst:  int(cfg.Server.RateLimitRPS) * 2,
		RecentTrades:    cfg.Display.RecentTrades,
		PollInterval:    cfg.Poll.Interval,
	}

	server, err := api.NewServer(serverConfig, api.Dependencies{
		Store:     store,
		Formatter: formatter,
		Scheduler: scheduler,
		Monitor:   monitor,
		Backend:   client,
		Breakers:  breakers,
		Logger:    logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create API server")
	}

	if err := scheduler.Start(ctx, cfg.Poll.Interval); err != nil {
		logger.WithError(err).Fatal("Failed to start poll scheduler")
	}

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"addr":     server.Addr(),
		"backend":  cfg.Backend.BaseURL,
		"interval": cfg.Poll.Interval.String(),
	}).Info("Dashboard started successfully")

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down dashboard...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer shutdownCancel()

	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Poll scheduler did not stop cleanly")
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	cancel()
	store.Close()

	logger.Info("Dashboard exited")
}

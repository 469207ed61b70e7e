package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"signaling/internal/agent"
	"signaling/internal/config"
	"signaling/internal/handlers"
	"signaling/internal/jobs"
	"signaling/internal/managers"
	"signaling/internal/registry"
	"signaling/internal/routers"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		logger.Info("cross-instance presence enabled", zap.String("addr", cfg.RedisAddr))
	}

	provisioner := agent.NewTavusClient(cfg.Tavus, logger)
	reg := registry.NewRegistry()

	coordinator := managers.NewCoordinator(reg, provisioner, rdb, logger)
	coordinator.Run()
	logger.Info("coordinator initialized", zap.String("instanceId", coordinator.InstanceID()))

	var reaper *jobs.AgentReaperJob
	if cfg.AgentReapEnabled {
		reaper = jobs.NewAgentReaperJob(provisioner, reg, cfg.AgentReapSchedule, logger)
		if err := reaper.Start(); err != nil {
			logger.Error("failed to start agent reaper", zap.Error(err))
		}
	}

	h := handlers.NewHandlers(cfg, coordinator, reg, logger)
	router := routers.NewRouter(cfg, h)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("signaling service starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)
	<-shutdownChan

	logger.Info("signaling service shutting down...")

	if reaper != nil {
		reaper.Stop()
	}
	coordinator.Shutdown()
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			logger.Warn("failed to close redis client", zap.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("signaling service exited")
}

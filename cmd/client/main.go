package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"game-sync-client/internal/api"
	"game-sync-client/internal/config"
	"game-sync-client/internal/database"
	"game-sync-client/internal/gateway"
	"game-sync-client/internal/logger"
	"game-sync-client/internal/netmon"
	"game-sync-client/internal/push"
	"game-sync-client/internal/queue"
	"game-sync-client/internal/store"
	"game-sync-client/internal/sync"
)

func main() {
	// Load Config
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Init Logger
	if err := logger.InitLogger(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Log.Info("Starting game sync client")

	// Local database (records + pending queue share it)
	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		logger.Log.Fatal("Failed to open local database", zap.Error(err))
	}
	defer db.Close()

	gameStore := store.NewSQLiteStore(db)
	pendingQueue := queue.NewQueue(db)

	// Connectivity monitor
	probe := netmon.HealthProbe(cfg.Server.BaseURL, cfg.Network.GetProbeTimeout())
	monitor := netmon.NewMonitor(probe, cfg.Network.GetProbeInterval())
	monitor.Start()
	defer monitor.Stop()

	// Push channel
	channel := push.NewChannel(cfg.Server.BaseURL, cfg.Push.GetReconnectBaseDelay(), cfg.Push.MaxReconnectAttempts)
	defer channel.Close()

	// Remote gateway
	gw := gateway.NewGateway(cfg.Server.BaseURL, cfg.Server.GetRequestTimeout(), monitor, pendingQueue)

	// Reconciliation coordinator
	coordinator := sync.NewCoordinator(gameStore, pendingQueue, gw, monitor, channel,
		cfg.Sync.GetSuppressionWindow(), cfg.Sync.GetSettleDelay())
	if err := coordinator.Start(); err != nil {
		logger.Log.Fatal("Failed to start coordinator", zap.Error(err))
	}
	defer coordinator.Stop()

	// Periodic replay scheduler
	scheduler := sync.NewScheduler(cfg.Sync, coordinator)
	scheduler.Start()
	defer scheduler.Stop()

	// Local API
	handler := api.NewHandler(coordinator)
	router := handler.Routes()

	serverAddr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		logger.Log.Info("API listening", zap.String("addr", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("API server failed", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down...")
	server.Close()
}

package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"game-sync-client/internal/logger"
	"game-sync-client/internal/server"
)

func main() {
	addr := flag.String("addr", ":3000", "listen address")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	if err := logger.InitLogger(*logLevel, "console"); err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	srv := server.NewServer()
	defer srv.Close()

	httpServer := &http.Server{
		Addr:    *addr,
		Handler: srv.Routes(),
	}

	go func() {
		logger.Log.Info("Game server listening", zap.String("addr", *addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down server...")
	httpServer.Close()
}

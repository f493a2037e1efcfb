package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"dinesync/internal/config"
	"dinesync/internal/gateway"
	"dinesync/pkg/logger"
)

func main() {
	flag.Parse()

	logger := logger.NewLogger("event-gateway")
	logger.Info("startup", "service_started", "Event gateway starting")

	cfg := config.Load()

	gw := gateway.New(cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := gw.Start(ctx); err != nil {
			logger.Error("startup", "gateway_start_failed", "Failed to start gateway", err)
			log.Fatal(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown", "graceful_shutdown", "Shutting down gateway...")
	cancel()
	gw.Stop()

	logger.Info("shutdown", "service_stopped", "Gateway exiting")
}

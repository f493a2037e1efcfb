package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"dinesync/internal/config"
	"dinesync/internal/notify"
	"dinesync/internal/order"
	"dinesync/internal/poll"
	"dinesync/internal/push"
	"dinesync/internal/rest"
	"dinesync/internal/session"
	"dinesync/pkg/logger"
	"dinesync/pkg/models"
)

func main() {
	mode := flag.String("mode", "customer", "customer or staff")
	tableID := flag.Int("table", 0, "table id from the scanned QR code (customer mode)")
	staffToken := flag.String("token", "", "staff session token (staff mode)")
	orderID := flag.Int("order", 0, "order id to track")
	flag.Parse()

	logger := logger.NewLogger("dinesync")
	logger.Info("startup", "service_started", "Order tracking client starting")

	cfg := config.Load()

	sessions := session.New(cfg.JWTSecret, logger)
	api := rest.NewClient(cfg.APIBaseURL, logger, sessions.Token, sessions.Clear)
	sessions.AttachAPI(api)

	notifications := notify.NewLog(logger)
	store := order.NewStore(api, logger)
	channel := push.NewClient(cfg.WebsocketURL, store, notifications, notify.NewTerminalBell(), logger)
	poller := poll.New(store, api, notifications, logger, cfg.OrderPollInterval, cfg.PaymentPollInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	switch *mode {
	case "customer":
		if *tableID == 0 {
			log.Fatal("customer mode requires -table")
		}
		if _, err := sessions.StartCustomer(ctx, *tableID); err != nil {
			logger.Error("startup", "session_start_failed", "Failed to open table session", err)
			log.Fatal(err)
		}
	case "staff":
		if *staffToken == "" {
			log.Fatal("staff mode requires -token")
		}
		if _, err := sessions.LoginStaff(*staffToken); err != nil {
			logger.Error("startup", "staff_login_failed", "Failed to log in", err)
			log.Fatal(err)
		}
	default:
		log.Fatalf("unknown mode %q", *mode)
	}

	identity, ok := sessions.IdentityKey()
	if !ok {
		log.Fatal("no active identity after login")
	}
	if err := channel.Connect(identity); err != nil {
		// Push is best effort; polling covers for it.
		logger.Error("startup", "push_connect_failed", "Continuing on polling only", err)
	}

	if *orderID != 0 {
		store.Track(*orderID)
		if _, err := store.LoadOrder(ctx, *orderID); err != nil {
			logger.Error("startup", "order_load_failed", "Initial order load failed", err)
			notifications.Append(models.Notification{
				Type:    models.NotificationConnectionIssue,
				Message: "Unable to load your order. Retrying...",
			})
			notifications.Alert("Unable to load your order. Retrying...", notify.SeverityError)
		}
		poller.Start(ctx)
	}

	go func() {
		for alert := range notifications.Alerts() {
			fmt.Printf("[%s] %s\n", alert.Severity, alert.Message)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown", "graceful_shutdown", "Shutting down client...")
	poller.Stop()
	channel.Disconnect()
	if err := sessions.End(context.Background()); err != nil {
		logger.Error("shutdown", "session_end_failed", "Failed to end session cleanly", err)
	}
	notifications.Clear()
	cancel()

	logger.Info("shutdown", "service_stopped", "Client exiting")
}

package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-booking/internal/config"
	"github.com/hackgods/clinic-booking/internal/logger"
	"github.com/hackgods/clinic-booking/internal/notify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	zl, err := logger.NewZapLogger(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if cfg.AMQPURL == "" {
		zl.Fatal("AMQP_URL is required for the notification worker")
	}

	zl.Info("notification-worker starting up",
		zap.String("env", cfg.Env),
		zap.String("queue", cfg.NotifyQueue),
		zap.Int("prefetch", cfg.WorkerPrefetch),
		zap.String("smtp_host", cfg.SMTP.Host),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := notify.Dial(cfg.AMQPURL)
	if err != nil {
		zl.Fatal("amqp connection error", zap.Error(err))
	}
	defer conn.Close()

	sender := notify.NewSMTPSender(cfg.SMTP)

	consumer, err := notify.NewConsumer(conn, cfg.NotifyQueue, cfg.WorkerPrefetch, sender, zl)
	if err != nil {
		zl.Fatal("amqp consumer error", zap.Error(err))
	}
	defer consumer.Close()

	if err := consumer.Run(rootCtx); err != nil {
		zl.Error("consumer stopped", zap.Error(err))
		return
	}
	zl.Info("shutdown signal received, stopping notification worker")
}

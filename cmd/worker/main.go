package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/courtside/mailer/internal/app"
	"github.com/courtside/mailer/internal/config"
	"github.com/courtside/mailer/internal/pkg/logger"
)

var log = logger.Named("worker")

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to config.yaml (optional)")
	flag.Parse()

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	app.ConfigureLogging(cfg.Logging)

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	a, err := app.New(startCtx, cfg)
	cancel()
	if err != nil {
		log.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	consumer, err := a.Consumer()
	if err != nil {
		log.Error("campaign worker unavailable", "err", err)
		a.Close()
		os.Exit(1)
	}

	// In-flight jobs see cancellation between chunks and mark the rest of
	// their audience failed.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("campaign worker running", "queue_url", cfg.Dispatch.QueueURL)
	if err := consumer.Run(ctx); err != nil {
		log.Error("consumer stopped with error", "err", err)
	}
	log.Info("worker stopped")
}

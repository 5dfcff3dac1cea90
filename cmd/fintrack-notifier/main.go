package main

import (
	"context"
	"errors"
	"os"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/cli"
	"fintrack/internal/log"
	"fintrack/internal/notify"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Stdout)
	logger.Info("Starting fintrack-notifier", log.FieldOperation, log.OpStartup)

	cfg, err := cli.LoadAndValidateConfig(logger)
	if err != nil {
		os.Exit(1)
	}
	if !cfg.NotificationsEnabled() {
		logger.Error("AMQP_URL is required for the notifier")
		os.Exit(1)
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, "fintrack-notifier",
		logger.WithComponent(log.ComponentAMQP))
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err.Error())
		os.Exit(1)
	}
	defer client.Close()

	ctx, done := cli.GracefulShutdown(logger, 10*time.Second, nil)

	go func() {
		if err := client.Run(ctx, handler(logger.WithComponent(log.ComponentNotify))); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", log.FieldError, err.Error())
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Notifier stopped gracefully")
}

// handler logs each notification at a level matching its own.
func handler(logger *log.Logger) func(context.Context, *amqp.NotificationMessage) error {
	return func(ctx context.Context, msg *amqp.NotificationMessage) error {
		n := msg.Notification
		args := []any{
			"notification_id", n.ID,
			"title", n.Title,
			"message", n.Message,
			"source", msg.Source,
			"created_at", n.CreatedAt.Format(time.RFC3339),
		}
		switch n.Level {
		case notify.LevelError:
			logger.WarnContext(ctx, "Notification", args...)
		default:
			logger.InfoContext(ctx, "Notification", args...)
		}
		return nil
	}
}

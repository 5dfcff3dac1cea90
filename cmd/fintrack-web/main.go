package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"fintrack/internal/cli"
	apphttp "fintrack/internal/http"
	"fintrack/internal/log"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Stdout)

	cfg, err := cli.LoadAndValidateConfig(logger)
	if err != nil {
		os.Exit(1)
	}

	store, err := cli.OpenStore(cfg, logger)
	if err != nil {
		os.Exit(1)
	}

	app, err := cli.NewApp(cfg, logger, store, cli.WithSource("fintrack-web"))
	if err != nil {
		logger.Error("Failed to initialize client", log.FieldError, err.Error())
		_ = store.Close()
		os.Exit(1)
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Session:       app.Session,
		Aggregator:    app.Aggregator,
		Notifications: app.Notifications,
		Logger:        logger,
	}, apphttp.Options{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		TrustedProxies:     cfg.TrustedProxies,
		AuthRateLimit:      cfg.AuthRateLimit,
	})

	// Configure server timeouts and limits
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = cfg.APITimeout + 10*time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err.Error())
		}
		if err := app.Close(); err != nil {
			logger.Error("Client shutdown error", log.FieldError, err.Error())
		}
	})

	snap := app.Start(ctx, true)
	logger.Info("Starting fintrack-web",
		"port", cfg.Port,
		"api", cfg.APIBaseURL,
		log.FieldState, snap.State.String(),
		log.FieldOperation, log.OpStartup)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err.Error(), "port", cfg.Port)
		_ = app.Close()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}

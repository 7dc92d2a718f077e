package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/leowmjw/go-timeline-resample/pkg/hcl"
	"github.com/leowmjw/go-timeline-resample/pkg/http"
)

func main() {
	var (
		httpAddr   = flag.String("http-addr", ":8080", "HTTP server address")
		configPath = flag.String("config", "", "Operator configuration: HCL file, JSON file or directory of HCL files")
		logLevel   = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	)
	flag.Parse()

	// Setup logger
	var logHandler slog.Handler
	switch *logLevel {
	case "debug":
		logHandler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	case "warn":
		logHandler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn})
	case "error":
		logHandler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	default:
		logHandler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	logger.Info("Starting resampling service",
		"http_addr", *httpAddr,
		"config", *configPath,
	)

	var cfg *hcl.Config
	if *configPath != "" {
		var err error
		cfg, err = hcl.LoadConfig(*configPath)
		if err != nil {
			logger.Error("Failed to load configuration", "error", err)
			os.Exit(1)
		}
		logger.Info("Loaded operators", "count", len(cfg.Operators), "policy", cfg.Driver.Policy)
	}

	server, err := http.NewServer(logger, cfg, *httpAddr)
	if err != nil {
		logger.Error("Failed to create HTTP server", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start server in background
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := server.Start(ctx); err != nil {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	logger.Info("Received shutdown signal, stopping services...")

	// Cancel context to stop HTTP server and wait for in-flight requests
	cancel()
	<-done

	logger.Info("Resampling service stopped")
}

// Package main implements the iotstream service: it ingests sensor
// telemetry from NATS JetStream, classifies each reading against per-type
// thresholds, keeps the latest-value cache and a bounded history, and fans
// classified events out to HTTP and WebSocket clients.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/LuisPassosRamos/IoT-Ecosystem/broadcast"
	"github.com/LuisPassosRamos/IoT-Ecosystem/config"
	gatewayhttp "github.com/LuisPassosRamos/IoT-Ecosystem/gateway/http"
	"github.com/LuisPassosRamos/IoT-Ecosystem/ingest"
	"github.com/LuisPassosRamos/IoT-Ecosystem/metric"
	"github.com/LuisPassosRamos/IoT-Ecosystem/natsclient"
	"github.com/LuisPassosRamos/IoT-Ecosystem/store"
	"github.com/LuisPassosRamos/IoT-Ecosystem/telemetry"
	"github.com/LuisPassosRamos/IoT-Ecosystem/weather"
)

const (
	Version = "0.1.0"
	appName = "iotstream"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to YAML config file")
	logFormat := flag.String("log-format", "text", "log format: text or json")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := setupLogger(cfg.LogLevel, *logFormat)
	slog.SetDefault(logger)
	logger.Info("starting iotstream", "version", Version, "config_path", *configPath)

	ctx := context.Background()
	registry := metric.NewRegistry()

	// Pipeline state.
	cache, err := store.NewLatestCache(registry)
	if err != nil {
		return fmt.Errorf("create latest cache: %w", err)
	}
	history, err := store.NewHistory(cfg.Pipeline.HistoryCapacity, registry)
	if err != nil {
		return fmt.Errorf("create history: %w", err)
	}

	manager, err := broadcast.NewManager(registry,
		broadcast.WithSendBuffer(cfg.Pipeline.SendBuffer),
		broadcast.WithSnapshotFunc(cache.Snapshot),
		broadcast.WithLogger(logger.With("component", "broadcast")),
	)
	if err != nil {
		return fmt.Errorf("create broadcast manager: %w", err)
	}
	defer manager.Close()

	bridge, err := ingest.NewBridge(cache, history, cfg.Policies, manager, registry,
		ingest.WithQueueSize(cfg.Pipeline.QueueSize),
		ingest.WithLogger(logger.With("component", "ingest")),
	)
	if err != nil {
		return fmt.Errorf("create ingestion bridge: %w", err)
	}
	if err := bridge.Start(); err != nil {
		return fmt.Errorf("start ingestion bridge: %w", err)
	}

	// Transport.
	client, err := natsclient.NewClient(cfg.NATS.URL,
		natsclient.WithClientName(cfg.NATS.ClientName),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithReconnectWait(cfg.NATS.ReconnectWait),
		natsclient.WithLogger(logger.With("component", "natsclient")),
		natsclient.WithDisconnectHandler(func(error) {
			manager.Fanout(telemetry.NewSystemStatusEvent(appName, "transport_lost", ""))
		}),
		natsclient.WithReconnectHandler(func() {
			manager.Fanout(telemetry.NewSystemStatusEvent(appName, "transport_restored", ""))
		}),
	)
	if err != nil {
		return fmt.Errorf("create NATS client: %w", err)
	}

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = client.Connect(connectCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer func() { _ = client.Close(ctx) }()

	if err := client.EnsureStream(ctx, cfg.NATS.Stream, cfg.NATS.Subjects, cfg.NATS.MaxMsgs); err != nil {
		return fmt.Errorf("ensure stream: %w", err)
	}
	if err := client.Consume(ctx, cfg.NATS.Stream, cfg.NATS.Durable, "", bridge.Enqueue); err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}

	// External weather lookup, mock mode without an API key.
	weatherClient, err := weather.NewClient(cfg.Weather.APIKey, cfg.Weather.City,
		weather.WithBaseURL(cfg.Weather.BaseURL),
		weather.WithTimeout(cfg.Weather.Timeout),
		weather.WithLogger(logger.With("component", "weather")),
	)
	if err != nil {
		return fmt.Errorf("create weather client: %w", err)
	}

	server, err := gatewayhttp.NewServer(cfg.HTTP, cfg.Auth, gatewayhttp.Deps{
		Cache:            cache,
		History:          history,
		Broadcast:        manager,
		Weather:          weatherClient,
		Registry:         registry,
		TransportHealthy: client.IsHealthy,
		Logger:           logger.With("component", "gateway"),
	})
	if err != nil {
		return fmt.Errorf("create http gateway: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http gateway: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http gateway shutdown incomplete", "error", err)
	}
	if err := bridge.Stop(shutdownCtx); err != nil {
		logger.Warn("ingestion bridge shutdown incomplete", "error", err)
	}

	logger.Info("iotstream stopped")
	return nil
}

func setupLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

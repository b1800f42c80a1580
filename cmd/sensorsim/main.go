// Package main implements sensorsim, a synthetic sensor fleet that
// publishes telemetry to NATS for development and load testing of the
// iotstream pipeline.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LuisPassosRamos/IoT-Ecosystem/natsclient"
	"github.com/LuisPassosRamos/IoT-Ecosystem/simulator"
)

func main() {
	if err := run(); err != nil && err != context.Canceled {
		slog.Error("simulator failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	natsURL := flag.String("nats", "nats://localhost:4222", "NATS server URL")
	interval := flag.Duration("interval", 2*time.Second, "publish interval")
	seed := flag.Int64("seed", 0, "random seed, 0 for time-based")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	client, err := natsclient.NewClient(*natsURL,
		natsclient.WithClientName("sensorsim"),
		natsclient.WithLogger(logger.With("component", "natsclient")),
	)
	if err != nil {
		return fmt.Errorf("create NATS client: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = client.Connect(connectCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer func() { _ = client.Close(context.Background()) }()

	opts := []simulator.Option{
		simulator.WithInterval(*interval),
		simulator.WithLogger(logger.With("component", "simulator")),
	}
	if *seed != 0 {
		opts = append(opts, simulator.WithSeed(*seed))
	}

	sim, err := simulator.New(client, simulator.DefaultSensors(), opts...)
	if err != nil {
		return fmt.Errorf("create simulator: %w", err)
	}

	return sim.Run(ctx)
}

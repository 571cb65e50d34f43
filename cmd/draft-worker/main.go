// Package main 草稿事件消费进程：把已采纳的实体写入检索索引
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"campaign-forge-api/internal/config"
	"campaign-forge-api/internal/infrastructure/messaging"
	"campaign-forge-api/internal/wire"
	"campaign-forge-api/pkg/logger"
	"campaign-forge-api/pkg/tracer"
)

var Version = "dev"

const dlqAlertThreshold = 100

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info(ctx, "starting draft-worker", "version", Version, "env", cfg.App.Env)

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName:    cfg.App.Name + "-draft-worker",
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Env,
		Endpoint:       cfg.Observability.Tracing.Endpoint,
		SampleRate:     cfg.Observability.Tracing.SampleRate,
		Enabled:        cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	worker, cleanup, err := wire.InitializeWorker(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize worker", err)
	}
	defer cleanup()

	handle := messaging.DraftEventHandler(worker.Indexer.HandleEvent)
	for _, t := range messaging.DraftEventTypes {
		worker.Consumer.RegisterHandler(string(t), handle)
	}

	if err := worker.Consumer.Start(ctx); err != nil {
		logger.Fatal(ctx, "failed to start consumer", err)
	}
	go worker.Consumer.MonitorDLQ(ctx, dlqAlertThreshold)

	<-ctx.Done()
	logger.Info(context.Background(), "shutting down draft-worker")
	worker.Consumer.Stop()
}

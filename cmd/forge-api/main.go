// Package main Campaign Forge API 服务入口
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"campaign-forge-api/internal/config"
	grpcserver "campaign-forge-api/internal/interfaces/grpc/server"
	einoobs "campaign-forge-api/internal/observability/eino"
	"campaign-forge-api/internal/wire"
	"campaign-forge-api/pkg/logger"
	"campaign-forge-api/pkg/tracer"
)

// Version 版本信息，构建时注入
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件（如果存在）
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.App.Version == "" {
		cfg.App.Version = Version
	}

	logger.Init(
		cfg.Observability.Logging.Level,
		cfg.Observability.Logging.Format,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log := logger.FromContext(ctx)
	log.Info("starting forge-api",
		"version", Version,
		"build_time", BuildTime,
		"env", cfg.App.Env,
	)

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName:    cfg.App.Name,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Env,
		Endpoint:       cfg.Observability.Tracing.Endpoint,
		SampleRate:     cfg.Observability.Tracing.SampleRate,
		Enabled:        cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error(ctx, "failed to shutdown tracer", err)
		}
	}()

	app, cleanupApp, err := wire.InitializeApp(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize app", err)
	}
	defer cleanupApp()

	// Eino 全局 callbacks：指标、追踪与 token 用量记录
	einoobs.Init(app.UsageRecorder)

	srv := &http.Server{
		Addr:         cfg.Server.HTTP.Addr(),
		Handler:      app.Router.Engine(),
		ReadTimeout:  cfg.Server.HTTP.ReadTimeout,
		WriteTimeout: cfg.Server.HTTP.WriteTimeout,
		IdleTimeout:  cfg.Server.HTTP.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if cfg.Server.GRPC.Enabled {
		g.Go(func() error {
			return grpcserver.Run(gctx, cfg, func(ctx context.Context) bool {
				ready, _ := app.Health.Readiness(ctx)
				return ready
			}, nil)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error(ctx, "server exited with error", err)
		os.Exit(1)
	}
	log.Info("server exited")
}

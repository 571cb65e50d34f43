// Package server 提供 gRPC 服务端启动与注册封装
package server

import (
	"context"
	"fmt"
	"net"
	"time"

	grpcmiddleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpcrecovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"campaign-forge-api/internal/config"
	"campaign-forge-api/pkg/logger"
)

// ServiceName 健康检查上报的服务名
const ServiceName = "campaignforge.v1.Forge"

const defaultProbeInterval = 10 * time.Second

// ReadinessFunc 返回当前依赖是否就绪
type ReadinessFunc func(ctx context.Context) bool

// Run 启动 gRPC Server 并按 readiness 周期更新健康状态；ctx 结束时优雅停止。
func Run(ctx context.Context, cfg *config.Config, readiness ReadinessFunc, register func(s *grpc.Server)) error {
	addr := fmt.Sprintf("%s:%d", cfg.Server.GRPC.Host, cfg.Server.GRPC.Port)

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s := NewServer(cfg)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	if register != nil {
		register(s)
	}

	log := logger.FromContext(ctx)
	log.Info("grpc server starting", "addr", addr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Serve(lis)
	}()

	probe := func() {
		st := healthpb.HealthCheckResponse_SERVING
		if readiness != nil && !readiness(ctx) {
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
		hs.SetServingStatus("", st)
		hs.SetServingStatus(ServiceName, st)
	}
	probe()

	ticker := time.NewTicker(defaultProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("grpc server shutting down")
			hs.Shutdown()
			s.GracefulStop()
			return nil
		case err := <-errCh:
			return fmt.Errorf("grpc server error: %w", err)
		case <-ticker.C:
			probe()
		}
	}
}

// NewServer 创建带 panic 恢复拦截器的 gRPC Server
func NewServer(cfg *config.Config) *grpc.Server {
	recoveryOpt := grpcrecovery.WithRecoveryHandlerContext(func(ctx context.Context, p interface{}) error {
		logger.Error(ctx, "grpc panic recovered", fmt.Errorf("%v", p))
		return status.Error(codes.Internal, "internal error")
	})

	opts := []grpc.ServerOption{
		grpc.UnaryInterceptor(grpcmiddleware.ChainUnaryServer(grpcrecovery.UnaryServerInterceptor(recoveryOpt))),
		grpc.StreamInterceptor(grpcmiddleware.ChainStreamServer(grpcrecovery.StreamServerInterceptor(recoveryOpt))),
	}
	if cfg.Server.GRPC.MaxRecvMsgSize > 0 {
		opts = append(opts, grpc.MaxRecvMsgSize(cfg.Server.GRPC.MaxRecvMsgSize))
	}
	if cfg.Server.GRPC.MaxSendMsgSize > 0 {
		opts = append(opts, grpc.MaxSendMsgSize(cfg.Server.GRPC.MaxSendMsgSize))
	}
	return grpc.NewServer(opts...)
}

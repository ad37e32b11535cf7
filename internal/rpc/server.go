package rpc

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthgrpc "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/zhouzirui/z-tone/backend/internal/logging"
	"github.com/zhouzirui/z-tone/backend/internal/metrics"
	chatservice "github.com/zhouzirui/z-tone/backend/internal/service/chat"
	"github.com/zhouzirui/z-tone/backend/internal/service/health"
)

// HealthInterval is how often the gRPC health status is refreshed from the checker.
const HealthInterval = 15 * time.Second

// Server bundles the gRPC server with its health service.
type Server struct {
	*grpc.Server
	health  *healthgrpc.Server
	checker *health.Checker
	logger  *slog.Logger
}

// NewServer registers both services and the standard health service.
func NewServer(chat *chatservice.Service, checker *health.Checker, logger *slog.Logger, opts ...grpc.ServerOption) *Server {
	if logger == nil {
		logger = logging.Default()
	}

	opts = append(opts, grpc.ChainUnaryInterceptor(
		recoverInterceptor(logger),
		loggingInterceptor(logger, checker),
	))
	gs := grpc.NewServer(opts...)

	toneDesc := toneServiceDesc()
	gs.RegisterService(&toneDesc, NewToneService(chat))
	messageDesc := messageServiceDesc()
	gs.RegisterService(&messageDesc, NewMessageService(chat, checker))

	hs := healthgrpc.NewServer()
	healthpb.RegisterHealthServer(gs, hs)

	s := &Server{Server: gs, health: hs, checker: checker, logger: logger}
	s.setStatus(healthpb.HealthCheckResponse_SERVING)
	return s
}

// WatchHealth refreshes the health status until ctx is done.
func (s *Server) WatchHealth(ctx context.Context, interval time.Duration) {
	if s.checker == nil {
		return
	}
	if interval <= 0 {
		interval = HealthInterval
	}

	s.RefreshHealth(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RefreshHealth(ctx)
		}
	}
}

// RefreshHealth runs one check. Degraded still serves; only unhealthy stops serving.
func (s *Server) RefreshHealth(ctx context.Context) {
	if s.checker == nil {
		return
	}
	report := s.checker.Check(ctx)
	if report.Status == health.Unhealthy {
		s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
		s.logger.Warn("grpc health not serving", "message", report.Message)
		return
	}
	s.setStatus(healthpb.HealthCheckResponse_SERVING)
}

// GracefulStop marks every service as not serving before draining.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.Server.GracefulStop()
}

func (s *Server) setStatus(st healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(toneServiceName, st)
	s.health.SetServingStatus(messageServiceName, st)
}

func loggingInterceptor(logger *slog.Logger, checker *health.Checker) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		metrics.RequestsTotal.WithLabelValues("grpc").Inc()
		if checker != nil {
			checker.CountRequest()
		}

		resp, err := handler(logging.With(ctx, logger.With("method", info.FullMethod)), req)

		code := status.Code(err)
		level := slog.LevelDebug
		if code == codes.Internal || code == codes.Unknown {
			level = slog.LevelError
		}
		logger.Log(ctx, level, "grpc request", "method", info.FullMethod, "code", code.String(), "duration", time.Since(start))
		return resp, err
	}
}

func recoverInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("grpc handler panic", "method", info.FullMethod, "panic", r)
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}

// unary adapts a typed method to a grpc.MethodHandler.
func unary[S, Req, Resp any](service, method string, fn func(*S, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	fullMethod := "/" + service + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		s := srv.(*S)
		if interceptor == nil {
			return fn(s, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return fn(s, ctx, req.(*Req))
		})
	}
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	tonerules "github.com/zhouzirui/z-tone/backend/internal/analysis/tone"
	"github.com/zhouzirui/z-tone/backend/internal/config"
	"github.com/zhouzirui/z-tone/backend/internal/embedding"
	"github.com/zhouzirui/z-tone/backend/internal/handler"
	"github.com/zhouzirui/z-tone/backend/internal/logging"
	"github.com/zhouzirui/z-tone/backend/internal/rpc"
	"github.com/zhouzirui/z-tone/backend/internal/service/ai"
	"github.com/zhouzirui/z-tone/backend/internal/service/chat"
	"github.com/zhouzirui/z-tone/backend/internal/service/health"
	"github.com/zhouzirui/z-tone/backend/internal/service/reply"
	"github.com/zhouzirui/z-tone/backend/internal/service/tone"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Log.Level, os.Stderr)
	logging.SetDefault(logger)
	if envErr != nil {
		logger.Debug("no .env file loaded, using system environment only", "error", envErr)
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	params := tonerules.DefaultParams()
	if cfg.Tone.ParamsFile != "" {
		loaded, err := tonerules.LoadParamsFile(cfg.Tone.ParamsFile)
		if err != nil {
			return err
		}
		params = loaded
		logger.Info("tone parameters loaded", "path", cfg.Tone.ParamsFile)
	}

	st, closers, err := openStores(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer closeAll(closers, logger)

	embedder, err := embedding.New(ctx, cfg.Embedding)
	if err != nil {
		return err
	}
	logger.Info("embedding provider ready", "model", embedder.Model(), "dimension", embedder.Dimension())

	queue := tone.NewQueue(tone.QueueConfig{
		Workers:    cfg.Queue.Workers,
		Capacity:   cfg.Queue.Capacity,
		JobTimeout: cfg.Queue.JobTimeout,
		Logger:     logger.With("component", "queue"),
	})
	// 最后关闭队列，保证已接收的持久化任务写入存储
	defer queue.Close()

	analyzer := tone.NewAnalyzer(
		tone.AnalysisContext{Store: st, Embedder: embedder},
		tone.Options{Params: &params, Queue: queue, LookupTimeout: cfg.Tone.LookupTimeout},
	)

	var generator chat.Generator
	if cfg.AI.Enabled() {
		aiService, err := ai.NewService(ctx, cfg.AI)
		if err != nil {
			logger.Warn("failed to initialize AI service, using canned replies", "error", err)
		} else {
			generator = aiService
			logger.Info("AI service initialized", "model", cfg.AI.Model, "stream", aiService.StreamingEnabled())
		}
	} else {
		logger.Info("Ark 凭证未配置，使用预置回复")
	}

	chatService := chat.NewService(st, analyzer, reply.NewComposer(nil), generator)
	checker := health.NewChecker(st, embedder, map[string]string{
		"store":     cfg.Store.Backend,
		"vector":    cfg.Store.VectorBackend,
		"embedding": cfg.Embedding.Provider,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler.NewRouter(chatService, checker),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return logging.With(context.Background(), logger) },
	}
	grpcServer := rpc.NewServer(chatService, checker, logger.With("component", "grpc"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Z Tone HTTP listening", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			return err
		}
		logger.Info("Z Tone gRPC listening", "addr", cfg.Server.GRPCAddr)
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		grpcServer.WatchHealth(gctx, rpc.HealthInterval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		grpcServer.GracefulStop()
		return err
	})

	return g.Wait()
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tradecouncil/orchestrator/internal/backend"
	"github.com/tradecouncil/orchestrator/internal/config"
	"github.com/tradecouncil/orchestrator/internal/deliberation"
	"github.com/tradecouncil/orchestrator/internal/health"
	"github.com/tradecouncil/orchestrator/internal/httpapi"
	"github.com/tradecouncil/orchestrator/internal/market"
	"github.com/tradecouncil/orchestrator/internal/registry"
	"github.com/tradecouncil/orchestrator/internal/session"
	"github.com/tradecouncil/orchestrator/internal/streaming"
	"github.com/tradecouncil/orchestrator/internal/transcript"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "orchestrator: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg, err := registry.LoadFile(cfg.Registry.File)
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}
	logger.Info("participant registry loaded", zap.Int("participants", len(reg.List())))

	healthMgr := health.NewManager(3 * time.Second)

	var quoter market.Quoter = market.NewYahooQuoter(cfg.Market.QuoteTimeout, logger)
	var sink transcript.Sink = transcript.NopSink{}
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		sink = transcript.NewRedisSink(rdb, cfg.Redis.TranscriptMaxLen, logger)
		quoter = market.NewCachedQuoter(quoter, rdb, cfg.Market.CacheTTL, logger)
		healthMgr.Register(health.NewRedisChecker(rdb))
		logger.Info("redis enabled", zap.String("addr", cfg.Redis.Addr))
	}

	invoker, err := backend.NewOpenAIInvoker(cfg.Backend, logger)
	if err != nil {
		return fmt.Errorf("configure backend: %w", err)
	}

	events := streaming.NewManager(cfg.Streaming.RingCapacity)
	sessions := session.NewManager(
		session.Limits{
			MaxTurns:  cfg.Deliberation.MaxTurns,
			MaxStalls: cfg.Deliberation.MaxStalls,
		},
		session.ContextLimits{
			MaxRecentTurns:   cfg.Session.MaxRecentTurns,
			MaxActiveSymbols: cfg.Session.MaxActiveSymbols,
		},
		cfg.Session.IdleTTL,
		cfg.Session.MaxSessions,
		logger,
	)
	go sessions.RunSweeper(ctx, time.Minute)

	orch := deliberation.NewOrchestrator(
		reg, sessions, events, invoker, quoter, sink, cfg.Deliberation, logger,
	)

	api := httpapi.NewServer(reg, sessions, events, orch, quoter, cfg, logger)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Service.Port),
		Handler:      api.Routes(),
		ReadTimeout:  cfg.Service.ReadTimeout,
		WriteTimeout: cfg.Service.WriteTimeout,
	}

	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", promhttp.Handler())
	health.NewHTTPHandler(healthMgr, logger).RegisterRoutes(adminMux)
	admin := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Service.HealthPort),
		Handler: adminMux,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("websocket server listening", zap.Int("port", cfg.Service.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("serve: %w", err)
		}
	}()
	go func() {
		logger.Info("admin server listening", zap.Int("port", cfg.Service.HealthPort))
		if err := admin.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("serve admin: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Service.GracefulTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("websocket server shutdown", zap.Error(err))
	}
	if err := admin.Shutdown(shutdownCtx); err != nil {
		logger.Warn("admin server shutdown", zap.Error(err))
	}
	logger.Info("orchestrator stopped")
	return nil
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	var zcfg zap.Config
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"orchard/cmd/server/config"
	"orchard/internal/api"
	"orchard/internal/bus"
	"orchard/internal/contracts"
	"orchard/internal/observability"
	"orchard/internal/realtime"
	"orchard/internal/saga"
	"orchard/internal/steps"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	grpcpkg "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const orchestratorService = "orchard.Orchestrator"

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := buildLogger()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(ctx, logger); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func run(ctx context.Context, logger *zap.Logger) error {
	metrics := observability.NewMetrics()

	redisClient, redisCfg, cleanupRedis, err := buildRedisClient(ctx, logger)
	if err != nil {
		return err
	}
	defer cleanupRedis()

	store, cleanupStore := buildInstanceStore(ctx, config.DatabaseURL(), logger)
	defer cleanupStore()

	relCfg, err := config.LoadReliability()
	if err != nil {
		return err
	}
	publisher := bus.NewReliablePublisher(
		bus.NewRedisPublisher(redisClient, redisCfg.StreamMaxLen),
		nil,
		bus.NewCircuitBreaker(bus.CircuitBreakerConfig{
			MaxFailures:  relCfg.BreakerMaxFailures,
			ResetTimeout: relCfg.BreakerResetTimeout,
		}),
		bus.RetryPolicy{
			MaxAttempts: relCfg.RetryMaxAttempts,
			BaseDelay:   relCfg.RetryBaseDelay,
			MaxDelay:    relCfg.RetryMaxDelay,
		},
	)

	hub := realtime.NewHub()
	go hub.Run()

	runnerOpts := []saga.RunnerOption{
		saga.WithNotifier(realtime.NewStatusFeed(hub, logger)),
	}
	if path := config.JournalPath(); path != "" {
		journal, err := saga.NewFileJournal(path)
		if err != nil {
			return err
		}
		defer func() {
			if err := journal.Close(); err != nil {
				logger.Warn("close journal", zap.Error(err))
			}
		}()
		runnerOpts = append(runnerOpts, saga.WithJournal(journal))
		logger.Info("transition journal enabled", zap.String("path", path))
	}
	runner := saga.NewRunner(store, publisher, logger, metrics, runnerOpts...)

	payments := steps.NewPaymentService(publisher, logger.Named("payments"))
	inventory := steps.NewInventoryService(publisher, logger.Named("inventory"))

	busCfg, err := config.LoadBus()
	if err != nil {
		return err
	}

	errCh := make(chan error, 8)
	startConsumer := func(stream, group string, handler bus.Handler) {
		consumer := bus.NewConsumer(redisClient, bus.ConsumerConfig{
			Stream:          stream,
			Group:           group,
			Name:            busCfg.ConsumerName,
			BatchSize:       busCfg.BatchSize,
			Block:           busCfg.Block,
			MaxAttempts:     busCfg.MaxAttempts,
			BackoffBase:     busCfg.BackoffBase,
			BackoffMax:      busCfg.BackoffMax,
			ReclaimInterval: busCfg.ReclaimInterval,
		}, handler, logger.Named(group), metrics)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- err
			}
		}()
	}

	startConsumer(bus.EventsStream, busCfg.Group, runner.Handle)
	startConsumer(bus.CommandStream(contracts.DestinationPayments), "payments", payments.Handle)
	startConsumer(bus.CommandStream(contracts.DestinationInventory), "inventory", inventory.Handle)

	httpCfg, err := config.LoadHTTP()
	if err != nil {
		return err
	}
	router := api.NewRouter(api.RouterConfig{
		Handler: api.NewHandler(publisher, store, logger.Named("api")),
		Hub:     hub,
		Logger:  logger.Named("api"),
		Metrics: metrics,
		Limiter: bus.NewRateLimiter(httpCfg.RateLimitInterval, httpCfg.RateLimitBurst),
	})
	httpSrv := &http.Server{
		Addr:    httpCfg.Addr,
		Handler: router,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", httpCfg.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	obsSrv, err := startObservabilityServer(metrics, logger, errCh)
	if err != nil {
		return err
	}

	grpcCfg := config.LoadGRPC()
	lis, err := net.Listen("tcp", grpcCfg.Addr)
	if err != nil {
		return err
	}

	grpcSrv := grpcpkg.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthServer)
	healthServer.SetServingStatus(orchestratorService, healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	if env := os.Getenv("APP_ENV"); env != "production" {
		reflection.Register(grpcSrv)
		logger.Info("gRPC reflection enabled", zap.String("app_env", env))
	}

	go func() {
		logger.Info("grpc health server listening", zap.String("addr", grpcCfg.Addr))
		if err := grpcSrv.Serve(lis); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		healthServer.SetServingStatus(orchestratorService, healthpb.HealthCheckResponse_NOT_SERVING)
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		grpcSrv.GracefulStop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", zap.Error(err))
		}
		if obsSrv != nil {
			if err := obsSrv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("observability shutdown", zap.Error(err))
			}
		}
		return nil
	case err := <-errCh:
		return err
	}
}

func startObservabilityServer(metrics *observability.Metrics, logger *zap.Logger, errCh chan<- error) (*http.Server, error) {
	cfg, err := config.LoadObservability()
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler(metrics))

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}
	go func() {
		logger.Info("metrics server listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	return srv, nil
}

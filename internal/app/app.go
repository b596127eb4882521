package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/barflow/internal/changefeed"
	"github.com/vladislavdragonenkov/barflow/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/barflow/internal/health"
	"github.com/vladislavdragonenkov/barflow/internal/metrics"
	"github.com/vladislavdragonenkov/barflow/internal/service/outbox"
	"github.com/vladislavdragonenkov/barflow/internal/transport/grpcstore"
	"github.com/vladislavdragonenkov/barflow/internal/transport/wsfeed"
	"github.com/vladislavdragonenkov/barflow/internal/version"
)

const grpcStopTimeout = 5 * time.Second

// dispatchPublisher доставляет записи outbox в локальный транспорт.
type dispatchPublisher func(domain.ChangeEvent)

func (d dispatchPublisher) Publish(msg domain.OutboxMessage) error {
	d(domain.ChangeEventFromOutbox(msg))
	return nil
}

// Run запускает хранилище, доставку изменений, gRPC и HTTP до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	if err := cfg.Validate(); err != nil {
		return err
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.closeFn(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	if cfg.SeedDemo {
		if err := seedDemo(ctx, deps.repos, logger); err != nil {
			return err
		}
	}

	barMetrics := metrics.NewBarMetrics()
	hub := changefeed.NewHub()
	dispatch := func(ev domain.ChangeEvent) {
		barMetrics.RecordChangeNotification(string(ev.Table))
		hub.Dispatch(ev)
	}

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	// Без Kafka worker отдаёт изменения прямо в Hub; с Kafka каждый экземпляр получает их обратно из topic.
	relay, err := startKafkaRelay(workerCtx, cfg, dispatch, logger)
	if err != nil {
		logger.WithError(err).Warn("kafka is unavailable, publishing changes to the local hub")
	}
	defer relay.close()
	publisher, dlqPublisher := relay.publishers(dispatchPublisher(dispatch))

	worker := outbox.NewWorker(
		deps.outboxRepo,
		publisher,
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithDLQPublisher(dlqPublisher),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)
	deps.watchOutbox(workerCtx, worker.Wake)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		worker.Run(workerCtx)
	}()
	defer shutdownOutboxWorker(cancelWorkers, workerDone, logger)

	retention := outbox.NewRetentionWorker(
		deps.outboxRepo,
		outbox.WithRetentionLogger(logger.WithField("component", "outbox-retention")),
		outbox.WithRetention(cfg.OutboxRetention),
	)
	go retention.Run(workerCtx)

	grpcServer, healthServer := newGRPCServer(deps.repos, logger)

	build := version.Current()
	registerBuildInfo(build, logger)

	healthHandler := healthcheck.NewHandler(build.Version)
	healthHandler.RegisterChecker("storage", deps.storageChecker)
	healthHandler.RegisterChecker("outbox", healthcheck.NewOutboxBacklogChecker("outbox", deps.outboxRepo.Stats, cfg.OutboxMaxPending, cfg.OutboxMaxAge))

	feed := wsfeed.NewHandler(hub, logger.WithField("component", "ws-feed"), barMetrics)
	defer feed.Close()
	httpSrv := startHTTPServer(ctx, cfg.HTTPAddr, logger, healthHandler, feed)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		shutdownHTTP(httpSrv, logger)
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("gRPC сервер слушает %s", cfg.GRPCAddr)
		errCh <- grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем gRPC сервер")
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
		stopGRPC(grpcServer, logger)
		shutdownHTTP(httpSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(httpSrv, logger)
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

// newGRPCServer собирает gRPC сервер хранилища с метриками, health и reflection.
func newGRPCServer(repos grpcstore.Repositories, logger *log.Entry) (*grpc.Server, *health.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))
	grpcstore.RegisterStoreServer(grpcServer, grpcstore.NewServer(repos, logger.WithField("layer", "grpc")))
	grpcMetrics.InitializeMetrics(grpcServer)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcstore.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	reflection.Register(grpcServer)
	return grpcServer, healthServer
}

// stopGRPC ждёт завершения текущих вызовов, но не дольше grpcStopTimeout.
func stopGRPC(srv *grpc.Server, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(grpcStopTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		srv.Stop()
	}
}

// newHTTPMux — метрики Prometheus, health checks и WebSocket-лента изменений, если feed задан.
func newHTTPMux(healthHandler *healthcheck.Handler, feed http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("GET /healthz", healthHandler)
	mux.HandleFunc("GET /livez", healthcheck.LivenessHandler)
	mux.HandleFunc("GET /readyz", healthHandler.ReadinessHandler)
	if feed != nil {
		mux.Handle("GET /feed", feed)
	}
	return mux
}

// startHTTPServer слушает addr в фоне и останавливается при отмене ctx.
func startHTTPServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler, feed http.Handler) *http.Server {
	mux := newHTTPMux(healthHandler, feed)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz; лента изменений: %s/feed", addr, addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("http server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}

// shutdownOutboxWorker останавливает воркер и ждёт его завершения.
func shutdownOutboxWorker(cancel context.CancelFunc, done <-chan struct{}, logger *log.Entry) {
	if cancel != nil {
		cancel()
	}
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logger.Warn("outbox worker did not stop in time")
	}
}

// registerBuildInfo публикует bar_build_info в реестре по умолчанию. Повторный Run в одном процессе
// получает AlreadyRegisteredError, это не ошибка.
func registerBuildInfo(build version.Build, logger *log.Entry) {
	err := prometheus.Register(build.Collector())
	var already prometheus.AlreadyRegisteredError
	if err != nil && !errors.As(err, &already) {
		logger.WithError(err).Warn("failed to register build info metric")
	}
}

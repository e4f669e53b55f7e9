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

	"github.com/vladislavdragonenkov/stayawake/internal/auth"
	healthcheck "github.com/vladislavdragonenkov/stayawake/internal/health"
	"github.com/vladislavdragonenkov/stayawake/internal/metrics"
	"github.com/vladislavdragonenkov/stayawake/internal/service/cart"
	"github.com/vladislavdragonenkov/stayawake/internal/service/catalog"
	"github.com/vladislavdragonenkov/stayawake/internal/service/checkout"
	"github.com/vladislavdragonenkov/stayawake/internal/service/idempotency"
	"github.com/vladislavdragonenkov/stayawake/internal/service/orders"
	"github.com/vladislavdragonenkov/stayawake/internal/service/payment"
	"github.com/vladislavdragonenkov/stayawake/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/stayawake/internal/version"
)

func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.close(); err != nil {
			logger.WithError(err).Warn("failed to close storage dependencies")
		}
	}()

	kafkaConn := connectKafka(cfg.KafkaBrokers, logger)
	defer kafkaConn.close(logger)
	if kafkaConn.enabled() {
		deps.checkers["kafka"] = kafkaConn.checker()
	}

	apiHandler := newAPIHandler(cfg, deps, logger)

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, newHealthHandler(deps.checkers))

	grpcServer, healthServer := newGRPCServer(logger)

	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		shutdownHTTP(metricsSrv, logger)
		return err
	}
	apiLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		_ = grpcLis.Close()
		shutdownHTTP(metricsSrv, logger)
		return err
	}
	apiSrv := &http.Server{
		Handler:           apiHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	outboxWorker := startOutboxWorker(ctx, cfg, deps.store.Outbox(), kafkaConn.producer, logger)
	cleanupWorker := startIdempotencyCleanup(ctx, cfg, deps.idempotencyRepo, logger)

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("gRPC сервер слушает %s", grpcLis.Addr())
		if err := grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- err
		}
	}()
	go func() {
		logger.Infof("REST API слушает %s", apiLis.Addr())
		if err := apiSrv.Serve(apiLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		runErr = ctx.Err()
	case runErr = <-errCh:
		logger.WithError(runErr).Error("server failed")
	}

	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	shutdownHTTP(apiSrv, logger)
	stopGRPC(grpcServer, cfg.ShutdownTimeout, logger)
	outboxWorker.stop(logger)
	cleanupWorker.stop(logger)
	shutdownHTTP(metricsSrv, logger)

	return runErr
}

// newAPIHandler собирает сервисы витрины поверх выбранного хранилища.
func newAPIHandler(cfg Config, deps *runtimeDeps, logger *log.Entry) http.Handler {
	if cfg.JWTSecret == "" && !cfg.TrustCustomerHeader {
		logger.Warn("jwt secret is empty and customer header is not trusted: authenticated routes will answer 401")
	}
	authenticator := auth.NewAuthenticator(cfg.JWTSecret,
		auth.WithTrustedHeader(cfg.TrustCustomerHeader),
		auth.WithLogger(logger.WithField("component", "auth")),
	)

	server := httpapi.NewServer(httpapi.Deps{
		Catalog: catalog.NewService(deps.store.Products()),
		Cart:    cart.NewService(deps.store, deps.cartCache, logger.WithField("component", "cart")),
		Checkout: checkout.NewService(deps.store,
			checkout.WithCartCache(deps.cartCache),
			checkout.WithLogger(logger.WithField("component", "checkout")),
			checkout.WithMetrics(metrics.NewCheckoutMetrics()),
		),
		Payments:       payment.NewService(deps.store, logger.WithField("component", "payment"), metrics.NewPaymentMetrics()),
		Orders:         orders.NewService(deps.store),
		Guard:          idempotency.NewGuard(deps.idempotencyRepo, cfg.IdempotencyTTL, logger.WithField("component", "idempotency-guard")),
		Authenticator:  authenticator,
		Logger:         logger.WithField("layer", "http"),
		RequestTimeout: cfg.RequestTimeout,
	})
	return server.Handler()
}

// newGRPCServer создаёт служебный gRPC сервер: health и reflection с Prometheus-интерсепторами.
func newGRPCServer(logger *log.Entry) (*grpc.Server, *health.Server) {
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

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	// Reflection для grpcurl.
	reflection.Register(grpcServer)
	grpcMetrics.InitializeMetrics(grpcServer)

	return grpcServer, healthServer
}

// stopGRPC пытается остановить сервер gracefully, по таймауту — принудительно.
func stopGRPC(srv *grpc.Server, timeout time.Duration, logger *log.Entry) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(timeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		srv.Stop()
	}
}

func newHealthHandler(checkers map[string]healthcheck.Checker) *healthcheck.Handler {
	h := healthcheck.NewHandler(version.GetVersion())
	for name, checker := range checkers {
		h.RegisterChecker(name, checker)
	}
	return h
}

// newServiceMux — служебные маршруты: /metrics, /healthz, /livez, /readyz.
func newServiceMux(healthHandler *healthcheck.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	return mux
}

// startMetricsServer запускает служебный HTTP и останавливает его по отмене ctx.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	srv := &http.Server{Addr: addr, Handler: newServiceMux(healthHandler), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
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

package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ramiqadoumi/task-inbox/internal/cliutil"
	"github.com/ramiqadoumi/task-inbox/internal/kafka"
	"github.com/ramiqadoumi/task-inbox/internal/postgres"
	redisstore "github.com/ramiqadoumi/task-inbox/internal/redis"
	"github.com/ramiqadoumi/task-inbox/internal/service"
	"github.com/ramiqadoumi/task-inbox/pkg/telemetry"
	"github.com/ramiqadoumi/task-inbox/services/api-gateway/config"
	"github.com/ramiqadoumi/task-inbox/services/api-gateway/handler"
	"github.com/ramiqadoumi/task-inbox/services/api-gateway/middleware"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST server",
	RunE:  runServe,
}

func init() {
	d := config.Defaults()
	serveCmd.Flags().String("http-port", d.HTTPPort, "HTTP server port")
	serveCmd.Flags().String("metrics-addr", d.MetricsAddr, "Prometheus metrics server address")
	serveCmd.Flags().String("kafka-brokers", d.KafkaBrokers, "comma-separated Kafka broker addresses")
	serveCmd.Flags().String("redis-addr", d.RedisAddr, "Redis address (host:port)")
	serveCmd.Flags().String("jwt-secret", d.JWTSecret, "HS256 secret bearer tokens are signed with")
	serveCmd.Flags().String("otel-endpoint", "", "OTLP HTTP endpoint for tracing (e.g. localhost:4318); empty disables tracing")
	serveCmd.Flags().String("timezone", d.Timezone, "IANA timezone working hours are interpreted in")
	serveCmd.Flags().Int("horizon-days", d.HorizonDays, "how many days ahead the scheduler may place tasks")
	serveCmd.Flags().Duration("lock-ttl", d.LockTTL, "lease of the per-user scheduling lock")
	serveCmd.Flags().Int64("max-body-bytes", d.MaxBodyBytes, "maximum request body size")

	cliutil.BindFlag("http_port", serveCmd.Flags(), "http-port")
	cliutil.BindFlag("metrics_addr", serveCmd.Flags(), "metrics-addr")
	cliutil.BindFlag("kafka_brokers", serveCmd.Flags(), "kafka-brokers")
	cliutil.BindFlag("redis_addr", serveCmd.Flags(), "redis-addr")
	cliutil.BindFlag("jwt_secret", serveCmd.Flags(), "jwt-secret")
	cliutil.BindFlag("otel_endpoint", serveCmd.Flags(), "otel-endpoint")
	cliutil.BindFlag("timezone", serveCmd.Flags(), "timezone")
	cliutil.BindFlag("horizon_days", serveCmd.Flags(), "horizon-days")
	cliutil.BindFlag("lock_ttl", serveCmd.Flags(), "lock-ttl")
	cliutil.BindFlag("max_body_bytes", serveCmd.Flags(), "max-body-bytes")
	_ = viper.BindEnv("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	logger := cliutil.BuildLogger(cfg.LogLevel, serviceName)

	loc, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("timezone %q: %w", cfg.Timezone, err)
	}
	if cfg.JWTSecret == "" {
		return errors.New("jwt_secret must not be empty")
	}

	shutdownTracer, err := telemetry.InitTracer(context.Background(), serviceName, cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer shutdownTracer()

	producer := kafka.NewProducer(strings.Split(cfg.KafkaBrokers, ","))
	defer func() { _ = producer.Close() }()

	redisClient := redisstore.NewClient(cfg.RedisAddr)
	defer func() { _ = redisClient.Close() }()

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := postgres.NewPool(initCtx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()

	tasks := service.New(service.Deps{
		Tasks:    postgres.NewRepository(pool),
		Events:   postgres.NewEventRepository(pool),
		Settings: postgres.NewSettingsRepository(pool),
		Cache:    redisstore.NewTaskCache(redisClient),
		Lock:     redisstore.NewUserLock(redisClient, cfg.LockTTL),
		Producer: producer,
		Logger:   logger,
		Location: loc,
		Horizon:  cfg.Horizon(),
	})
	rest := handler.NewREST(tasks, producer, logger)

	ready := []telemetry.ReadyFunc{
		func(ctx context.Context) error { return pool.Ping(ctx) },
		func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.MaxBodySize(cfg.MaxBodyBytes))
	r.Get("/healthz", rest.Healthz)
	r.Method(http.MethodGet, "/readyz", telemetry.ReadyHandler(ready...))
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth([]byte(cfg.JWTSecret)))
		rest.Routes(r)
	})

	httpSrv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// ── signal handling ───────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	telemetry.StartMetricsServer(runCtx, cfg.MetricsAddr, logger, ready...)

	go func() {
		logger.Info("api-gateway HTTP starting",
			slog.String("addr", httpSrv.Addr),
			slog.String("timezone", loc.String()),
		)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	<-quit
	logger.Info("shutting down...")
	runCancel()

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutCancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Error("HTTP shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("stopped")
	return nil
}

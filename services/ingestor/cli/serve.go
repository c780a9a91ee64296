package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ramiqadoumi/task-inbox/internal/cliutil"
	"github.com/ramiqadoumi/task-inbox/internal/kafka"
	"github.com/ramiqadoumi/task-inbox/internal/postgres"
	redisstore "github.com/ramiqadoumi/task-inbox/internal/redis"
	"github.com/ramiqadoumi/task-inbox/internal/service"
	"github.com/ramiqadoumi/task-inbox/internal/sources"
	"github.com/ramiqadoumi/task-inbox/pkg/retry"
	"github.com/ramiqadoumi/task-inbox/pkg/telemetry"
	"github.com/ramiqadoumi/task-inbox/services/ingestor"
	"github.com/ramiqadoumi/task-inbox/services/ingestor/config"
)

const groupID = "ingestor-group"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ingestor",
	RunE:  runServe,
}

func init() {
	d := config.Defaults()
	serveCmd.Flags().String("kafka-brokers", d.KafkaBrokers, "comma-separated Kafka broker addresses")
	serveCmd.Flags().String("redis-addr", d.RedisAddr, "Redis address (host:port)")
	serveCmd.Flags().String("postgres-dsn", d.PostgresDSN, "PostgreSQL DSN")
	serveCmd.Flags().Int("rate-limit", d.RateLimit, "max payloads per user per window (0 = disabled)")
	serveCmd.Flags().Duration("rate-window", d.RateWindow, "rate limit window")
	serveCmd.Flags().Int("max-retries", d.MaxRetries, "attempts per payload on transient storage errors")
	serveCmd.Flags().String("timezone", d.Timezone, "IANA timezone task timestamps are recorded in")
	serveCmd.Flags().String("metrics-addr", d.MetricsAddr, "Prometheus metrics server address")
	serveCmd.Flags().String("otel-endpoint", "", "OTLP HTTP endpoint for tracing (e.g. localhost:4318); empty disables tracing")

	cliutil.BindFlag("kafka_brokers", serveCmd.Flags(), "kafka-brokers")
	cliutil.BindFlag("redis_addr", serveCmd.Flags(), "redis-addr")
	cliutil.BindFlag("postgres_dsn", serveCmd.Flags(), "postgres-dsn")
	cliutil.BindFlag("rate_limit", serveCmd.Flags(), "rate-limit")
	cliutil.BindFlag("rate_window", serveCmd.Flags(), "rate-window")
	cliutil.BindFlag("max_retries", serveCmd.Flags(), "max-retries")
	cliutil.BindFlag("timezone", serveCmd.Flags(), "timezone")
	cliutil.BindFlag("metrics_addr", serveCmd.Flags(), "metrics-addr")
	cliutil.BindFlag("otel_endpoint", serveCmd.Flags(), "otel-endpoint")
	_ = viper.BindEnv("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	logger := cliutil.BuildLogger(cfg.LogLevel, serviceName)

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("timezone %q: %w", cfg.Timezone, err)
	}

	shutdownTracer, err := telemetry.InitTracer(context.Background(), serviceName, cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer shutdownTracer()

	brokers := strings.Split(cfg.KafkaBrokers, ",")

	consumer := kafka.NewConsumer(brokers, kafka.TopicIngest, groupID, logger)
	defer func() { _ = consumer.Close() }()

	producer := kafka.NewProducer(brokers)
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
		Lock:     redisstore.NewUserLock(redisClient, redisstore.DefaultLockTTL),
		Producer: producer,
		Logger:   logger,
		Location: loc,
	})

	opts := []ingestor.Option{
		ingestor.WithLogger(logger),
		ingestor.WithRetry(retry.Config{MaxAttempts: cfg.MaxRetries, BaseDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second}),
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, ingestor.WithRateLimiter(redisstore.NewRateLimiter(redisClient, cfg.RateLimit, cfg.RateWindow)))
		logger.Info("rate limiter enabled",
			slog.Int("limit", cfg.RateLimit),
			slog.Duration("window", cfg.RateWindow),
		)
	}
	in := ingestor.New(consumer, producer, tasks, sources.DefaultRegistry(), opts...)

	ctx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	telemetry.StartMetricsServer(ctx, cfg.MetricsAddr, logger,
		func(ctx context.Context) error { return pool.Ping(ctx) },
		func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-quit
		logger.Info("shutting down...")
		cancelRun()
	}()

	logger.Info("ingestor starting", slog.String("topic", kafka.TopicIngest))
	if err := in.Run(ctx); err != nil {
		return fmt.Errorf("ingestor: %w", err)
	}
	logger.Info("stopped")
	return nil
}

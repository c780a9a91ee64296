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

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ramiqadoumi/task-inbox/internal/cliutil"
	"github.com/ramiqadoumi/task-inbox/internal/kafka"
	"github.com/ramiqadoumi/task-inbox/internal/postgres"
	redisstore "github.com/ramiqadoumi/task-inbox/internal/redis"
	"github.com/ramiqadoumi/task-inbox/internal/service"
	"github.com/ramiqadoumi/task-inbox/pkg/telemetry"
	"github.com/ramiqadoumi/task-inbox/services/scheduler"
	"github.com/ramiqadoumi/task-inbox/services/scheduler/config"
)

const leaderKey = "scheduler:leader"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scheduler",
	RunE:  runServe,
}

func init() {
	d := config.Defaults()
	serveCmd.Flags().String("kafka-brokers", d.KafkaBrokers, "comma-separated Kafka broker addresses")
	serveCmd.Flags().String("redis-addr", d.RedisAddr, "Redis address (host:port)")
	serveCmd.Flags().String("postgres-dsn", d.PostgresDSN, "PostgreSQL DSN")
	serveCmd.Flags().String("metrics-addr", d.MetricsAddr, "Prometheus metrics server address")
	serveCmd.Flags().String("otel-endpoint", "", "OTLP HTTP endpoint for tracing (e.g. localhost:4318); empty disables tracing")
	serveCmd.Flags().String("timezone", d.Timezone, "IANA timezone for working hours and the cron schedule")
	serveCmd.Flags().String("sweep-cron", d.SweepCron, "cron expression the inbox sweep runs on")
	serveCmd.Flags().Int("sweep-batch", d.SweepBatch, "max users visited per sweep")
	serveCmd.Flags().Int("sweep-concurrency", d.SweepConcurrency, "users scheduled in parallel")
	serveCmd.Flags().Int("horizon-days", d.HorizonDays, "how many days ahead tasks may be placed")
	serveCmd.Flags().Duration("leader-ttl", d.LeaderTTL, "leader lease; should outlast one sweep interval")
	serveCmd.Flags().Duration("lock-ttl", d.LockTTL, "lease of the per-user scheduling lock")

	cliutil.BindFlag("kafka_brokers", serveCmd.Flags(), "kafka-brokers")
	cliutil.BindFlag("redis_addr", serveCmd.Flags(), "redis-addr")
	cliutil.BindFlag("postgres_dsn", serveCmd.Flags(), "postgres-dsn")
	cliutil.BindFlag("metrics_addr", serveCmd.Flags(), "metrics-addr")
	cliutil.BindFlag("otel_endpoint", serveCmd.Flags(), "otel-endpoint")
	cliutil.BindFlag("timezone", serveCmd.Flags(), "timezone")
	cliutil.BindFlag("sweep_cron", serveCmd.Flags(), "sweep-cron")
	cliutil.BindFlag("sweep_batch", serveCmd.Flags(), "sweep-batch")
	cliutil.BindFlag("sweep_concurrency", serveCmd.Flags(), "sweep-concurrency")
	cliutil.BindFlag("horizon_days", serveCmd.Flags(), "horizon-days")
	cliutil.BindFlag("leader_ttl", serveCmd.Flags(), "leader-ttl")
	cliutil.BindFlag("lock_ttl", serveCmd.Flags(), "lock-ttl")
	_ = viper.BindEnv("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	logger := cliutil.BuildLogger(cfg.LogLevel, serviceName)
	instanceID := "scheduler-" + uuid.New().String()[:8]

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("timezone %q: %w", cfg.Timezone, err)
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

	repo := postgres.NewRepository(pool)
	tasks := service.New(service.Deps{
		Tasks:    repo,
		Events:   postgres.NewEventRepository(pool),
		Settings: postgres.NewSettingsRepository(pool),
		Cache:    redisstore.NewTaskCache(redisClient),
		Lock:     redisstore.NewUserLock(redisClient, cfg.LockTTL),
		Producer: producer,
		Logger:   logger,
		Location: loc,
		Horizon:  cfg.Horizon(),
	})

	sched, err := scheduler.New(repo, tasks,
		redisstore.NewLeader(redisClient, leaderKey, instanceID, cfg.LeaderTTL),
		scheduler.Config{
			Spec:        cfg.SweepCron,
			Location:    loc,
			BatchSize:   cfg.SweepBatch,
			Concurrency: cfg.SweepConcurrency,
		},
		logger,
	)
	if err != nil {
		return err
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	telemetry.StartMetricsServer(runCtx, cfg.MetricsAddr, logger,
		func(ctx context.Context) error { return pool.Ping(ctx) },
		func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-quit
		logger.Info("shutting down...")
		runCancel()
	}()

	logger.Info("scheduler starting",
		slog.String("instance_id", instanceID),
		slog.String("sweep_cron", cfg.SweepCron),
	)
	if err := sched.Run(runCtx); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}
	logger.Info("stopped")
	return nil
}

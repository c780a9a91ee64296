package cli

import (
	"context"
	"errors"
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
	"github.com/ramiqadoumi/task-inbox/internal/notify"
	redisstore "github.com/ramiqadoumi/task-inbox/internal/redis"
	"github.com/ramiqadoumi/task-inbox/pkg/retry"
	"github.com/ramiqadoumi/task-inbox/pkg/telemetry"
	"github.com/ramiqadoumi/task-inbox/services/notifier"
	"github.com/ramiqadoumi/task-inbox/services/notifier/config"
)

const groupID = "notifier-group"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the notifier",
	RunE:  runServe,
}

func init() {
	d := config.Defaults()
	serveCmd.Flags().String("kafka-brokers", d.KafkaBrokers, "comma-separated Kafka broker addresses")
	serveCmd.Flags().String("redis-addr", d.RedisAddr, "Redis address (host:port)")
	serveCmd.Flags().String("metrics-addr", d.MetricsAddr, "Prometheus metrics server address")
	serveCmd.Flags().String("otel-endpoint", "", "OTLP HTTP endpoint for tracing (e.g. localhost:4318); empty disables tracing")
	serveCmd.Flags().String("timezone", d.Timezone, "IANA timezone slot times are rendered in")
	serveCmd.Flags().String("smtp-host", d.SMTPHost, "SMTP server host; empty disables email")
	serveCmd.Flags().Int("smtp-port", d.SMTPPort, "SMTP server port")
	serveCmd.Flags().String("smtp-from", d.SMTPFrom, "SMTP sender address")
	serveCmd.Flags().String("smtp-username", "", "SMTP auth username")
	serveCmd.Flags().String("smtp-password", "", "SMTP auth password or app password")
	serveCmd.Flags().String("webhook-url", "", "URL scheduling events are POSTed to; empty disables the webhook")
	serveCmd.Flags().StringToString("webhook-header", nil, "extra webhook request headers (key=value, repeatable)")
	serveCmd.Flags().Duration("webhook-timeout", d.WebhookTimeout, "webhook HTTP timeout")
	serveCmd.Flags().Float64("rate-per-second", d.RatePerSecond, "outbound notifications per second (0 = unthrottled)")
	serveCmd.Flags().Int("rate-burst", d.RateBurst, "outbound notification burst")
	serveCmd.Flags().Int("max-retries", d.MaxRetries, "retries per channel before an event is dead-lettered")
	serveCmd.Flags().Duration("delivery-timeout", d.DeliveryTimeout, "deadline for delivering one event over all channels")
	serveCmd.Flags().Duration("dedup-ttl", d.DedupTTL, "how long delivered events are remembered")

	cliutil.BindFlag("kafka_brokers", serveCmd.Flags(), "kafka-brokers")
	cliutil.BindFlag("redis_addr", serveCmd.Flags(), "redis-addr")
	cliutil.BindFlag("metrics_addr", serveCmd.Flags(), "metrics-addr")
	cliutil.BindFlag("otel_endpoint", serveCmd.Flags(), "otel-endpoint")
	cliutil.BindFlag("timezone", serveCmd.Flags(), "timezone")
	cliutil.BindFlag("smtp_host", serveCmd.Flags(), "smtp-host")
	cliutil.BindFlag("smtp_port", serveCmd.Flags(), "smtp-port")
	cliutil.BindFlag("smtp_from", serveCmd.Flags(), "smtp-from")
	cliutil.BindFlag("smtp_username", serveCmd.Flags(), "smtp-username")
	cliutil.BindFlag("smtp_password", serveCmd.Flags(), "smtp-password")
	cliutil.BindFlag("webhook_url", serveCmd.Flags(), "webhook-url")
	cliutil.BindFlag("webhook_headers", serveCmd.Flags(), "webhook-header")
	cliutil.BindFlag("webhook_timeout", serveCmd.Flags(), "webhook-timeout")
	cliutil.BindFlag("rate_per_second", serveCmd.Flags(), "rate-per-second")
	cliutil.BindFlag("rate_burst", serveCmd.Flags(), "rate-burst")
	cliutil.BindFlag("max_retries", serveCmd.Flags(), "max-retries")
	cliutil.BindFlag("delivery_timeout", serveCmd.Flags(), "delivery-timeout")
	cliutil.BindFlag("dedup_ttl", serveCmd.Flags(), "dedup-ttl")
	_ = viper.BindEnv("otel_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func buildNotifiers(cfg config.Config, loc *time.Location) []notify.Notifier {
	var out []notify.Notifier
	if cfg.SMTPHost != "" {
		out = append(out, notify.NewEmailNotifier(notify.EmailConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			From:     cfg.SMTPFrom,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			Location: loc,
		}, notify.UserIDAsAddress))
	}
	if cfg.WebhookURL != "" {
		out = append(out, notify.NewWebhookNotifier(notify.WebhookConfig{
			URL:     cfg.WebhookURL,
			Headers: cfg.WebhookHeaders,
			Timeout: cfg.WebhookTimeout,
		}))
	}
	return out
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg := config.Load(viper.GetViper())
	logger := cliutil.BuildLogger(cfg.LogLevel, serviceName)

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("timezone %q: %w", cfg.Timezone, err)
	}
	notifiers := buildNotifiers(cfg, loc)
	if len(notifiers) == 0 {
		return errors.New("no notification channel configured: set smtp_host or webhook_url")
	}

	shutdownTracer, err := telemetry.InitTracer(context.Background(), serviceName, cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer shutdownTracer()

	brokers := strings.Split(cfg.KafkaBrokers, ",")

	consumer := kafka.NewConsumer(brokers, kafka.TopicScheduled, groupID, logger)
	defer func() { _ = consumer.Close() }()

	producer := kafka.NewProducer(brokers)
	defer func() { _ = producer.Close() }()

	redisClient := redisstore.NewClient(cfg.RedisAddr)
	defer func() { _ = redisClient.Close() }()

	dispatcher := notify.NewDispatcher(notifiers, cfg.RatePerSecond, cfg.RateBurst,
		retry.Config{MaxAttempts: cfg.MaxRetries + 1, BaseDelay: time.Second, MaxDelay: 30 * time.Second},
		logger,
	)
	n := notifier.New(consumer, producer, dispatcher,
		notifier.WithLogger(logger),
		notifier.WithTimeout(cfg.DeliveryTimeout),
		notifier.WithDeduper(redisstore.NewDeduper(redisClient, "notified:", cfg.DedupTTL)),
	)

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	telemetry.StartMetricsServer(runCtx, cfg.MetricsAddr, logger,
		func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-quit
		logger.Info("shutting down, draining in-flight deliveries...")
		runCancel()
	}()

	names := make([]string, len(notifiers))
	for i, nt := range notifiers {
		names[i] = nt.Name()
	}
	logger.Info("notifier starting",
		slog.String("topic", kafka.TopicScheduled),
		slog.String("channels", strings.Join(names, ",")),
	)

	if err := n.Run(runCtx); err != nil {
		return fmt.Errorf("notifier: %w", err)
	}
	n.Wait()
	logger.Info("stopped cleanly")
	return nil
}

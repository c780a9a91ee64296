package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds typed configuration for the notifier service.
type Config struct {
	LogLevel     string `yaml:"log_level"`
	KafkaBrokers string `yaml:"kafka_brokers"`
	RedisAddr    string `yaml:"redis_addr"`
	MetricsAddr  string `yaml:"metrics_addr"`
	OTelEndpoint string `yaml:"otel_endpoint"`
	Timezone     string `yaml:"timezone"`

	// SMTPHost empty disables email.
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPFrom     string `yaml:"smtp_from"`
	SMTPUsername string `yaml:"smtp_username"`
	SMTPPassword string `yaml:"smtp_password"`

	// WebhookURL empty disables the webhook.
	WebhookURL     string            `yaml:"webhook_url"`
	WebhookHeaders map[string]string `yaml:"webhook_headers,omitempty"`
	WebhookTimeout time.Duration     `yaml:"webhook_timeout"`

	RatePerSecond   float64       `yaml:"rate_per_second"`
	RateBurst       int           `yaml:"rate_burst"`
	MaxRetries      int           `yaml:"max_retries"`
	DeliveryTimeout time.Duration `yaml:"delivery_timeout"`
	DedupTTL        time.Duration `yaml:"dedup_ttl"`
}

// Defaults is what `notifier init` writes and what flags fall back to.
func Defaults() Config {
	return Config{
		LogLevel:        "info",
		KafkaBrokers:    "localhost:9092",
		RedisAddr:       "localhost:6379",
		MetricsAddr:     ":9091",
		Timezone:        "UTC",
		SMTPHost:        "localhost",
		SMTPPort:        1025,
		SMTPFrom:        "noreply@task-inbox.dev",
		WebhookTimeout:  15 * time.Second,
		RatePerSecond:   10,
		RateBurst:       5,
		MaxRetries:      3,
		DeliveryTimeout: time.Minute,
		DedupTTL:        24 * time.Hour,
	}
}

// Load reads all values from the given viper instance.
func Load(v *viper.Viper) Config {
	return Config{
		LogLevel:        v.GetString("log_level"),
		KafkaBrokers:    v.GetString("kafka_brokers"),
		RedisAddr:       v.GetString("redis_addr"),
		MetricsAddr:     v.GetString("metrics_addr"),
		OTelEndpoint:    v.GetString("otel_endpoint"),
		Timezone:        v.GetString("timezone"),
		SMTPHost:        v.GetString("smtp_host"),
		SMTPPort:        v.GetInt("smtp_port"),
		SMTPFrom:        v.GetString("smtp_from"),
		SMTPUsername:    v.GetString("smtp_username"),
		SMTPPassword:    v.GetString("smtp_password"),
		WebhookURL:      v.GetString("webhook_url"),
		WebhookHeaders:  v.GetStringMapString("webhook_headers"),
		WebhookTimeout:  v.GetDuration("webhook_timeout"),
		RatePerSecond:   v.GetFloat64("rate_per_second"),
		RateBurst:       v.GetInt("rate_burst"),
		MaxRetries:      v.GetInt("max_retries"),
		DeliveryTimeout: v.GetDuration("delivery_timeout"),
		DedupTTL:        v.GetDuration("dedup_ttl"),
	}
}

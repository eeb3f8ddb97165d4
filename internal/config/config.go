package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is loaded once at startup. The processor secret and the store
// DSN are required: without either the service refuses to start rather
// than run without its payment gate or its slot.
type Config struct {
	HTTPPort string `envconfig:"HTTP_PORT" default:"8080"`

	DBDSN string `envconfig:"DB_DSN" required:"true"`

	StripeSecretKey string        `envconfig:"STRIPE_SECRET_KEY" required:"true"`
	StripeAPIBase   string        `envconfig:"STRIPE_API_BASE" default:"https://api.stripe.com"`
	StripeTimeout   time.Duration `envconfig:"STRIPE_TIMEOUT" default:"10s"`

	// PublicBaseURL is the fallback origin for checkout return URLs when
	// the submit request has no Origin header.
	PublicBaseURL string `envconfig:"PUBLIC_BASE_URL" default:""`

	PriceAmount   int64  `envconfig:"PRICE_AMOUNT" default:"100"`
	PriceCurrency string `envconfig:"PRICE_CURRENCY" default:"eur"`

	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	CacheTTL      time.Duration `envconfig:"CACHE_TTL" default:"30s"`

	KafkaBrokers []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"message_exchanges"`

	OutboxPollInterval  time.Duration `envconfig:"OUTBOX_POLL_INTERVAL" default:"500ms"`
	OutboxBatchSize     int           `envconfig:"OUTBOX_BATCH_SIZE" default:"100"`
	OutboxMaxRetries    int           `envconfig:"OUTBOX_MAX_RETRIES" default:"10"`
	OutboxRetentionDays int           `envconfig:"OUTBOX_RETENTION_DAYS" default:"7"`

	ConsumedTTL time.Duration `envconfig:"CONSUMED_REFERENCE_TTL" default:"24h"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

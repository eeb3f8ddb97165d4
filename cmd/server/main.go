package main

import (
	"context"
	"log"
	"net/http"

	"message_relay/internal/cache"
	"message_relay/internal/config"
	"message_relay/internal/handlers"
	"message_relay/internal/kafka"
	"message_relay/internal/metrics"
	"message_relay/internal/payment"
	"message_relay/internal/repository"
	"message_relay/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
)

func main() {
	ctx := context.Background()

	// ---------- config (fail closed) ----------
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, reading environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config:", err)
	}

	// ---------- metrics ----------
	metrics.Register()

	// ---------- db ----------
	pool, err := repository.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatal("db:", err)
	}

	// ---------- repositories ----------
	messageRepo := repository.NewMessageRepository(pool)
	consumedRepo := repository.NewConsumedRepository(pool)
	outboxRepo := repository.NewOutboxRepository(pool, cfg.OutboxMaxRetries)

	store := repository.NewExchangeStore(
		pool,
		messageRepo,
		consumedRepo,
		outboxRepo,
		cfg.KafkaTopic,
		cfg.ConsumedTTL,
	)

	// ---------- payment processor ----------
	payments, err := payment.NewClient(payment.Options{
		BaseURL:    cfg.StripeAPIBase,
		SecretKey:  cfg.StripeSecretKey,
		Amount:     cfg.PriceAmount,
		Currency:   cfg.PriceCurrency,
		ReturnBase: cfg.PublicBaseURL,
		Timeout:    cfg.StripeTimeout,
	})
	if err != nil {
		log.Fatal("payment client:", err)
	}

	// ---------- redis cache ----------
	redisCache := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer redisCache.Close()
	cache.StartRedisSizeCollector(ctx, redisCache.RawClient(), 0, nil)

	// ---------- kafka producer + outbox sender ----------
	producer, err := kafka.NewSyncProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	if err != nil {
		log.Fatal("kafka producer:", err)
	}
	defer producer.Close()

	sender := service.NewOutboxSender(
		outboxRepo,
		consumedRepo,
		producer,
		cfg.OutboxPollInterval,
		cfg.OutboxBatchSize,
		cfg.OutboxRetentionDays,
		cfg.OutboxMaxRetries,
		nil,
	)
	sender.Start(ctx)

	// ---------- db gauges ----------
	metrics.StartDBCollectors(ctx, pool, 0, nil)

	// ---------- service + handlers ----------
	svc := service.NewExchangeService(payments, store, nil)
	h := handlers.NewExchangeHandler(svc, redisCache, cfg.CacheTTL)

	// ---------- router ----------
	r := chi.NewRouter()
	r.Use(metrics.HTTPMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	handlers.RegisterExchangeRoutes(r, h)

	// ---------- start server ----------
	addr := ":" + cfg.HTTPPort
	log.Println("server starting on", addr)

	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatal(err)
	}
}

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/fjod/go_cart/cartstore/internal/checkout"
	"github.com/fjod/go_cart/cartstore/internal/config"
	h "github.com/fjod/go_cart/cartstore/internal/http"
	"github.com/fjod/go_cart/cartstore/internal/poller"
	"github.com/fjod/go_cart/cartstore/internal/pricing"
	"github.com/fjod/go_cart/cartstore/internal/session"
	"github.com/fjod/go_cart/cartstore/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slots, closeSlots, err := openSlots(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Fatal("failed to open cart storage", zap.String("backend", cfg.Storage.Backend), zap.Error(err))
	}
	defer closeSlots()

	rules, err := cfg.PricingRules()
	if err != nil {
		logger.Fatal("invalid pricing rules", zap.Error(err))
	}

	registry := session.NewRegistry(storage.NewBreakerSlots(slots, storage.DefaultBreakerSettings("cart-slots")), logger)

	var publisher checkout.Publisher = checkout.NoopPublisher{}
	if cfg.KafkaEnabled() {
		kafkaPublisher := checkout.NewKafkaPublisher(cfg.Kafka.CheckoutTopic, cfg.Kafka.Brokers...)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher

		orders := poller.NewPoller(registry, logger, cfg.Kafka.OrdersTopic, cfg.Kafka.Brokers...)
		defer orders.Close()
		go orders.Run(ctx)
		logger.Info("order poller started", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.OrdersTopic))
	} else {
		logger.Info("KAFKA_BROKERS not set, checkout publishing disabled")
	}

	cartHandler := h.NewCartHandler(registry, pricing.NewCalculator(rules), publisher, logger, cfg.RequestTimeout)
	router := h.NewRouter(cartHandler, logger, cfg.RequestTimeout)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, "cartstore"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("cart service starting", zap.String("port", cfg.HTTPPort), zap.String("backend", cfg.Storage.Backend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}

	zcfg := zap.NewProductionConfig()
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	zcfg.Level = lvl
	return zcfg.Build()
}

// openSlots connects the configured backend. The returned func releases it.
func openSlots(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (storage.Slots, func(), error) {
	switch cfg.Backend {
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, err
		}
		logger.Info("redis ping succeeded", zap.String("addr", cfg.RedisAddr))
		return storage.NewRedisSlots(client), func() { client.Close() }, nil

	case config.BackendMongo:
		db, err := storage.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			return nil, nil, err
		}
		slots := storage.NewMongoSlots(db)
		if err := slots.CreateIndexes(ctx); err != nil {
			db.Client().Disconnect(ctx)
			return nil, nil, err
		}
		logger.Info("connected to mongodb", zap.String("db", cfg.MongoDBName))
		return slots, func() { db.Client().Disconnect(context.Background()) }, nil

	case config.BackendSQLite:
		slots, err := storage.NewSQLiteSlots(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("opened sqlite cart store", zap.String("path", cfg.SQLitePath))
		return slots, func() { slots.Close() }, nil

	default:
		return storage.NewMemorySlots(), func() {}, nil
	}
}

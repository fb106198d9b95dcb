// Package config loads service settings from the environment, optionally
// seeded from a YAML file named by CART_CONFIG_FILE.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/fjod/go_cart/cartstore/internal/pricing"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendMongo  = "mongo"
	BackendSQLite = "sqlite"
)

var ErrUnknownBackend = errors.New("unknown storage backend")

type Config struct {
	HTTPPort        string        `yaml:"http_port"`
	LogLevel        string        `yaml:"log_level"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Storage         StorageConfig `yaml:"storage"`
	Kafka           KafkaConfig   `yaml:"kafka"`
	Pricing         PricingConfig `yaml:"pricing"`
}

type StorageConfig struct {
	Backend       string `yaml:"backend"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDBName   string `yaml:"mongo_db_name"`
	SQLitePath    string `yaml:"sqlite_path"`
}

type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	CheckoutTopic string   `yaml:"checkout_topic"`
	OrdersTopic   string   `yaml:"orders_topic"`
}

// PricingConfig keeps amounts as decimal strings so no precision is lost on the way in.
type PricingConfig struct {
	FreeShippingThreshold string `yaml:"free_shipping_threshold"`
	FlatShipping          string `yaml:"flat_shipping"`
	TaxRate               string `yaml:"tax_rate"`
}

func defaults() *Config {
	return &Config{
		HTTPPort:        "8080",
		LogLevel:        "info",
		RequestTimeout:  30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		Storage: StorageConfig{
			Backend:     BackendMemory,
			RedisAddr:   "localhost:6379",
			MongoURI:    "mongodb://localhost:27017",
			MongoDBName: "cartdb",
			SQLitePath:  "cart.db",
		},
		Kafka: KafkaConfig{
			CheckoutTopic: "cart-checkout",
			OrdersTopic:   "checkout-outbox",
		},
		Pricing: PricingConfig{
			FreeShippingThreshold: "50.00",
			FlatShipping:          "10.00",
			TaxRate:               "0.08",
		},
	}
}

// Load builds the configuration: defaults, then the YAML file if any, then
// environment variables, each layer overriding the previous one.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CART_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.HTTPPort = getEnv("HTTP_PORT", c.HTTPPort)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.Storage.Backend = strings.ToLower(getEnv("STORAGE_BACKEND", c.Storage.Backend))
	c.Storage.RedisAddr = getEnv("REDIS_ADDR", c.Storage.RedisAddr)
	c.Storage.RedisPassword = getEnv("REDIS_PASSWORD", c.Storage.RedisPassword)
	c.Storage.MongoURI = getEnv("MONGO_URI", c.Storage.MongoURI)
	c.Storage.MongoDBName = getEnv("MONGO_DB_NAME", c.Storage.MongoDBName)
	c.Storage.SQLitePath = getEnv("SQLITE_PATH", c.Storage.SQLitePath)

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		c.Kafka.Brokers = splitList(brokers)
	}
	c.Kafka.CheckoutTopic = getEnv("CHECKOUT_TOPIC", c.Kafka.CheckoutTopic)
	c.Kafka.OrdersTopic = getEnv("ORDERS_TOPIC", c.Kafka.OrdersTopic)

	c.Pricing.FreeShippingThreshold = getEnv("FREE_SHIPPING_THRESHOLD", c.Pricing.FreeShippingThreshold)
	c.Pricing.FlatShipping = getEnv("FLAT_SHIPPING", c.Pricing.FlatShipping)
	c.Pricing.TaxRate = getEnv("TAX_RATE", c.Pricing.TaxRate)

	var err error
	if c.RequestTimeout, err = getDuration("REQUEST_TIMEOUT", c.RequestTimeout); err != nil {
		return err
	}
	if c.ShutdownTimeout, err = getDuration("SHUTDOWN_TIMEOUT", c.ShutdownTimeout); err != nil {
		return err
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendMemory, BackendRedis, BackendMongo, BackendSQLite:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Storage.Backend)
	}
	if _, err := c.PricingRules(); err != nil {
		return err
	}
	return nil
}

// KafkaEnabled reports whether checkout publishing and the order poller should run.
func (c *Config) KafkaEnabled() bool {
	return len(c.Kafka.Brokers) > 0
}

func (c *Config) PricingRules() (pricing.Rules, error) {
	threshold, err := parseAmount("free_shipping_threshold", c.Pricing.FreeShippingThreshold)
	if err != nil {
		return pricing.Rules{}, err
	}
	shipping, err := parseAmount("flat_shipping", c.Pricing.FlatShipping)
	if err != nil {
		return pricing.Rules{}, err
	}
	tax, err := parseAmount("tax_rate", c.Pricing.TaxRate)
	if err != nil {
		return pricing.Rules{}, err
	}
	return pricing.Rules{
		FreeShippingThreshold: threshold,
		FlatShipping:          shipping,
		TaxRate:               tax,
	}, nil
}

func parseAmount(name, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid %s %q: %w", name, value, err)
	}
	if d.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("invalid %s %q: must not be negative", name, value)
	}
	return d, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

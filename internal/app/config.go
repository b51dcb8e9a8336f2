package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
)

const defaultAddr = "0.0.0.0:8080"

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverMemory   = "memory"
)

// Notifier kinds.
const (
	NotifyHTTP  = "http"
	NotifyKafka = "kafka"
	NotifyNone  = "none"
)

// Config holds the complete application configuration, loadable from
// environment variables (PURCHASE_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"Database connection URL or DSN (PURCHASE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Database    DatabaseConfig
	Redis       RedisConfig
	Notify      NotifyConfig
	RateLimit   RateLimitConfig
	Graceful    GracefulConfig
}

// DatabaseConfig selects the inventory store and bounds its transactions.
type DatabaseConfig struct {
	Driver      string        `default:"postgres" usage:"Storage driver: postgres, mysql or memory"`
	LockTimeout time.Duration `default:"5s"  usage:"Maximum wait for a product row lock" flag:"lock-timeout"`
	TxTimeout   time.Duration `default:"10s" usage:"Maximum duration of a purchase transaction" flag:"tx-timeout"`
	MaxConns    int32         `default:"20"  usage:"Maximum open database connections" flag:"max-conns"`
}

// RedisConfig enables the product read-through cache when Addr is set.
type RedisConfig struct {
	Addr       string        `default:"" usage:"Redis address (empty disables the product cache)" flag:"redis-addr"`
	ProductTTL time.Duration `default:"1m" usage:"Product cache entry lifetime" flag:"redis-product-ttl"`
}

// NotifyConfig controls how committed orders are announced downstream.
type NotifyConfig struct {
	Kind        string        `default:"http" usage:"Notifier: http, kafka or none"`
	URL         string        `default:"http://celery-service:5000/tasks/order-processed" usage:"Downstream endpoint for the http notifier" flag:"notify-url"`
	Timeout     time.Duration `default:"2s"  usage:"Per-notification timeout" flag:"notify-timeout"`
	MaxInFlight int64         `default:"256" usage:"Maximum concurrent notifications; extra ones are dropped" flag:"notify-max-in-flight"`
	Breaker     BreakerConfig
	Kafka       KafkaConfig
}

// BreakerConfig controls the circuit breaker around the http notifier.
type BreakerConfig struct {
	MaxFailures uint32        `default:"5"   usage:"Consecutive failures that open the breaker" flag:"notify-breaker-failures"`
	OpenTimeout time.Duration `default:"30s" usage:"How long the breaker stays open" flag:"notify-breaker-timeout"`
}

// KafkaConfig configures the kafka notifier.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka bootstrap brokers" flag:"kafka-brokers"`
	Topic   string   `default:"orders.committed" usage:"Topic for order committed events" flag:"kafka-topic"`
}

// RateLimitConfig controls the per-client token bucket limiter on purchases.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max purchase requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from an optional .env file, environment
// variables and YAML config files, then applies platform defaults.
func LoadConfig() (*Config, error) {
	// A missing .env is the normal case outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "PURCHASE",
		Files:     []string{"config.yaml", "/etc/purchase/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables that use
// standard names like DATABASE_URL and PORT.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

// Validate checks the combinations the loader cannot express.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverMySQL:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required: set PURCHASE_DATABASE_URL or DATABASE_URL")
		}
	case DriverMemory:
	default:
		return errors.Errorf("unknown database driver %q", c.Database.Driver)
	}

	switch c.Notify.Kind {
	case NotifyHTTP:
		if c.Notify.URL == "" {
			return errors.New("notify URL is required for the http notifier")
		}
	case NotifyKafka:
		if len(c.Notify.Kafka.Brokers) == 0 {
			return errors.New("kafka brokers are required for the kafka notifier")
		}
	case NotifyNone:
	default:
		return errors.Errorf("unknown notifier %q", c.Notify.Kind)
	}

	if c.Database.TxTimeout <= 0 {
		return errors.New("tx timeout must be positive")
	}
	return nil
}

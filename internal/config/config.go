package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv          string
	HTTPPort        string
	GRPCHealthPort  string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	PayPal struct {
		ClientID       string
		ClientSecret   string
		BaseURL        string
		CaptureTimeout time.Duration

		// used by the in-process sandbox when no secret is configured
		SandboxFailurePercent int
	}

	CatalogDBPath         string
	CatalogMigrationsPath string

	RedisAddr     string
	RedisPassword string
	SessionTTL    time.Duration

	DB struct {
		Host           string
		Port           int
		User           string
		Password       string
		Name           string
		MigrationsPath string
	}

	KafkaBrokers       string
	KafkaTopic         string
	OutboxEventTick    time.Duration
	OutboxRecoveryTick time.Duration
}

// Load reads .env when present and then the process environment.
func Load() (*Config, error) {
	// a missing .env is fine, system environment is used instead
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:          getEnv("APP_ENV", "development"),
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		GRPCHealthPort:  getEnv("GRPC_HEALTH_PORT", "50070"),
		RequestTimeout:  getEnvAsDuration("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),

		CatalogDBPath:         getEnv("CATALOG_DB_PATH", ""),
		CatalogMigrationsPath: getEnv("CATALOG_MIGRATIONS_PATH", "./internal/catalog/migrations"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SessionTTL:    getEnvAsDuration("SESSION_TTL", 24*time.Hour),

		KafkaBrokers:       getEnv("KAFKA_BROKERS", ""),
		KafkaTopic:         getEnv("KAFKA_TOPIC", "checkout-completed"),
		OutboxEventTick:    getEnvAsDuration("OUTBOX_EVENT_TICK", time.Second),
		OutboxRecoveryTick: getEnvAsDuration("OUTBOX_RECOVERY_TICK", 30*time.Second),
	}

	cfg.PayPal.ClientID = getEnv("PAYPAL_CLIENT_ID", "")
	cfg.PayPal.ClientSecret = getEnv("PAYPAL_CLIENT_SECRET", "")
	cfg.PayPal.BaseURL = getEnv("PAYPAL_BASE_URL", "https://api-m.sandbox.paypal.com")
	cfg.PayPal.CaptureTimeout = getEnvAsDuration("CAPTURE_TIMEOUT", 15*time.Second)
	cfg.PayPal.SandboxFailurePercent = getEnvAsInt("SANDBOX_FAILURE_PERCENT", 0)

	port, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}
	cfg.DB.Host = getEnv("DB_HOST", "")
	cfg.DB.Port = port
	cfg.DB.User = getEnv("DB_USER", "postgres")
	cfg.DB.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.DB.Name = getEnv("DB_NAME", "storefront")
	cfg.DB.MigrationsPath = getEnv("LEDGER_MIGRATIONS_PATH", "./internal/checkout/migrations")

	return cfg, nil
}

// PaymentConfigured is false when no provider client id was supplied. The
// storefront keeps working, only the payment path is closed.
func (c *Config) PaymentConfigured() bool {
	return c.PayPal.ClientID != ""
}

func (c *Config) UseLedgerDB() bool {
	return c.DB.Host != ""
}

func (c *Config) GetKafkaBrokers() []string {
	if c.KafkaBrokers == "" {
		return nil
	}
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

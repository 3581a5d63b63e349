package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/fulfillment/internal/service/pricing"
)

// Поддерживаемые драйверы хранилища.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска сервиса фулфилмента.
type Config struct {
	HTTPAddr    string
	MetricsAddr string

	// StorageDriver выбирает реализацию хранилищ: memory или postgres.
	StorageDriver string
	// PostgresDSN обязателен при StorageDriver == postgres.
	PostgresDSN string
	// PostgresAutoMigrate применяет миграции при старте.
	PostgresAutoMigrate bool

	// KafkaBrokers — список брокеров через запятую; пустая строка
	// отключает публикацию событий в Kafka.
	KafkaBrokers string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int

	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	Pricing pricing.Config
}

// DefaultConfig возвращает настройки по умолчанию для локального запуска.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:                    ":8080",
		MetricsAddr:                 ":9090",
		StorageDriver:               StorageDriverMemory,
		PostgresAutoMigrate:         true,
		OutboxPollInterval:          2 * time.Second,
		OutboxBatchSize:             50,
		OutboxMaxAttempts:           3,
		IdempotencyCleanupInterval:  time.Hour,
		IdempotencyCleanupBatchSize: 500,
		Pricing:                     pricing.DefaultConfig(),
	}
}

// ReadConfig собирает конфигурацию из переменных окружения FULFILLMENT_*,
// начиная с дефолтов.
func ReadConfig() (Config, error) {
	cfg := DefaultConfig()

	cfg.HTTPAddr = envString("FULFILLMENT_HTTP_ADDR", cfg.HTTPAddr)
	cfg.MetricsAddr = envString("FULFILLMENT_METRICS_ADDR", cfg.MetricsAddr)
	cfg.StorageDriver = strings.ToLower(envString("FULFILLMENT_STORAGE_DRIVER", cfg.StorageDriver))
	cfg.PostgresDSN = envString("FULFILLMENT_POSTGRES_DSN", cfg.PostgresDSN)
	cfg.KafkaBrokers = envString("FULFILLMENT_KAFKA_BROKERS", cfg.KafkaBrokers)

	var err error
	if cfg.PostgresAutoMigrate, err = envBool("FULFILLMENT_POSTGRES_AUTO_MIGRATE", cfg.PostgresAutoMigrate); err != nil {
		return Config{}, err
	}
	if cfg.OutboxPollInterval, err = envDuration("FULFILLMENT_OUTBOX_POLL_INTERVAL", cfg.OutboxPollInterval); err != nil {
		return Config{}, err
	}
	if cfg.OutboxBatchSize, err = envInt("FULFILLMENT_OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize); err != nil {
		return Config{}, err
	}
	if cfg.OutboxMaxAttempts, err = envInt("FULFILLMENT_OUTBOX_MAX_ATTEMPTS", cfg.OutboxMaxAttempts); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyCleanupInterval, err = envDuration("FULFILLMENT_IDEMPOTENCY_CLEANUP_INTERVAL", cfg.IdempotencyCleanupInterval); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyCleanupBatchSize, err = envInt("FULFILLMENT_IDEMPOTENCY_CLEANUP_BATCH_SIZE", cfg.IdempotencyCleanupBatchSize); err != nil {
		return Config{}, err
	}

	if cfg.Pricing.TaxRateBP, err = envInt64("FULFILLMENT_TAX_RATE_BP", cfg.Pricing.TaxRateBP); err != nil {
		return Config{}, err
	}
	if cfg.Pricing.StandardFeeMinor, err = envInt64("FULFILLMENT_STANDARD_FEE_MINOR", cfg.Pricing.StandardFeeMinor); err != nil {
		return Config{}, err
	}
	if cfg.Pricing.ExpressFeeMinor, err = envInt64("FULFILLMENT_EXPRESS_FEE_MINOR", cfg.Pricing.ExpressFeeMinor); err != nil {
		return Config{}, err
	}
	if cfg.Pricing.OvernightFeeMinor, err = envInt64("FULFILLMENT_OVERNIGHT_FEE_MINOR", cfg.Pricing.OvernightFeeMinor); err != nil {
		return Config{}, err
	}
	if cfg.Pricing.FreeShippingThresholdMinor, err = envInt64("FULFILLMENT_FREE_SHIPPING_THRESHOLD_MINOR", cfg.Pricing.FreeShippingThresholdMinor); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет согласованность конфигурации.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return fmt.Errorf("FULFILLMENT_POSTGRES_DSN is required for the postgres storage driver")
		}
	default:
		return fmt.Errorf("unsupported storage driver %q, expected %s or %s",
			c.StorageDriver, StorageDriverMemory, StorageDriverPostgres)
	}
	if c.HTTPAddr == "" {
		return fmt.Errorf("http listen address must not be empty")
	}
	return nil
}

func envString(name, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return fallback
}

func envBool(name string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", name, err)
	}
	return value, nil
}

func envInt(name string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return value, nil
}

func envInt64(name string, fallback int64) (int64, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return value, nil
}

func envDuration(name string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return value, nil
}

// Package config содержит логику чтения конфигурации витрины.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const defaultRunAddress = "localhost:8080"

// Config содержит параметры конфигурации витрины.
type Config struct {
	RunAddress  string `env:"RUN_ADDRESS" validate:"required"`
	DatabaseURI string `env:"DATABASE_URI"`
	ProviderURL string `env:"PROVIDER_URL" validate:"omitempty,url"`
	ProviderKey string `env:"PROVIDER_KEY"`

	ProviderTimeout time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"5s" validate:"gt=0"`
	IdentitySecret  string        `env:"IDENTITY_SECRET"`

	CatalogMarkupMultiplier float64       `env:"CATALOG_MARKUP_MULTIPLIER" envDefault:"1.25" validate:"gte=1"`
	CatalogNamePrefix       string        `env:"CATALOG_NAME_PREFIX"`
	CatalogCacheTTL         time.Duration `env:"CATALOG_CACHE_TTL" envDefault:"5m" validate:"gte=0"`

	DefaultMarkupPercent   float64 `env:"DEFAULT_MARKUP_PERCENT" envDefault:"0" validate:"gte=0"`
	VIPDiscountPoints      float64 `env:"VIP_DISCOUNT_POINTS" envDefault:"10" validate:"gte=0"`
	ResellerDiscountPoints float64 `env:"RESELLER_DISCOUNT_POINTS" envDefault:"15" validate:"gte=0"`
	CryptoBonusPercent     float64 `env:"CRYPTO_BONUS_PERCENT" envDefault:"5" validate:"gte=0"`

	SyncInterval    time.Duration `env:"SYNC_INTERVAL" envDefault:"30s" validate:"gte=0"`
	SyncBatchSize   int           `env:"SYNC_BATCH_SIZE" envDefault:"100" validate:"gt=0"`
	SyncConcurrency int           `env:"SYNC_CONCURRENCY" envDefault:"8" validate:"gt=0"`
}

// Parse считывает конфигурацию из .env, флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envProviderURL := cfg.ProviderURL
	envProviderKey := cfg.ProviderKey

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI (empty for in-memory store)")
	flag.StringVar(&cfg.ProviderURL, "r", "", "provider API URL")
	flag.StringVar(&cfg.ProviderKey, "k", "", "provider API key")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envProviderURL != "" {
		cfg.ProviderURL = envProviderURL
	}
	if envProviderKey != "" {
		cfg.ProviderKey = envProviderKey
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

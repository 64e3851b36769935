// Package config loads the calculator settings.
//
// Values are resolved in order: built-in defaults, an optional YAML file, then
// GRANTCALC_* environment variables (optionally seeded from a .env file). The result
// is validated before use.
package config

import (
	"errors"
	"fmt"
	"grantcalc/internal/conversion"
	"grantcalc/internal/priceapi"
	"grantcalc/internal/pricing"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "GRANTCALC_"

var (
	// ErrInvalidConfig indicates that the resolved configuration failed validation.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config holds all app configuration
type Config struct {
	LogLevel   string           `yaml:"log_level" validate:"oneof=debug info warn error"`
	PriceAPI   PriceAPIConfig   `yaml:"price_api"`
	Pricing    PricingConfig    `yaml:"pricing"`
	Conversion ConversionConfig `yaml:"conversion"`
}

// PriceAPIConfig describes the upstream price API.
type PriceAPIConfig struct {
	BaseURL        string        `yaml:"base_url" validate:"required,url"`
	AssetID        string        `yaml:"asset_id" validate:"required"`
	TokenSymbol    string        `yaml:"token_symbol" validate:"required,alphanum,max=10"`
	VsCurrency     string        `yaml:"vs_currency" validate:"required,alpha,lowercase"`
	AverageDays    int           `yaml:"average_days" validate:"gt=0,lte=365"`
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"gt=0"`
	RateLimit      float64       `yaml:"rate_limit" validate:"gt=0"`
	RateBurst      int           `yaml:"rate_burst" validate:"gt=0"`
}

// PricingConfig holds the fallback prices and cache lifetime.
type PricingConfig struct {
	FallbackCurrentPrice decimal.Decimal `yaml:"fallback_current_price" validate:"-"`
	FallbackAveragePrice decimal.Decimal `yaml:"fallback_average_price" validate:"-"`
	CacheTTL             time.Duration   `yaml:"cache_ttl" validate:"gt=0"`
}

// ConversionConfig holds the conversion engine settings.
type ConversionConfig struct {
	BufferMultiplier decimal.Decimal `yaml:"buffer_multiplier" validate:"-"`
	MaxUSDAmount     decimal.Decimal `yaml:"max_usd_amount" validate:"-"`
}

// Default returns the built-in configuration.
func Default() *Config {
	api := priceapi.DefaultConfig()
	prices := pricing.DefaultConfig()
	conv := conversion.DefaultConfig()

	return &Config{
		LogLevel: "info",
		PriceAPI: PriceAPIConfig{
			BaseURL:        api.BaseURL,
			AssetID:        api.AssetID,
			TokenSymbol:    "LPT",
			VsCurrency:     api.VsCurrency,
			AverageDays:    prices.AverageDays,
			RequestTimeout: prices.RequestTimeout,
			RateLimit:      api.RateLimit,
			RateBurst:      api.RateBurst,
		},
		Pricing: PricingConfig{
			FallbackCurrentPrice: prices.FallbackCurrentPrice,
			FallbackAveragePrice: prices.FallbackAveragePrice,
			CacheTTL:             prices.CacheTTL,
		},
		Conversion: ConversionConfig{
			BufferMultiplier: conv.BufferMultiplier,
			MaxUSDAmount:     conv.MaxUSDAmount,
		},
	}
}

// LoadEnvFile loads variables from a .env file into the process environment.
// Variables already set are not overridden. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Debug().Str("path", path).Msg("no env file, skipping")
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// Load resolves the configuration from defaults, the YAML file at path (skipped when
// path is empty) and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if !c.Pricing.FallbackCurrentPrice.IsPositive() {
		return fmt.Errorf("%w: fallback current price must be positive, got %s", ErrInvalidConfig, c.Pricing.FallbackCurrentPrice)
	}

	if !c.Pricing.FallbackAveragePrice.IsPositive() {
		return fmt.Errorf("%w: fallback average price must be positive, got %s", ErrInvalidConfig, c.Pricing.FallbackAveragePrice)
	}

	if c.Conversion.BufferMultiplier.LessThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: buffer multiplier must be at least 1, got %s", ErrInvalidConfig, c.Conversion.BufferMultiplier)
	}

	if !c.Conversion.MaxUSDAmount.IsPositive() {
		return fmt.Errorf("%w: max USD amount must be positive, got %s", ErrInvalidConfig, c.Conversion.MaxUSDAmount)
	}

	return nil
}

// Level returns the zerolog level named by LogLevel.
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// ClientConfig returns the settings for the price API client.
func (c *Config) ClientConfig() *priceapi.Config {
	return &priceapi.Config{
		BaseURL:    c.PriceAPI.BaseURL,
		AssetID:    c.PriceAPI.AssetID,
		VsCurrency: c.PriceAPI.VsCurrency,
		RateLimit:  c.PriceAPI.RateLimit,
		RateBurst:  c.PriceAPI.RateBurst,
	}
}

// ProviderConfig returns the settings for the price provider.
func (c *Config) ProviderConfig() *pricing.Config {
	return &pricing.Config{
		FallbackCurrentPrice: c.Pricing.FallbackCurrentPrice,
		FallbackAveragePrice: c.Pricing.FallbackAveragePrice,
		CacheTTL:             c.Pricing.CacheTTL,
		RequestTimeout:       c.PriceAPI.RequestTimeout,
		AverageDays:          c.PriceAPI.AverageDays,
	}
}

// EngineConfig returns the settings for the conversion engine.
func (c *Config) EngineConfig() *conversion.Config {
	return &conversion.Config{
		BufferMultiplier: c.Conversion.BufferMultiplier,
		MaxUSDAmount:     c.Conversion.MaxUSDAmount,
	}
}

func (c *Config) applyEnv() {
	c.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", c.LogLevel))

	c.PriceAPI.BaseURL = getEnv("BASE_URL", c.PriceAPI.BaseURL)
	c.PriceAPI.AssetID = getEnv("ASSET_ID", c.PriceAPI.AssetID)
	c.PriceAPI.TokenSymbol = getEnv("TOKEN_SYMBOL", c.PriceAPI.TokenSymbol)
	c.PriceAPI.VsCurrency = getEnv("VS_CURRENCY", c.PriceAPI.VsCurrency)
	c.PriceAPI.AverageDays = getEnvAsInt("AVERAGE_DAYS", c.PriceAPI.AverageDays)
	c.PriceAPI.RequestTimeout = getEnvAsDuration("REQUEST_TIMEOUT", c.PriceAPI.RequestTimeout)
	c.PriceAPI.RateLimit = getEnvAsFloat("RATE_LIMIT", c.PriceAPI.RateLimit)
	c.PriceAPI.RateBurst = getEnvAsInt("RATE_BURST", c.PriceAPI.RateBurst)

	c.Pricing.FallbackCurrentPrice = getEnvAsDecimal("FALLBACK_CURRENT_PRICE", c.Pricing.FallbackCurrentPrice)
	c.Pricing.FallbackAveragePrice = getEnvAsDecimal("FALLBACK_AVERAGE_PRICE", c.Pricing.FallbackAveragePrice)
	c.Pricing.CacheTTL = getEnvAsDuration("CACHE_TTL", c.Pricing.CacheTTL)

	c.Conversion.BufferMultiplier = getEnvAsDecimal("BUFFER_MULTIPLIER", c.Conversion.BufferMultiplier)
	c.Conversion.MaxUSDAmount = getEnvAsDecimal("MAX_USD_AMOUNT", c.Conversion.MaxUSDAmount)
}

// Helper functions for parsing environment variables. Unparseable values keep the
// current setting and are logged.
func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(EnvPrefix + key); exists && value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultVal
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		warnIgnored(key, valueStr, err)
		return defaultVal
	}
	return value
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultVal
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		warnIgnored(key, valueStr, err)
		return defaultVal
	}
	return value
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultVal
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		warnIgnored(key, valueStr, err)
		return defaultVal
	}
	return value
}

func getEnvAsDecimal(key string, defaultVal decimal.Decimal) decimal.Decimal {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultVal
	}
	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		warnIgnored(key, valueStr, err)
		return defaultVal
	}
	return value
}

func warnIgnored(key, value string, err error) {
	log.Warn().
		Err(err).
		Str("variable", EnvPrefix+key).
		Str("value", value).
		Msg("ignoring unparseable environment override")
}

// Package conversion turns a USD grant amount and an average token price into token amounts.
//
// The Engine is deterministic and side-effect free: the same text and price always give
// the same result, and invalid input produces a nil result instead of an error. Three
// amounts are computed for every valid input:
//   - exact:    usd / averagePrice
//   - rounded:  ceil(exact)
//   - buffered: ceil(exact * bufferMultiplier)
//
// The buffer is applied to the exact amount before the single ceiling, never to the
// rounded amount.
package conversion

import (
	"errors"
	"fmt"
	"grantcalc/internal/model"
	"grantcalc/internal/utils"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidConfig indicates that the provided Config contains invalid values.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config holds the conversion settings.
type Config struct {
	// BufferMultiplier scales the exact amount for the buffered policy. Must be >= 1.
	BufferMultiplier decimal.Decimal

	// MaxUSDAmount is the largest amount IsAcceptableAmount accepts.
	MaxUSDAmount decimal.Decimal
}

// defaultConfig provides the 5% buffer and the 10M USD bound.
var defaultConfig = Config{
	BufferMultiplier: decimal.RequireFromString("1.05"),
	MaxUSDAmount:     utils.DefaultMaxUSDAmount,
}

// DefaultConfig returns a copy of the default configuration.
func DefaultConfig() Config {
	return defaultConfig
}

// Engine computes conversion results.
type Engine struct {
	config Config
}

// NewEngine creates an Engine. A nil config uses the defaults; zero fields are filled
// from the defaults.
func NewEngine(cfg *Config) (*Engine, error) {
	var resolved Config
	if cfg != nil {
		resolved = *cfg
	}

	if resolved.BufferMultiplier.IsZero() {
		resolved.BufferMultiplier = defaultConfig.BufferMultiplier
	}

	if resolved.MaxUSDAmount.IsZero() {
		resolved.MaxUSDAmount = defaultConfig.MaxUSDAmount
	}

	if resolved.BufferMultiplier.LessThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("%w: buffer multiplier must be at least 1, got %s", ErrInvalidConfig, resolved.BufferMultiplier)
	}

	if !resolved.MaxUSDAmount.IsPositive() {
		return nil, fmt.Errorf("%w: max USD amount must be positive, got %s", ErrInvalidConfig, resolved.MaxUSDAmount)
	}

	return &Engine{config: resolved}, nil
}

// BufferMultiplier returns the multiplier applied for the buffered policy.
func (e *Engine) BufferMultiplier() decimal.Decimal {
	return e.config.BufferMultiplier
}

// Compute parses usdAmountText and converts it at averagePrice.
//
// It returns nil when the text is empty, does not parse as a decimal, or parses to a
// value <= 0, and when averagePrice <= 0.
func (e *Engine) Compute(usdAmountText string, averagePrice decimal.Decimal) *model.ConversionResult {
	text := strings.TrimSpace(usdAmountText)
	if text == "" || !averagePrice.IsPositive() {
		return nil
	}

	usd, err := decimal.NewFromString(text)
	if err != nil || !usd.IsPositive() {
		return nil
	}

	exact := usd.Div(averagePrice)

	return &model.ConversionResult{
		USDAmount:           usd,
		ExactTokenAmount:    exact,
		RoundedTokenAmount:  exact.Ceil(),
		BufferedTokenAmount: exact.Mul(e.config.BufferMultiplier).Ceil(),
		AveragePrice:        averagePrice,
	}
}

// IsAcceptableAmount reports whether text is a positive amount within the configured
// maximum. It does not affect Compute.
func (e *Engine) IsAcceptableAmount(text string) bool {
	return utils.ValidateUSDAmount(text, e.config.MaxUSDAmount)
}

// Package pricing provides the price acquisition layer of the grant calculator.
//
// The Provider produces PriceSnapshot values from a PriceFeed while masking upstream
// latency and failure: every fetch is cached for a short TTL, bounded by a per-request
// timeout and replaced by a fixed fallback price when it fails. Provider methods never
// return errors; degradation is reported as data on the quotes and the snapshot.
//
// Concurrency:
//   - FetchAllPriceData runs the two fetches in their own goroutines and waits for both
//   - Each fetch owns a distinct cache key, so the fetches never write the same entry
//   - A panic inside a fetch goroutine is recovered and degrades the whole snapshot
package pricing

import (
	"context"
	"errors"
	"fmt"
	"grantcalc/internal/cache"
	"grantcalc/internal/model"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	// MessageFallback is the advisory attached to snapshots with at least one fallback price.
	MessageFallback = "Using fallback prices - API unavailable"

	// MessageNetworkError is the advisory attached when the snapshot assembly itself failed.
	MessageNetworkError = "Network error - using fallback prices"
)

var (
	// ErrInvalidConfig indicates that the provided Config contains invalid values.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// PriceFeed defines the network layer the provider reads prices from.
//
// Implementations must honour context cancellation: the provider arms a deadline on
// the context of every call and treats any returned error as a failed fetch.
type PriceFeed interface {
	// CurrentPrice returns the spot price of the tracked asset.
	CurrentPrice(ctx context.Context) (decimal.Decimal, error)

	// HistoricalPrices returns daily samples for the last days days, oldest first.
	HistoricalPrices(ctx context.Context, days int) ([]model.PricePoint, error)
}

// Config holds the provider settings.
type Config struct {
	// FallbackCurrentPrice is returned when the spot price cannot be fetched.
	FallbackCurrentPrice decimal.Decimal

	// FallbackAveragePrice is returned when the average cannot be computed.
	FallbackAveragePrice decimal.Decimal

	// CacheTTL is how long a fetched price is reused.
	CacheTTL time.Duration

	// RequestTimeout bounds each upstream request.
	RequestTimeout time.Duration

	// AverageDays is the trailing window of daily samples averaged.
	AverageDays int

	// Clock drives cache validity and snapshot timestamps. Nil means the wall clock.
	Clock clock.Clock
}

// defaultConfig provides the values the calculator ships with.
var defaultConfig = Config{
	FallbackCurrentPrice: decimal.RequireFromString("6.25"),
	FallbackAveragePrice: decimal.RequireFromString("5.85"),
	CacheTTL:             cache.DefaultTTL,
	RequestTimeout:       15 * time.Second,
	AverageDays:          60,
}

// DefaultConfig returns a copy of the default configuration.
func DefaultConfig() Config {
	return defaultConfig
}

// Provider fetches, caches and assembles token prices.
//
// A Provider is created once per process and shared by reference; it owns its cache.
type Provider struct {
	feed   PriceFeed
	cache  *cache.PriceCache
	config Config
	clock  clock.Clock
}

// NewProvider creates a Provider reading from feed.
//
// If no configuration is provided (cfg is nil) the defaults are used. Zero fields are
// filled from the defaults; negative fallback prices are rejected.
func NewProvider(feed PriceFeed, cfg *Config) (*Provider, error) {
	if feed == nil {
		return nil, fmt.Errorf("%w: price feed is required", ErrInvalidConfig)
	}

	var resolved Config
	if cfg != nil {
		resolved = *cfg
	}

	if err := validateConfig(&resolved, &defaultConfig); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return &Provider{
		feed:   feed,
		cache:  cache.NewPriceCache(resolved.CacheTTL, resolved.Clock),
		config: resolved,
		clock:  resolved.Clock,
	}, nil
}

// validateConfig applies defaults for zero fields and checks the remaining values.
func validateConfig(cfg *Config, defaultCfg *Config) error {

	// Apply defaults for optional fields
	if cfg.FallbackCurrentPrice.IsZero() {
		cfg.FallbackCurrentPrice = defaultCfg.FallbackCurrentPrice
	}

	if cfg.FallbackAveragePrice.IsZero() {
		cfg.FallbackAveragePrice = defaultCfg.FallbackAveragePrice
	}

	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCfg.CacheTTL
	}

	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultCfg.RequestTimeout
	}

	if cfg.AverageDays <= 0 {
		cfg.AverageDays = defaultCfg.AverageDays
	}

	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	if cfg.FallbackCurrentPrice.IsNegative() {
		return fmt.Errorf("fallback current price must be positive, got %s", cfg.FallbackCurrentPrice)
	}

	if cfg.FallbackAveragePrice.IsNegative() {
		return fmt.Errorf("fallback average price must be positive, got %s", cfg.FallbackAveragePrice)
	}

	return nil
}

// FetchCurrentPrice returns the spot price, from cache when a valid entry exists.
//
// On a cache miss the feed is queried under the request timeout. A positive price is
// cached and returned as live; any failure is logged and the fallback price is returned.
func (p *Provider) FetchCurrentPrice(ctx context.Context) model.PriceQuote {
	if price, ok := p.cache.Get(model.CurrentPriceKey); ok {
		return model.PriceQuote{Price: price, Origin: model.OriginLive}
	}

	reqCtx, cancel := context.WithTimeout(ctx, p.config.RequestTimeout)
	defer cancel()

	price, err := p.feed.CurrentPrice(reqCtx)
	if err == nil && !price.IsPositive() {
		err = fmt.Errorf("%w: got %s", ErrNonPositivePrice, price)
	}

	if err != nil {
		log.Warn().
			Err(err).
			Str("fallback", p.config.FallbackCurrentPrice.String()).
			Msg("failed to fetch current price, using fallback")
		return model.PriceQuote{Price: p.config.FallbackCurrentPrice, Origin: model.OriginFallback}
	}

	p.cache.Set(model.CurrentPriceKey, price)
	return model.PriceQuote{Price: price, Origin: model.OriginLive}
}

// Fetch60DayAverage returns the trailing average price, from cache when a valid entry exists.
//
// The average is the arithmetic mean of the last AverageDays daily samples. Same cache,
// timeout and fallback contract as FetchCurrentPrice.
func (p *Provider) Fetch60DayAverage(ctx context.Context) model.PriceQuote {
	if price, ok := p.cache.Get(model.SixtyDayAverageKey); ok {
		return model.PriceQuote{Price: price, Origin: model.OriginLive}
	}

	reqCtx, cancel := context.WithTimeout(ctx, p.config.RequestTimeout)
	defer cancel()

	average, err := p.fetchAverage(reqCtx)
	if err != nil {
		log.Warn().
			Err(err).
			Int("days", p.config.AverageDays).
			Str("fallback", p.config.FallbackAveragePrice.String()).
			Msg("failed to fetch average price, using fallback")
		return model.PriceQuote{Price: p.config.FallbackAveragePrice, Origin: model.OriginFallback}
	}

	p.cache.Set(model.SixtyDayAverageKey, average)
	return model.PriceQuote{Price: average, Origin: model.OriginLive}
}

func (p *Provider) fetchAverage(ctx context.Context) (decimal.Decimal, error) {
	points, err := p.feed.HistoricalPrices(ctx, p.config.AverageDays)
	if err != nil {
		return decimal.Zero, err
	}
	return TrailingAverage(points, p.config.AverageDays)
}

// FetchAllPriceData fetches the spot and average prices concurrently and assembles a snapshot.
//
// Both fetches always run to completion; a failure of one does not cancel the other.
// The snapshot is marked as fallback with MessageFallback when either quote is a
// fallback. If a fetch panics, the panic is recovered and the snapshot falls back to
// both constants with MessageNetworkError.
func (p *Provider) FetchAllPriceData(ctx context.Context) model.PriceSnapshot {
	var (
		wg       sync.WaitGroup
		current  model.PriceQuote
		average  model.PriceQuote
		panicked atomic.Bool
	)

	run := func(name string, fetch func()) {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Any("recover", r).Str("fetch", name).Msg("panic while fetching price data")
				panicked.Store(true)
			}
		}()
		fetch()
	}

	wg.Add(2)
	go run("current", func() { current = p.FetchCurrentPrice(ctx) })
	go run("average", func() { average = p.Fetch60DayAverage(ctx) })
	wg.Wait()

	if panicked.Load() {
		return p.networkErrorSnapshot()
	}

	snapshot := model.PriceSnapshot{
		CurrentPrice:  current.Price,
		AveragePrice:  average.Price,
		CurrentOrigin: current.Origin,
		AverageOrigin: average.Origin,
		FetchedAt:     p.clock.Now(),
		IsFallback:    current.IsFallback() || average.IsFallback(),
	}
	if snapshot.IsFallback {
		snapshot.Message = MessageFallback
	}

	log.Debug().
		Str("current", snapshot.CurrentPrice.String()).
		Str("average", snapshot.AveragePrice.String()).
		Bool("fallback", snapshot.IsFallback).
		Msg("price snapshot assembled")

	return snapshot
}

func (p *Provider) networkErrorSnapshot() model.PriceSnapshot {
	return model.PriceSnapshot{
		CurrentPrice:  p.config.FallbackCurrentPrice,
		AveragePrice:  p.config.FallbackAveragePrice,
		CurrentOrigin: model.OriginFallback,
		AverageOrigin: model.OriginFallback,
		FetchedAt:     p.clock.Now(),
		IsFallback:    true,
		Message:       MessageNetworkError,
	}
}

// Snapshot returns the current price snapshot, fetching only what is not cached.
func (p *Provider) Snapshot(ctx context.Context) model.PriceSnapshot {
	return p.FetchAllPriceData(ctx)
}

// Refresh drops cached prices and fetches a new snapshot from the feed.
func (p *Provider) Refresh(ctx context.Context) model.PriceSnapshot {
	p.ClearCache()
	return p.FetchAllPriceData(ctx)
}

// ClearCache empties the cache so the next fetch goes to the feed regardless of TTL.
func (p *Provider) ClearCache() {
	p.cache.Clear()
	log.Debug().Msg("price cache cleared")
}

// CacheStatus reports cache contents. It has no side effects.
func (p *Provider) CacheStatus() model.CacheStatus {
	return p.cache.Status()
}

// FallbackPrices returns the configured fallback current and average prices.
func (p *Provider) FallbackPrices() (current, average decimal.Decimal) {
	return p.config.FallbackCurrentPrice, p.config.FallbackAveragePrice
}

// Package model defines core data types for the grant calculator.
//
// This package contains the data structures shared by the price acquisition layer
// and the conversion engine: price quotes and snapshots, historical samples, cache
// entries and conversion results.
// All types use decimal.Decimal for prices and amounts to avoid floating-point
// artifacts when ceilings are taken over divided values.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceOrigin tells whether a price came from the upstream API or from a fallback constant.
type PriceOrigin int

const (
	// OriginLive marks a price obtained from the price API (possibly served from cache)
	OriginLive PriceOrigin = iota

	// OriginFallback marks a configured fallback constant used after a failed fetch
	OriginFallback
)

// String returns a short lowercase name of the origin.
func (o PriceOrigin) String() string {
	switch o {
	case OriginLive:
		return "live"
	case OriginFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// PriceQuote is the tagged result of a single price fetch.
//
// Degradation is carried by Origin rather than inferred from the price value, so a
// live price that happens to equal a fallback constant is still reported as live.
type PriceQuote struct {
	Price  decimal.Decimal // Quoted price in the tracked fiat currency
	Origin PriceOrigin     // Live or fallback
}

// IsFallback reports whether the quote is a fallback constant.
func (q PriceQuote) IsFallback() bool {
	return q.Origin == OriginFallback
}

// PricePoint is one historical sample returned by the market chart endpoint.
type PricePoint struct {
	Timestamp time.Time       // Sample time reported by the API
	Price     decimal.Decimal // Price at the sample time
}

// PriceSnapshot is the assembled result of one fetch cycle.
//
// A snapshot is a value: a refresh produces a new snapshot that replaces the old one
// wholesale. Message is empty for fully live data and carries a user-facing
// advisory otherwise.
//
// Fields:
//   - CurrentPrice: spot price of the token
//   - AveragePrice: trailing 60-day average used for conversions
//   - CurrentOrigin, AverageOrigin: where each price came from
//   - FetchedAt: time the snapshot was assembled
//   - IsFallback: true if either price is a fallback constant
//   - Message: advisory text, empty when IsFallback is false
type PriceSnapshot struct {
	CurrentPrice  decimal.Decimal
	AveragePrice  decimal.Decimal
	CurrentOrigin PriceOrigin
	AverageOrigin PriceOrigin
	FetchedAt     time.Time
	IsFallback    bool
	Message       string
}

// CacheKey identifies one of the logical quantities cached by the price provider.
//
// The set is closed: the provider tracks exactly one trading pair, so entries are keyed
// by quantity and not by request parameters.
type CacheKey int

const (
	// CurrentPriceKey caches the spot price
	CurrentPriceKey CacheKey = iota

	// SixtyDayAverageKey caches the trailing average price
	SixtyDayAverageKey
)

// String returns the cache key name reported by cache introspection.
func (k CacheKey) String() string {
	switch k {
	case CurrentPriceKey:
		return "current-price"
	case SixtyDayAverageKey:
		return "60day-average"
	default:
		return "unknown"
	}
}

// CacheEntry is a cached price together with the time it was stored.
type CacheEntry struct {
	Key      CacheKey
	Value    decimal.Decimal
	StoredAt time.Time
}

// CacheStatus describes cache contents without touching them.
type CacheStatus struct {
	Size int      // Number of stored entries, valid or expired
	Keys []string // Entry names in insertion order
}

// ConversionResult holds the token amounts computed for one USD amount.
//
// RoundedTokenAmount and BufferedTokenAmount are whole numbers. The result is always
// recomputed as a whole; fields are never updated individually.
type ConversionResult struct {
	USDAmount           decimal.Decimal // Requested grant amount in USD
	ExactTokenAmount    decimal.Decimal // USDAmount / AveragePrice
	RoundedTokenAmount  decimal.Decimal // ceil(ExactTokenAmount)
	BufferedTokenAmount decimal.Decimal // ceil(ExactTokenAmount * buffer multiplier)
	AveragePrice        decimal.Decimal // Average price the amounts were derived from
}

// RoundingPolicy selects which of the computed token amounts is recommended.
type RoundingPolicy int

const (
	// Exact is the unrounded token amount
	Exact RoundingPolicy = iota

	// RoundUp is the exact amount rounded up to a whole token
	RoundUp

	// RoundUpPlusBuffer is the exact amount plus the price buffer, rounded up
	RoundUpPlusBuffer
)

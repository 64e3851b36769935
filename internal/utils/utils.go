// Package utils provides common utility functions for input sanitization and validation.
//
// This package contains the boundary checks applied to user-entered grant amounts and
// to the asset identifier that ends up in price API URLs.
package utils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Error definitions for validation functions
var (
	ErrEmptyAssetID   = errors.New("asset id cannot be empty")
	ErrInvalidAssetID = errors.New("invalid asset id")
)

// DefaultMaxUSDAmount is the largest grant amount accepted by ValidateUSDAmount callers
// that do not configure their own bound.
var DefaultMaxUSDAmount = decimal.NewFromInt(10_000_000)

// SanitizeUSDInput filters raw user text down to digits and at most one decimal point.
//
// Every character other than 0-9 and '.' is dropped, which removes signs and exponent
// markers ("e", "E", "+", "-"). Only the first '.' is kept; later ones are dropped.
//
// Examples:
//   - "1e5+"      -> "15"
//   - "$1,250.50" -> "1250.50"
//   - "1.2.3"     -> "1.23"
func SanitizeUSDInput(value string) string {
	var b strings.Builder
	b.Grow(len(value))

	seenDot := false
	for _, r := range value {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' && !seenDot:
			seenDot = true
			b.WriteRune(r)
		}
	}

	return b.String()
}

// ValidateUSDAmount reports whether text parses to an amount in (0, maxAmount].
//
// It gates caller affordances such as export; it does not change what the conversion
// engine computes. A non-positive maxAmount means DefaultMaxUSDAmount.
func ValidateUSDAmount(value string, maxAmount decimal.Decimal) bool {
	if !maxAmount.IsPositive() {
		maxAmount = DefaultMaxUSDAmount
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return false
	}

	return amount.IsPositive() && amount.LessThanOrEqual(maxAmount)
}

// ValidateAssetID validates an asset identifier used as a URL path segment and a JSON
// field name in price API responses.
//
// Accepted ids are lowercase slugs made of letters, digits and hyphens (e.g. "livepeer",
// "usd-coin"). The check is case-sensitive because the price API is.
func ValidateAssetID(id string) error {
	if id == "" {
		return ErrEmptyAssetID
	}

	if strings.HasPrefix(id, "-") || strings.HasSuffix(id, "-") {
		return fmt.Errorf("%w: %q cannot start or end with a hyphen", ErrInvalidAssetID, id)
	}

	for i, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			continue
		}
		return fmt.Errorf("%w: unexpected character %q at index %d in %q", ErrInvalidAssetID, r, i, id)
	}

	return nil
}

// Package priceapi provides an HTTP client for a CoinGecko-compatible price API.
//
// This file contains the shared configuration structure, its defaults and the error
// values returned by the client. It provides a common foundation for configuration
// management and error handling.
package priceapi

import (
	"errors"
	"fmt"
	"grantcalc/internal/utils"
	"net/http"
)

var (
	// ErrInvalidConfig indicates that the provided Config contains invalid values.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUnexpectedStatus indicates a response status outside the 2xx range.
	ErrUnexpectedStatus = errors.New("unexpected response status")

	// ErrMalformedPayload indicates a response body that is not the expected JSON shape.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrMissingField indicates that a required field is absent from the response.
	ErrMissingField = errors.New("missing field")
)

// Config provides the connection parameters for the price API client.
type Config struct {
	// BaseURL is the API root, e.g. https://api.coingecko.com/api/v3.
	BaseURL string `validate:"required,url"`

	// AssetID is the API identifier of the tracked token (e.g. "livepeer").
	AssetID string `validate:"required"`

	// VsCurrency is the fiat currency prices are quoted in.
	VsCurrency string `validate:"required,alpha,lowercase"`

	// RateLimit is the sustained number of requests per second sent upstream.
	RateLimit float64 `validate:"gt=0"`

	// RateBurst is the number of requests allowed to go out back to back.
	RateBurst int `validate:"gt=0"`

	// HTTPClient performs the requests. Nil means a client with no timeout of its own;
	// request deadlines come from the caller's context.
	HTTPClient *http.Client `validate:"-"`
}

// defaultConfig provides sensible default configuration values for the public CoinGecko API.
var defaultConfig = Config{
	BaseURL:    "https://api.coingecko.com/api/v3",
	AssetID:    "livepeer",
	VsCurrency: "usd",
	RateLimit:  1,
	RateBurst:  2,
}

// DefaultConfig returns a copy of the default configuration.
func DefaultConfig() Config {
	return defaultConfig
}

// validateConfig applies defaults for empty fields and then checks the result.
func (c *Client) validateConfig(cfg *Config, defaultCfg *Config) error {

	// Apply defaults for optional fields
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultCfg.BaseURL
	}

	if cfg.AssetID == "" {
		cfg.AssetID = defaultCfg.AssetID
	}

	if cfg.VsCurrency == "" {
		cfg.VsCurrency = defaultCfg.VsCurrency
	}

	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaultCfg.RateLimit
	}

	if cfg.RateBurst <= 0 {
		cfg.RateBurst = defaultCfg.RateBurst
	}

	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}

	if err := c.validate.Struct(cfg); err != nil {
		return err
	}

	if err := utils.ValidateAssetID(cfg.AssetID); err != nil {
		return fmt.Errorf("asset id: %w", err)
	}

	return nil
}

// Package priceapi provides an HTTP client for a CoinGecko-compatible price API.
//
// The client implements the two reads the price provider needs:
//   - CurrentPrice: spot price from /simple/price
//   - HistoricalPrices: daily samples from /coins/{id}/market_chart
//
// Key features:
//   - Financial precision using decimal.Decimal for every price
//   - Payload validation using struct tags and validator
//   - Upstream rate limiting with golang.org/x/time/rate
//   - Request deadlines taken from the caller's context
//   - Structured logging of every failed request
//
// API differences between the two endpoints:
//   - simple/price nests the price under the asset id, which is only known at runtime,
//     so the field is picked with gjson instead of a struct
//   - market_chart returns fixed keys holding arrays of [timestamp, price] pairs
package priceapi

import (
	"context"
	"fmt"
	"grantcalc/internal/model"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const (
	// maxBodySize caps how much of a response body is read.
	maxBodySize = 1 << 20 // 1MB

	// dailyInterval is the market_chart sampling interval requested.
	dailyInterval = "daily"
)

// Client fetches spot and historical prices for one asset in one fiat currency.
type Client struct {
	config   Config              // Configuration parameters for the client
	validate *validator.Validate // Validator instance for payload validation
	limiter  *rate.Limiter       // Throttles requests sent upstream
}

// marketChart represents the market_chart response body.
//
// Only prices are used; market caps and total volumes are ignored. Each sample is a
// two element array of a Unix millisecond timestamp and a price. Numbers are decoded
// as json.Number to keep their exact textual form for decimal parsing.
//
// Example market_chart response:
//
//	{
//		"prices": [[1700000000000, 5.91], [1700086400000, 5.78]],
//		"market_caps": [[1700000000000, 190000000]],
//		"total_volumes": [[1700000000000, 7000000]]
//	}
type marketChart struct {
	Prices [][]json.Number `json:"prices" validate:"required,min=1,dive,len=2"` // [timestamp ms, price] samples
}

// NewClient creates a new price API client with the specified configuration.
//
// If no configuration is provided (cfg is nil), the client uses the public CoinGecko
// defaults. Empty fields are filled from the defaults before validation.
func NewClient(cfg *Config) (*Client, error) {
	c := &Client{validate: validator.New()}

	var resolved Config
	if cfg != nil {
		resolved = *cfg
	}

	if err := c.validateConfig(&resolved, &defaultConfig); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	c.config = resolved
	c.limiter = rate.NewLimiter(rate.Limit(resolved.RateLimit), resolved.RateBurst)
	return c, nil
}

// AssetID returns the tracked asset identifier.
func (c *Client) AssetID() string {
	return c.config.AssetID
}

// CurrentPrice fetches the spot price of the tracked asset.
//
// Request:
//
//	GET {base}/simple/price?ids={asset}&vs_currencies={vs}
//
// Response:
//
//	{"livepeer": {"usd": 6.31}}
//
// The price must be present and be a JSON number.
func (c *Client) CurrentPrice(ctx context.Context) (decimal.Decimal, error) {
	query := url.Values{}
	query.Set("ids", c.config.AssetID)
	query.Set("vs_currencies", c.config.VsCurrency)

	body, err := c.get(ctx, "/simple/price", query)
	if err != nil {
		return decimal.Zero, err
	}

	if !gjson.ValidBytes(body) {
		log.Error().Str("asset", c.config.AssetID).Msg("invalid simple price JSON")
		return decimal.Zero, fmt.Errorf("%w: simple price body is not valid JSON", ErrMalformedPayload)
	}

	path := c.config.AssetID + "." + c.config.VsCurrency
	field := gjson.GetBytes(body, path)
	if !field.Exists() {
		log.Error().Str("path", path).Msg("price field missing from simple price response")
		return decimal.Zero, fmt.Errorf("%w: %s", ErrMissingField, path)
	}

	if field.Type != gjson.Number {
		log.Error().Str("path", path).Str("raw", field.Raw).Msg("price field is not a number")
		return decimal.Zero, fmt.Errorf("%w: %s is %s, want number", ErrMalformedPayload, path, field.Type)
	}

	price, err := decimal.NewFromString(field.Raw)
	if err != nil {
		log.Error().Err(err).Str("raw", field.Raw).Msg("invalid spot price")
		return decimal.Zero, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	return price, nil
}

// HistoricalPrices fetches daily price samples for the last days days.
//
// Request:
//
//	GET {base}/coins/{asset}/market_chart?vs_currency={vs}&days={days}&interval=daily
//
// Samples are returned in the order the API sent them.
func (c *Client) HistoricalPrices(ctx context.Context, days int) ([]model.PricePoint, error) {
	if days <= 0 {
		return nil, fmt.Errorf("days must be positive, got %d", days)
	}

	query := url.Values{}
	query.Set("vs_currency", c.config.VsCurrency)
	query.Set("days", strconv.Itoa(days))
	query.Set("interval", dailyInterval)

	body, err := c.get(ctx, "/coins/"+url.PathEscape(c.config.AssetID)+"/market_chart", query)
	if err != nil {
		return nil, err
	}

	var chart marketChart

	// Decode JSON
	if err := json.Unmarshal(body, &chart); err != nil {
		log.Error().Err(err).Msg("failed to unmarshal market chart")
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	// Validate fields
	if err := c.validate.Struct(&chart); err != nil {
		log.Error().Err(err).Int("samples", len(chart.Prices)).Msg("validation failed for market chart")
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	points := make([]model.PricePoint, 0, len(chart.Prices))
	for i, sample := range chart.Prices {
		ts, err := decimal.NewFromString(sample[0].String())
		if err != nil {
			log.Error().Err(err).Int("index", i).Msg("invalid sample timestamp")
			return nil, fmt.Errorf("%w: sample %d timestamp: %v", ErrMalformedPayload, i, err)
		}

		price, err := decimal.NewFromString(sample[1].String())
		if err != nil {
			log.Error().Err(err).Int("index", i).Msg("invalid sample price")
			return nil, fmt.Errorf("%w: sample %d price: %v", ErrMalformedPayload, i, err)
		}

		points = append(points, model.PricePoint{
			Timestamp: time.UnixMilli(ts.IntPart()).UTC(),
			Price:     price,
		})
	}

	return points, nil
}

// get performs a rate-limited GET and returns the body of a 2xx response.
func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	endpoint := c.config.BaseURL + path + "?" + query.Encode()

	logger := log.With().
		Str("endpoint", endpoint).
		Str("component", "priceapi").
		Logger()

	if err := c.limiter.Wait(ctx); err != nil {
		logger.Warn().Err(err).Msg("rate limiter wait aborted")
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build request")
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.config.HTTPClient.Do(req)
	if err != nil {
		logger.Warn().Err(err).Msg("request failed")
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		logger.Warn().Err(err).Msg("failed to read response body")
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logger.Warn().
			Int("statusCode", resp.StatusCode).
			Str("status", resp.Status).
			Msg("non-success response")
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	logger.Debug().Int("bytes", len(body)).Msg("received response")
	return body, nil
}

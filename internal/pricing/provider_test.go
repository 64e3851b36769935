package pricing

import (
	"context"
	"errors"
	"grantcalc/internal/model"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Mock implementations
type MockPriceFeed struct {
	mock.Mock
}

func (m *MockPriceFeed) CurrentPrice(ctx context.Context) (decimal.Decimal, error) {
	args := m.Called(ctx)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockPriceFeed) HistoricalPrices(ctx context.Context, days int) ([]model.PricePoint, error) {
	args := m.Called(ctx, days)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.PricePoint), args.Error(1)
}

// blockingFeed blocks every call until its context is done
type blockingFeed struct {
	calls atomic.Int32
}

func (b *blockingFeed) CurrentPrice(ctx context.Context) (decimal.Decimal, error) {
	b.calls.Add(1)
	<-ctx.Done()
	return decimal.Zero, ctx.Err()
}

func (b *blockingFeed) HistoricalPrices(ctx context.Context, days int) ([]model.PricePoint, error) {
	b.calls.Add(1)
	<-ctx.Done()
	return nil, ctx.Err()
}

var errUpstream = errors.New("upstream unavailable")

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// samples builds n daily samples all priced at price
func samples(n int, price string) []model.PricePoint {
	points := make([]model.PricePoint, 0, n)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		points = append(points, model.PricePoint{
			Timestamp: start.AddDate(0, 0, i),
			Price:     d(price),
		})
	}
	return points
}

func newTestProvider(t *testing.T, feed PriceFeed, clk clock.Clock) *Provider {
	t.Helper()

	p, err := NewProvider(feed, &Config{
		CacheTTL:       5 * time.Minute,
		RequestTimeout: 15 * time.Second,
		AverageDays:    60,
		Clock:          clk,
	})
	require.NoError(t, err)
	return p
}

// Test_NewProvider tests the provider constructor with various configurations
func Test_NewProvider(t *testing.T) {
	tests := []struct {
		name        string
		feed        PriceFeed
		config      *Config
		expectError bool
		description string
	}{
		{
			name:        "Nil configuration uses defaults",
			feed:        &MockPriceFeed{},
			config:      nil,
			description: "Should use default configuration when nil is provided",
		},
		{
			name: "Custom configuration",
			feed: &MockPriceFeed{},
			config: &Config{
				FallbackCurrentPrice: d("1.5"),
				FallbackAveragePrice: d("1.4"),
				CacheTTL:             time.Minute,
				RequestTimeout:       time.Second,
				AverageDays:          30,
			},
			description: "Should accept custom configuration values",
		},
		{
			name:        "Missing feed",
			feed:        nil,
			config:      nil,
			expectError: true,
			description: "Should reject a nil feed",
		},
		{
			name: "Negative fallback",
			feed: &MockPriceFeed{},
			config: &Config{
				FallbackCurrentPrice: d("-1"),
			},
			expectError: true,
			description: "Should reject a negative fallback price",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.feed, tt.config)

			if tt.expectError {
				assert.Error(t, err, tt.description)
				assert.Nil(t, p)
				assert.True(t, errors.Is(err, ErrInvalidConfig))
				return
			}

			require.NoError(t, err, tt.description)
			require.NotNil(t, p)
			assert.NotNil(t, p.clock)

			if tt.config == nil {
				assert.True(t, p.config.FallbackCurrentPrice.Equal(d("6.25")))
				assert.True(t, p.config.FallbackAveragePrice.Equal(d("5.85")))
				assert.Equal(t, 5*time.Minute, p.config.CacheTTL)
				assert.Equal(t, 15*time.Second, p.config.RequestTimeout)
				assert.Equal(t, 60, p.config.AverageDays)
			} else {
				assert.True(t, p.config.FallbackCurrentPrice.Equal(tt.config.FallbackCurrentPrice))
				assert.Equal(t, tt.config.AverageDays, p.config.AverageDays)
			}
		})
	}
}

func Test_FetchCurrentPrice_Live(t *testing.T) {
	feed := &MockPriceFeed{}
	feed.On("CurrentPrice", mock.Anything).Return(d("6.31"), nil)

	p := newTestProvider(t, feed, clock.NewMock())

	quote := p.FetchCurrentPrice(context.Background())
	assert.True(t, quote.Price.Equal(d("6.31")))
	assert.Equal(t, model.OriginLive, quote.Origin)
	assert.False(t, quote.IsFallback())
	assert.Equal(t, []string{"current-price"}, p.CacheStatus().Keys)
}

func Test_FetchCurrentPrice_ArmsRequestDeadline(t *testing.T) {
	feed := &MockPriceFeed{}
	feed.On("CurrentPrice", mock.MatchedBy(func(ctx context.Context) bool {
		deadline, ok := ctx.Deadline()
		return ok && time.Until(deadline) <= 15*time.Second
	})).Return(d("6.31"), nil)

	p := newTestProvider(t, feed, clock.NewMock())
	quote := p.FetchCurrentPrice(context.Background())

	assert.Equal(t, model.OriginLive, quote.Origin)
	feed.AssertExpectations(t)
}

func Test_FetchCurrentPrice_Fallbacks(t *testing.T) {
	tests := []struct {
		name        string
		price       decimal.Decimal
		err         error
		description string
	}{
		{
			name:        "Feed error",
			price:       decimal.Zero,
			err:         errUpstream,
			description: "Network failure yields the fallback",
		},
		{
			name:        "Zero price",
			price:       decimal.Zero,
			err:         nil,
			description: "A zero price is rejected",
		},
		{
			name:        "Negative price",
			price:       d("-3"),
			err:         nil,
			description: "A negative price is rejected",
		},
		{
			name:        "Deadline exceeded",
			price:       decimal.Zero,
			err:         context.DeadlineExceeded,
			description: "Timeout yields the fallback",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			feed := &MockPriceFeed{}
			feed.On("CurrentPrice", mock.Anything).Return(tt.price, tt.err)

			p := newTestProvider(t, feed, clock.NewMock())

			quote := p.FetchCurrentPrice(context.Background())
			assert.True(t, quote.Price.Equal(d("6.25")), tt.description)
			assert.Equal(t, model.OriginFallback, quote.Origin)
			assert.Equal(t, 0, p.CacheStatus().Size, "Fallbacks are not cached")
		})
	}
}

func Test_FetchCurrentPrice_CacheWithinTTL(t *testing.T) {
	feed := &MockPriceFeed{}
	feed.On("CurrentPrice", mock.Anything).Return(d("6.31"), nil)

	mockClock := clock.NewMock()
	p := newTestProvider(t, feed, mockClock)

	first := p.FetchCurrentPrice(context.Background())
	mockClock.Add(4*time.Minute + 59*time.Second)
	second := p.FetchCurrentPrice(context.Background())

	assert.True(t, first.Price.Equal(second.Price))
	assert.Equal(t, model.OriginLive, second.Origin)
	feed.AssertNumberOfCalls(t, "CurrentPrice", 1)
}

func Test_FetchCurrentPrice_RefetchAfterTTL(t *testing.T) {
	feed := &MockPriceFeed{}
	feed.On("CurrentPrice", mock.Anything).Return(d("6.31"), nil).Once()
	feed.On("CurrentPrice", mock.Anything).Return(d("6.40"), nil).Once()

	mockClock := clock.NewMock()
	p := newTestProvider(t, feed, mockClock)

	first := p.FetchCurrentPrice(context.Background())
	mockClock.Add(5 * time.Minute)
	second := p.FetchCurrentPrice(context.Background())

	assert.True(t, first.Price.Equal(d("6.31")))
	assert.True(t, second.Price.Equal(d("6.40")))
	feed.AssertNumberOfCalls(t, "CurrentPrice", 2)
}

func Test_FetchCurrentPrice_FailureIsRetriedNextCall(t *testing.T) {
	feed := &MockPriceFeed{}
	feed.On("CurrentPrice", mock.Anything).Return(decimal.Zero, errUpstream).Once()
	feed.On("CurrentPrice", mock.Anything).Return(d("6.31"), nil).Once()

	p := newTestProvider(t, feed, clock.NewMock())

	assert.Equal(t, model.OriginFallback, p.FetchCurrentPrice(context.Background()).Origin)
	assert.Equal(t, model.OriginLive, p.FetchCurrentPrice(context.Background()).Origin)
	feed.AssertNumberOfCalls(t, "CurrentPrice", 2)
}

func Test_FetchCurrentPrice_Timeout(t *testing.T) {
	feed := &blockingFeed{}
	p, err := NewProvider(feed, &Config{RequestTimeout: 20 * time.Millisecond})
	require.NoError(t, err)

	start := time.Now()
	quote := p.FetchCurrentPrice(context.Background())

	assert.Equal(t, model.OriginFallback, quote.Origin)
	assert.Less(t, time.Since(start), 2*time.Second, "Request should be abandoned at the timeout")
	assert.Equal(t, int32(1), feed.calls.Load(), "No automatic retry")
}

func Test_Fetch60DayAverage(t *testing.T) {
	tests := []struct {
		name           string
		points         []model.PricePoint
		err            error
		expectedPrice  string
		expectedOrigin model.PriceOrigin
		description    string
	}{
		{
			name:           "Sixty samples summing to 351",
			points:         samples(60, "5.85"),
			expectedPrice:  "5.85",
			expectedOrigin: model.OriginLive,
			description:    "Mean of 60 samples",
		},
		{
			name:           "Feed error",
			err:            errUpstream,
			expectedPrice:  "5.85",
			expectedOrigin: model.OriginFallback,
			description:    "Failure yields the average fallback",
		},
		{
			name:           "Empty samples",
			points:         []model.PricePoint{},
			expectedPrice:  "5.85",
			expectedOrigin: model.OriginFallback,
			description:    "No samples yields the average fallback",
		},
		{
			name:           "All zero samples",
			points:         samples(60, "0"),
			expectedPrice:  "5.85",
			expectedOrigin: model.OriginFallback,
			description:    "Non-positive average yields the fallback",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			feed := &MockPriceFeed{}
			if tt.err != nil {
				feed.On("HistoricalPrices", mock.Anything, 60).Return(nil, tt.err)
			} else {
				feed.On("HistoricalPrices", mock.Anything, 60).Return(tt.points, nil)
			}

			p := newTestProvider(t, feed, clock.NewMock())
			quote := p.Fetch60DayAverage(context.Background())

			assert.True(t, quote.Price.Equal(d(tt.expectedPrice)), "%s: got %s", tt.description, quote.Price)
			assert.Equal(t, tt.expectedOrigin, quote.Origin, tt.description)
		})
	}
}

func Test_Fetch60DayAverage_Cached(t *testing.T) {
	feed := &MockPriceFeed{}
	feed.On("HistoricalPrices", mock.Anything, 60).Return(samples(60, "5.50"), nil)

	mockClock := clock.NewMock()
	p := newTestProvider(t, feed, mockClock)

	p.Fetch60DayAverage(context.Background())
	p.Fetch60DayAverage(context.Background())
	feed.AssertNumberOfCalls(t, "HistoricalPrices", 1)

	mockClock.Add(6 * time.Minute)
	p.Fetch60DayAverage(context.Background())
	feed.AssertNumberOfCalls(t, "HistoricalPrices", 2)
}

func Test_FetchAllPriceData_Live(t *testing.T) {
	feed := &MockPriceFeed{}
	feed.On("CurrentPrice", mock.Anything).Return(d("6.31"), nil)
	feed.On("HistoricalPrices", mock.Anything, 60).Return(samples(60, "5.90"), nil)

	mockClock := clock.NewMock()
	mockClock.Set(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	p := newTestProvider(t, feed, mockClock)

	snap := p.FetchAllPriceData(context.Background())

	assert.True(t, snap.CurrentPrice.Equal(d("6.31")))
	assert.True(t, snap.AveragePrice.Equal(d("5.90")))
	assert.Equal(t, model.OriginLive, snap.CurrentOrigin)
	assert.Equal(t, model.OriginLive, snap.AverageOrigin)
	assert.False(t, snap.IsFallback)
	assert.Empty(t, snap.Message)
	assert.Equal(t, mockClock.Now(), snap.FetchedAt)
	assert.ElementsMatch(t, []string{"current-price", "60day-average"}, p.CacheStatus().Keys)
}

func Test_FetchAllPriceData_AlwaysFailingNetwork(t *testing.T) {
	feed := &MockPriceFeed{}
	feed.On("CurrentPrice", mock.Anything).Return(decimal.Zero, errUpstream)
	feed.On("HistoricalPrices", mock.Anything, 60).Return(nil, errUpstream)

	p := newTestProvider(t, feed, clock.NewMock())
	snap := p.FetchAllPriceData(context.Background())

	assert.True(t, snap.CurrentPrice.Equal(d("6.25")))
	assert.True(t, snap.AveragePrice.Equal(d("5.85")))
	assert.True(t, snap.IsFallback)
	assert.Equal(t, MessageFallback, snap.Message)
	assert.Equal(t, 0, p.CacheStatus().Size)
}

func Test_FetchAllPriceData_PartialFallback(t *testing.T) {
	tests := []struct {
		name           string
		currentErr     error
		historyErr     error
		currentOrigin  model.PriceOrigin
		averageOrigin  model.PriceOrigin
		expectedPrices [2]string
	}{
		{
			name:           "History down",
			historyErr:     errUpstream,
			currentOrigin:  model.OriginLive,
			averageOrigin:  model.OriginFallback,
			expectedPrices: [2]string{"7.00", "5.85"},
		},
		{
			name:           "Spot down",
			currentErr:     errUpstream,
			currentOrigin:  model.OriginFallback,
			averageOrigin:  model.OriginLive,
			expectedPrices: [2]string{"6.25", "6.00"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			feed := &MockPriceFeed{}
			if tt.currentErr != nil {
				feed.On("CurrentPrice", mock.Anything).Return(decimal.Zero, tt.currentErr)
			} else {
				feed.On("CurrentPrice", mock.Anything).Return(d("7.00"), nil)
			}
			if tt.historyErr != nil {
				feed.On("HistoricalPrices", mock.Anything, 60).Return(nil, tt.historyErr)
			} else {
				feed.On("HistoricalPrices", mock.Anything, 60).Return(samples(60, "6.00"), nil)
			}

			p := newTestProvider(t, feed, clock.NewMock())
			snap := p.FetchAllPriceData(context.Background())

			assert.True(t, snap.CurrentPrice.Equal(d(tt.expectedPrices[0])))
			assert.True(t, snap.AveragePrice.Equal(d(tt.expectedPrices[1])))
			assert.Equal(t, tt.currentOrigin, snap.CurrentOrigin)
			assert.Equal(t, tt.averageOrigin, snap.AverageOrigin)
			assert.True(t, snap.IsFallback, "Either fallback marks the snapshot")
			assert.Equal(t, MessageFallback, snap.Message)
		})
	}
}

func Test_FetchAllPriceData_LiveValueEqualToFallback(t *testing.T) {
	feed := &MockPriceFeed{}
	feed.On("CurrentPrice", mock.Anything).Return(d("6.25"), nil)
	feed.On("HistoricalPrices", mock.Anything, 60).Return(samples(60, "5.85"), nil)

	p := newTestProvider(t, feed, clock.NewMock())
	snap := p.FetchAllPriceData(context.Background())

	assert.False(t, snap.IsFallback, "Live prices equal to the fallback constants are still live")
	assert.Empty(t, snap.Message)
}

func Test_FetchAllPriceData_PanicDegradesWholeSnapshot(t *testing.T) {
	feed := &MockPriceFeed{}
	feed.On("CurrentPrice", mock.Anything).Return(d("6.31"), nil)
	feed.On("HistoricalPrices", mock.Anything, 60).Panic("decoder exploded")

	p := newTestProvider(t, feed, clock.NewMock())

	var snap model.PriceSnapshot
	require.NotPanics(t, func() {
		snap = p.FetchAllPriceData(context.Background())
	})

	assert.True(t, snap.CurrentPrice.Equal(d("6.25")), "Both prices fall back")
	assert.True(t, snap.AveragePrice.Equal(d("5.85")))
	assert.Equal(t, model.OriginFallback, snap.CurrentOrigin)
	assert.Equal(t, model.OriginFallback, snap.AverageOrigin)
	assert.True(t, snap.IsFallback)
	assert.Equal(t, MessageNetworkError, snap.Message)
}

func Test_FetchAllPriceData_RunsConcurrently(t *testing.T) {
	feed := &blockingFeed{}
	p, err := NewProvider(feed, &Config{RequestTimeout: 100 * time.Millisecond})
	require.NoError(t, err)

	start := time.Now()
	snap := p.FetchAllPriceData(context.Background())
	elapsed := time.Since(start)

	assert.Equal(t, int32(2), feed.calls.Load())
	assert.True(t, snap.IsFallback)
	assert.Less(t, elapsed, 190*time.Millisecond, "Timeouts should overlap, not add up")
}

func Test_Refresh_ClearsCache(t *testing.T) {
	feed := &MockPriceFeed{}
	feed.On("CurrentPrice", mock.Anything).Return(d("6.31"), nil)
	feed.On("HistoricalPrices", mock.Anything, 60).Return(samples(60, "5.90"), nil)

	p := newTestProvider(t, feed, clock.NewMock())

	p.Snapshot(context.Background())
	p.Snapshot(context.Background())
	feed.AssertNumberOfCalls(t, "CurrentPrice", 1)
	feed.AssertNumberOfCalls(t, "HistoricalPrices", 1)

	p.Refresh(context.Background())
	feed.AssertNumberOfCalls(t, "CurrentPrice", 2)
	feed.AssertNumberOfCalls(t, "HistoricalPrices", 2)
}

func Test_ClearCache(t *testing.T) {
	feed := &MockPriceFeed{}
	feed.On("CurrentPrice", mock.Anything).Return(d("6.31"), nil)

	p := newTestProvider(t, feed, clock.NewMock())
	p.FetchCurrentPrice(context.Background())
	require.Equal(t, 1, p.CacheStatus().Size)

	p.ClearCache()
	assert.Equal(t, 0, p.CacheStatus().Size)
	assert.Empty(t, p.CacheStatus().Keys)

	p.FetchCurrentPrice(context.Background())
	feed.AssertNumberOfCalls(t, "CurrentPrice", 2)
}

func Test_FallbackPrices(t *testing.T) {
	p := newTestProvider(t, &MockPriceFeed{}, clock.NewMock())
	current, average := p.FallbackPrices()
	assert.True(t, current.Equal(d("6.25")))
	assert.True(t, average.Equal(d("5.85")))
}

package pricing

import (
	"errors"
	"fmt"
	"grantcalc/internal/model"

	"github.com/shopspring/decimal"
)

var (
	// ErrNoSamples indicates a historical response without price samples.
	ErrNoSamples = errors.New("no price samples")

	// ErrNonPositivePrice indicates a price that is zero or negative.
	ErrNonPositivePrice = errors.New("price must be positive")
)

// TrailingAverage returns the arithmetic mean of the last window sample prices.
//
// Samples are expected oldest first, as the market chart endpoint returns them. When
// more than window samples are supplied only the most recent window are used; fewer
// samples are averaged as they are. A non-positive window uses every sample.
func TrailingAverage(points []model.PricePoint, window int) (decimal.Decimal, error) {
	if len(points) == 0 {
		return decimal.Zero, ErrNoSamples
	}

	if window > 0 && len(points) > window {
		points = points[len(points)-window:]
	}

	sum := decimal.Zero
	for _, p := range points {
		sum = sum.Add(p.Price)
	}

	average := sum.Div(decimal.NewFromInt(int64(len(points))))
	if !average.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: average of %d samples is %s", ErrNonPositivePrice, len(points), average)
	}

	return average, nil
}

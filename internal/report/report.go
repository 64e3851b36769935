// Package report renders the plain-text summary users export from the calculator.
package report

import (
	"fmt"
	"grantcalc/internal/conversion"
	"grantcalc/internal/model"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/leekchan/accounting"
	"github.com/shopspring/decimal"
)

// timestampLayout is the human readable generation time, e.g. "March 1, 2024 12:00 UTC".
const timestampLayout = "January 2, 2006 15:04 MST"

// Input is everything a report is built from.
type Input struct {
	Result      *model.ConversionResult // nil renders the price reference variant
	Snapshot    model.PriceSnapshot
	Policy      model.RoundingPolicy
	TokenSymbol string    // e.g. "LPT"
	DataSource  string    // e.g. "CoinGecko API"
	GeneratedAt time.Time // zero means now
	ReferenceID string    // empty means a new random id
}

// Generate builds the report text.
//
// With a conversion result the report lists the request, both prices, the exact amount
// and the amount recommended by the selected policy. Without one it only lists prices.
// Degraded snapshots carry their advisory message in both variants.
func Generate(in Input) string {
	if in.GeneratedAt.IsZero() {
		in.GeneratedAt = time.Now()
	}
	if in.ReferenceID == "" {
		in.ReferenceID = uuid.NewString()
	}
	if in.TokenSymbol == "" {
		in.TokenSymbol = "tokens"
	}
	if in.DataSource == "" {
		in.DataSource = "price API"
	}

	var b strings.Builder
	if in.Result != nil {
		writeCalculation(&b, in)
	} else {
		writePriceReference(&b, in)
	}
	return b.String()
}

func writeCalculation(b *strings.Builder, in Input) {
	r := in.Result

	fmt.Fprintln(b, "GRANT CALCULATOR REPORT")
	fmt.Fprintf(b, "Generated: %s\n", in.GeneratedAt.Format(timestampLayout))
	fmt.Fprintf(b, "Reference: %s\n", in.ReferenceID)
	fmt.Fprintln(b)

	fmt.Fprintln(b, "GRANT CALCULATION:")
	fmt.Fprintf(b, "- Request Amount: %s\n", money(r.USDAmount))
	fmt.Fprintf(b, "- Current %s Price: %s\n", in.TokenSymbol, money(in.Snapshot.CurrentPrice))
	fmt.Fprintf(b, "- 60-Day Average: %s\n", money(r.AveragePrice))
	fmt.Fprintf(b, "- Exact %s Required: %s %s\n", in.TokenSymbol,
		tokens(r.ExactTokenAmount, conversion.DecimalPlaces(model.Exact)), in.TokenSymbol)
	fmt.Fprintf(b, "- Recommended Amount: %s %s\n",
		tokens(conversion.AmountFor(r, in.Policy), conversion.DecimalPlaces(in.Policy)), in.TokenSymbol)
	fmt.Fprintf(b, "- Rounding Method: %s\n", conversion.LabelFor(in.Policy))
	writeAdvisory(b, in.Snapshot)
	fmt.Fprintln(b)

	fmt.Fprintln(b, "METHODOLOGY:")
	fmt.Fprintln(b, "- Uses 60-day historical average for stability")
	fmt.Fprintln(b, "- Reduces price volatility impact")
	fmt.Fprintf(b, "- Data from %s\n", in.DataSource)
	fmt.Fprintln(b)

	fmt.Fprint(b, "This calculation provides transparent, volatility-adjusted pricing for grant proposals.")
}

func writePriceReference(b *strings.Builder, in Input) {
	fmt.Fprintln(b, "PRICE REFERENCE")
	fmt.Fprintf(b, "Generated: %s\n", in.GeneratedAt.Format(timestampLayout))
	fmt.Fprintf(b, "Reference: %s\n", in.ReferenceID)
	fmt.Fprintln(b)

	fmt.Fprintln(b, "CURRENT PRICING:")
	fmt.Fprintf(b, "- Live %s Price: %s\n", in.TokenSymbol, money(in.Snapshot.CurrentPrice))
	fmt.Fprintf(b, "- 60-Day Average: %s\n", money(in.Snapshot.AveragePrice))
	fmt.Fprintf(b, "- Data Source: %s\n", in.DataSource)
	writeAdvisory(b, in.Snapshot)
	fmt.Fprintln(b)

	fmt.Fprintln(b, "FOR GRANT APPLICATIONS:")
	fmt.Fprint(b, "Use the 60-day average for stable, fair pricing in your grant proposals.")
}

func writeAdvisory(b *strings.Builder, snap model.PriceSnapshot) {
	if snap.IsFallback && snap.Message != "" {
		fmt.Fprintf(b, "- Note: %s\n", snap.Message)
	}
}

func money(v decimal.Decimal) string {
	ac := accounting.Accounting{Symbol: "$", Precision: 2}
	return ac.FormatMoneyDecimal(v)
}

func tokens(v decimal.Decimal, places int32) string {
	ac := accounting.Accounting{Symbol: "", Precision: int(places)}
	return ac.FormatMoneyDecimal(v)
}

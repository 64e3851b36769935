/*
Package main implements a command-line grant calculator.

The calculator converts a USD grant amount into a token amount using the trailing
60-day average token price, which smooths out short-term volatility. Prices come from
a CoinGecko-compatible API; when the API is unreachable the calculator keeps working
with fixed fallback prices and says so in its output.

Usage:

	go run main.go -amount=10000 -policy=buffer
	go run main.go -config=grantcalc.yaml -env=.env -log-level=debug

Without -amount the calculator prints a price reference instead of a calculation.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"grantcalc/internal/config"
	"grantcalc/internal/conversion"
	"grantcalc/internal/model"
	"grantcalc/internal/priceapi"
	"grantcalc/internal/pricing"
	"grantcalc/internal/report"
	"grantcalc/internal/utils"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Command-line flags
var (
	// configPath points to an optional YAML configuration file
	configPath = flag.String("config", "", "Path to a YAML configuration file")
	// envPath points to an optional .env file with GRANTCALC_* variables
	envPath = flag.String("env", ".env", "Path to a .env file")
	// amount is the USD grant amount; non-numeric characters are stripped
	amount = flag.String("amount", "", "Grant amount in USD")
	// policy selects the recommended amount in the report
	policy = flag.String("policy", "buffer", "Rounding policy: exact, round or buffer")
	// logLevel overrides the configured log level
	logLevel = flag.String("log-level", "", "Log level: debug, info, warn or error")
)

func main() {
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, selected, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	zerolog.SetGlobalLevel(cfg.Level())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("received shutdown signal")
		cancel()
	}()

	provider, engine, err := newCalculator(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initiate calculator")
	}

	if err := run(ctx, os.Stdout, cfg, provider, engine, *amount, selected); err != nil {
		log.Fatal().Err(err).Msg("calculation failed")
	}
}

// loadConfig resolves the configuration and applies the command-line overrides.
func loadConfig() (*config.Config, model.RoundingPolicy, error) {
	if err := config.LoadEnvFile(*envPath); err != nil {
		return nil, 0, err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, 0, err
	}

	if *logLevel != "" {
		cfg.LogLevel = *logLevel
		if err := cfg.Validate(); err != nil {
			return nil, 0, err
		}
	}

	selected, err := conversion.ParsePolicy(*policy)
	if err != nil {
		return nil, 0, err
	}

	return cfg, selected, nil
}

// newCalculator wires the price API client, the price provider and the conversion engine.
func newCalculator(cfg *config.Config) (*pricing.Provider, *conversion.Engine, error) {
	client, err := priceapi.NewClient(cfg.ClientConfig())
	if err != nil {
		log.Error().Err(err).Msg("failed to create price API client")
		return nil, nil, err
	}

	provider, err := pricing.NewProvider(client, cfg.ProviderConfig())
	if err != nil {
		log.Error().Err(err).Msg("failed to create price provider")
		return nil, nil, err
	}

	engine, err := conversion.NewEngine(cfg.EngineConfig())
	if err != nil {
		log.Error().Err(err).Msg("failed to create conversion engine")
		return nil, nil, err
	}

	return provider, engine, nil
}

// run fetches a price snapshot, converts rawAmount and writes the result and report to out.
// An empty rawAmount prints the price reference only.
func run(
	ctx context.Context,
	out io.Writer,
	cfg *config.Config,
	provider *pricing.Provider,
	engine *conversion.Engine,
	rawAmount string,
	selected model.RoundingPolicy,
) error {
	snapshot := provider.FetchAllPriceData(ctx)
	if snapshot.IsFallback {
		log.Warn().Str("reason", snapshot.Message).Msg("prices degraded")
	}

	symbol := cfg.PriceAPI.TokenSymbol
	in := report.Input{
		Snapshot:    snapshot,
		Policy:      selected,
		TokenSymbol: symbol,
		DataSource:  "CoinGecko API",
		GeneratedAt: snapshot.FetchedAt,
	}

	sanitized := utils.SanitizeUSDInput(rawAmount)
	if sanitized != "" {
		if !engine.IsAcceptableAmount(sanitized) {
			return fmt.Errorf("amount %q must be greater than 0 and at most %s USD", sanitized, cfg.Conversion.MaxUSDAmount)
		}

		result := engine.Compute(sanitized, snapshot.AveragePrice)
		if result == nil {
			return fmt.Errorf("amount %q cannot be converted at %s", sanitized, snapshot.AveragePrice)
		}
		in.Result = result

		log.Info().
			Str("usd", result.USDAmount.String()).
			Str("average", result.AveragePrice.String()).
			Str("policy", conversion.PolicyID(selected)).
			Msg("grant converted")

		for _, p := range conversion.Policies() {
			fmt.Fprintf(out, "%-16s %14s %s  (%s)\n",
				conversion.LabelFor(p), conversion.FormatAmount(result, p), symbol, conversion.DescriptionFor(p))
		}
		fmt.Fprintln(out)
	}

	fmt.Fprintln(out, report.Generate(in))
	return nil
}

package analysts

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/meridianfund/meridian/internal/domain"
)

// FundamentalsAnalyst scores profitability, growth, financial health and
// price ratios against fixed thresholds. Each theme contributes one vote.
type FundamentalsAnalyst struct {
	data domain.DataClient
	log  zerolog.Logger
}

// NewFundamentalsAnalyst creates a fundamentals analyst backed by the data client.
func NewFundamentalsAnalyst(data domain.DataClient, log zerolog.Logger) *FundamentalsAnalyst {
	return &FundamentalsAnalyst{
		data: data,
		log:  log.With().Str("analyst", "fundamentals").Logger(),
	}
}

// Name implements Analyst.
func (a *FundamentalsAnalyst) Name() string { return "fundamentals" }

// Evaluate implements Analyst.
func (a *FundamentalsAnalyst) Evaluate(ctx context.Context, ticker, endDate string) (*domain.Signal, error) {
	periods, err := a.data.GetFinancialMetrics(ctx, ticker, endDate, 1)
	if err != nil {
		return nil, err
	}
	if len(periods) == 0 {
		return nil, &domain.DataFetchError{Ticker: ticker, Endpoint: "financial-metrics", Err: errNoMetrics}
	}
	metrics := periods[0]

	bullish, bearish := 0, 0
	vote := func(favorable bool) {
		if favorable {
			bullish++
		} else {
			bearish++
		}
	}

	// Profitability: at least two of three margins clear their bar.
	profitability := 0
	if metrics.ReturnOnEquity > 0.15 {
		profitability++
	}
	if metrics.NetMargin > 0.20 {
		profitability++
	}
	if metrics.OperatingMargin > 0.15 {
		profitability++
	}
	vote(profitability >= 2)

	// Growth: both top and bottom line expanding double digits.
	growth := 0
	if metrics.RevenueGrowth > 0.10 {
		growth++
	}
	if metrics.EarningsGrowth > 0.10 {
		growth++
	}
	vote(growth >= 1)

	// Financial health: liquidity and leverage.
	health := 0
	if metrics.CurrentRatio > 1.5 {
		health++
	}
	if metrics.DebtToEquity > 0 && metrics.DebtToEquity < 0.5 {
		health++
	}
	vote(health >= 1)

	// Price ratios: cheap on at least two of three multiples.
	ratios := 0
	if metrics.PriceToEarnings > 0 && metrics.PriceToEarnings < 20 {
		ratios++
	}
	if metrics.PriceToBook > 0 && metrics.PriceToBook < 3 {
		ratios++
	}
	if metrics.PriceToSales > 0 && metrics.PriceToSales < 2 {
		ratios++
	}
	vote(ratios >= 2)

	const totalVotes = 4
	signal := voteSignal(a.Name(), ticker, bullish, bearish, totalVotes)

	a.log.Debug().
		Str("ticker", ticker).
		Int("bullish_votes", bullish).
		Int("bearish_votes", bearish).
		Str("direction", string(signal.Direction)).
		Msg("Fundamentals evaluation complete")

	return signal, nil
}

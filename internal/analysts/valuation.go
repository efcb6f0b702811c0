package analysts

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/meridianfund/meridian/internal/domain"
)

// ValuationAnalyst judges whether the market price is cheap relative to the
// cash the business generates.
type ValuationAnalyst struct {
	data domain.DataClient
	log  zerolog.Logger
}

// NewValuationAnalyst creates a valuation analyst backed by the data client.
func NewValuationAnalyst(data domain.DataClient, log zerolog.Logger) *ValuationAnalyst {
	return &ValuationAnalyst{
		data: data,
		log:  log.With().Str("analyst", "valuation").Logger(),
	}
}

// Name implements Analyst.
func (a *ValuationAnalyst) Name() string { return "valuation" }

// Evaluate implements Analyst. Free cash flow yield is the anchor: above 8%
// is cheap, below 2% is expensive. Earnings yield and enterprise multiples
// refine the vote.
func (a *ValuationAnalyst) Evaluate(ctx context.Context, ticker, endDate string) (*domain.Signal, error) {
	periods, err := a.data.GetFinancialMetrics(ctx, ticker, endDate, 1)
	if err != nil {
		return nil, err
	}
	if len(periods) == 0 {
		return nil, &domain.DataFetchError{Ticker: ticker, Endpoint: "financial-metrics", Err: errNoMetrics}
	}
	metrics := periods[0]

	bullish, bearish := 0, 0

	switch {
	case metrics.FreeCashFlowYield > 0.08:
		bullish++
	case metrics.FreeCashFlowYield > 0 && metrics.FreeCashFlowYield < 0.02:
		bearish++
	case metrics.FreeCashFlowYield < 0:
		bearish++
	}

	// Earnings yield via the inverse PE.
	if metrics.PriceToEarnings > 0 {
		earningsYield := 1 / metrics.PriceToEarnings
		if earningsYield > 0.06 {
			bullish++
		} else if earningsYield < 0.03 {
			bearish++
		}
	} else if metrics.PriceToEarnings < 0 {
		bearish++
	}

	if metrics.EVToEBITDA > 0 {
		if metrics.EVToEBITDA < 10 {
			bullish++
		} else if metrics.EVToEBITDA > 20 {
			bearish++
		}
	}

	const totalVotes = 3
	signal := voteSignal(a.Name(), ticker, bullish, bearish, totalVotes)

	a.log.Debug().
		Str("ticker", ticker).
		Float64("fcf_yield", metrics.FreeCashFlowYield).
		Int("bullish_votes", bullish).
		Int("bearish_votes", bearish).
		Str("direction", string(signal.Direction)).
		Msg("Valuation evaluation complete")

	return signal, nil
}

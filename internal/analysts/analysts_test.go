package analysts

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianfund/meridian/internal/domain"
)

// fakeDataClient serves canned market data.
type fakeDataClient struct {
	prices  []domain.Price
	metrics []domain.FinancialMetrics
	trades  []domain.InsiderTrade
	news    []domain.CompanyNews
	err     error
}

func (f *fakeDataClient) GetPrices(_ context.Context, _, _, _ string) ([]domain.Price, error) {
	return f.prices, f.err
}

func (f *fakeDataClient) GetFinancialMetrics(_ context.Context, _, _ string, _ int) ([]domain.FinancialMetrics, error) {
	return f.metrics, f.err
}

func (f *fakeDataClient) GetInsiderTrades(_ context.Context, _, _ string, _ int) ([]domain.InsiderTrade, error) {
	return f.trades, f.err
}

func (f *fakeDataClient) GetCompanyNews(_ context.Context, _, _ string, _ int) ([]domain.CompanyNews, error) {
	return f.news, f.err
}

func TestFundamentalsStrongCompanyIsBullish(t *testing.T) {
	data := &fakeDataClient{metrics: []domain.FinancialMetrics{{
		Ticker:          "AAPL",
		ReturnOnEquity:  0.30,
		NetMargin:       0.25,
		OperatingMargin: 0.28,
		RevenueGrowth:   0.15,
		EarningsGrowth:  0.20,
		CurrentRatio:    2.0,
		DebtToEquity:    0.3,
		PriceToEarnings: 15,
		PriceToBook:     2.5,
		PriceToSales:    1.8,
	}}}
	a := NewFundamentalsAnalyst(data, zerolog.Nop())

	s, err := a.Evaluate(context.Background(), "AAPL", "2026-08-28")
	require.NoError(t, err)
	assert.Equal(t, domain.DirectionBullish, s.Direction)
	assert.InDelta(t, 100, s.Confidence, 0.001)
}

func TestFundamentalsWeakCompanyIsBearish(t *testing.T) {
	data := &fakeDataClient{metrics: []domain.FinancialMetrics{{
		Ticker:          "AAPL",
		ReturnOnEquity:  0.02,
		NetMargin:       0.01,
		OperatingMargin: 0.01,
		RevenueGrowth:   -0.05,
		EarningsGrowth:  -0.10,
		CurrentRatio:    0.8,
		DebtToEquity:    2.5,
		PriceToEarnings: 80,
		PriceToBook:     12,
		PriceToSales:    9,
	}}}
	a := NewFundamentalsAnalyst(data, zerolog.Nop())

	s, err := a.Evaluate(context.Background(), "AAPL", "2026-08-28")
	require.NoError(t, err)
	assert.Equal(t, domain.DirectionBearish, s.Direction)
}

func TestFundamentalsNoMetricsIsDataFetchError(t *testing.T) {
	a := NewFundamentalsAnalyst(&fakeDataClient{}, zerolog.Nop())

	_, err := a.Evaluate(context.Background(), "AAPL", "2026-08-28")
	var fetchErr *domain.DataFetchError
	assert.ErrorAs(t, err, &fetchErr)
}

func TestSentimentInsiderSalesAndNegativeNews(t *testing.T) {
	data := &fakeDataClient{
		trades: []domain.InsiderTrade{
			{Ticker: "AAPL", TransactionShares: -1000},
			{Ticker: "AAPL", TransactionShares: -500},
		},
		news: []domain.CompanyNews{
			{Ticker: "AAPL", Sentiment: "negative"},
			{Ticker: "AAPL", Sentiment: "negative"},
			{Ticker: "AAPL", Sentiment: "negative"},
		},
	}
	a := NewSentimentAnalyst(data, zerolog.Nop())

	s, err := a.Evaluate(context.Background(), "AAPL", "2026-08-28")
	require.NoError(t, err)
	assert.Equal(t, domain.DirectionBearish, s.Direction)
	assert.InDelta(t, 100, s.Confidence, 0.001)
}

func TestSentimentQuietTickerIsNeutral(t *testing.T) {
	a := NewSentimentAnalyst(&fakeDataClient{}, zerolog.Nop())

	s, err := a.Evaluate(context.Background(), "AAPL", "2026-08-28")
	require.NoError(t, err)
	assert.Equal(t, domain.DirectionNeutral, s.Direction)
}

func TestSentimentWeightsNewsOverInsiders(t *testing.T) {
	// Insiders buying, news negative. News carries 0.7 so the blend
	// lands below 0.5.
	data := &fakeDataClient{
		trades: []domain.InsiderTrade{{Ticker: "AAPL", TransactionShares: 2000}},
		news: []domain.CompanyNews{
			{Ticker: "AAPL", Sentiment: "negative"},
			{Ticker: "AAPL", Sentiment: "negative"},
		},
	}
	a := NewSentimentAnalyst(data, zerolog.Nop())

	s, err := a.Evaluate(context.Background(), "AAPL", "2026-08-28")
	require.NoError(t, err)
	assert.Equal(t, domain.DirectionBearish, s.Direction)
}

func TestValuationCheapCashGeneratorIsBullish(t *testing.T) {
	data := &fakeDataClient{metrics: []domain.FinancialMetrics{{
		Ticker:            "AAPL",
		FreeCashFlowYield: 0.10,
		PriceToEarnings:   12, // earnings yield 8.3%
		EVToEBITDA:        8,
	}}}
	a := NewValuationAnalyst(data, zerolog.Nop())

	s, err := a.Evaluate(context.Background(), "AAPL", "2026-08-28")
	require.NoError(t, err)
	assert.Equal(t, domain.DirectionBullish, s.Direction)
}

func TestTechnicalRejectsShortHistory(t *testing.T) {
	data := &fakeDataClient{prices: []domain.Price{{Time: "2026-08-28", Close: 150}}}
	a := NewTechnicalAnalyst(data, zerolog.Nop())

	_, err := a.Evaluate(context.Background(), "AAPL", "2026-08-28")
	var fetchErr *domain.DataFetchError
	assert.ErrorAs(t, err, &fetchErr)
}

func TestVoteSignalTieIsNeutral(t *testing.T) {
	s := voteSignal("technical", "AAPL", 2, 2, 4)
	assert.Equal(t, domain.DirectionNeutral, s.Direction)
	assert.InDelta(t, 50, s.Confidence, 0.001)
}

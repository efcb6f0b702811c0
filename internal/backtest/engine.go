// Package backtest replays the trading pipeline over historical prices.
package backtest

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/meridianfund/meridian/internal/analysts"
	"github.com/meridianfund/meridian/internal/decision"
	"github.com/meridianfund/meridian/internal/domain"
	"github.com/meridianfund/meridian/internal/portfolio"
	"github.com/meridianfund/meridian/internal/risk"
	"github.com/meridianfund/meridian/internal/signals"
)

const tradingDaysPerYear = 252

// EquityPoint is one day on the equity curve.
type EquityPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// Result holds the outcome of a backtest run.
type Result struct {
	InitialValue     float64       `json:"initial_value"`
	FinalValue       float64       `json:"final_value"`
	TotalReturn      float64       `json:"total_return"`
	AnnualizedSharpe float64       `json:"annualized_sharpe"`
	AnnualizedVol    float64       `json:"annualized_volatility"`
	MaxDrawdown      float64       `json:"max_drawdown"`
	TradeCount       int           `json:"trade_count"`
	EquityCurve      []EquityPoint `json:"equity_curve"`
}

// Engine replays the pipeline day by day over a historical window. Fills are
// simulated at each day's close with no slippage, and the ledger lives
// purely in memory.
type Engine struct {
	tickers    []string
	data       domain.DataClient
	runner     *analysts.Runner
	aggregator *signals.Aggregator
	risk       *risk.Manager
	decide     *decision.Engine
	log        zerolog.Logger
}

// NewEngine creates a backtest engine.
func NewEngine(
	tickers []string,
	data domain.DataClient,
	runner *analysts.Runner,
	aggregator *signals.Aggregator,
	riskMgr *risk.Manager,
	decide *decision.Engine,
	log zerolog.Logger,
) *Engine {
	return &Engine{
		tickers:    tickers,
		data:       data,
		runner:     runner,
		aggregator: aggregator,
		risk:       riskMgr,
		decide:     decide,
		log:        log.With().Str("service", "backtest").Logger(),
	}
}

// Run replays the window [startDate, endDate] (YYYY-MM-DD) starting from
// initialCash and returns the performance summary.
func (e *Engine) Run(ctx context.Context, startDate, endDate string, initialCash float64) (*Result, error) {
	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return nil, fmt.Errorf("parse start date: %w", err)
	}
	end, err := time.Parse("2006-01-02", endDate)
	if err != nil {
		return nil, fmt.Errorf("parse end date: %w", err)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("end date %s before start date %s", endDate, startDate)
	}

	closes, err := e.loadCloses(ctx, startDate, endDate)
	if err != nil {
		return nil, err
	}

	book := portfolio.New(initialCash)
	result := &Result{InitialValue: initialCash}

	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		date := day.Format("2006-01-02")
		prices := pricesOn(closes, date)
		if len(prices) == 0 {
			// Market holiday, no bars.
			continue
		}

		for _, ticker := range e.tickers {
			price, ok := prices[ticker]
			if !ok {
				continue
			}
			if err := e.step(ctx, book, ticker, date, price, prices, result); err != nil {
				e.log.Warn().Err(err).Str("ticker", ticker).Str("date", date).Msg("Backtest step failed")
			}
		}

		result.EquityCurve = append(result.EquityCurve, EquityPoint{
			Date:  date,
			Value: book.TotalValue(prices),
		})
	}

	if len(result.EquityCurve) == 0 {
		return nil, fmt.Errorf("no trading days with prices in window")
	}

	result.FinalValue = result.EquityCurve[len(result.EquityCurve)-1].Value
	computeMetrics(result)

	e.log.Info().
		Float64("final_value", result.FinalValue).
		Float64("total_return", result.TotalReturn).
		Float64("sharpe", result.AnnualizedSharpe).
		Float64("max_drawdown", result.MaxDrawdown).
		Int("trades", result.TradeCount).
		Msg("Backtest completed")

	return result, nil
}

// step runs the pipeline for one ticker on one day and applies any fill.
func (e *Engine) step(ctx context.Context, book *portfolio.Portfolio, ticker, date string, price float64, prices map[string]float64, result *Result) error {
	run := e.runner.Run(ctx, ticker, date)
	if run.AllFailed() {
		return fmt.Errorf("no analyst signals")
	}
	agg := e.aggregator.Aggregate(ticker, run.Signals, run.Missing)

	var posVal domain.Position
	var positionValue float64
	if pos := book.Position(ticker); pos != nil {
		posVal = *pos
		positionValue = pos.MarketValue(price)
	}

	assessment := e.risk.Assess(ticker, book.TotalValue(prices), positionValue)

	d, err := e.decide.Decide(ctx, domain.OracleContext{
		Ticker:        ticker,
		Signal:        agg,
		Risk:          assessment,
		Position:      posVal,
		AvailableCash: book.Cash(),
		Price:         price,
	})
	if err != nil {
		return err
	}

	switch d.Action {
	case domain.ActionBuy:
		if err := book.ApplyBuy(ticker, d.Quantity, price); err != nil {
			return err
		}
		result.TradeCount++
	case domain.ActionSell:
		if err := book.ApplySell(ticker, d.Quantity, price); err != nil {
			return err
		}
		result.TradeCount++
	}
	return nil
}

// loadCloses prefetches close prices for every ticker as date -> close maps.
func (e *Engine) loadCloses(ctx context.Context, startDate, endDate string) (map[string]map[string]float64, error) {
	closes := make(map[string]map[string]float64, len(e.tickers))
	for _, ticker := range e.tickers {
		bars, err := e.data.GetPrices(ctx, ticker, startDate, endDate)
		if err != nil {
			return nil, fmt.Errorf("load prices for %s: %w", ticker, err)
		}
		byDate := make(map[string]float64, len(bars))
		for _, b := range bars {
			byDate[b.Time] = b.Close
		}
		closes[ticker] = byDate
	}
	return closes, nil
}

func pricesOn(closes map[string]map[string]float64, date string) map[string]float64 {
	prices := make(map[string]float64)
	for ticker, byDate := range closes {
		if c, ok := byDate[date]; ok && c > 0 {
			prices[ticker] = c
		}
	}
	return prices
}

// computeMetrics fills in return, risk and drawdown statistics from the
// equity curve.
func computeMetrics(r *Result) {
	r.TotalReturn = r.FinalValue/r.InitialValue - 1

	if len(r.EquityCurve) < 2 {
		return
	}

	returns := make([]float64, 0, len(r.EquityCurve)-1)
	for i := 1; i < len(r.EquityCurve); i++ {
		prev := r.EquityCurve[i-1].Value
		if prev > 0 {
			returns = append(returns, r.EquityCurve[i].Value/prev-1)
		}
	}
	if len(returns) < 2 {
		return
	}

	mean, std := stat.MeanStdDev(returns, nil)
	r.AnnualizedVol = std * math.Sqrt(tradingDaysPerYear)
	if std > 0 {
		r.AnnualizedSharpe = mean / std * math.Sqrt(tradingDaysPerYear)
	}

	peak := r.EquityCurve[0].Value
	for _, p := range r.EquityCurve {
		if p.Value > peak {
			peak = p.Value
		}
		if peak > 0 {
			dd := 1 - p.Value/peak
			if dd > r.MaxDrawdown {
				r.MaxDrawdown = dd
			}
		}
	}
}

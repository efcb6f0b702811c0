package analysts

import (
	"context"
	"time"

	"github.com/markcheno/go-talib"
	"github.com/rs/zerolog"

	"github.com/meridianfund/meridian/internal/domain"
)

const (
	technicalLookbackDays = 250
	rsiPeriod             = 14
	smaFastPeriod         = 20
	smaSlowPeriod         = 50
	macdFast              = 12
	macdSlow              = 26
	macdSignal            = 9
)

// TechnicalAnalyst votes on momentum and trend indicators computed from the
// recent daily price history.
type TechnicalAnalyst struct {
	data domain.DataClient
	log  zerolog.Logger
}

// NewTechnicalAnalyst creates a technical analyst backed by the data client.
func NewTechnicalAnalyst(data domain.DataClient, log zerolog.Logger) *TechnicalAnalyst {
	return &TechnicalAnalyst{
		data: data,
		log:  log.With().Str("analyst", "technical").Logger(),
	}
}

// Name implements Analyst.
func (a *TechnicalAnalyst) Name() string { return "technical" }

// Evaluate implements Analyst. It scores RSI, the fast/slow SMA cross and the
// MACD histogram as independent votes and converts the vote balance into a
// direction.
func (a *TechnicalAnalyst) Evaluate(ctx context.Context, ticker, endDate string) (*domain.Signal, error) {
	end, err := time.Parse("2006-01-02", endDate)
	if err != nil {
		return nil, &domain.DataFetchError{Ticker: ticker, Endpoint: "prices", Err: err}
	}
	start := end.AddDate(0, 0, -technicalLookbackDays).Format("2006-01-02")

	prices, err := a.data.GetPrices(ctx, ticker, start, endDate)
	if err != nil {
		return nil, err
	}
	if len(prices) < smaSlowPeriod+1 {
		return nil, &domain.DataFetchError{
			Ticker:   ticker,
			Endpoint: "prices",
			Err:      errInsufficientHistory,
		}
	}

	closes := make([]float64, len(prices))
	for i, p := range prices {
		closes[i] = p.Close
	}

	rsi := talib.Rsi(closes, rsiPeriod)
	smaFast := talib.Sma(closes, smaFastPeriod)
	smaSlow := talib.Sma(closes, smaSlowPeriod)
	_, _, macdHist := talib.Macd(closes, macdFast, macdSlow, macdSignal)

	last := len(closes) - 1

	bullish, bearish := 0, 0

	// RSI vote: oversold leans bullish, overbought leans bearish.
	switch {
	case rsi[last] < 30:
		bullish++
	case rsi[last] > 70:
		bearish++
	}

	// Trend vote: fast average above slow average is an uptrend.
	if smaFast[last] > smaSlow[last] {
		bullish++
	} else if smaFast[last] < smaSlow[last] {
		bearish++
	}

	// Momentum vote: MACD histogram sign.
	if macdHist[last] > 0 {
		bullish++
	} else if macdHist[last] < 0 {
		bearish++
	}

	// Price vs slow trend vote.
	if closes[last] > smaSlow[last] {
		bullish++
	} else if closes[last] < smaSlow[last] {
		bearish++
	}

	const totalVotes = 4
	signal := voteSignal(a.Name(), ticker, bullish, bearish, totalVotes)

	a.log.Debug().
		Str("ticker", ticker).
		Float64("rsi", rsi[last]).
		Int("bullish_votes", bullish).
		Int("bearish_votes", bearish).
		Str("direction", string(signal.Direction)).
		Msg("Technical evaluation complete")

	return signal, nil
}

// voteSignal converts a bullish/bearish vote count into a signal. The
// majority side wins and confidence is the winning fraction of total votes.
func voteSignal(analyst, ticker string, bullish, bearish, total int) *domain.Signal {
	s := &domain.Signal{Analyst: analyst, Ticker: ticker}
	switch {
	case bullish > bearish:
		s.Direction = domain.DirectionBullish
		s.Confidence = float64(bullish) / float64(total) * 100
	case bearish > bullish:
		s.Direction = domain.DirectionBearish
		s.Confidence = float64(bearish) / float64(total) * 100
	default:
		s.Direction = domain.DirectionNeutral
		s.Confidence = 50
	}
	return s
}

package analysts

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/meridianfund/meridian/internal/domain"
)

const (
	insiderWeight = 0.3
	newsWeight    = 0.7
)

// SentimentAnalyst blends insider trading activity with news sentiment.
// News carries more weight than insiders because it reflects a broader set
// of observers.
type SentimentAnalyst struct {
	data domain.DataClient
	log  zerolog.Logger
}

// NewSentimentAnalyst creates a sentiment analyst backed by the data client.
func NewSentimentAnalyst(data domain.DataClient, log zerolog.Logger) *SentimentAnalyst {
	return &SentimentAnalyst{
		data: data,
		log:  log.With().Str("analyst", "sentiment").Logger(),
	}
}

// Name implements Analyst.
func (a *SentimentAnalyst) Name() string { return "sentiment" }

// Evaluate implements Analyst. Insider sales (negative transaction shares)
// count as bearish, purchases as bullish. News items vote by their tagged
// sentiment. The weighted bullish fraction maps to a direction around 0.5.
func (a *SentimentAnalyst) Evaluate(ctx context.Context, ticker, endDate string) (*domain.Signal, error) {
	trades, err := a.data.GetInsiderTrades(ctx, ticker, endDate, 1000)
	if err != nil {
		return nil, err
	}
	news, err := a.data.GetCompanyNews(ctx, ticker, endDate, 100)
	if err != nil {
		return nil, err
	}

	insiderBullish, insiderTotal := 0, 0
	for _, t := range trades {
		if t.TransactionShares == 0 {
			continue
		}
		insiderTotal++
		if t.TransactionShares > 0 {
			insiderBullish++
		}
	}

	newsBullish, newsTotal := 0, 0
	for _, n := range news {
		switch strings.ToLower(n.Sentiment) {
		case "positive":
			newsBullish++
			newsTotal++
		case "negative":
			newsTotal++
		case "neutral":
			newsTotal++
			// Neutral items dilute both sides equally; count half a vote.
			// Handled below via fractional tally.
		}
	}

	// Weighted bullish fraction. Sources with no observations fall back to
	// a neutral 0.5 so a quiet ticker does not read as bearish.
	insiderFrac := 0.5
	if insiderTotal > 0 {
		insiderFrac = float64(insiderBullish) / float64(insiderTotal)
	}
	newsFrac := 0.5
	if newsTotal > 0 {
		neutralCount := 0
		for _, n := range news {
			if strings.ToLower(n.Sentiment) == "neutral" {
				neutralCount++
			}
		}
		newsFrac = (float64(newsBullish) + 0.5*float64(neutralCount)) / float64(newsTotal)
	}

	combined := insiderWeight*insiderFrac + newsWeight*newsFrac

	s := &domain.Signal{Analyst: a.Name(), Ticker: ticker}
	switch {
	case combined > 0.5:
		s.Direction = domain.DirectionBullish
		s.Confidence = clamp((combined-0.5)*200, 0, 100)
	case combined < 0.5:
		s.Direction = domain.DirectionBearish
		s.Confidence = clamp((0.5-combined)*200, 0, 100)
	default:
		s.Direction = domain.DirectionNeutral
		s.Confidence = 50
	}

	a.log.Debug().
		Str("ticker", ticker).
		Int("insider_trades", insiderTotal).
		Int("news_items", newsTotal).
		Float64("combined", combined).
		Str("direction", string(s.Direction)).
		Msg("Sentiment evaluation complete")

	return s, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Package signals folds per-analyst signals into one consensus per ticker.
package signals

import (
	"github.com/rs/zerolog"

	"github.com/meridianfund/meridian/internal/domain"
)

// Aggregator combines analyst signals by confidence-weighted voting.
//
// Each signal contributes its confidence to its direction's score. The
// direction with the highest score wins; on a tie the more cautious side
// prevails (bearish over neutral over bullish). The consensus confidence is
// normalized against the full analyst roster, so missing analysts drag the
// confidence down instead of being silently ignored.
type Aggregator struct {
	expectedAnalysts int
	log              zerolog.Logger
}

// NewAggregator creates an aggregator expecting signals from
// expectedAnalysts analysts per ticker.
func NewAggregator(expectedAnalysts int, log zerolog.Logger) *Aggregator {
	return &Aggregator{
		expectedAnalysts: expectedAnalysts,
		log:              log.With().Str("component", "signal_aggregator").Logger(),
	}
}

// Aggregate folds the signals for one ticker into a consensus. An empty
// signal set yields a neutral consensus with zero confidence.
func (a *Aggregator) Aggregate(ticker string, sigs []domain.Signal, missing []string) domain.AggregatedSignal {
	agg := domain.AggregatedSignal{
		Ticker:            ticker,
		Direction:         domain.DirectionNeutral,
		ContributingCount: len(sigs),
		MissingAnalysts:   missing,
	}
	if len(sigs) == 0 {
		return agg
	}

	scores := map[domain.Direction]float64{}
	for _, s := range sigs {
		scores[s.Direction] += s.Confidence
	}

	agg.Direction = winningDirection(scores)

	// Normalize against the full roster at maximum confidence, so three of
	// four analysts agreeing at 100 reads as 75, not 100.
	denom := float64(a.expectedAnalysts) * 100
	if denom > 0 {
		agg.Confidence = scores[agg.Direction] / denom * 100
	}
	if agg.Confidence > 100 {
		agg.Confidence = 100
	}

	a.log.Debug().
		Str("ticker", ticker).
		Str("direction", string(agg.Direction)).
		Float64("confidence", agg.Confidence).
		Int("contributing", agg.ContributingCount).
		Strs("missing", missing).
		Msg("Signals aggregated")

	return agg
}

// winningDirection picks the highest-scoring direction. Ties resolve toward
// caution: bearish beats neutral beats bullish.
func winningDirection(scores map[domain.Direction]float64) domain.Direction {
	order := []domain.Direction{
		domain.DirectionBearish,
		domain.DirectionNeutral,
		domain.DirectionBullish,
	}
	winner := domain.DirectionNeutral
	best := -1.0
	for _, d := range order {
		if scores[d] > best {
			best = scores[d]
			winner = d
		}
	}
	return winner
}

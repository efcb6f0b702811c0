package oracle

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/meridianfund/meridian/internal/domain"
)

// RuleOracle is a deterministic decision policy used when no remote service
// is configured, and by backtests. Bullish consensus buys up to the risk
// ceiling scaled by confidence, bearish consensus exits the position,
// neutral holds.
type RuleOracle struct {
	minConfidence float64
	log           zerolog.Logger
}

var _ domain.Oracle = (*RuleOracle)(nil)

// NewRuleOracle creates a rule oracle. Signals below minConfidence are
// treated as noise and produce HOLD.
func NewRuleOracle(minConfidence float64, log zerolog.Logger) *RuleOracle {
	return &RuleOracle{
		minConfidence: minConfidence,
		log:           log.With().Str("component", "rule_oracle").Logger(),
	}
}

// ProposeDecision implements domain.Oracle.
func (o *RuleOracle) ProposeDecision(_ context.Context, oc domain.OracleContext) (*domain.Decision, error) {
	d := &domain.Decision{
		Ticker:     oc.Ticker,
		Action:     domain.ActionHold,
		Confidence: oc.Signal.Confidence,
	}

	if oc.Signal.Confidence < o.minConfidence {
		d.Reasoning = fmt.Sprintf("consensus confidence %.1f below threshold %.1f", oc.Signal.Confidence, o.minConfidence)
		return d, nil
	}

	held := oc.Position.Quantity

	switch oc.Signal.Direction {
	case domain.DirectionBullish:
		if oc.Price <= 0 {
			d.Reasoning = "no usable price"
			return d, nil
		}
		// Size the order by confidence against the risk ceiling, net of
		// what is already held.
		budget := oc.Risk.MaxPositionValue * oc.Signal.Confidence / 100
		budget -= held * oc.Price
		qty := math.Floor(budget / oc.Price)
		if qty > 0 {
			d.Action = domain.ActionBuy
			d.Quantity = qty
			d.Reasoning = fmt.Sprintf("bullish consensus at %.1f confidence", oc.Signal.Confidence)
		} else {
			d.Reasoning = "position already at sized target"
		}
	case domain.DirectionBearish:
		if held > 0 {
			d.Action = domain.ActionSell
			d.Quantity = held
			d.Reasoning = fmt.Sprintf("bearish consensus at %.1f confidence, exiting position", oc.Signal.Confidence)
		} else {
			d.Reasoning = "bearish consensus with no position to exit"
		}
	default:
		d.Reasoning = "neutral consensus"
	}

	return d, nil
}

// Package decision validates and constrains proposed trading decisions.
package decision

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/meridianfund/meridian/internal/domain"
	"github.com/meridianfund/meridian/pkg/metrics"
)

// Engine turns an aggregated signal into a final, executable decision.
//
// The oracle proposes, the engine disposes: every proposal is validated
// against the trading universe and clamped to what the ledger and the risk
// ceiling can actually support. An unreachable or failing oracle degrades
// to HOLD rather than failing the cycle.
type Engine struct {
	oracle   domain.Oracle
	universe map[string]struct{}
	recorder *metrics.Recorder
	log      zerolog.Logger
}

// NewEngine creates a decision engine over the given trading universe.
func NewEngine(oracle domain.Oracle, universe []string, recorder *metrics.Recorder, log zerolog.Logger) *Engine {
	set := make(map[string]struct{}, len(universe))
	for _, t := range universe {
		set[t] = struct{}{}
	}
	return &Engine{
		oracle:   oracle,
		universe: set,
		recorder: recorder,
		log:      log.With().Str("component", "decision_engine").Logger(),
	}
}

// Decide produces the final decision for one ticker.
//
// The returned decision always concerns a ticker inside the universe; an
// out-of-universe ticker is a *domain.DecisionInvalidError because it can
// only come from a wiring bug, never from market conditions.
func (e *Engine) Decide(ctx context.Context, oc domain.OracleContext) (*domain.Decision, error) {
	if _, ok := e.universe[oc.Ticker]; !ok {
		return nil, &domain.DecisionInvalidError{
			Ticker: oc.Ticker,
			Reason: "ticker not in trading universe",
		}
	}

	proposed, err := e.oracle.ProposeDecision(ctx, oc)
	if err != nil {
		e.log.Warn().
			Err(err).
			Str("ticker", oc.Ticker).
			Msg("Oracle unavailable, holding")
		d := e.hold(oc.Ticker, "decision service unavailable")
		e.recorder.RecordDecision(string(d.Action))
		return d, nil
	}

	final, err := e.constrain(proposed, oc)
	if err != nil {
		return nil, err
	}

	e.recorder.RecordDecision(string(final.Action))
	e.log.Info().
		Str("ticker", final.Ticker).
		Str("action", string(final.Action)).
		Float64("quantity", final.Quantity).
		Str("reasoning", final.Reasoning).
		Msg("Decision finalized")

	return final, nil
}

// constrain clamps a proposal to holdings, cash and the risk ceiling.
func (e *Engine) constrain(d *domain.Decision, oc domain.OracleContext) (*domain.Decision, error) {
	if d.Quantity < 0 {
		return nil, &domain.DecisionInvalidError{
			Ticker: d.Ticker,
			Reason: fmt.Sprintf("negative quantity %.2f", d.Quantity),
		}
	}

	held := oc.Position.Quantity

	switch d.Action {
	case domain.ActionHold:
		d.Quantity = 0
		return d, nil

	case domain.ActionSell:
		if d.Quantity > held {
			e.log.Debug().
				Str("ticker", d.Ticker).
				Float64("proposed", d.Quantity).
				Float64("held", held).
				Msg("Sell clamped to holding")
			d.Quantity = held
		}
		if d.Quantity == 0 {
			return e.hold(d.Ticker, "nothing to sell"), nil
		}
		return d, nil

	case domain.ActionBuy:
		if !oc.Risk.Feasible {
			return e.hold(d.Ticker, "portfolio at exposure cap"), nil
		}
		if oc.Price <= 0 {
			return nil, &domain.DecisionInvalidError{
				Ticker: d.Ticker,
				Reason: fmt.Sprintf("non-positive price %.2f", oc.Price),
			}
		}

		budget := oc.Risk.MaxPositionValue - held*oc.Price
		if oc.AvailableCash < budget {
			budget = oc.AvailableCash
		}
		maxQty := math.Floor(budget / oc.Price)
		if maxQty < 0 {
			maxQty = 0
		}
		if d.Quantity > maxQty {
			e.log.Debug().
				Str("ticker", d.Ticker).
				Float64("proposed", d.Quantity).
				Float64("affordable", maxQty).
				Msg("Buy clamped to budget")
			d.Quantity = maxQty
		}
		if d.Quantity == 0 {
			return e.hold(d.Ticker, "insufficient budget for any shares"), nil
		}
		return d, nil

	default:
		return nil, &domain.DecisionInvalidError{
			Ticker: d.Ticker,
			Reason: fmt.Sprintf("unknown action %q", d.Action),
		}
	}
}

func (e *Engine) hold(ticker, reason string) *domain.Decision {
	return &domain.Decision{
		Ticker:    ticker,
		Action:    domain.ActionHold,
		Quantity:  0,
		Reasoning: reason,
	}
}

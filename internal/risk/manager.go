// Package risk enforces position and portfolio exposure limits.
package risk

import (
	"github.com/rs/zerolog"

	"github.com/meridianfund/meridian/internal/domain"
)

// Manager computes the maximum position value allowed for a ticker and
// whether opening or growing that position is feasible at all under the
// portfolio-wide cap.
type Manager struct {
	maxPositionSize   float64
	maxPortfolioValue float64
	perTickerCap      float64
	log               zerolog.Logger
}

// NewManager creates a risk manager. perTickerCap is the fraction of total
// portfolio value a single ticker may occupy, in (0, 1].
func NewManager(maxPositionSize, maxPortfolioValue, perTickerCap float64, log zerolog.Logger) (*Manager, error) {
	if maxPositionSize <= 0 {
		return nil, &domain.ConfigError{Field: "MAX_POSITION_SIZE", Reason: "must be positive"}
	}
	if maxPortfolioValue <= 0 {
		return nil, &domain.ConfigError{Field: "MAX_PORTFOLIO_VALUE", Reason: "must be positive"}
	}
	if perTickerCap <= 0 || perTickerCap > 1 {
		return nil, &domain.ConfigError{Field: "PER_TICKER_EXPOSURE_CAP", Reason: "must be in (0, 1]"}
	}
	return &Manager{
		maxPositionSize:   maxPositionSize,
		maxPortfolioValue: maxPortfolioValue,
		perTickerCap:      perTickerCap,
		log:               log.With().Str("component", "risk_manager").Logger(),
	}, nil
}

// Assess returns the risk assessment for one ticker.
//
// The position ceiling is the tighter of the absolute per-position cap and
// the per-ticker fraction of current total portfolio value. A ticker is
// infeasible when the portfolio is already at or above the portfolio-wide
// cap, in which case the ceiling is zero.
func (m *Manager) Assess(ticker string, totalValue, currentPositionValue float64) domain.RiskAssessment {
	maxByFraction := totalValue * m.perTickerCap
	maxPos := m.maxPositionSize
	if maxByFraction < maxPos {
		maxPos = maxByFraction
	}
	if maxPos < 0 {
		maxPos = 0
	}

	assessment := domain.RiskAssessment{
		Ticker:           ticker,
		MaxPositionValue: maxPos,
		Feasible:         true,
	}

	if totalValue >= m.maxPortfolioValue {
		assessment.Feasible = false
		assessment.MaxPositionValue = 0
		m.log.Warn().
			Str("ticker", ticker).
			Float64("total_value", totalValue).
			Float64("max_portfolio_value", m.maxPortfolioValue).
			Msg("Portfolio at cap, new exposure infeasible")
	}

	// Headroom left for this ticker after accounting for what it already
	// holds. An existing position above the ceiling leaves zero headroom
	// but is never force-liquidated here.
	remaining := assessment.MaxPositionValue - currentPositionValue
	if remaining < 0 {
		remaining = 0
	}
	assessment.PortfolioExposureAfter = currentPositionValue + remaining

	m.log.Debug().
		Str("ticker", ticker).
		Float64("max_position_value", assessment.MaxPositionValue).
		Bool("feasible", assessment.Feasible).
		Msg("Risk assessed")

	return assessment
}

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/meridianfund/meridian/internal/domain"
	"github.com/meridianfund/meridian/internal/portfolio"
	"github.com/meridianfund/meridian/internal/scheduler"
	"github.com/meridianfund/meridian/internal/trading"
)

// APIHandlers serves the read-side trading endpoints.
type APIHandlers struct {
	portfolio *portfolio.Portfolio
	trades    *trading.TradeRepository
	scheduler *scheduler.Scheduler
	clock     domain.MarketClock
	price     PriceFunc
	log       zerolog.Logger
}

// NewAPIHandlers creates the API handler set.
func NewAPIHandlers(
	p *portfolio.Portfolio,
	trades *trading.TradeRepository,
	sched *scheduler.Scheduler,
	clock domain.MarketClock,
	price PriceFunc,
	log zerolog.Logger,
) *APIHandlers {
	return &APIHandlers{
		portfolio: p,
		trades:    trades,
		scheduler: sched,
		clock:     clock,
		price:     price,
		log:       log.With().Str("component", "api_handlers").Logger(),
	}
}

type positionView struct {
	Ticker        string  `json:"ticker"`
	Quantity      float64 `json:"quantity"`
	AverageCost   float64 `json:"average_cost"`
	CurrentPrice  float64 `json:"current_price,omitempty"`
	MarketValue   float64 `json:"market_value,omitempty"`
	UnrealizedPnL float64 `json:"unrealized_pnl,omitempty"`
}

type portfolioView struct {
	Cash        float64        `json:"cash"`
	RealizedPnL float64        `json:"realized_pnl"`
	TotalValue  float64        `json:"total_value"`
	Positions   []positionView `json:"positions"`
}

// GetPortfolio handles GET /api/portfolio.
func (h *APIHandlers) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	view := portfolioView{
		Cash:        h.portfolio.Cash(),
		RealizedPnL: h.portfolio.RealizedPnL(),
		Positions:   []positionView{},
	}
	view.TotalValue = view.Cash

	for _, pos := range h.portfolio.Positions() {
		pv := positionView{
			Ticker:      pos.Ticker,
			Quantity:    pos.Quantity,
			AverageCost: pos.AverageCost,
		}
		// Marking to market is best effort. A data outage should not
		// break the portfolio view.
		if price, err := h.price(ctx, pos.Ticker); err == nil && price > 0 {
			pv.CurrentPrice = price
			pv.MarketValue = pos.MarketValue(price)
			pv.UnrealizedPnL = pv.MarketValue - pos.Quantity*pos.AverageCost
			view.TotalValue += pv.MarketValue
		} else {
			view.TotalValue += pos.MarketValue(pos.AverageCost)
		}
		view.Positions = append(view.Positions, pv)
	}

	writeJSON(w, http.StatusOK, view)
}

// GetTrades handles GET /api/trades?limit=N.
func (h *APIHandlers) GetTrades(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	trades, err := h.trades.Recent(limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list trades")
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}
	if trades == nil {
		trades = []domain.Trade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// GetTradesForTicker handles GET /api/trades/{ticker}.
func (h *APIHandlers) GetTradesForTicker(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")
	trades, err := h.trades.ForTicker(ticker)
	if err != nil {
		h.log.Error().Err(err).Str("ticker", ticker).Msg("Failed to list trades")
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}
	if trades == nil {
		trades = []domain.Trade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// GetSchedulerStatus handles GET /api/scheduler/status.
func (h *APIHandlers) GetSchedulerStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.scheduler.Status())
}

// KickScheduler handles POST /api/scheduler/kick.
func (h *APIHandlers) KickScheduler(w http.ResponseWriter, _ *http.Request) {
	h.scheduler.Kick()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "kicked"})
}

// GetMarketStatus handles GET /api/market/status.
func (h *APIHandlers) GetMarketStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"open":      h.clock.IsOpen(),
		"next_open": h.clock.NextOpen().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

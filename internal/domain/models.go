// Package domain provides core domain models and types.
package domain

import "time"

// Direction represents an analyst's directional judgment for a ticker
type Direction string

const (
	DirectionBullish Direction = "BULLISH"
	DirectionBearish Direction = "BEARISH"
	DirectionNeutral Direction = "NEUTRAL"
)

// Action represents a trading action
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// TradingMode selects how decisions are executed
type TradingMode string

const (
	// ModePaper simulates fills and mutates the ledger immediately
	ModePaper TradingMode = "paper"
	// ModeLive submits orders to the broker and commits only confirmed fills
	ModeLive TradingMode = "live"
)

// Signal is one analyst's judgment for one ticker. Immutable once produced.
type Signal struct {
	Analyst    string    `json:"analyst"`
	Ticker     string    `json:"ticker"`
	Direction  Direction `json:"direction"`
	Confidence float64   `json:"confidence"` // [0,100]
	Reasoning  string    `json:"reasoning,omitempty"`
}

// AggregatedSignal is the confidence-weighted consensus across analysts
// for a ticker. MissingAnalysts records analysts that failed or timed out;
// their absence penalizes Confidence.
type AggregatedSignal struct {
	Ticker            string    `json:"ticker"`
	Direction         Direction `json:"direction"`
	Confidence        float64   `json:"confidence"` // [0,100]
	ContributingCount int       `json:"contributing_count"`
	MissingAnalysts   []string  `json:"missing_analysts,omitempty"`
}

// RiskAssessment is a bounded position-size recommendation for a ticker.
// Never persisted; derived fresh each cycle.
type RiskAssessment struct {
	Ticker                 string  `json:"ticker"`
	MaxPositionValue       float64 `json:"max_position_value"`
	PortfolioExposureAfter float64 `json:"portfolio_exposure_after"`
	Feasible               bool    `json:"feasible"`
}

// Decision is a proposed (and later validated) action for a ticker.
// Only the validated form is ever executed.
type Decision struct {
	Ticker     string  `json:"ticker"`
	Action     Action  `json:"action"`
	Quantity   float64 `json:"quantity"` // >= 0
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// Position represents a portfolio position. Owned exclusively by Portfolio
// and mutated only through the trading executor.
type Position struct {
	Ticker      string  `json:"ticker"`
	Quantity    float64 `json:"quantity"` // >= 0, no shorting
	AverageCost float64 `json:"average_cost"`
}

// MarketValue returns the position value at the given price.
func (p Position) MarketValue(price float64) float64 {
	return p.Quantity * price
}

// Trade represents an executed trade recorded in the ledger
type Trade struct {
	ID         int64     `json:"id"`
	OrderID    string    `json:"order_id"`
	Ticker     string    `json:"ticker"`
	Side       Action    `json:"side"`
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price"`
	Mode       string    `json:"mode"` // paper or live
	ExecutedAt time.Time `json:"executed_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// OrderAck is the broker's confirmation of a filled order
type OrderAck struct {
	OrderID     string  `json:"order_id"`
	Ticker      string  `json:"ticker"`
	Side        Action  `json:"side"`
	FilledQty   float64 `json:"filled_qty"`
	FilledPrice float64 `json:"filled_price"`
}

// Price is one bar of historical price data
type Price struct {
	Time   string  `json:"time"` // YYYY-MM-DD
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// FinancialMetrics holds one reporting period of fundamental metrics
type FinancialMetrics struct {
	Ticker            string  `json:"ticker"`
	ReportPeriod      string  `json:"report_period"`
	ReturnOnEquity    float64 `json:"return_on_equity"`
	NetMargin         float64 `json:"net_margin"`
	OperatingMargin   float64 `json:"operating_margin"`
	PriceToEarnings   float64 `json:"price_to_earnings_ratio"`
	PriceToBook       float64 `json:"price_to_book_ratio"`
	PriceToSales      float64 `json:"price_to_sales_ratio"`
	RevenueGrowth     float64 `json:"revenue_growth"`
	EarningsGrowth    float64 `json:"earnings_growth"`
	CurrentRatio      float64 `json:"current_ratio"`
	DebtToEquity      float64 `json:"debt_to_equity"`
	FreeCashFlowYield float64 `json:"free_cash_flow_yield"`
	EVToEBITDA        float64 `json:"enterprise_value_to_ebitda_ratio"`
	MarketCap         float64 `json:"market_cap"`
}

// InsiderTrade is one insider transaction
type InsiderTrade struct {
	Ticker            string  `json:"ticker"`
	Name              string  `json:"name"`
	TransactionShares float64 `json:"transaction_shares"` // negative = sale
	TransactionDate   string  `json:"transaction_date"`
}

// CompanyNews is one news article with a coarse sentiment label
type CompanyNews struct {
	Ticker    string `json:"ticker"`
	Title     string `json:"title"`
	Date      string `json:"date"`
	Sentiment string `json:"sentiment"` // positive, negative, neutral
}

package domain

import (
	"context"
	"time"
)

// DataClient defines market-data retrieval operations. Implementations may
// cache and paginate; failures surface as *DataFetchError.
type DataClient interface {
	// GetPrices returns daily price bars in [startDate, endDate], oldest first.
	GetPrices(ctx context.Context, ticker, startDate, endDate string) ([]Price, error)

	// GetFinancialMetrics returns up to limit reporting periods ending at or
	// before endDate, most recent first.
	GetFinancialMetrics(ctx context.Context, ticker, endDate string, limit int) ([]FinancialMetrics, error)

	// GetInsiderTrades returns insider transactions up to endDate.
	GetInsiderTrades(ctx context.Context, ticker, endDate string, limit int) ([]InsiderTrade, error)

	// GetCompanyNews returns news articles up to endDate.
	GetCompanyNews(ctx context.Context, ticker, endDate string, limit int) ([]CompanyNews, error)
}

// OracleContext is the input handed to the reasoning oracle for one ticker.
type OracleContext struct {
	Ticker        string           `json:"ticker"`
	Signal        AggregatedSignal `json:"signal"`
	Risk          RiskAssessment   `json:"risk"`
	Position      Position         `json:"position"`
	AvailableCash float64          `json:"available_cash"`
	Price         float64          `json:"price"`
}

// Oracle turns aggregated signals into a proposed decision. The proposal is
// untrusted and must be validated before execution.
type Oracle interface {
	ProposeDecision(ctx context.Context, oc OracleContext) (*Decision, error)
}

// BrokerClient defines broker-agnostic order and portfolio operations.
type BrokerClient interface {
	// SubmitOrder places a market order and blocks until the broker reports
	// a fill or the context is done.
	SubmitOrder(ctx context.Context, ticker string, side Action, quantity float64) (*OrderAck, error)

	// GetPositions returns the broker's view of current positions, used to
	// reconcile local state at startup in live mode.
	GetPositions(ctx context.Context) ([]Position, error)

	// GetCash returns the available cash balance at the broker.
	GetCash(ctx context.Context) (float64, error)
}

// MarketClock reports market-hours status.
type MarketClock interface {
	// IsOpen returns true if the market is currently open for regular trading.
	IsOpen() bool

	// NextOpen returns the next regular-session opening time.
	NextOpen() time.Time
}

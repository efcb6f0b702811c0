// Package marketdata provides the client for the market-data API.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/meridianfund/meridian/internal/domain"
)

const (
	requestTimeout = 30 * time.Second
	maxPageSize    = 1000

	// The API allows 4 requests per second on the standard tier.
	requestsPerSecond = 4
)

// Cache TTLs. Prices move intraday; fundamentals and filings are slow.
const (
	pricesTTL  = 15 * time.Minute
	metricsTTL = 12 * time.Hour
	filingsTTL = 6 * time.Hour
	newsTTL    = 1 * time.Hour
)

// Client fetches market data over HTTP with caching and rate limiting.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	memCache   *memoryCache
	diskCache  *diskCache
	log        zerolog.Logger
}

// Compile-time check that Client implements domain.DataClient
var _ domain.DataClient = (*Client)(nil)

// NewClient creates a market-data client. cacheDir enables the persistent
// disk cache; pass "" to keep caching in memory only.
func NewClient(baseURL, apiKey, cacheDir string, log zerolog.Logger) *Client {
	var dc *diskCache
	if cacheDir != "" {
		dc = newDiskCache(cacheDir, log)
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		limiter:   rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond),
		memCache:  newMemoryCache(),
		diskCache: dc,
		log:       log.With().Str("client", "marketdata").Logger(),
	}
}

type pricesResponse struct {
	Prices []domain.Price `json:"prices"`
}

// GetPrices returns daily price bars in [startDate, endDate], oldest first.
func (c *Client) GetPrices(ctx context.Context, ticker, startDate, endDate string) ([]domain.Price, error) {
	cacheKey := fmt.Sprintf("prices:%s:%s:%s", ticker, startDate, endDate)

	var cached []domain.Price
	if c.getCached(cacheKey, &cached) {
		return cached, nil
	}

	params := url.Values{}
	params.Set("ticker", ticker)
	params.Set("start_date", startDate)
	params.Set("end_date", endDate)
	params.Set("interval", "day")
	params.Set("limit", strconv.Itoa(5000))

	var resp pricesResponse
	if err := c.get(ctx, "prices", params, &resp); err != nil {
		return nil, &domain.DataFetchError{Ticker: ticker, Endpoint: "prices", Err: err}
	}
	if len(resp.Prices) == 0 {
		return nil, &domain.DataFetchError{
			Ticker:   ticker,
			Endpoint: "prices",
			Err:      fmt.Errorf("no price data returned"),
		}
	}

	c.setCached(cacheKey, resp.Prices, pricesTTL)
	return resp.Prices, nil
}

type metricsResponse struct {
	FinancialMetrics []domain.FinancialMetrics `json:"financial_metrics"`
}

// GetFinancialMetrics returns up to limit reporting periods ending at or
// before endDate, most recent first.
func (c *Client) GetFinancialMetrics(ctx context.Context, ticker, endDate string, limit int) ([]domain.FinancialMetrics, error) {
	cacheKey := fmt.Sprintf("metrics:%s:%s:%d", ticker, endDate, limit)

	var cached []domain.FinancialMetrics
	if c.getCached(cacheKey, &cached) {
		return cached, nil
	}

	params := url.Values{}
	params.Set("ticker", ticker)
	params.Set("report_period_lte", endDate)
	params.Set("period", "ttm")
	params.Set("limit", strconv.Itoa(limit))

	var resp metricsResponse
	if err := c.get(ctx, "financial-metrics", params, &resp); err != nil {
		return nil, &domain.DataFetchError{Ticker: ticker, Endpoint: "financial-metrics", Err: err}
	}

	c.setCached(cacheKey, resp.FinancialMetrics, metricsTTL)
	return resp.FinancialMetrics, nil
}

type insiderTradesResponse struct {
	InsiderTrades []domain.InsiderTrade `json:"insider_trades"`
}

// GetInsiderTrades returns insider transactions up to endDate, paginating
// until limit entries are collected or the API runs out of pages.
func (c *Client) GetInsiderTrades(ctx context.Context, ticker, endDate string, limit int) ([]domain.InsiderTrade, error) {
	cacheKey := fmt.Sprintf("insider:%s:%s:%d", ticker, endDate, limit)

	var cached []domain.InsiderTrade
	if c.getCached(cacheKey, &cached) {
		return cached, nil
	}

	all := make([]domain.InsiderTrade, 0, limit)
	for len(all) < limit {
		pageSize := limit - len(all)
		if pageSize > maxPageSize {
			pageSize = maxPageSize
		}

		params := url.Values{}
		params.Set("ticker", ticker)
		params.Set("filing_date_lte", endDate)
		params.Set("limit", strconv.Itoa(pageSize))
		params.Set("offset", strconv.Itoa(len(all)))

		var resp insiderTradesResponse
		if err := c.get(ctx, "insider-trades", params, &resp); err != nil {
			return nil, &domain.DataFetchError{Ticker: ticker, Endpoint: "insider-trades", Err: err}
		}

		all = append(all, resp.InsiderTrades...)
		if len(resp.InsiderTrades) < pageSize {
			break // last page
		}
	}

	c.setCached(cacheKey, all, filingsTTL)
	return all, nil
}

type companyNewsResponse struct {
	News []domain.CompanyNews `json:"news"`
}

// GetCompanyNews returns news articles up to endDate, paginating like
// GetInsiderTrades.
func (c *Client) GetCompanyNews(ctx context.Context, ticker, endDate string, limit int) ([]domain.CompanyNews, error) {
	cacheKey := fmt.Sprintf("news:%s:%s:%d", ticker, endDate, limit)

	var cached []domain.CompanyNews
	if c.getCached(cacheKey, &cached) {
		return cached, nil
	}

	all := make([]domain.CompanyNews, 0, limit)
	for len(all) < limit {
		pageSize := limit - len(all)
		if pageSize > maxPageSize {
			pageSize = maxPageSize
		}

		params := url.Values{}
		params.Set("ticker", ticker)
		params.Set("end_date", endDate)
		params.Set("limit", strconv.Itoa(pageSize))
		params.Set("offset", strconv.Itoa(len(all)))

		var resp companyNewsResponse
		if err := c.get(ctx, "news", params, &resp); err != nil {
			return nil, &domain.DataFetchError{Ticker: ticker, Endpoint: "news", Err: err}
		}

		all = append(all, resp.News...)
		if len(resp.News) < pageSize {
			break
		}
	}

	c.setCached(cacheKey, all, newsTTL)
	return all, nil
}

// get performs a rate-limited GET request and decodes the JSON response.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	reqURL := fmt.Sprintf("%s/%s?%s", c.baseURL, endpoint, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-KEY", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// fall through to decode
	case http.StatusUnauthorized:
		return fmt.Errorf("invalid API key")
	case http.StatusTooManyRequests:
		return fmt.Errorf("rate limit exceeded")
	case http.StatusNotFound:
		return fmt.Errorf("data not found for endpoint %s", endpoint)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// getCached reads from the memory cache first, then the disk cache.
func (c *Client) getCached(key string, out interface{}) bool {
	if c.memCache.get(key, out) {
		return true
	}
	if c.diskCache != nil && c.diskCache.get(key, out) {
		return true
	}
	return false
}

// setCached writes through both cache layers.
func (c *Client) setCached(key string, value interface{}, ttl time.Duration) {
	c.memCache.set(key, value, ttl)
	if c.diskCache != nil {
		c.diskCache.set(key, value, ttl)
	}
}

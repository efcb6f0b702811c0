// Package broker provides order execution backends.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/meridianfund/meridian/internal/domain"
)

const (
	requestTimeout = 30 * time.Second
	fillPollPeriod = 2 * time.Second
)

// Client is a REST client for an Alpaca-compatible brokerage API. Orders are
// plain market orders; SubmitOrder blocks until the broker reports a fill so
// the caller never records an unconfirmed trade.
type Client struct {
	baseURL   string
	apiKey    string
	apiSecret string
	http      *http.Client
	log       zerolog.Logger
}

var _ domain.BrokerClient = (*Client)(nil)

// NewClient creates a live broker client.
func NewClient(baseURL, apiKey, apiSecret string, log zerolog.Logger) *Client {
	return &Client{
		baseURL:   baseURL,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		http:      &http.Client{Timeout: requestTimeout},
		log:       log.With().Str("client", "broker").Logger(),
	}
}

type orderRequest struct {
	Symbol      string `json:"symbol"`
	Qty         string `json:"qty"`
	Side        string `json:"side"`
	Type        string `json:"type"`
	TimeInForce string `json:"time_in_force"`
}

type orderResponse struct {
	ID             string `json:"id"`
	Symbol         string `json:"symbol"`
	Status         string `json:"status"`
	FilledQty      string `json:"filled_qty"`
	FilledAvgPrice string `json:"filled_avg_price"`
}

// SubmitOrder implements domain.BrokerClient. It places a market order and
// polls until the order reaches a terminal status or the context is done.
func (c *Client) SubmitOrder(ctx context.Context, ticker string, side domain.Action, quantity float64) (*domain.OrderAck, error) {
	var brokerSide string
	switch side {
	case domain.ActionBuy:
		brokerSide = "buy"
	case domain.ActionSell:
		brokerSide = "sell"
	default:
		return nil, &domain.OrderError{Ticker: ticker, Side: side, Err: fmt.Errorf("unsupported side %q", side)}
	}

	body := orderRequest{
		Symbol:      ticker,
		Qty:         strconv.FormatFloat(quantity, 'f', -1, 64),
		Side:        brokerSide,
		Type:        "market",
		TimeInForce: "day",
	}

	var placed orderResponse
	if err := c.do(ctx, http.MethodPost, "/v2/orders", body, &placed); err != nil {
		return nil, &domain.OrderError{Ticker: ticker, Side: side, Err: err}
	}

	c.log.Info().
		Str("ticker", ticker).
		Str("order_id", placed.ID).
		Str("side", brokerSide).
		Float64("quantity", quantity).
		Msg("Order submitted, waiting for fill")

	ack, err := c.waitForFill(ctx, placed.ID)
	if err != nil {
		return nil, &domain.OrderError{Ticker: ticker, Side: side, Err: err}
	}
	ack.Ticker = ticker
	ack.Side = side
	return ack, nil
}

// waitForFill polls the order until it fills, is rejected, or ctx expires.
func (c *Client) waitForFill(ctx context.Context, orderID string) (*domain.OrderAck, error) {
	ticker := time.NewTicker(fillPollPeriod)
	defer ticker.Stop()

	for {
		var ord orderResponse
		if err := c.do(ctx, http.MethodGet, "/v2/orders/"+orderID, nil, &ord); err != nil {
			return nil, err
		}

		switch ord.Status {
		case "filled":
			qty, err := strconv.ParseFloat(ord.FilledQty, 64)
			if err != nil {
				return nil, fmt.Errorf("parse filled_qty %q: %w", ord.FilledQty, err)
			}
			price, err := strconv.ParseFloat(ord.FilledAvgPrice, 64)
			if err != nil {
				return nil, fmt.Errorf("parse filled_avg_price %q: %w", ord.FilledAvgPrice, err)
			}
			return &domain.OrderAck{OrderID: orderID, FilledQty: qty, FilledPrice: price}, nil
		case "rejected", "canceled", "expired":
			return nil, fmt.Errorf("order %s ended %s", orderID, ord.Status)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for fill of order %s: %w", orderID, ctx.Err())
		case <-ticker.C:
		}
	}
}

type brokerPosition struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	AvgEntryPrice string `json:"avg_entry_price"`
}

// GetPositions implements domain.BrokerClient.
func (c *Client) GetPositions(ctx context.Context) ([]domain.Position, error) {
	var raw []brokerPosition
	if err := c.do(ctx, http.MethodGet, "/v2/positions", nil, &raw); err != nil {
		return nil, err
	}

	positions := make([]domain.Position, 0, len(raw))
	for _, bp := range raw {
		qty, err := strconv.ParseFloat(bp.Qty, 64)
		if err != nil {
			return nil, fmt.Errorf("parse position qty %q: %w", bp.Qty, err)
		}
		avg, err := strconv.ParseFloat(bp.AvgEntryPrice, 64)
		if err != nil {
			return nil, fmt.Errorf("parse avg_entry_price %q: %w", bp.AvgEntryPrice, err)
		}
		positions = append(positions, domain.Position{
			Ticker:      bp.Symbol,
			Quantity:    qty,
			AverageCost: avg,
		})
	}
	return positions, nil
}

// GetCash implements domain.BrokerClient.
func (c *Client) GetCash(ctx context.Context) (float64, error) {
	var account struct {
		Cash string `json:"cash"`
	}
	if err := c.do(ctx, http.MethodGet, "/v2/account", nil, &account); err != nil {
		return 0, err
	}
	cash, err := strconv.ParseFloat(account.Cash, 64)
	if err != nil {
		return 0, fmt.Errorf("parse cash %q: %w", account.Cash, err)
	}
	return cash, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("APCA-API-KEY-ID", c.apiKey)
	req.Header.Set("APCA-API-SECRET-KEY", c.apiSecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, string(msg))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

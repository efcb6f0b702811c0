// Package oracle talks to the external decision service.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/meridianfund/meridian/internal/domain"
)

const requestTimeout = 30 * time.Second

// Client asks a remote decision service to propose an action for a ticker
// given the aggregated signal, risk limits and current holdings. The service
// is advisory: its proposal is validated downstream before anything trades.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     zerolog.Logger
}

var _ domain.Oracle = (*Client)(nil)

// NewClient creates an oracle client.
func NewClient(baseURL, apiKey string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: requestTimeout},
		log:     log.With().Str("client", "oracle").Logger(),
	}
}

type proposalRequest struct {
	Ticker           string  `json:"ticker"`
	Direction        string  `json:"direction"`
	Confidence       float64 `json:"confidence"`
	MaxPositionValue float64 `json:"max_position_value"`
	CurrentQuantity  float64 `json:"current_quantity"`
	AvailableCash    float64 `json:"available_cash"`
	Price            float64 `json:"price"`
}

type proposalResponse struct {
	Action     string  `json:"action"`
	Quantity   float64 `json:"quantity"`
	Reasoning  string  `json:"reasoning"`
	Confidence float64 `json:"confidence"`
}

// ProposeDecision implements domain.Oracle. All failures are wrapped as
// *domain.OracleError so the decision engine can degrade to HOLD.
func (c *Client) ProposeDecision(ctx context.Context, oc domain.OracleContext) (*domain.Decision, error) {
	reqBody := proposalRequest{
		Ticker:           oc.Ticker,
		Direction:        string(oc.Signal.Direction),
		Confidence:       oc.Signal.Confidence,
		MaxPositionValue: oc.Risk.MaxPositionValue,
		CurrentQuantity:  oc.Position.Quantity,
		AvailableCash:    oc.AvailableCash,
		Price:            oc.Price,
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &domain.OracleError{Ticker: oc.Ticker, Err: err}
	}

	url := c.baseURL + "/v1/decisions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &domain.OracleError{Ticker: oc.Ticker, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &domain.OracleError{Ticker: oc.Ticker, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &domain.OracleError{
			Ticker: oc.Ticker,
			Err:    fmt.Errorf("decision service returned %d: %s", resp.StatusCode, string(body)),
		}
	}

	var pr proposalResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return nil, &domain.OracleError{Ticker: oc.Ticker, Err: err}
	}

	action, err := parseAction(pr.Action)
	if err != nil {
		return nil, &domain.OracleError{Ticker: oc.Ticker, Err: err}
	}

	c.log.Debug().
		Str("ticker", oc.Ticker).
		Str("action", pr.Action).
		Float64("quantity", pr.Quantity).
		Msg("Decision proposal received")

	return &domain.Decision{
		Ticker:     oc.Ticker,
		Action:     action,
		Quantity:   pr.Quantity,
		Confidence: pr.Confidence,
		Reasoning:  pr.Reasoning,
	}, nil
}

func parseAction(s string) (domain.Action, error) {
	switch domain.Action(s) {
	case domain.ActionBuy, domain.ActionSell, domain.ActionHold:
		return domain.Action(s), nil
	default:
		return "", fmt.Errorf("unknown action %q", s)
	}
}

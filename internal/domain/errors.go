package domain

import "fmt"

// DataFetchError indicates a market-data retrieval failure.
type DataFetchError struct {
	Ticker   string
	Endpoint string
	Err      error
}

func (e *DataFetchError) Error() string {
	return fmt.Sprintf("data fetch failed for %s (%s): %v", e.Ticker, e.Endpoint, e.Err)
}

func (e *DataFetchError) Unwrap() error { return e.Err }

// AnalystTimeoutError indicates an analyst did not return within its budget.
type AnalystTimeoutError struct {
	Analyst string
	Ticker  string
}

func (e *AnalystTimeoutError) Error() string {
	return fmt.Sprintf("analyst %s timed out for %s", e.Analyst, e.Ticker)
}

// OracleError indicates the reasoning oracle call failed or returned an
// unusable response.
type OracleError struct {
	Ticker string
	Err    error
}

func (e *OracleError) Error() string {
	return fmt.Sprintf("oracle call failed for %s: %v", e.Ticker, e.Err)
}

func (e *OracleError) Unwrap() error { return e.Err }

// DecisionInvalidError indicates a decision that cannot be repaired by
// clamping, e.g. one referencing a ticker outside the requested universe.
type DecisionInvalidError struct {
	Ticker string
	Reason string
}

func (e *DecisionInvalidError) Error() string {
	return fmt.Sprintf("invalid decision for %s: %s", e.Ticker, e.Reason)
}

// OrderError indicates an order submission or fill failure. The ledger is
// never mutated when an OrderError occurs.
type OrderError struct {
	Ticker string
	Side   Action
	Err    error
}

func (e *OrderError) Error() string {
	return fmt.Sprintf("order %s %s failed: %v", e.Side, e.Ticker, e.Err)
}

func (e *OrderError) Unwrap() error { return e.Err }

// ConfigError indicates invalid configuration. Fatal at startup, before any
// cycle runs.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

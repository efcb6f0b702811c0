package analysts

import "errors"

var (
	errInsufficientHistory = errors.New("insufficient price history")
	errNoMetrics           = errors.New("no financial metrics available")
)

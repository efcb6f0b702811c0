package backtest

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func curve(values ...float64) []EquityPoint {
	points := make([]EquityPoint, len(values))
	for i, v := range values {
		points[i] = EquityPoint{Date: "2026-01-02", Value: v}
	}
	return points
}

func TestComputeMetricsTotalReturn(t *testing.T) {
	r := &Result{
		InitialValue: 100000,
		FinalValue:   112000,
		EquityCurve:  curve(100000, 112000),
	}
	computeMetrics(r)
	assert.InDelta(t, 0.12, r.TotalReturn, 1e-9)
}

func TestComputeMetricsFlatCurveHasNoVol(t *testing.T) {
	r := &Result{
		InitialValue: 100000,
		FinalValue:   100000,
		EquityCurve:  curve(100000, 100000, 100000, 100000),
	}
	computeMetrics(r)
	assert.Equal(t, 0.0, r.TotalReturn)
	assert.Equal(t, 0.0, r.AnnualizedVol)
	assert.Equal(t, 0.0, r.AnnualizedSharpe)
	assert.Equal(t, 0.0, r.MaxDrawdown)
}

func TestComputeMetricsDrawdown(t *testing.T) {
	// Peak 120k, trough 90k: drawdown 25%.
	r := &Result{
		InitialValue: 100000,
		FinalValue:   110000,
		EquityCurve:  curve(100000, 120000, 90000, 110000),
	}
	computeMetrics(r)
	assert.InDelta(t, 0.25, r.MaxDrawdown, 1e-9)
}

func TestComputeMetricsSharpeAnnualization(t *testing.T) {
	// Alternating +1%/-1% days: mean near zero, positive volatility.
	values := []float64{100000}
	for i := 0; i < 20; i++ {
		last := values[len(values)-1]
		if i%2 == 0 {
			values = append(values, last*1.01)
		} else {
			values = append(values, last*0.99)
		}
	}
	r := &Result{
		InitialValue: values[0],
		FinalValue:   values[len(values)-1],
		EquityCurve:  curve(values...),
	}
	computeMetrics(r)

	assert.Greater(t, r.AnnualizedVol, 0.0)
	// Daily vol is ~1%, annualized by sqrt(252).
	assert.InDelta(t, 0.01*math.Sqrt(252), r.AnnualizedVol, 0.02)
	assert.Less(t, math.Abs(r.AnnualizedSharpe), 2.0)
}

func TestComputeMetricsShortCurve(t *testing.T) {
	r := &Result{
		InitialValue: 100000,
		FinalValue:   105000,
		EquityCurve:  curve(105000),
	}
	computeMetrics(r)
	assert.InDelta(t, 0.05, r.TotalReturn, 1e-9)
	assert.Equal(t, 0.0, r.AnnualizedVol)
}

package formulas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateSMA(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5}

	sma := CalculateSMA(closes, 5)
	require.NotNil(t, sma)
	assert.InDelta(t, 3, *sma, 1e-9)

	sma = CalculateSMA(closes, 3)
	require.NotNil(t, sma)
	assert.InDelta(t, 4, *sma, 1e-9, "SMA of the last 3 closes")

	assert.Nil(t, CalculateSMA(closes, 6), "insufficient data")
	assert.Nil(t, CalculateSMA(nil, 3))
}

func TestCalculateRSI(t *testing.T) {
	// Monotonically rising closes drive RSI to 100
	rising := make([]float64, 20)
	for i := range rising {
		rising[i] = float64(100 + i)
	}

	rsi := CalculateRSI(rising, 14)
	require.NotNil(t, rsi)
	assert.InDelta(t, 100, *rsi, 1e-6)

	falling := make([]float64, 20)
	for i := range falling {
		falling[i] = float64(100 - i)
	}
	rsi = CalculateRSI(falling, 14)
	require.NotNil(t, rsi)
	assert.InDelta(t, 0, *rsi, 1e-6)

	assert.Nil(t, CalculateRSI(rising[:14], 14), "needs length+1 closes")
}

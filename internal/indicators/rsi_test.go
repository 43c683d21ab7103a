package indicators

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"rsi-sentry/pkg/types"
)

var baseTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func candlesFromCloses(closes ...float64) []types.Candle {
	out := make([]types.Candle, len(closes))
	for i, c := range closes {
		out[i] = types.Candle{
			Symbol:    "BTCUSDT",
			Timeframe: types.OneHour,
			OpenTime:  baseTime.Add(time.Duration(i) * time.Hour),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
		}
	}
	return out
}

func ramp(n int, start, step float64) []types.Candle {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = start + float64(i)*step
	}
	return candlesFromCloses(closes...)
}

func TestComputeRSIInsufficientHistory(t *testing.T) {
	for n := 0; n <= 14; n++ {
		assert.Empty(t, ComputeRSI(ramp(n, 100, 1), 14), "n=%d", n)
	}
	assert.Len(t, ComputeRSI(ramp(15, 100, 1), 14), 1)
	assert.Empty(t, ComputeRSI(ramp(30, 100, 1), 0))
}

func TestComputeRSISuffixAligned(t *testing.T) {
	candles := ramp(40, 100, 1)
	series := ComputeRSI(candles, 14)
	require.Len(t, series, len(candles)-14)

	offset := len(candles) - len(series)
	for i, p := range series {
		assert.Equal(t, candles[offset+i].OpenTime, p.Timestamp)
	}
}

func TestComputeRSIMonotonic(t *testing.T) {
	t.Run("rising holds at 100", func(t *testing.T) {
		for _, p := range ComputeRSI(ramp(50, 100, 1), 14) {
			assert.Equal(t, 100.0, p.Value)
		}
	})

	t.Run("falling holds at 0", func(t *testing.T) {
		for _, p := range ComputeRSI(ramp(50, 200, -1), 14) {
			assert.InDelta(t, 0.0, p.Value, 1e-9)
		}
	})

	t.Run("flat clamps to 100", func(t *testing.T) {
		for _, p := range ComputeRSI(ramp(30, 100, 0), 14) {
			assert.Equal(t, 100.0, p.Value)
		}
	})
}

func TestComputeRSIKnownValues(t *testing.T) {
	// Wilder 原书示例数据
	closes := []float64{
		44.34, 44.09, 44.15, 43.61, 44.33, 44.83, 45.10, 45.42,
		45.84, 46.08, 45.89, 46.03, 45.61, 46.28, 46.28, 46.00,
		46.03, 46.41, 46.22, 45.64,
	}
	series := ComputeRSI(candlesFromCloses(closes...), 14)
	require.Len(t, series, 6)
	assert.InDelta(t, 70.464, series[0].Value, 0.001)
	assert.InDelta(t, 66.250, series[1].Value, 0.001)
	assert.InDelta(t, 66.481, series[2].Value, 0.001)
	assert.InDelta(t, 69.347, series[3].Value, 0.001)
	assert.InDelta(t, 66.295, series[4].Value, 0.001)
	assert.InDelta(t, 57.915, series[5].Value, 0.001)
}

func TestComputeRSIBoundedAndPure(t *testing.T) {
	closes := make([]float64, 120)
	x := 100.0
	for i := range closes {
		// 确定性的锯齿波动
		x += float64((i*7)%11) - 5
		closes[i] = x
	}
	candles := candlesFromCloses(closes...)

	first := ComputeRSI(candles, 14)
	second := ComputeRSI(candles, 14)
	assert.Equal(t, first, second)

	for _, p := range first {
		assert.GreaterOrEqual(t, p.Value, 0.0)
		assert.LessOrEqual(t, p.Value, 100.0)
	}
}

func TestRSICalculator(t *testing.T) {
	assert.Equal(t, DefaultRSIPeriod, NewRSICalculator(0).Period())

	rc := NewRSICalculator(5)
	assert.Equal(t, 5, rc.Period())
	assert.Equal(t, ComputeRSI(ramp(20, 10, 1), 5), rc.Calculate(ramp(20, 10, 1)))
}

package indicators

import "rsi-sentry/pkg/types"

// DefaultRSIPeriod 默认RSI周期
const DefaultRSIPeriod = 14

// RSICalculator Wilder平滑RSI计算器
type RSICalculator struct {
	period int
}

// NewRSICalculator 创建RSI计算器，period<=0 时使用默认周期
func NewRSICalculator(period int) *RSICalculator {
	if period <= 0 {
		period = DefaultRSIPeriod
	}
	return &RSICalculator{period: period}
}

// Period 计算周期
func (rc *RSICalculator) Period() int {
	return rc.period
}

// Calculate 计算RSI序列，与K线尾部对齐
func (rc *RSICalculator) Calculate(candles []types.Candle) []types.RsiPoint {
	return ComputeRSI(candles, rc.period)
}

// ComputeRSI 计算RSI序列。
// 前 period 个收盘价变化用于种子均值，第一个点对应 candles[period]；
// K线数量不足 period+1 时返回空序列。
func ComputeRSI(candles []types.Candle, period int) []types.RsiPoint {
	if period <= 0 || len(candles) < period+1 {
		return []types.RsiPoint{}
	}

	out := make([]types.RsiPoint, 0, len(candles)-period)
	p := float64(period)

	// 种子：前period个变化的简单平均
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		gain, loss := split(candles[i].Close - candles[i-1].Close)
		avgGain += gain
		avgLoss += loss
	}
	avgGain /= p
	avgLoss /= p
	out = append(out, types.RsiPoint{Timestamp: candles[period].OpenTime, Value: rsiValue(avgGain, avgLoss)})

	// Wilder平滑
	for i := period + 1; i < len(candles); i++ {
		gain, loss := split(candles[i].Close - candles[i-1].Close)
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
		out = append(out, types.RsiPoint{Timestamp: candles[i].OpenTime, Value: rsiValue(avgGain, avgLoss)})
	}

	return out
}

func split(delta float64) (gain, loss float64) {
	if delta > 0 {
		return delta, 0
	}
	return 0, -delta
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

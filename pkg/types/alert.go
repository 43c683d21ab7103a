package types

import "time"

const (
	// OverboughtThreshold RSI超买阈值
	OverboughtThreshold = 70.0
	// OversoldThreshold RSI超卖阈值
	OversoldThreshold = 30.0
)

// AlertStatus RSI所处区间
type AlertStatus string

const (
	StatusNeutral    AlertStatus = "neutral"
	StatusOverbought AlertStatus = "overbought"
	StatusOversold   AlertStatus = "oversold"
)

// Extreme 是否为超买或超卖
func (s AlertStatus) Extreme() bool {
	return s == StatusOverbought || s == StatusOversold
}

// Toast 一条状态切换产生的短时通知
type Toast struct {
	ID        string      `json:"id"`
	Symbol    string      `json:"symbol"`
	Timeframe Timeframe   `json:"timeframe"`
	RSIValue  float64     `json:"rsi_value"`
	Kind      AlertStatus `json:"kind"`
	CreatedAt time.Time   `json:"created_at"`
}

package types

import (
	"fmt"
	"time"
)

// Timeframe K线周期
type Timeframe string

const (
	OneMinute     Timeframe = "1m"
	FiveMinute    Timeframe = "5m"
	FifteenMinute Timeframe = "15m"
	ThirtyMinute  Timeframe = "30m"
	OneHour       Timeframe = "1h"
	TwoHour       Timeframe = "2h"
	FourHour      Timeframe = "4h"
	EightHour     Timeframe = "8h"
	OneDay        Timeframe = "1d"
	ThreeDay      Timeframe = "3d"
	OneWeek       Timeframe = "1w"
)

// DefaultTimeframe 默认展示周期
const DefaultTimeframe = OneHour

var timeframeDurations = map[Timeframe]time.Duration{
	OneMinute:     time.Minute,
	FiveMinute:    5 * time.Minute,
	FifteenMinute: 15 * time.Minute,
	ThirtyMinute:  30 * time.Minute,
	OneHour:       time.Hour,
	TwoHour:       2 * time.Hour,
	FourHour:      4 * time.Hour,
	EightHour:     8 * time.Hour,
	OneDay:        24 * time.Hour,
	ThreeDay:      72 * time.Hour,
	OneWeek:       7 * 24 * time.Hour,
}

// AlertTimeframes 允许触发预警的周期，过短的周期噪音太大
var AlertTimeframes = []Timeframe{
	FifteenMinute, ThirtyMinute, OneHour, TwoHour, FourHour,
	EightHour, OneDay, ThreeDay, OneWeek,
}

// ParseTimeframe 解析周期字符串
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if _, ok := timeframeDurations[tf]; !ok {
		return "", fmt.Errorf("unknown timeframe %q", s)
	}
	return tf, nil
}

// Valid 是否为可识别的周期
func (tf Timeframe) Valid() bool {
	_, ok := timeframeDurations[tf]
	return ok
}

// Duration 单根K线的时长，未知周期返回0
func (tf Timeframe) Duration() time.Duration {
	return timeframeDurations[tf]
}

func (tf Timeframe) String() string {
	return string(tf)
}

// Candle K线数据，获取后不再修改
type Candle struct {
	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe"`
	OpenTime  time.Time `json:"open_time"`
	CloseTime time.Time `json:"close_time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// RsiPoint RSI序列中的一个点，Value 在 [0,100]
type RsiPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// SymbolData 单个交易对一次刷新的结果
type SymbolData struct {
	Symbol    string     `json:"symbol"`
	Timeframe Timeframe  `json:"timeframe"`
	Candles   []Candle   `json:"candles"`
	RSI       []RsiPoint `json:"rsi"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// LatestRSI 最新的RSI点，序列为空时返回false
func (sd SymbolData) LatestRSI() (RsiPoint, bool) {
	if len(sd.RSI) == 0 {
		return RsiPoint{}, false
	}
	return sd.RSI[len(sd.RSI)-1], true
}

// Snapshot 一个刷新周期产出的完整快照，发布后只读
type Snapshot struct {
	Timeframe   Timeframe             `json:"timeframe"`
	Symbols     map[string]SymbolData `json:"symbols"`
	Generation  uint64                `json:"generation"`
	CompletedAt time.Time             `json:"completed_at"`
}

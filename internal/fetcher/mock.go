package fetcher

import (
	"context"
	"sync"
	"time"

	"rsi-sentry/pkg/types"
)

// MockFetcher 返回可控的固定数据，用于开发和测试
type MockFetcher struct {
	mu      sync.Mutex
	Closes  map[string][]float64
	Errors  map[string]error
	Delay   time.Duration
	calls   map[string]int
	BaseNow time.Time
}

// NewMockFetcher 创建mock数据源
func NewMockFetcher() *MockFetcher {
	return &MockFetcher{
		Closes:  make(map[string][]float64),
		Errors:  make(map[string]error),
		calls:   make(map[string]int),
		BaseNow: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *MockFetcher) Name() string { return "mock" }

// SetCloses 设置某个交易对的收盘价序列
func (m *MockFetcher) SetCloses(symbol string, closes ...float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closes[symbol] = closes
	delete(m.Errors, symbol)
}

// SetError 让某个交易对的获取失败
func (m *MockFetcher) SetError(symbol string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors[symbol] = err
}

// Calls 某个交易对被请求的次数
func (m *MockFetcher) Calls(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[symbol]
}

func (m *MockFetcher) FetchCandles(ctx context.Context, symbol string, timeframe types.Timeframe, limit int) ([]types.Candle, error) {
	m.mu.Lock()
	m.calls[symbol]++
	closes := m.Closes[symbol]
	err := m.Errors[symbol]
	delay := m.Delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, newFetchError(symbol, timeframe, ctx.Err())
		case <-time.After(delay):
		}
	}
	if err != nil {
		return nil, newFetchError(symbol, timeframe, err)
	}

	if limit > 0 && len(closes) > limit {
		closes = closes[len(closes)-limit:]
	}
	step := timeframe.Duration()
	if step == 0 {
		step = time.Minute
	}
	bars := make([]types.Candle, len(closes))
	for i, c := range closes {
		open := m.BaseNow.Add(time.Duration(i) * step)
		bars[i] = types.Candle{
			Symbol:    symbol,
			Timeframe: timeframe,
			OpenTime:  open,
			CloseTime: open.Add(step),
			Open:      c,
			High:      c * 1.001,
			Low:       c * 0.999,
			Close:     c,
			Volume:    1000,
		}
	}
	return bars, nil
}

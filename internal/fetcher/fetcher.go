package fetcher

import (
	"context"
	"errors"
	"fmt"

	"rsi-sentry/pkg/types"
)

// ErrFetch 所有获取失败都包装该错误，调用方可用 errors.Is 判断
var ErrFetch = errors.New("fetch candles failed")

// FetchError 单个交易对的获取失败
type FetchError struct {
	Symbol    string
	Timeframe types.Timeframe
	Err       error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s %s: %v", e.Symbol, e.Timeframe, e.Err)
}

func (e *FetchError) Unwrap() []error {
	return []error{ErrFetch, e.Err}
}

func newFetchError(symbol string, tf types.Timeframe, err error) error {
	return &FetchError{Symbol: symbol, Timeframe: tf, Err: err}
}

// Fetcher 历史K线数据源
type Fetcher interface {
	FetchCandles(ctx context.Context, symbol string, timeframe types.Timeframe, limit int) ([]types.Candle, error)
	Name() string
}

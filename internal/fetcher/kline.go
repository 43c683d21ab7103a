package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"rsi-sentry/pkg/types"
)

// KlineFetcher 历史K线数据获取器，兼容 /api/v3/klines 接口
type KlineFetcher struct {
	baseURL    string
	httpClient *http.Client
}

// 确保 KlineFetcher 实现 Fetcher 接口
var _ Fetcher = (*KlineFetcher)(nil)

// NewKlineFetcher 创建历史K线获取器
func NewKlineFetcher(cfg types.FetchConfig) *KlineFetcher {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	client := &http.Client{
		Timeout: timeout,
	}

	// 设置代理
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err == nil {
			client.Transport = &http.Transport{
				Proxy: http.ProxyURL(proxyURL),
			}
			zap.L().Info("✅ 已配置HTTP代理", zap.String("proxy", cfg.Proxy))
		} else {
			zap.L().Warn("⚠️ 代理地址格式错误", zap.Error(err))
		}
	}

	return &KlineFetcher{
		baseURL:    cfg.BaseURL,
		httpClient: client,
	}
}

func (k *KlineFetcher) Name() string { return "klines" }

// FetchCandles 获取历史K线，按开盘时间升序返回
func (k *KlineFetcher) FetchCandles(ctx context.Context, symbol string, timeframe types.Timeframe, limit int) ([]types.Candle, error) {
	if !timeframe.Valid() {
		return nil, newFetchError(symbol, timeframe, fmt.Errorf("unsupported timeframe"))
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", string(timeframe))
	params.Set("limit", strconv.Itoa(limit))
	requestURL := k.baseURL + "/api/v3/klines?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, newFetchError(symbol, timeframe, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("User-Agent", "RSI-Sentry/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return nil, newFetchError(symbol, timeframe, fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newFetchError(symbol, timeframe, fmt.Errorf("read body: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(body, "msg").String()
		return nil, newFetchError(symbol, timeframe, fmt.Errorf("http status %d: %s", resp.StatusCode, msg))
	}

	candles, err := ParseKlines(body, symbol, timeframe)
	if err != nil {
		return nil, newFetchError(symbol, timeframe, err)
	}

	zap.L().Debug("✅ 历史K线数据获取完成",
		zap.String("symbol", symbol),
		zap.String("timeframe", timeframe.String()),
		zap.Int("requested", limit),
		zap.Int("received", len(candles)))

	return candles, nil
}

// ParseKlines 解析K线数组：[openTime, open, high, low, close, volume, closeTime, ...]
func ParseKlines(body []byte, symbol string, timeframe types.Timeframe) ([]types.Candle, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid json response")
	}
	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		if code := root.Get("code"); code.Exists() {
			return nil, fmt.Errorf("api error: code=%d, msg=%s", code.Int(), root.Get("msg").String())
		}
		return nil, fmt.Errorf("unexpected response shape")
	}

	rows := root.Array()
	candles := make([]types.Candle, 0, len(rows))
	for i, row := range rows {
		fields := row.Array()
		if len(fields) < 6 {
			return nil, fmt.Errorf("kline row %d: expected at least 6 fields, got %d", i, len(fields))
		}

		candle := types.Candle{
			Symbol:    symbol,
			Timeframe: timeframe,
			OpenTime:  time.UnixMilli(fields[0].Int()).UTC(),
		}
		if len(fields) > 6 {
			candle.CloseTime = time.UnixMilli(fields[6].Int()).UTC()
		} else {
			candle.CloseTime = candle.OpenTime.Add(timeframe.Duration())
		}

		values := []*float64{&candle.Open, &candle.High, &candle.Low, &candle.Close, &candle.Volume}
		for j, dst := range values {
			v, err := strconv.ParseFloat(fields[j+1].String(), 64)
			if err != nil {
				return nil, fmt.Errorf("kline row %d field %d: %w", i, j+1, err)
			}
			*dst = v
		}

		candles = append(candles, candle)
	}

	return normalize(candles), nil
}

// normalize 按开盘时间升序并去掉重复时间戳（保留最后出现的一条）
func normalize(candles []types.Candle) []types.Candle {
	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].OpenTime.Before(candles[j].OpenTime)
	})

	out := candles[:0]
	for _, c := range candles {
		if n := len(out); n > 0 && out[n-1].OpenTime.Equal(c.OpenTime) {
			out[n-1] = c
			continue
		}
		out = append(out, c)
	}
	return out
}

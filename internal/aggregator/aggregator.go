package aggregator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"rsi-sentry/internal/fetcher"
	"rsi-sentry/internal/indicators"
	"rsi-sentry/pkg/types"
)

// FailureReporter 接收单个交易对的获取失败
type FailureReporter interface {
	ReportFetchFailure(symbol string, timeframe types.Timeframe, err error)
}

// Config 聚合器配置
type Config struct {
	Fetcher    fetcher.Fetcher
	Calculator *indicators.RSICalculator
	Limit      int // 每个交易对拉取的K线数量
	Reporter   FailureReporter
	Symbols    []string
	Timeframe  types.Timeframe
}

// Aggregator 并发获取所有交易对的K线并计算RSI，每个周期整体替换快照
type Aggregator struct {
	fetcher  fetcher.Fetcher
	calc     *indicators.RSICalculator
	limit    int
	reporter FailureReporter

	mu         sync.Mutex // 保护 symbols/timeframe/generation 与快照提交
	symbols    []string
	timeframe  types.Timeframe
	generation uint64

	inFlight atomic.Bool
	snapshot atomic.Pointer[types.Snapshot]
}

// New 创建聚合器
func New(cfg Config) *Aggregator {
	calc := cfg.Calculator
	if calc == nil {
		calc = indicators.NewRSICalculator(indicators.DefaultRSIPeriod)
	}
	tf := cfg.Timeframe
	if !tf.Valid() {
		tf = types.DefaultTimeframe
	}

	a := &Aggregator{
		fetcher:   cfg.Fetcher,
		calc:      calc,
		limit:     cfg.Limit,
		reporter:  cfg.Reporter,
		symbols:   append([]string(nil), cfg.Symbols...),
		timeframe: tf,
	}
	a.snapshot.Store(&types.Snapshot{Timeframe: tf, Symbols: map[string]types.SymbolData{}})
	return a
}

// Reconfigure 切换跟踪的交易对和周期，进行中的旧周期结果会被丢弃
func (a *Aggregator) Reconfigure(symbols []string, timeframe types.Timeframe) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.symbols = append([]string(nil), symbols...)
	if timeframe.Valid() {
		a.timeframe = timeframe
	}
	a.generation++
	return a.generation
}

// Tracking 当前跟踪的交易对和周期
func (a *Aggregator) Tracking() ([]string, types.Timeframe) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.symbols...), a.timeframe
}

// Snapshot 最近一次发布的快照
func (a *Aggregator) Snapshot() types.Snapshot {
	return *a.snapshot.Load()
}

// InFlight 是否有刷新周期正在进行
func (a *Aggregator) InFlight() bool {
	return a.inFlight.Load()
}

type fetchResult struct {
	symbol string
	data   types.SymbolData
	err    error
}

// Refresh 执行一个刷新周期。
// 已有周期在进行时直接返回 false；周期期间发生 Reconfigure 时结果被丢弃，同样返回 false。
func (a *Aggregator) Refresh(ctx context.Context) (types.Snapshot, bool) {
	if !a.inFlight.CompareAndSwap(false, true) {
		zap.L().Debug("⏭️ 刷新周期进行中，跳过本次刷新")
		return a.Snapshot(), false
	}
	defer a.inFlight.Store(false)

	a.mu.Lock()
	symbols := append([]string(nil), a.symbols...)
	timeframe := a.timeframe
	generation := a.generation
	a.mu.Unlock()

	// 并发获取，等待全部完成
	results := make([]fetchResult, len(symbols))
	var wg sync.WaitGroup
	for i, symbol := range symbols {
		wg.Add(1)
		go func(i int, symbol string) {
			defer wg.Done()
			results[i] = a.fetchSymbol(ctx, symbol, timeframe)
		}(i, symbol)
	}
	wg.Wait()

	a.mu.Lock()
	defer a.mu.Unlock()

	if generation != a.generation {
		zap.L().Info("🗑️ 丢弃过期的刷新结果",
			zap.Uint64("generation", generation),
			zap.Uint64("current", a.generation))
		return a.Snapshot(), false
	}

	prev := a.snapshot.Load()
	next := make(map[string]types.SymbolData, len(results))
	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
			a.report(r.symbol, timeframe, r.err)
			// 保留旧数据
			if old, ok := prev.Symbols[r.symbol]; ok {
				next[r.symbol] = old
			}
			continue
		}
		next[r.symbol] = r.data
	}

	snap := &types.Snapshot{
		Timeframe:   timeframe,
		Symbols:     next,
		Generation:  generation,
		CompletedAt: time.Now(),
	}
	a.snapshot.Store(snap)

	zap.L().Info("✅ 刷新周期完成",
		zap.String("timeframe", timeframe.String()),
		zap.Int("symbols", len(symbols)),
		zap.Int("failed", failed))

	return *snap, true
}

func (a *Aggregator) fetchSymbol(ctx context.Context, symbol string, timeframe types.Timeframe) fetchResult {
	candles, err := a.fetcher.FetchCandles(ctx, symbol, timeframe, a.limit)
	if err != nil {
		return fetchResult{symbol: symbol, err: err}
	}
	return fetchResult{
		symbol: symbol,
		data: types.SymbolData{
			Symbol:    symbol,
			Timeframe: timeframe,
			Candles:   candles,
			RSI:       a.calc.Calculate(candles),
			UpdatedAt: time.Now(),
		},
	}
}

func (a *Aggregator) report(symbol string, timeframe types.Timeframe, err error) {
	zap.L().Warn("❌ 获取K线失败，保留上一次数据",
		zap.String("symbol", symbol),
		zap.String("timeframe", timeframe.String()),
		zap.Error(err))
	if a.reporter != nil {
		a.reporter.ReportFetchFailure(symbol, timeframe, err)
	}
}

package analyzer

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"rsi-sentry/pkg/types"
)

// Publisher 接收新产生的通知，通常是通知队列
type Publisher interface {
	Push(toast types.Toast) types.Toast
}

// Recorder 记录已触发的预警
type Recorder interface {
	RecordAlert(toast types.Toast) error
}

// Config 分析引擎配置
type Config struct {
	Enabled    bool
	Timeframes []types.Timeframe // 允许预警的周期，为空时使用默认列表
	Publisher  Publisher
	Recorder   Recorder
}

// AnalysisEngine RSI区间状态机，只在区间切换进入超买/超卖时产生通知
type AnalysisEngine struct {
	table     *StatusTable
	publisher Publisher
	recorder  Recorder
	allowed   map[types.Timeframe]bool

	mu        sync.Mutex
	enabled   bool
	seeding   bool            // 重新启用后的第一个周期只记录状态
	timeframe types.Timeframe // 状态表对应的周期
}

// NewAnalysisEngine 创建分析引擎
func NewAnalysisEngine(cfg Config) *AnalysisEngine {
	tfs := cfg.Timeframes
	if len(tfs) == 0 {
		tfs = types.AlertTimeframes
	}
	allowed := make(map[types.Timeframe]bool, len(tfs))
	for _, tf := range tfs {
		allowed[tf] = true
	}

	return &AnalysisEngine{
		table:     NewStatusTable(),
		publisher: cfg.Publisher,
		recorder:  cfg.Recorder,
		allowed:   allowed,
		enabled:   cfg.Enabled,
	}
}

// Statuses 当前状态表
func (ae *AnalysisEngine) Statuses() *StatusTable {
	return ae.table
}

// Enabled 预警是否开启
func (ae *AnalysisEngine) Enabled() bool {
	ae.mu.Lock()
	defer ae.mu.Unlock()
	return ae.enabled
}

// SetEnabled 开关预警。关闭期间不跟踪状态，重新开启时清空状态表，
// 下一个周期只用最新值重建状态，不补发关闭期间的切换。
func (ae *AnalysisEngine) SetEnabled(enabled bool) {
	ae.mu.Lock()
	defer ae.mu.Unlock()

	if enabled && !ae.enabled {
		ae.table.Reset()
		ae.seeding = true
	}
	ae.enabled = enabled
	zap.L().Info("🔔 预警开关已更新", zap.Bool("enabled", enabled))
}

// AlertsTimeframe 该周期是否允许预警
func (ae *AnalysisEngine) AlertsTimeframe(tf types.Timeframe) bool {
	return ae.allowed[tf]
}

// Evaluate 用一个快照推进状态机，返回本周期产生的通知（未入队）
func (ae *AnalysisEngine) Evaluate(snap types.Snapshot) []types.Toast {
	ae.mu.Lock()
	defer ae.mu.Unlock()

	if !ae.enabled {
		return nil
	}
	// 切换周期后状态表从空开始，新周期上已处于极值的交易对照常通知一次
	if snap.Timeframe != ae.timeframe {
		ae.table.Reset()
		ae.timeframe = snap.Timeframe
	}
	if !ae.allowed[snap.Timeframe] {
		return nil
	}
	seeding := ae.seeding
	ae.seeding = false

	symbols := make([]string, 0, len(snap.Symbols))
	for symbol := range snap.Symbols {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	var toasts []types.Toast
	for _, symbol := range symbols {
		data := snap.Symbols[symbol]
		// 其他周期遗留的旧数据不参与判断
		if data.Timeframe != snap.Timeframe {
			continue
		}
		latest, ok := data.LatestRSI()
		if !ok {
			continue
		}

		status := Classify(latest.Value)
		_, changed := ae.table.Update(symbol, status)
		if seeding || !changed || !status.Extreme() {
			continue
		}

		toasts = append(toasts, types.Toast{
			Symbol:    symbol,
			Timeframe: snap.Timeframe,
			RSIValue:  latest.Value,
			Kind:      status,
			CreatedAt: time.Now(),
		})
	}
	return toasts
}

// Analyze 推进状态机并把通知推送到队列、写入预警记录
func (ae *AnalysisEngine) Analyze(snap types.Snapshot) []types.Toast {
	toasts := ae.Evaluate(snap)
	if len(toasts) == 0 {
		return nil
	}

	published := make([]types.Toast, 0, len(toasts))
	for _, toast := range toasts {
		if ae.publisher != nil {
			toast = ae.publisher.Push(toast)
		}
		if ae.recorder != nil {
			if err := ae.recorder.RecordAlert(toast); err != nil {
				zap.L().Error("❌ 记录预警失败", zap.String("symbol", toast.Symbol), zap.Error(err))
			}
		}
		published = append(published, toast)
	}

	zap.L().Info("🚨 RSI预警触发",
		zap.String("timeframe", snap.Timeframe.String()),
		zap.Int("count", len(published)))
	return published
}

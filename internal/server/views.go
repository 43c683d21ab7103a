package server

import (
	"sort"
	"time"

	"rsi-sentry/internal/analyzer"
	"rsi-sentry/pkg/types"
)

// SymbolView 单个交易对的展示数据
type SymbolView struct {
	Symbol    string            `json:"symbol"`
	Timeframe types.Timeframe   `json:"timeframe"`
	LatestRSI *float64          `json:"latest_rsi"`
	Zone      types.AlertStatus `json:"zone"`
	Status    types.AlertStatus `json:"status"` // 状态机记录的状态，预警关闭时可能落后于 zone
	Candles   []types.Candle    `json:"candles"`
	RSI       []types.RsiPoint  `json:"rsi"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// SnapshotView 快照的展示形式，交易对按名称排序
type SnapshotView struct {
	Timeframe   types.Timeframe `json:"timeframe"`
	Generation  uint64          `json:"generation"`
	CompletedAt time.Time       `json:"completed_at"`
	Symbols     []SymbolView    `json:"symbols"`
}

// NewSnapshotView 生成展示数据，statuses 为空时 status 取 neutral
func NewSnapshotView(snap types.Snapshot, statuses *analyzer.StatusTable) SnapshotView {
	names := make([]string, 0, len(snap.Symbols))
	for name := range snap.Symbols {
		names = append(names, name)
	}
	sort.Strings(names)

	view := SnapshotView{
		Timeframe:   snap.Timeframe,
		Generation:  snap.Generation,
		CompletedAt: snap.CompletedAt,
		Symbols:     make([]SymbolView, 0, len(names)),
	}
	for _, name := range names {
		data := snap.Symbols[name]
		sv := SymbolView{
			Symbol:    name,
			Timeframe: data.Timeframe,
			Zone:      types.StatusNeutral,
			Status:    types.StatusNeutral,
			Candles:   data.Candles,
			RSI:       data.RSI,
			UpdatedAt: data.UpdatedAt,
		}
		if latest, ok := data.LatestRSI(); ok {
			value := latest.Value
			sv.LatestRSI = &value
			sv.Zone = analyzer.Classify(value)
		}
		if statuses != nil {
			sv.Status = statuses.Get(name)
		}
		view.Symbols = append(view.Symbols, sv)
	}
	return view
}

package analyzer

import (
	"sync"

	"rsi-sentry/pkg/types"
)

// Classify 根据RSI值判断所处区间
func Classify(value float64) types.AlertStatus {
	switch {
	case value >= types.OverboughtThreshold:
		return types.StatusOverbought
	case value <= types.OversoldThreshold:
		return types.StatusOversold
	default:
		return types.StatusNeutral
	}
}

// StatusTable 交易对 → 当前区间，只在进程生命周期内保存
type StatusTable struct {
	mu       sync.RWMutex
	statuses map[string]types.AlertStatus
}

// NewStatusTable 创建空状态表
func NewStatusTable() *StatusTable {
	return &StatusTable{statuses: make(map[string]types.AlertStatus)}
}

// Get 未记录的交易对视为 neutral
func (st *StatusTable) Get(symbol string) types.AlertStatus {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if s, ok := st.statuses[symbol]; ok {
		return s
	}
	return types.StatusNeutral
}

// Update 写入新状态，返回旧状态以及是否发生变化
func (st *StatusTable) Update(symbol string, status types.AlertStatus) (types.AlertStatus, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	prev, ok := st.statuses[symbol]
	if !ok {
		prev = types.StatusNeutral
	}
	st.statuses[symbol] = status
	return prev, prev != status
}

// Reset 清空所有状态
func (st *StatusTable) Reset() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.statuses = make(map[string]types.AlertStatus)
}

// Snapshot 状态表的副本
func (st *StatusTable) Snapshot() map[string]types.AlertStatus {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make(map[string]types.AlertStatus, len(st.statuses))
	for k, v := range st.statuses {
		out[k] = v
	}
	return out
}

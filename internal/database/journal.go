package database

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"rsi-sentry/pkg/types"
)

// AlertJournal 预警日志。未配置MySQL时使用内存实现。
type AlertJournal interface {
	RecordAlert(toast types.Toast) error
	ReportFetchFailure(symbol string, timeframe types.Timeframe, err error)
	RecentAlerts(symbol string, limit int) ([]AlertEvent, error)
	Close() error
}

// Open 按配置选择实现，Host为空或连接失败时退回内存日志
func Open(config types.MySQLConfig) AlertJournal {
	if config.Host == "" {
		return NewMemoryJournal(defaultMemoryCapacity)
	}
	j, err := NewJournal(config)
	if err != nil {
		zap.L().Warn("⚠️ MySQL不可用，预警日志只保存在内存中", zap.Error(err))
		return NewMemoryJournal(defaultMemoryCapacity)
	}
	return j
}

const defaultMemoryCapacity = 500

// MemoryJournal 只保留最近 capacity 条预警
type MemoryJournal struct {
	mu       sync.Mutex
	capacity int
	alerts   []AlertEvent
	failures int
	nextID   uint
}

// NewMemoryJournal 创建内存日志
func NewMemoryJournal(capacity int) *MemoryJournal {
	if capacity <= 0 {
		capacity = defaultMemoryCapacity
	}
	return &MemoryJournal{capacity: capacity}
}

func (m *MemoryJournal) RecordAlert(toast types.Toast) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	event := toAlertEvent(toast, time.Now())
	event.ID = m.nextID
	m.alerts = append(m.alerts, event)
	if over := len(m.alerts) - m.capacity; over > 0 {
		m.alerts = append([]AlertEvent(nil), m.alerts[over:]...)
	}
	return nil
}

func (m *MemoryJournal) ReportFetchFailure(_ string, _ types.Timeframe, _ error) {
	m.mu.Lock()
	m.failures++
	m.mu.Unlock()
}

// Failures 累计获取失败次数
func (m *MemoryJournal) Failures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures
}

// RecentAlerts 最新的在前
func (m *MemoryJournal) RecentAlerts(symbol string, limit int) ([]AlertEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	out := make([]AlertEvent, 0, limit)
	for i := len(m.alerts) - 1; i >= 0 && len(out) < limit; i-- {
		if symbol == "" || m.alerts[i].Symbol == symbol {
			out = append(out, m.alerts[i])
		}
	}
	return out, nil
}

func (m *MemoryJournal) Close() error { return nil }

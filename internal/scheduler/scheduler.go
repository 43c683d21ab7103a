package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"rsi-sentry/internal/aggregator"
	"rsi-sentry/internal/analyzer"
	"rsi-sentry/internal/storage"
	"rsi-sentry/pkg/types"
)

// DefaultInterval 默认刷新间隔
const DefaultInterval = time.Minute

// ErrNoSymbols 至少要跟踪一个交易对
var ErrNoSymbols = errors.New("no symbols to track")

// Broadcaster 每个周期结束后接收新快照
type Broadcaster interface {
	BroadcastSnapshot(snap types.Snapshot)
}

// Config 调度器配置
type Config struct {
	Aggregator  *aggregator.Aggregator
	Analyzer    *analyzer.AnalysisEngine
	Settings    *storage.SettingsStore // 可为空，为空时设置不持久化
	Broadcaster Broadcaster
	Interval    time.Duration
}

// Scheduler 定时触发刷新周期：拉取 → 计算RSI → 预警 → 推送快照
// 周期在单独的 goroutine 里串行执行，多次触发会合并成一次
type Scheduler struct {
	cron        *cron.Cron
	agg         *aggregator.Aggregator
	engine      *analyzer.AnalysisEngine
	settings    *storage.SettingsStore
	broadcaster Broadcaster
	interval    time.Duration

	mu      sync.Mutex // 串行化设置修改
	kick    chan struct{}
	done    chan struct{}
	started atomic.Bool
	cycles  atomic.Uint64
}

// NewScheduler 创建调度器
func NewScheduler(cfg Config) *Scheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		cron:        cron.New(),
		agg:         cfg.Aggregator,
		engine:      cfg.Analyzer,
		settings:    cfg.Settings,
		broadcaster: cfg.Broadcaster,
		interval:    interval,
		kick:        make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
}

// Start 注册定时任务并立即执行一个周期，ctx 取消后工作协程退出
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("scheduler already started")
	}
	schedule := "@every " + s.interval.String()
	if _, err := s.cron.AddFunc(schedule, s.Trigger); err != nil {
		s.started.Store(false)
		return fmt.Errorf("register refresh task: %w", err)
	}

	go s.loop(ctx)
	s.cron.Start()
	s.Trigger()

	symbols, tf := s.agg.Tracking()
	zap.L().Info("🚀 调度器启动",
		zap.Duration("interval", s.interval),
		zap.String("timeframe", tf.String()),
		zap.Strings("symbols", symbols))
	return nil
}

// Stop 停止定时任务并等待当前周期结束。调用前应先取消 Start 的 ctx。
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	if s.started.Load() {
		<-s.done
	}
	zap.L().Info("📴 调度器已停止")
}

// Trigger 请求执行一个周期，已有等待中的请求时合并
func (s *Scheduler) Trigger() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Cycles 已发布的周期数
func (s *Scheduler) Cycles() uint64 {
	return s.cycles.Load()
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.kick:
			s.RunCycle(ctx)
		}
	}
}

// RunCycle 同步执行一个周期。周期被跳过或被新配置取代时返回 false。
func (s *Scheduler) RunCycle(ctx context.Context) bool {
	start := time.Now()
	snap, ok := s.agg.Refresh(ctx)
	if !ok {
		return false
	}

	toasts := s.engine.Analyze(snap)
	if s.broadcaster != nil {
		s.broadcaster.BroadcastSnapshot(snap)
	}
	s.cycles.Add(1)

	zap.L().Debug("🔄 刷新周期完成",
		zap.String("timeframe", snap.Timeframe.String()),
		zap.Int("symbols", len(snap.Symbols)),
		zap.Int("alerts", len(toasts)),
		zap.Duration("elapsed", time.Since(start)))
	return true
}

// SetSymbols 更换跟踪的交易对并立即刷新
func (s *Scheduler) SetSymbols(ctx context.Context, symbols []string) ([]string, error) {
	cleaned := NormalizeSymbols(symbols)
	if len(cleaned) == 0 {
		return nil, ErrNoSymbols
	}

	s.mu.Lock()
	_, tf := s.agg.Tracking()
	s.agg.Reconfigure(cleaned, tf)
	s.mu.Unlock()

	s.Trigger()
	if s.settings != nil {
		if err := s.settings.SaveTrackedSymbols(ctx, cleaned); err != nil {
			return cleaned, fmt.Errorf("save tracked symbols: %w", err)
		}
	}
	zap.L().Info("📝 跟踪交易对已更新", zap.Strings("symbols", cleaned))
	return cleaned, nil
}

// SetTimeframe 切换周期并立即刷新
func (s *Scheduler) SetTimeframe(ctx context.Context, tf types.Timeframe) error {
	if !tf.Valid() {
		return fmt.Errorf("unknown timeframe %q", tf)
	}

	s.mu.Lock()
	symbols, _ := s.agg.Tracking()
	s.agg.Reconfigure(symbols, tf)
	s.mu.Unlock()

	s.Trigger()
	if s.settings != nil {
		if err := s.settings.SaveTimeframe(ctx, tf); err != nil {
			return fmt.Errorf("save timeframe: %w", err)
		}
	}
	zap.L().Info("📝 周期已切换", zap.String("timeframe", tf.String()))
	return nil
}

// SetAlertsEnabled 开关预警
func (s *Scheduler) SetAlertsEnabled(ctx context.Context, enabled bool) error {
	s.engine.SetEnabled(enabled)
	if s.settings != nil {
		if err := s.settings.SaveAlertsEnabled(ctx, enabled); err != nil {
			return fmt.Errorf("save alerts flag: %w", err)
		}
	}
	return nil
}

// State 当前的跟踪配置
type State struct {
	Symbols       []string        `json:"symbols"`
	Timeframe     types.Timeframe `json:"timeframe"`
	AlertsEnabled bool            `json:"alerts_enabled"`
}

// State 返回当前配置
func (s *Scheduler) State() State {
	symbols, tf := s.agg.Tracking()
	return State{Symbols: symbols, Timeframe: tf, AlertsEnabled: s.engine.Enabled()}
}

// NormalizeSymbols 去空白、转大写、去重，保持原顺序
func NormalizeSymbols(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

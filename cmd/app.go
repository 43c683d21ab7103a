package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"rsi-sentry/internal/aggregator"
	"rsi-sentry/internal/analyzer"
	"rsi-sentry/internal/annotation"
	"rsi-sentry/internal/database"
	"rsi-sentry/internal/fetcher"
	"rsi-sentry/internal/indicators"
	"rsi-sentry/internal/notifier"
	"rsi-sentry/internal/scheduler"
	"rsi-sentry/internal/server"
	"rsi-sentry/internal/storage"
	"rsi-sentry/pkg/types"
)

const shutdownTimeout = 30 * time.Second

// App 应用程序管理器
type App struct {
	config *types.Config
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	store     storage.Store
	journal   database.AlertJournal
	queue     *notifier.Queue
	scheduler *scheduler.Scheduler
	server    *server.Server
}

// NewApp 创建应用程序实例并组装各模块
func NewApp(config *types.Config) *App {
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{config: config, ctx: ctx, cancel: cancel}

	app.store = storage.Open(config.Redis)
	settingsStore := storage.NewSettingsStore(app.store)
	settings := settingsStore.Load(ctx, storage.Settings{
		TrackedSymbols: config.Symbols,
		AlertsEnabled:  config.Alert.Enabled,
		Timeframe:      types.Timeframe(config.Timeframe),
	})

	app.journal = database.Open(config.Database.MySQL)

	// 通知输出：控制台，配置了钉钉时同时推送
	app.queue = notifier.NewQueue(config.Notification.TTL, notifier.NewConsoleSink(os.Stdout))
	if dingTalk := notifier.NewDingTalkSink(config.DingTalk); dingTalk != nil {
		app.queue.AddSink(dingTalk)
	}

	agg := aggregator.New(aggregator.Config{
		Fetcher:    fetcher.NewKlineFetcher(config.Fetch),
		Calculator: indicators.NewRSICalculator(config.RSI.Period),
		Limit:      config.Fetch.Limit,
		Reporter:   app.journal,
		Symbols:    settings.TrackedSymbols,
		Timeframe:  settings.Timeframe,
	})
	engine := analyzer.NewAnalysisEngine(analyzer.Config{
		Enabled:    settings.AlertsEnabled,
		Timeframes: alertTimeframes(config.Alert.Timeframes),
		Publisher:  app.queue,
		Recorder:   app.journal,
	})

	hub := server.NewHub(engine.Statuses(), func() []server.Event {
		events := []server.Event{{
			Type: server.EventSnapshot,
			Data: server.NewSnapshotView(agg.Snapshot(), engine.Statuses()),
		}}
		for _, toast := range app.queue.List() {
			events = append(events, server.Event{Type: server.EventToast, Data: toast})
		}
		return events
	})
	app.queue.AddSink(hub)

	app.scheduler = scheduler.NewScheduler(scheduler.Config{
		Aggregator:  agg,
		Analyzer:    engine,
		Settings:    settingsStore,
		Broadcaster: hub,
		Interval:    config.Fetch.Interval,
	})

	app.server = server.New(config.Server.Addr, server.Deps{
		Aggregator: agg,
		Analyzer:   engine,
		Scheduler:  app.scheduler,
		Queue:      app.queue,
		Layer: annotation.NewLayer(annotation.Options{
			Store:           app.store,
			MinStrokePoints: config.Annotation.MinStrokePoints,
		}),
		Journal:  app.journal,
		Settings: settingsStore,
		Hub:      hub,
	})
	return app
}

func alertTimeframes(raw []string) []types.Timeframe {
	out := make([]types.Timeframe, 0, len(raw))
	for _, s := range raw {
		if tf, err := types.ParseTimeframe(s); err == nil {
			out = append(out, tf)
		}
	}
	return out
}

// Start 启动应用程序
func (app *App) Start() error {
	zap.L().Info("🚀 RSI Sentry 启动中...")

	if err := app.scheduler.Start(app.ctx); err != nil {
		return err
	}
	app.server.Start()

	zap.L().Info("✅ RSI Sentry 已启动", zap.String("addr", app.config.Server.Addr))
	return nil
}

// Stop 停止应用程序
func (app *App) Stop() {
	zap.L().Info("🛑 收到停止信号，正在优雅关闭...")
	app.cancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// 等待调度器和HTTP服务结束，最多等待30秒
	app.wg.Add(2)
	go func() {
		defer app.wg.Done()
		app.scheduler.Stop()
	}()
	go func() {
		defer app.wg.Done()
		if err := app.server.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("⚠️ HTTP服务关闭失败", zap.Error(err))
		}
	}()

	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("✅ RSI Sentry 已安全关闭")
	case <-shutdownCtx.Done():
		zap.L().Warn("⚠️ 强制关闭超时")
	}

	app.queue.Close()
	if err := app.journal.Close(); err != nil {
		zap.L().Warn("⚠️ 关闭预警日志失败", zap.Error(err))
	}
	if closer, ok := app.store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			zap.L().Warn("⚠️ 关闭Redis失败", zap.Error(err))
		}
	}
}

// WaitForShutdown 等待关闭信号
func (app *App) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}

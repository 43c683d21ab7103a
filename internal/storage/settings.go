package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"rsi-sentry/pkg/types"
)

const (
	keyTrackedSymbols = "trackedSymbols"
	keyFavorites      = "favorites"
	keyAlertsEnabled  = "alertsEnabled"
	keyTimeframe      = "timeframe"
)

// Settings 用户在界面上修改、需要跨重启保存的设置
type Settings struct {
	TrackedSymbols []string        `json:"tracked_symbols"`
	Favorites      []string        `json:"favorites"`
	AlertsEnabled  bool            `json:"alerts_enabled"`
	Timeframe      types.Timeframe `json:"timeframe"`
}

// SettingsStore 设置读写，每个字段单独存一个JSON值
type SettingsStore struct {
	store Store
}

// NewSettingsStore 创建设置存储
func NewSettingsStore(store Store) *SettingsStore {
	return &SettingsStore{store: store}
}

// Load 读取设置。缺失或损坏的值按缺失处理，使用 defaults 中的对应字段。
func (ss *SettingsStore) Load(ctx context.Context, defaults Settings) Settings {
	out := defaults

	var symbols []string
	if ss.read(ctx, keyTrackedSymbols, &symbols) {
		if len(symbols) > 0 {
			out.TrackedSymbols = symbols
		} else {
			zap.L().Warn("⚠️ 存储的交易对列表为空，使用默认值")
		}
	}
	var favorites []string
	if ss.read(ctx, keyFavorites, &favorites) {
		out.Favorites = favorites
	}
	var enabled bool
	if ss.read(ctx, keyAlertsEnabled, &enabled) {
		out.AlertsEnabled = enabled
	}
	var tf types.Timeframe
	if ss.read(ctx, keyTimeframe, &tf) {
		if tf.Valid() {
			out.Timeframe = tf
		} else {
			zap.L().Warn("⚠️ 存储的周期无法识别，使用默认值", zap.String("timeframe", string(tf)))
		}
	}
	return out
}

// SaveTrackedSymbols 保存跟踪的交易对
func (ss *SettingsStore) SaveTrackedSymbols(ctx context.Context, symbols []string) error {
	return ss.write(ctx, keyTrackedSymbols, symbols)
}

// SaveFavorites 保存收藏
func (ss *SettingsStore) SaveFavorites(ctx context.Context, favorites []string) error {
	return ss.write(ctx, keyFavorites, favorites)
}

// SaveAlertsEnabled 保存预警开关
func (ss *SettingsStore) SaveAlertsEnabled(ctx context.Context, enabled bool) error {
	return ss.write(ctx, keyAlertsEnabled, enabled)
}

// SaveTimeframe 保存当前周期
func (ss *SettingsStore) SaveTimeframe(ctx context.Context, tf types.Timeframe) error {
	return ss.write(ctx, keyTimeframe, tf)
}

func (ss *SettingsStore) read(ctx context.Context, key string, dst any) bool {
	return ReadJSON(ctx, ss.store, key, dst)
}

func (ss *SettingsStore) write(ctx context.Context, key string, v any) error {
	return WriteJSON(ctx, ss.store, key, v)
}

// ReadJSON 读取并解析一个JSON值。不存在、读取失败或JSON损坏都返回false。
func ReadJSON(ctx context.Context, store Store, key string, dst any) bool {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false
	}
	if err != nil {
		zap.L().Warn("⚠️ 读取存储失败，使用默认值", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		zap.L().Warn("⚠️ 存储的JSON已损坏，使用默认值", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// WriteJSON 序列化并写入一个JSON值
func WriteJSON(ctx context.Context, store Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return store.Set(ctx, key, raw)
}

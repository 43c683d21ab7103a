package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"rsi-sentry/pkg/types"
)

// Load 加载配置，path 为空时按 ./configs 和 . 查找
func Load(path string) (*types.Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// 设置默认值
	setDefaults(v)

	// 读取环境变量，如 SENTRY_FETCH_INTERVAL
	v.SetEnvPrefix("sentry")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")

		// 优先尝试读取本地配置文件
		v.SetConfigName("config.local")
		if err := v.ReadInConfig(); err != nil {
			// 如果本地配置文件不存在，尝试读取默认配置文件
			v.SetConfigName("config")
			if err := v.ReadInConfig(); err != nil {
				var configFileNotFoundError viper.ConfigFileNotFoundError
				if !errors.As(err, &configFileNotFoundError) {
					return nil, err
				}
			}
		}
	}

	var config types.Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate 检查配置合法性
func Validate(cfg *types.Config) error {
	var errs error
	if cfg.Fetch.Interval <= 0 {
		errs = errors.Join(errs, fmt.Errorf("fetch.interval must be positive"))
	}
	if cfg.RSI.Period <= 0 {
		errs = errors.Join(errs, fmt.Errorf("rsi.period must be positive"))
	}
	if cfg.Fetch.Limit <= cfg.RSI.Period {
		errs = errors.Join(errs, fmt.Errorf("fetch.limit must exceed rsi.period"))
	}
	if _, err := types.ParseTimeframe(cfg.Timeframe); err != nil {
		errs = errors.Join(errs, fmt.Errorf("timeframe: %w", err))
	}
	for _, tf := range cfg.Alert.Timeframes {
		if _, err := types.ParseTimeframe(tf); err != nil {
			errs = errors.Join(errs, fmt.Errorf("alert.timeframes: %w", err))
		}
	}
	if cfg.Notification.TTL <= 0 {
		errs = errors.Join(errs, fmt.Errorf("notification.ttl must be positive"))
	}
	return errs
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file_path", "")
	v.SetDefault("log.max_size", 200)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.compress", false)
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("database.mysql.host", "")
	v.SetDefault("database.mysql.port", 3306)
	v.SetDefault("database.mysql.username", "root")
	v.SetDefault("database.mysql.password", "")
	v.SetDefault("database.mysql.database", "rsi_sentry")
	v.SetDefault("database.mysql.max_idle_conns", 5)
	v.SetDefault("database.mysql.max_open_conns", 10)
	v.SetDefault("fetch.base_url", "https://api.binance.com")
	v.SetDefault("fetch.interval", time.Minute)
	v.SetDefault("fetch.limit", 200)
	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.proxy", "")
	v.SetDefault("rsi.period", 14)
	v.SetDefault("alert.enabled", true)
	v.SetDefault("alert.timeframes", timeframeStrings(types.AlertTimeframes))
	v.SetDefault("notification.ttl", 5*time.Second)
	v.SetDefault("dingtalk.webhook_url", "")
	v.SetDefault("dingtalk.secret", "")
	v.SetDefault("annotation.min_stroke_points", 2)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("symbols", []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "BNBUSDT"})
	v.SetDefault("timeframe", string(types.DefaultTimeframe))
}

func timeframeStrings(tfs []types.Timeframe) []string {
	out := make([]string, 0, len(tfs))
	for _, tf := range tfs {
		out = append(out, string(tf))
	}
	return out
}

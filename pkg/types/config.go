package types

import "time"

// Config 主配置结构
type Config struct {
	Log          LogConfig          `mapstructure:"log"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Fetch        FetchConfig        `mapstructure:"fetch"`
	RSI          RSIConfig          `mapstructure:"rsi"`
	Alert        AlertConfig        `mapstructure:"alert"`
	Notification NotificationConfig `mapstructure:"notification"`
	DingTalk     DingTalkConfig     `mapstructure:"dingtalk"`
	Annotation   AnnotationConfig   `mapstructure:"annotation"`
	Server       ServerConfig       `mapstructure:"server"`
	Symbols      []string           `mapstructure:"symbols"`   // 默认跟踪的交易对
	Timeframe    string             `mapstructure:"timeframe"` // 默认周期
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`       // 日志级别
	FilePath   string `mapstructure:"file_path"`   // 日志输出路径名，为空时只输出到控制台
	MaxSize    int    `mapstructure:"max_size"`    // 日志文件大小 单位：MB，超限后会自动切割
	MaxAge     int    `mapstructure:"max_age"`     // 日志文件存放时间 单位：天
	MaxBackups int    `mapstructure:"max_backups"` // 日志文件备份数量
	Compress   bool   `mapstructure:"compress"`    // 日志文件压缩
}

// RedisConfig Redis配置
type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
}

// MySQLConfig MySQL配置，Host为空时不启用
type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// FetchConfig 数据获取配置
type FetchConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Interval time.Duration `mapstructure:"interval"` // 刷新间隔
	Limit    int           `mapstructure:"limit"`    // 每次拉取的K线数量
	Timeout  time.Duration `mapstructure:"timeout"`
	Proxy    string        `mapstructure:"proxy"` // HTTP代理地址，如 http://127.0.0.1:7890
}

// RSIConfig RSI计算参数
type RSIConfig struct {
	Period int `mapstructure:"period"`
}

// AlertConfig 预警配置
type AlertConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	Timeframes []string `mapstructure:"timeframes"` // 允许预警的周期
}

// NotificationConfig 通知配置
type NotificationConfig struct {
	TTL time.Duration `mapstructure:"ttl"` // 通知自动消失时间
}

// DingTalkConfig 钉钉配置
type DingTalkConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	Secret     string `mapstructure:"secret"`
}

// AnnotationConfig 画图配置
type AnnotationConfig struct {
	MinStrokePoints int `mapstructure:"min_stroke_points"`
}

// ServerConfig HTTP服务配置
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

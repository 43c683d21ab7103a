package database

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"rsi-sentry/pkg/types"
)

// AlertEvent 已触发的RSI预警
type AlertEvent struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ToastID     string    `gorm:"type:varchar(26);not null;uniqueIndex" json:"toast_id"`
	Symbol      string    `gorm:"type:varchar(20);not null;index:idx_alert_symbol_time" json:"symbol"`
	Timeframe   string    `gorm:"type:varchar(10);not null" json:"timeframe"`
	Kind        string    `gorm:"type:enum('overbought','oversold');not null" json:"kind"`
	RSIValue    float64   `gorm:"type:decimal(10,4);not null" json:"rsi_value"`
	TriggeredAt time.Time `gorm:"not null;index:idx_alert_symbol_time" json:"triggered_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// FetchFailure 行情获取失败记录
type FetchFailure struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Symbol     string    `gorm:"type:varchar(20);not null;index" json:"symbol"`
	Timeframe  string    `gorm:"type:varchar(10);not null" json:"timeframe"`
	Error      string    `gorm:"type:text" json:"error"`
	OccurredAt time.Time `gorm:"not null" json:"occurred_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// Journal 把预警和获取失败写入MySQL
type Journal struct {
	db  *gorm.DB
	now func() time.Time
}

// DSN 拼接MySQL连接串
func DSN(config types.MySQLConfig) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		config.Username,
		config.Password,
		config.Host,
		config.Port,
		config.Database,
	)
}

// NewJournal 连接数据库并迁移表结构
func NewJournal(config types.MySQLConfig) (*Journal, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(mysql.Open(DSN(config)), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取数据库实例失败: %w", err)
	}
	if config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	j := newJournal(db)
	if err := j.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("数据库迁移失败: %w", err)
	}

	zap.L().Info("✅ MySQL数据库连接成功",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("database", config.Database))

	return j, nil
}

func newJournal(db *gorm.DB) *Journal {
	return &Journal{db: db, now: time.Now}
}

// AutoMigrate 自动迁移表结构
func (j *Journal) AutoMigrate() error {
	return j.db.AutoMigrate(&AlertEvent{}, &FetchFailure{})
}

// RecordAlert 保存一条预警
func (j *Journal) RecordAlert(toast types.Toast) error {
	event := toAlertEvent(toast, j.now())
	if err := j.db.Create(&event).Error; err != nil {
		return fmt.Errorf("保存预警失败: %w", err)
	}
	return nil
}

// ReportFetchFailure 保存获取失败，写库失败只记日志
func (j *Journal) ReportFetchFailure(symbol string, timeframe types.Timeframe, err error) {
	failure := toFetchFailure(symbol, timeframe, err, j.now())
	if dbErr := j.db.Create(&failure).Error; dbErr != nil {
		zap.L().Warn("⚠️ 保存获取失败记录失败",
			zap.String("symbol", symbol),
			zap.Error(dbErr))
	}
}

// RecentAlerts 最近的预警，symbol为空时不过滤
func (j *Journal) RecentAlerts(symbol string, limit int) ([]AlertEvent, error) {
	var events []AlertEvent
	err := j.recentAlertsQuery(j.db, symbol, limit).Find(&events).Error
	return events, err
}

func (j *Journal) recentAlertsQuery(tx *gorm.DB, symbol string, limit int) *gorm.DB {
	q := tx.Model(&AlertEvent{})
	if symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}
	if limit <= 0 {
		limit = 50
	}
	return q.Order("triggered_at DESC").Limit(limit)
}

// Close 关闭数据库连接
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health 检查数据库连接健康状态
func (j *Journal) Health() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

func toAlertEvent(toast types.Toast, now time.Time) AlertEvent {
	triggered := toast.CreatedAt
	if triggered.IsZero() {
		triggered = now
	}
	return AlertEvent{
		ToastID:     toast.ID,
		Symbol:      toast.Symbol,
		Timeframe:   string(toast.Timeframe),
		Kind:        string(toast.Kind),
		RSIValue:    toast.RSIValue,
		TriggeredAt: triggered,
		CreatedAt:   now,
	}
}

func toFetchFailure(symbol string, timeframe types.Timeframe, err error, now time.Time) FetchFailure {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return FetchFailure{
		Symbol:     symbol,
		Timeframe:  string(timeframe),
		Error:      msg,
		OccurredAt: now,
		CreatedAt:  now,
	}
}

package model

import "time"

// 同步策略
const (
	StrategyUpdateTime  = "update_time"
	StrategyConfirmTime = "confirm_time"
)

// ==================== Monitor 同步水位 ====================

// Monitor 每次店铺同步完成追加一行，只增不改
// 同一店铺同一策略下 last_run_ts 最大的一行即下次续跑位置
type Monitor struct {
	BaseModel
	MallID       int64     `gorm:"index:idx_monitor_mall_strategy_ts,priority:1;not null"`
	Strategy     string    `gorm:"size:32;index:idx_monitor_mall_strategy_ts,priority:2;not null;default:update_time"`
	LastRunTs    int64     `gorm:"index:idx_monitor_mall_strategy_ts,priority:3;not null"`
	LastRunTime  time.Time `gorm:"not null"`
	TotalCount   int
	CreatedCount int
	UpdatedCount int
}

func (*Monitor) TableName() string {
	return "monitors"
}

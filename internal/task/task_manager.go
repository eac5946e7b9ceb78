package task

import (
	"context"
	"time"

	"go.uber.org/zap"

	"pdd_order_sync/internal/service"
)

// ==================== TaskManager 同步任务管理器 ====================

// TaskManager 统一管理定时同步任务
// 只负责调度，店铺并发、窗口和事务由 SyncService 处理
type TaskManager struct {
	orderTask *OrderSyncTask
	log       *zap.Logger
}

// TaskManagerDeps 任务管理器依赖
type TaskManagerDeps struct {
	Syncer OrderSyncer
	Logger *zap.Logger
}

// TaskManagerConfig 任务管理器配置
type TaskManagerConfig struct {
	OrderEnabled bool

	UpdateCron  string
	ConfirmCron string // 为空则不调度按成交时间同步
	ConfirmDays int
	Location    *time.Location

	RunTimeout time.Duration
	RunOnStart bool
}

// DefaultConfig 默认配置
func DefaultConfig() *TaskManagerConfig {
	return &TaskManagerConfig{
		OrderEnabled: true,
		UpdateCron:   "0 */5 * * * *",
		ConfirmCron:  "0 30 3 * * *",
		ConfirmDays:  1,
		RunTimeout:   30 * time.Minute,
		RunOnStart:   true,
	}
}

// NewTaskManager 创建任务管理器
func NewTaskManager(deps *TaskManagerDeps, cfg *TaskManagerConfig) *TaskManager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	tm := &TaskManager{log: log}

	if cfg.OrderEnabled && deps.Syncer != nil {
		tm.orderTask = NewOrderSyncTask(deps.Syncer, log)
		tm.orderTask.SetSchedule(cfg.UpdateCron, cfg.ConfirmCron, cfg.ConfirmDays, cfg.Location)
		tm.orderTask.SetTimeout(cfg.RunTimeout, cfg.RunOnStart)
	}

	return tm
}

// ==================== 生命周期管理 ====================

// Start 启动所有任务
func (tm *TaskManager) Start() error {
	tm.log.Info("[TaskManager] 正在启动同步任务...")

	if tm.orderTask != nil {
		if err := tm.orderTask.Start(); err != nil {
			return err
		}
	}

	tm.log.Info("[TaskManager] 同步任务已全部启动")
	return nil
}

// Stop 停止所有任务
func (tm *TaskManager) Stop() {
	tm.log.Info("[TaskManager] 正在停止同步任务...")

	if tm.orderTask != nil {
		tm.orderTask.Stop()
	}

	tm.log.Info("[TaskManager] 同步任务已全部停止")
}

// ==================== 手动触发接口 ====================

// TriggerUpdateSync 立即执行增量同步
func (tm *TaskManager) TriggerUpdateSync(ctx context.Context) (*service.RunReport, error) {
	if tm.orderTask == nil {
		return nil, ErrTaskDisabled
	}
	return tm.orderTask.SyncUpdateNow(ctx)
}

// TriggerConfirmSync 立即按成交时间同步
func (tm *TaskManager) TriggerConfirmSync(ctx context.Context, days int) (*service.RunReport, error) {
	if tm.orderTask == nil {
		return nil, ErrTaskDisabled
	}
	return tm.orderTask.SyncConfirmNow(ctx, days)
}

// ==================== 状态查询 ====================

// Status 获取任务状态
func (tm *TaskManager) Status() map[string]bool {
	return map[string]bool{
		"order": tm.orderTask != nil,
	}
}

// ==================== 错误定义 ====================

type TaskError string

func (e TaskError) Error() string { return string(e) }

const (
	ErrTaskDisabled TaskError = "task is disabled"
)

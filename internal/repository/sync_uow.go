package repository

import (
	"context"

	"gorm.io/gorm"
)

// SyncUnitOfWork 同步写入的工作单元（事务）
// 单店铺窗口的订单、订单项与水位在同一事务内提交；隐私补全按批提交
type SyncUnitOfWork struct {
	db       *gorm.DB
	Orders   OrderRepository
	Items    ItemRepository
	Monitors MonitorRepository
}

// NewSyncUnitOfWork 创建工作单元
func NewSyncUnitOfWork(db *gorm.DB) *SyncUnitOfWork {
	return &SyncUnitOfWork{
		db:       db,
		Orders:   NewOrderRepository(db),
		Items:    NewItemRepository(db),
		Monitors: NewMonitorRepository(db),
	}
}

// Transaction 执行事务，fn 返回错误时整体回滚
func (u *SyncUnitOfWork) Transaction(ctx context.Context, fn func(uow *SyncUnitOfWork) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewSyncUnitOfWork(tx))
	})
}

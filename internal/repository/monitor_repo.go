package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"pdd_order_sync/internal/model"
)

// ==================== MonitorRepository 同步水位 ====================

// MonitorRepository 水位表只追加，不提供更新和删除
type MonitorRepository interface {
	Append(ctx context.Context, m *model.Monitor) error
	// Latest 取店铺某策略下 last_run_ts 最大的一行，没有返回 nil, nil
	Latest(ctx context.Context, mallID int64, strategy string) (*model.Monitor, error)
	ListByMall(ctx context.Context, mallID int64, limit int) ([]model.Monitor, error)
}

type monitorRepository struct {
	db *gorm.DB
}

// NewMonitorRepository 创建水位仓库
func NewMonitorRepository(db *gorm.DB) MonitorRepository {
	return &monitorRepository{db: db}
}

func (r *monitorRepository) Append(ctx context.Context, m *model.Monitor) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *monitorRepository) Latest(ctx context.Context, mallID int64, strategy string) (*model.Monitor, error) {
	var m model.Monitor
	err := r.db.WithContext(ctx).
		Where("mall_id = ? AND strategy = ?", mallID, strategy).
		Order("last_run_ts DESC, id DESC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *monitorRepository) ListByMall(ctx context.Context, mallID int64, limit int) ([]model.Monitor, error) {
	var list []model.Monitor
	err := r.db.WithContext(ctx).
		Where("mall_id = ?", mallID).
		Order("last_run_ts DESC, id DESC").
		Limit(limit).
		Find(&list).Error
	return list, err
}

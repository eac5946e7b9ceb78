package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"pdd_order_sync/internal/model"
)

// ==================== MallRepository 店铺仓库 ====================

// MallRepository 店铺只读仓库
type MallRepository interface {
	ListActive(ctx context.Context) ([]model.Mall, error)
	GetByID(ctx context.Context, id int64) (*model.Mall, error)
}

type mallRepository struct {
	db *gorm.DB
}

// NewMallRepository 创建店铺仓库
func NewMallRepository(db *gorm.DB) MallRepository {
	return &mallRepository{db: db}
}

func (r *mallRepository) ListActive(ctx context.Context) ([]model.Mall, error) {
	var malls []model.Mall
	err := r.db.WithContext(ctx).Where("active = ?", true).Order("id ASC").Find(&malls).Error
	return malls, err
}

func (r *mallRepository) GetByID(ctx context.Context, id int64) (*model.Mall, error) {
	var mall model.Mall
	err := r.db.WithContext(ctx).First(&mall, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &mall, nil
}

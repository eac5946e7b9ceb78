package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"pdd_order_sync/internal/model"
)

// ==================== OrderRepository 订单仓库 ====================

// OrderRepository 订单仓库接口
type OrderRepository interface {
	Create(ctx context.Context, order *model.Order) error
	// GetBySoNo 不存在时返回 nil, nil
	GetBySoNo(ctx context.Context, soNo string) (*model.Order, error)
	GetBySoNoWithItems(ctx context.Context, soNo string) (*model.Order, error)
	ApplyPatch(ctx context.Context, order *model.Order, patch *model.OrderPatch) error
	UpdateColumns(ctx context.Context, order *model.Order, columns ...string) error

	// 隐私补全
	FindMissingBuyer(ctx context.Context, afterSoNo string, limit int) ([]model.Order, error)
	UpdateBuyerInfo(ctx context.Context, id uuid.UUID, info model.BuyerInfo) error
}

type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository 创建订单仓库
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) Create(ctx context.Context, order *model.Order) error {
	return r.db.WithContext(ctx).Omit("Items").Create(order).Error
}

func (r *orderRepository) GetBySoNo(ctx context.Context, soNo string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).Where("so_no = ?", soNo).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) GetBySoNoWithItems(ctx context.Context, soNo string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("goods_id ASC, sku_id ASC")
		}).
		Where("so_no = ?", soNo).
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ApplyPatch 一次 UPDATE 写入补丁列
func (r *orderRepository) ApplyPatch(ctx context.Context, order *model.Order, patch *model.OrderPatch) error {
	patch.Apply(order)
	return r.UpdateColumns(ctx, order, patch.Columns()...)
}

// UpdateColumns 只写指定列，零值同样写入
func (r *orderRepository) UpdateColumns(ctx context.Context, order *model.Order, columns ...string) error {
	if len(columns) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(order).
		Select(columns).
		Omit("Items").
		Updates(order).Error
}

// FindMissingBuyer 按 so_no 游标取 buyer_account 为空的订单
func (r *orderRepository) FindMissingBuyer(ctx context.Context, afterSoNo string, limit int) ([]model.Order, error) {
	var orders []model.Order
	err := r.db.WithContext(ctx).
		Where("buyer_account IS NULL").
		Where("so_no > ?", afterSoNo).
		Order("so_no ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

func (r *orderRepository) UpdateBuyerInfo(ctx context.Context, id uuid.UUID, info model.BuyerInfo) error {
	return r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"buyer_account": info.Account,
			"province":      info.Province,
			"city":          info.City,
			"town":          info.Town,
		}).Error
}

// ==================== ItemRepository 订单项仓库 ====================

// ItemRepository 订单项仓库接口
type ItemRepository interface {
	CreateBatch(ctx context.Context, items []model.Item) error
	GetByOrderID(ctx context.Context, orderID uuid.UUID) ([]model.Item, error)
	DeleteByOrderID(ctx context.Context, orderID uuid.UUID) error
}

type itemRepository struct {
	db *gorm.DB
}

// NewItemRepository 创建订单项仓库
func NewItemRepository(db *gorm.DB) ItemRepository {
	return &itemRepository{db: db}
}

func (r *itemRepository) CreateBatch(ctx context.Context, items []model.Item) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(items, 100).Error
}

func (r *itemRepository) GetByOrderID(ctx context.Context, orderID uuid.UUID) ([]model.Item, error) {
	var items []model.Item
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("goods_id ASC, sku_id ASC").Find(&items).Error
	return items, err
}

func (r *itemRepository) DeleteByOrderID(ctx context.Context, orderID uuid.UUID) error {
	return r.db.WithContext(ctx).Where("order_id = ?", orderID).Delete(&model.Item{}).Error
}

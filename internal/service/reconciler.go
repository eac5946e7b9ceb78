package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"pdd_order_sync/internal/model"
	"pdd_order_sync/internal/repository"
	"pdd_order_sync/pkg/pdd"
)

// pddTimeLayout 拼多多时间字段格式
const pddTimeLayout = "2006-01-02 15:04:05"

// RefundFetcher 售后单详情接口
type RefundFetcher interface {
	GetRefundInfo(ctx context.Context, orderSn string, afterSalesID int64) (*pdd.RefundInfo, error)
}

// ==================== Reconciler ====================

// Reconciler 将远端订单合并进本地：不存在则新增，存在则覆盖可变字段并重建订单项
type Reconciler struct {
	loc *time.Location
	log *zap.Logger
}

// NewReconciler 创建合并器，loc 用于解析拼多多时间字符串
func NewReconciler(loc *time.Location, log *zap.Logger) *Reconciler {
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{loc: loc, log: log}
}

// ReconcilePage 逐条合并一页订单，计数写入 stats
func (r *Reconciler) ReconcilePage(ctx context.Context, uow *repository.SyncUnitOfWork, api RefundFetcher, mallID int64, orders []pdd.OrderInfo, stats *TenantStats) error {
	for i := range orders {
		created, err := r.Reconcile(ctx, uow, api, mallID, &orders[i])
		if err != nil {
			return err
		}
		if created {
			stats.Created++
		} else {
			stats.Updated++
		}
	}
	return nil
}

// Reconcile 合并单个订单，返回是否为新增
func (r *Reconciler) Reconcile(ctx context.Context, uow *repository.SyncUnitOfWork, api RefundFetcher, mallID int64, remote *pdd.OrderInfo) (bool, error) {
	patch, err := BuildPatch(mallID, remote, r.loc)
	if err != nil {
		return false, err
	}

	order, err := uow.Orders.GetBySoNo(ctx, remote.OrderSn)
	if err != nil {
		return false, fmt.Errorf("查询订单 %s: %w", remote.OrderSn, err)
	}

	created := order == nil
	if created {
		order = &model.Order{SoNo: remote.OrderSn}
		patch.Apply(order)
		if err := uow.Orders.Create(ctx, order); err != nil {
			return false, fmt.Errorf("新增订单 %s: %w", remote.OrderSn, err)
		}
	} else {
		if err := uow.Items.DeleteByOrderID(ctx, order.ID); err != nil {
			return false, fmt.Errorf("删除订单项 %s: %w", remote.OrderSn, err)
		}
		if err := uow.Orders.ApplyPatch(ctx, order, patch); err != nil {
			return false, fmt.Errorf("更新订单 %s: %w", remote.OrderSn, err)
		}
	}

	columns := []string{"item_count"}

	if order.NeedsRefundDetail() {
		info, err := api.GetRefundInfo(ctx, order.SoNo, 0)
		if err != nil {
			return false, fmt.Errorf("获取售后信息 %s: %w", order.SoNo, err)
		}
		applyRefund(order, info)
		columns = append(columns, "after_sales_id", "after_sales_type", "goods_number", "refund_amount")
		r.log.Debug("[Reconciler] 补充售后单",
			zap.String("so_no", order.SoNo),
			zap.Int64("after_sales_id", info.ID),
		)
	}

	items := BuildItems(order.ID, remote.ItemList)
	if err := uow.Items.CreateBatch(ctx, items); err != nil {
		return false, fmt.Errorf("写入订单项 %s: %w", order.SoNo, err)
	}
	order.ItemCount = len(items)

	if err := uow.Orders.UpdateColumns(ctx, order, columns...); err != nil {
		return false, fmt.Errorf("更新订单 %s: %w", order.SoNo, err)
	}
	return created, nil
}

func applyRefund(o *model.Order, info *pdd.RefundInfo) {
	id := info.ID
	o.AfterSalesID = &id
	o.AfterSalesType = info.AfterSalesType
	o.GoodsNumber = info.GoodsNumber
	o.RefundAmount = info.RefundAmountYuan()
}

// ==================== 字段映射 ====================

// BuildPatch 远端订单 → 本地可变字段
func BuildPatch(mallID int64, o *pdd.OrderInfo, loc *time.Location) (*model.OrderPatch, error) {
	p := &model.OrderPatch{
		MallID:              mallID,
		ConfirmStatus:       o.ConfirmStatus,
		RefundStatus:        o.RefundStatus,
		AfterSalesStatus:    o.AfterSalesStatus,
		OrderStatus:         o.OrderStatus,
		RiskControlStatus:   o.RiskControlStatus,
		GoodsAmount:         o.GoodsAmount,
		DiscountAmount:      o.DiscountAmount,
		SellerDiscount:      o.SellerDiscount,
		PlatformDiscount:    o.PlatformDiscount,
		OrderChangeAmount:   o.OrderChangeAmount,
		CapitalFreeDiscount: o.CapitalFreeDiscount,
		PayAmount:           o.PayAmount,
		Postage:             o.Postage,
		ServiceFee:          sumServiceFee(o.ServiceFeeDetail),
		LogisticsID:         o.LogisticsID,
		TrackingNumber:      o.TrackingNumber,
	}
	if len(o.Raw) > 0 {
		p.RawData = datatypes.JSON(o.Raw)
	}

	var err error
	if p.ConfirmTime, err = parsePddTime(o.ConfirmTime, loc); err != nil {
		return nil, fmt.Errorf("订单 %s confirm_time: %w", o.OrderSn, err)
	}
	if p.SoCreatedAt, err = parsePddTime(o.CreatedTime, loc); err != nil {
		return nil, fmt.Errorf("订单 %s created_time: %w", o.OrderSn, err)
	}
	if p.SoUpdatedAt, err = parsePddTime(o.UpdatedAt, loc); err != nil {
		return nil, fmt.Errorf("订单 %s updated_at: %w", o.OrderSn, err)
	}
	if p.ShippingTime, err = parsePddTime(o.ShippingTime, loc); err != nil {
		return nil, fmt.Errorf("订单 %s shipping_time: %w", o.OrderSn, err)
	}

	// 列表未返回收货省份时保留本地已补全的信息
	if o.Province != "" {
		p.Buyer = &model.BuyerInfo{
			Account:  o.ReceiverPhone,
			Province: o.Province,
			City:     o.City,
			Town:     o.Town,
		}
	}
	return p, nil
}

// BuildItems 远端商品行 → 本地订单项
func BuildItems(orderID uuid.UUID, list []pdd.ItemInfo) []model.Item {
	items := make([]model.Item, 0, len(list))
	for _, it := range list {
		items = append(items, model.Item{
			OrderID:    orderID,
			Qty:        it.GoodsCount,
			GoodsPrice: it.GoodsPrice,
			GoodsName:  it.GoodsName,
			GoodsSpec:  it.GoodsSpec,
			GoodsID:    it.GoodsID,
			SkuID:      it.SkuID,
			OuterID:    it.OuterID,
		})
	}
	return items
}

func sumServiceFee(details []pdd.ServiceFeeDetail) decimal.Decimal {
	fee := decimal.Zero
	for _, d := range details {
		fee = fee.Add(d.ServiceFee)
	}
	return fee
}

func parsePddTime(s string, loc *time.Location) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(pddTimeLayout, s, loc)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

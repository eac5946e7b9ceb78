package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// ==================== 拼多多状态常量 ====================

// AfterSalesStatusRefunded 售后状态：退款成功
const AfterSalesStatusRefunded = 10

// ==================== Order 订单主表 ====================

// Order 拼多多订单，so_no 全局唯一，只增不删
type Order struct {
	UUIDModel
	MallID int64  `gorm:"index;not null"`
	SoNo   string `gorm:"size:64;uniqueIndex;not null"`
	Sync   bool   `gorm:"default:false"` // 下游推送标记，同步引擎不修改

	// 时间
	ConfirmTime  *time.Time `gorm:"index"`
	SoCreatedAt  *time.Time
	SoUpdatedAt  *time.Time
	ShippingTime *time.Time

	// 状态
	ConfirmStatus     int
	RefundStatus      int
	AfterSalesStatus  int `gorm:"index"`
	OrderStatus       int
	RiskControlStatus int

	// 买家（隐私信息，可能由聚水潭补全）
	BuyerAccount *string `gorm:"size:64;index"`
	Province     string  `gorm:"size:64"`
	City         string  `gorm:"size:64"`
	Town         string  `gorm:"size:64"`

	// 金额（元）
	GoodsAmount         decimal.Decimal `gorm:"type:decimal(10,2)"`
	DiscountAmount      decimal.Decimal `gorm:"type:decimal(10,2)"`
	SellerDiscount      decimal.Decimal `gorm:"type:decimal(10,2)"`
	PlatformDiscount    decimal.Decimal `gorm:"type:decimal(10,2)"`
	OrderChangeAmount   decimal.Decimal `gorm:"type:decimal(10,2)"`
	CapitalFreeDiscount decimal.Decimal `gorm:"type:decimal(10,2)"`
	ServiceFee          decimal.Decimal `gorm:"type:decimal(10,2)"`
	PayAmount           decimal.Decimal `gorm:"type:decimal(10,2)"`
	Postage             decimal.Decimal `gorm:"type:decimal(10,2)"`

	// 物流
	LogisticsID    int64
	TrackingNumber string `gorm:"size:64"`
	ItemCount      int

	// 售后
	AfterSalesID   *int64
	AfterSalesType int
	GoodsNumber    int
	RefundAmount   decimal.Decimal `gorm:"type:decimal(10,2)"`

	// 拼多多原始数据
	RawData datatypes.JSON `gorm:"type:jsonb"`

	Items []Item `gorm:"foreignKey:OrderID"`
}

func (*Order) TableName() string {
	return "orders"
}

// NeedsRefundDetail 退款成功但本地还没有售后单
func (o *Order) NeedsRefundDetail() bool {
	return o.AfterSalesStatus == AfterSalesStatusRefunded && o.AfterSalesID == nil
}

// ==================== Item 订单项 ====================

// Item 订单商品行，随订单整体重建，不做局部更新
type Item struct {
	UUIDModel
	OrderID    uuid.UUID       `gorm:"type:uuid;index;not null"`
	Qty        int             `gorm:"default:1"`
	GoodsPrice decimal.Decimal `gorm:"type:decimal(10,2)"`
	GoodsName  string          `gorm:"size:500"`
	GoodsSpec  string          `gorm:"size:255"`
	GoodsID    int64           `gorm:"index"`
	SkuID      int64
	OuterID    string `gorm:"size:128"`
}

func (*Item) TableName() string {
	return "items"
}

// ==================== OrderPatch 订单可变字段 ====================

// BuyerInfo 收货人信息
type BuyerInfo struct {
	Account  string
	Province string
	City     string
	Town     string
}

// OrderPatch 列表接口可覆盖的订单字段
// ShippingTime、Buyer 为 nil 时保留库中原值
type OrderPatch struct {
	MallID int64

	ConfirmTime  *time.Time
	SoCreatedAt  *time.Time
	SoUpdatedAt  *time.Time
	ShippingTime *time.Time

	ConfirmStatus     int
	RefundStatus      int
	AfterSalesStatus  int
	OrderStatus       int
	RiskControlStatus int

	Buyer *BuyerInfo

	GoodsAmount         decimal.Decimal
	DiscountAmount      decimal.Decimal
	SellerDiscount      decimal.Decimal
	PlatformDiscount    decimal.Decimal
	OrderChangeAmount   decimal.Decimal
	CapitalFreeDiscount decimal.Decimal
	ServiceFee          decimal.Decimal
	PayAmount           decimal.Decimal
	Postage             decimal.Decimal

	LogisticsID    int64
	TrackingNumber string

	RawData datatypes.JSON
}

var patchColumns = []string{
	"mall_id",
	"confirm_time", "so_created_at", "so_updated_at",
	"confirm_status", "refund_status", "after_sales_status", "order_status", "risk_control_status",
	"goods_amount", "discount_amount", "seller_discount", "platform_discount",
	"order_change_amount", "capital_free_discount", "service_fee", "pay_amount", "postage",
	"logistics_id", "tracking_number",
	"raw_data",
	"updated_at",
}

// Columns 本次补丁实际要写的列
func (p *OrderPatch) Columns() []string {
	cols := make([]string, len(patchColumns), len(patchColumns)+5)
	copy(cols, patchColumns)
	if p.ShippingTime != nil {
		cols = append(cols, "shipping_time")
	}
	if p.Buyer != nil {
		cols = append(cols, "buyer_account", "province", "city", "town")
	}
	return cols
}

// Apply 将补丁写入订单对象
func (p *OrderPatch) Apply(o *Order) {
	o.MallID = p.MallID
	o.ConfirmTime = p.ConfirmTime
	o.SoCreatedAt = p.SoCreatedAt
	o.SoUpdatedAt = p.SoUpdatedAt
	if p.ShippingTime != nil {
		o.ShippingTime = p.ShippingTime
	}

	o.ConfirmStatus = p.ConfirmStatus
	o.RefundStatus = p.RefundStatus
	o.AfterSalesStatus = p.AfterSalesStatus
	o.OrderStatus = p.OrderStatus
	o.RiskControlStatus = p.RiskControlStatus

	if p.Buyer != nil {
		account := p.Buyer.Account
		o.BuyerAccount = &account
		o.Province = p.Buyer.Province
		o.City = p.Buyer.City
		o.Town = p.Buyer.Town
	}

	o.GoodsAmount = p.GoodsAmount
	o.DiscountAmount = p.DiscountAmount
	o.SellerDiscount = p.SellerDiscount
	o.PlatformDiscount = p.PlatformDiscount
	o.OrderChangeAmount = p.OrderChangeAmount
	o.CapitalFreeDiscount = p.CapitalFreeDiscount
	o.ServiceFee = p.ServiceFee
	o.PayAmount = p.PayAmount
	o.Postage = p.Postage

	o.LogisticsID = p.LogisticsID
	o.TrackingNumber = p.TrackingNumber
	o.RawData = p.RawData
}

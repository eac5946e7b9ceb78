package pdd

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// 接口名
const (
	MethodOrderList          = "pdd.order.list.get"
	MethodOrderBasicList     = "pdd.order.basic.list.get"
	MethodOrderIncrement     = "pdd.order.number.list.increment.get"
	MethodOrderInformation   = "pdd.order.information.get"
	MethodOrderStatus        = "pdd.order.status.get"
	MethodRefundInformation  = "pdd.refund.information.get"
	MethodRefundIncrement    = "pdd.refund.list.increment.get"
	MethodLogisticsCompanies = "pdd.logistics.companies.get"
	MethodMallInfo           = "pdd.mall.info.get"
	MethodAuthTokenCreate    = "pdd.pop.auth.token.create"
)

// 列表查询通用取值
const (
	StatusAll       = 5 // order_status / refund_status 全部
	MaxPageSize     = 100
	LuckyFlagAll    = 0
	RefundSucceeded = 10
)

// ==================== 订单 ====================

// OrderInfo 订单列表中的一条订单
type OrderInfo struct {
	OrderSn      string `json:"order_sn"`
	ConfirmTime  string `json:"confirm_time"`
	CreatedTime  string `json:"created_time"`
	UpdatedAt    string `json:"updated_at"`
	ShippingTime string `json:"shipping_time"`

	ConfirmStatus     int `json:"confirm_status"`
	RefundStatus      int `json:"refund_status"`
	AfterSalesStatus  int `json:"after_sales_status"`
	OrderStatus       int `json:"order_status"`
	RiskControlStatus int `json:"risk_control_status"`

	GoodsAmount         decimal.Decimal `json:"goods_amount"`
	DiscountAmount      decimal.Decimal `json:"discount_amount"`
	SellerDiscount      decimal.Decimal `json:"seller_discount"`
	PlatformDiscount    decimal.Decimal `json:"platform_discount"`
	OrderChangeAmount   decimal.Decimal `json:"order_change_amount"`
	CapitalFreeDiscount decimal.Decimal `json:"capital_free_discount"`
	PayAmount           decimal.Decimal `json:"pay_amount"`
	Postage             decimal.Decimal `json:"postage"`

	ServiceFeeDetail []ServiceFeeDetail `json:"service_fee_detail"`

	LogisticsID    int64  `json:"logistics_id"`
	TrackingNumber string `json:"tracking_number"`

	Province      string `json:"province"`
	City          string `json:"city"`
	Town          string `json:"town"`
	ReceiverPhone string `json:"receiver_phone"`

	ItemList []ItemInfo `json:"item_list"`

	// Raw 原始 JSON，落库用
	Raw json.RawMessage `json:"-"`
}

// ServiceFeeDetail 服务费明细
type ServiceFeeDetail struct {
	ServiceFee  decimal.Decimal `json:"service_fee"`
	ServiceName string          `json:"service_name"`
}

// ItemInfo 订单商品
type ItemInfo struct {
	GoodsCount int             `json:"goods_count"`
	GoodsPrice decimal.Decimal `json:"goods_price"`
	GoodsName  string          `json:"goods_name"`
	GoodsSpec  string          `json:"goods_spec"`
	GoodsID    int64           `json:"goods_id"`
	SkuID      int64           `json:"sku_id"`
	OuterID    string          `json:"outer_id"`
}

// ListRequest 订单列表类接口的一次调用描述
type ListRequest struct {
	Method      string
	ResponseKey string
	ListField   string
	Params      map[string]any
}

// ListPage 一页订单
type ListPage struct {
	TotalCount int
	HasNext    bool
	Orders     []OrderInfo
}

// OrderStatusInfo pdd.order.status.get 返回项
type OrderStatusInfo struct {
	OrderSn string `json:"orderSn"`
	Order   int    `json:"order"`
	Refund  int    `json:"refund"`
}

// ==================== 售后 ====================

// RefundInfo 售后单，refund_amount 单位为分
type RefundInfo struct {
	ID               int64  `json:"id"`
	OrderSn          string `json:"order_sn"`
	AfterSalesType   int    `json:"after_sales_type"`
	AfterSalesStatus int    `json:"after_sales_status"`
	GoodsNumber      int    `json:"goods_number"`
	RefundAmount     int64  `json:"refund_amount"`
	UpdatedTime      string `json:"updated_time"`
}

// RefundAmountYuan 分转元
func (r *RefundInfo) RefundAmountYuan() decimal.Decimal {
	return decimal.New(r.RefundAmount, -2)
}

// RefundListResult 售后增量列表
type RefundListResult struct {
	TotalCount int          `json:"total_count"`
	RefundList []RefundInfo `json:"refund_list"`
}

// ==================== 其它 ====================

// LogisticsCompany 快递公司
type LogisticsCompany struct {
	ID               int64  `json:"id"`
	LogisticsCompany string `json:"logistics_company"`
	Code             string `json:"code"`
}

// MallInfo 店铺信息
type MallInfo struct {
	MallID   int64  `json:"mall_id"`
	MallName string `json:"mall_name"`
	MallDesc string `json:"mall_desc"`
	Logo     string `json:"logo"`
}

// AccessToken 授权令牌
type AccessToken struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	OwnerID      string `json:"owner_id"`
	OwnerName    string `json:"owner_name"`
}

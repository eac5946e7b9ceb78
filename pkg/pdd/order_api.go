package pdd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// ==================== 订单列表 ====================

// ListOrders 调用订单列表类接口，按 ListField 取出订单数组
func (c *Client) ListOrders(ctx context.Context, req ListRequest) (*ListPage, error) {
	var body map[string]json.RawMessage
	if err := c.Call(ctx, req.Method, req.ResponseKey, req.Params, &body); err != nil {
		return nil, err
	}

	// total_count 必须存在，缺失不能按 0 处理
	page := &ListPage{}
	raw, ok := body["total_count"]
	if !ok || isNull(raw) {
		return nil, fmt.Errorf("%w: %s: missing total_count", ErrUnexpectedResponse, req.Method)
	}
	if err := json.Unmarshal(raw, &page.TotalCount); err != nil {
		return nil, fmt.Errorf("%w: %s total_count: %v", ErrUnexpectedResponse, req.Method, err)
	}
	if raw, ok := body["has_next"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &page.HasNext); err != nil {
			return nil, fmt.Errorf("%w: %s has_next: %v", ErrUnexpectedResponse, req.Method, err)
		}
	}

	raw, ok = body[req.ListField]
	if !ok || isNull(raw) {
		if page.TotalCount > 0 || pageSize(req.Params) > 1 {
			return nil, fmt.Errorf("%w: %s: missing %s", ErrUnexpectedResponse, req.Method, req.ListField)
		}
		return page, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrUnexpectedResponse, req.Method, req.ListField, err)
	}

	page.Orders = make([]OrderInfo, 0, len(items))
	for i, item := range items {
		var o OrderInfo
		if err := json.Unmarshal(item, &o); err != nil {
			return nil, fmt.Errorf("%w: %s %s[%d]: %v", ErrUnexpectedResponse, req.Method, req.ListField, i, err)
		}
		if o.OrderSn == "" {
			return nil, fmt.Errorf("%w: %s %s[%d]: missing order_sn", ErrUnexpectedResponse, req.Method, req.ListField, i)
		}
		o.Raw = item
		page.Orders = append(page.Orders, o)
	}
	return page, nil
}

func pageSize(params map[string]any) int {
	switch v := params["page_size"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}

// GetOrderInfo 单个订单详情
func (c *Client) GetOrderInfo(ctx context.Context, orderSn string) (*OrderInfo, error) {
	var resp struct {
		OrderInfo json.RawMessage `json:"order_info"`
	}
	err := c.Call(ctx, MethodOrderInformation, "order_info_get_response", map[string]any{
		"order_sn": orderSn,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if isNull(resp.OrderInfo) {
		return nil, fmt.Errorf("%w: %s: missing order_info", ErrUnexpectedResponse, MethodOrderInformation)
	}
	var o OrderInfo
	if err := json.Unmarshal(resp.OrderInfo, &o); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnexpectedResponse, MethodOrderInformation, err)
	}
	o.Raw = resp.OrderInfo
	return &o, nil
}

// GetOrderStatus 批量查询订单状态
func (c *Client) GetOrderStatus(ctx context.Context, orderSns []string) ([]OrderStatusInfo, error) {
	var resp struct {
		List []OrderStatusInfo `json:"order_status_list"`
	}
	err := c.Call(ctx, MethodOrderStatus, "order_status_get_response", map[string]any{
		"order_sns": strings.Join(orderSns, ","),
	}, &resp)
	return resp.List, err
}

// ==================== 售后 ====================

// GetRefundInfo 查询单个售后单，afterSalesID 为 0 时只按订单号查
func (c *Client) GetRefundInfo(ctx context.Context, orderSn string, afterSalesID int64) (*RefundInfo, error) {
	params := map[string]any{"order_sn": orderSn}
	if afterSalesID > 0 {
		params["after_sales_id"] = afterSalesID
	}
	var info RefundInfo
	if err := c.Call(ctx, MethodRefundInformation, "refund_information_get_response", params, &info); err != nil {
		return nil, err
	}
	if info.ID == 0 {
		return nil, fmt.Errorf("%w: %s: missing id for %s", ErrUnexpectedResponse, MethodRefundInformation, orderSn)
	}
	return &info, nil
}

// RefundIncrementRequest 售后增量查询参数，时间跨度不超过 30 分钟
type RefundIncrementRequest struct {
	StartUpdatedAt   int64
	EndUpdatedAt     int64
	OrderSn          string
	AfterSalesStatus int
	AfterSalesType   int
	Page             int
	PageSize         int
}

// ListRefundIncrement 售后列表增量查询
func (c *Client) ListRefundIncrement(ctx context.Context, req RefundIncrementRequest) (*RefundListResult, error) {
	if req.AfterSalesStatus == 0 {
		req.AfterSalesStatus = RefundSucceeded
	}
	if req.AfterSalesType == 0 {
		req.AfterSalesType = 1
	}
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 {
		req.PageSize = MaxPageSize
	}
	params := map[string]any{
		"start_updated_at":   req.StartUpdatedAt,
		"end_updated_at":     req.EndUpdatedAt,
		"after_sales_status": req.AfterSalesStatus,
		"after_sales_type":   req.AfterSalesType,
		"page":               req.Page,
		"page_size":          req.PageSize,
	}
	if req.OrderSn != "" {
		params["order_sn"] = req.OrderSn
	}
	var result RefundListResult
	if err := c.Call(ctx, MethodRefundIncrement, "refund_increment_get_response", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ==================== 店铺与基础数据 ====================

// LogisticsCompanyName 快递公司名称，首次调用时拉取并缓存
func (c *Client) LogisticsCompanyName(ctx context.Context, id int64) (string, error) {
	if id == 0 {
		return "", nil
	}

	c.logisticsMu.Lock()
	defer c.logisticsMu.Unlock()

	if c.logistics == nil {
		var resp struct {
			Companies []LogisticsCompany `json:"logistics_companies"`
		}
		if err := c.Call(ctx, MethodLogisticsCompanies, "logistics_companies_get_response", nil, &resp); err != nil {
			return "", err
		}
		c.logistics = make(map[int64]string, len(resp.Companies))
		for _, lc := range resp.Companies {
			c.logistics[lc.ID] = lc.LogisticsCompany
		}
	}
	return c.logistics[id], nil
}

// GetMallInfo 店铺信息
func (c *Client) GetMallInfo(ctx context.Context) (*MallInfo, error) {
	var info MallInfo
	if err := c.Call(ctx, MethodMallInfo, "mall_info_get_response", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// CreateAccessToken 用授权码换取 access_token
func (c *Client) CreateAccessToken(ctx context.Context, code string) (*AccessToken, error) {
	var token AccessToken
	err := c.Call(ctx, MethodAuthTokenCreate, "pop_auth_token_create_response", map[string]any{
		"code": code,
	}, &token)
	if err != nil {
		return nil, err
	}
	return &token, nil
}

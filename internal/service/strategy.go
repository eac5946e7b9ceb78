package service

import (
	"pdd_order_sync/internal/model"
	"pdd_order_sync/pkg/pdd"
)

// PageOrder 翻页顺序
type PageOrder int

const (
	PageForward PageOrder = iota
	PageReverse
)

// Strategy 列表接口的差异：窗口参数、翻页顺序、响应字段
type Strategy struct {
	Name        string // 水位表 strategy 列
	Method      string
	ResponseKey string
	ListField   string
	StartParam  string
	EndParam    string
	Order       PageOrder
	Concurrent  bool
	Extra       map[string]any
}

var (
	// UpdateTimeIncrement 按更新时间增量拉取，探测总数后各页可并发
	UpdateTimeIncrement = Strategy{
		Name:        model.StrategyUpdateTime,
		Method:      pdd.MethodOrderIncrement,
		ResponseKey: "order_sn_increment_get_response",
		ListField:   "order_sn_list",
		StartParam:  "start_updated_at",
		EndParam:    "end_updated_at",
		Order:       PageForward,
		Concurrent:  true,
		Extra:       map[string]any{"is_lucky_flag": pdd.LuckyFlagAll},
	}

	// ConfirmTimeFull 按成交时间拉取完整订单，必须从最后一页往前翻
	ConfirmTimeFull = Strategy{
		Name:        model.StrategyConfirmTime,
		Method:      pdd.MethodOrderList,
		ResponseKey: "order_list_get_response",
		ListField:   "order_list",
		StartParam:  "start_confirm_at",
		EndParam:    "end_confirm_at",
		Order:       PageReverse,
	}

	// ConfirmTimeBasic 同上，只含订单基础信息
	ConfirmTimeBasic = Strategy{
		Name:        model.StrategyConfirmTime,
		Method:      pdd.MethodOrderBasicList,
		ResponseKey: "order_basic_list_get_response",
		ListField:   "order_list",
		StartParam:  "start_confirm_at",
		EndParam:    "end_confirm_at",
		Order:       PageReverse,
	}
)

// ListRequest 生成某一页的请求
func (s Strategy) ListRequest(w Window, page, pageSize int) pdd.ListRequest {
	params := map[string]any{
		s.StartParam:    w.Start,
		s.EndParam:      w.End,
		"order_status":  pdd.StatusAll,
		"refund_status": pdd.StatusAll,
		"page":          page,
		"page_size":     pageSize,
	}
	for k, v := range s.Extra {
		params[k] = v
	}
	return pdd.ListRequest{
		Method:      s.Method,
		ResponseKey: s.ResponseKey,
		ListField:   s.ListField,
		Params:      params,
	}
}

// PageNumbers 按策略顺序列出 1..total 页
func (s Strategy) PageNumbers(total int) []int {
	pages := make([]int, 0, total)
	if s.Order == PageReverse {
		for p := total; p >= 1; p-- {
			pages = append(pages, p)
		}
		return pages
	}
	for p := 1; p <= total; p++ {
		pages = append(pages, p)
	}
	return pages
}

package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdd_order_sync/pkg/pdd"
)

// ==================== fakeOrderAPI ====================

// fakeOrderAPI 内存版拼多多接口，按 page/page_size 切片返回 orders
type fakeOrderAPI struct {
	mu sync.Mutex

	total   int // 为 0 时取 len(orders)
	orders  []pdd.OrderInfo
	failOn  map[int]error // page_size=100 时按页号返回错误
	probeFn func() error

	refunds     map[string]*pdd.RefundInfo
	calls       []pdd.ListRequest
	refundCalls []string
}

func (f *fakeOrderAPI) ListOrders(ctx context.Context, req pdd.ListRequest) (*pdd.ListPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)

	page := req.Params["page"].(int)
	size := req.Params["page_size"].(int)

	if size == 1 && f.probeFn != nil {
		if err := f.probeFn(); err != nil {
			return nil, err
		}
	}
	if size > 1 {
		if err, ok := f.failOn[page]; ok {
			return nil, err
		}
	}

	total := f.total
	if total == 0 {
		total = len(f.orders)
	}

	from := (page - 1) * size
	to := from + size
	if from > len(f.orders) {
		from = len(f.orders)
	}
	if to > len(f.orders) {
		to = len(f.orders)
	}
	list := append([]pdd.OrderInfo(nil), f.orders[from:to]...)
	return &pdd.ListPage{TotalCount: total, HasNext: to < total, Orders: list}, nil
}

func (f *fakeOrderAPI) GetRefundInfo(_ context.Context, orderSn string, _ int64) (*pdd.RefundInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refundCalls = append(f.refundCalls, orderSn)

	info, ok := f.refunds[orderSn]
	if !ok {
		return nil, fmt.Errorf("refund not found: %s", orderSn)
	}
	return info, nil
}

// pageCalls 非探测请求的页号，按调用顺序
func (f *fakeOrderAPI) pageCalls() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var pages []int
	for _, c := range f.calls {
		if c.Params["page_size"].(int) > 1 {
			pages = append(pages, c.Params["page"].(int))
		}
	}
	return pages
}

func (f *fakeOrderAPI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// ==================== 单元测试 ====================

func TestTotalPages(t *testing.T) {
	assert.Equal(t, 1, TotalPages(1))
	assert.Equal(t, 1, TotalPages(99))
	assert.Equal(t, 2, TotalPages(100))
	assert.Equal(t, 3, TotalPages(250))
}

func TestPageFetcher_Probe(t *testing.T) {
	api := &fakeOrderAPI{total: 250}
	f := NewPageFetcher(1, nil)
	w := Window{Start: 100, End: 200}

	total, err := f.Probe(context.Background(), api, UpdateTimeIncrement, w)
	require.NoError(t, err)
	assert.Equal(t, 250, total)

	require.Len(t, api.calls, 1)
	req := api.calls[0]
	assert.Equal(t, 1, req.Params["page"])
	assert.Equal(t, 1, req.Params["page_size"])
	assert.Equal(t, int64(100), req.Params["start_updated_at"])
	assert.Equal(t, int64(200), req.Params["end_updated_at"])
	assert.Equal(t, pdd.StatusAll, req.Params["order_status"])
	assert.Equal(t, pdd.StatusAll, req.Params["refund_status"])
	assert.Equal(t, pdd.LuckyFlagAll, req.Params["is_lucky_flag"])
}

func TestPageFetcher_FetchReverse(t *testing.T) {
	api := &fakeOrderAPI{total: 250}
	f := NewPageFetcher(4, nil)

	var handled []int
	err := f.Fetch(context.Background(), api, ConfirmTimeFull, Window{Start: 1, End: 2}, 250, func(p Page) error {
		handled = append(handled, p.Number)
		return nil
	})
	require.NoError(t, err)

	// 按成交时间必须从最后一页往前，且串行
	assert.Equal(t, []int{3, 2, 1}, api.pageCalls())
	assert.Equal(t, []int{3, 2, 1}, handled)
	for _, c := range api.calls {
		assert.Equal(t, pdd.MethodOrderList, c.Method)
		assert.Contains(t, c.Params, "start_confirm_at")
	}
}

func TestPageFetcher_FetchConcurrent(t *testing.T) {
	api := &fakeOrderAPI{total: 250}
	f := NewPageFetcher(3, nil)

	var handled []int
	err := f.Fetch(context.Background(), api, UpdateTimeIncrement, Window{Start: 1, End: 2}, 250, func(p Page) error {
		handled = append(handled, p.Number)
		return nil
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, []int{1, 2, 3}, api.pageCalls())
	assert.ElementsMatch(t, []int{1, 2, 3}, handled)
}

func TestPageFetcher_FetchZeroTotal(t *testing.T) {
	api := &fakeOrderAPI{}
	f := NewPageFetcher(2, nil)

	called := false
	err := f.Fetch(context.Background(), api, UpdateTimeIncrement, Window{Start: 1, End: 2}, 0, func(Page) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, called)
	assert.Zero(t, api.callCount())
}

func TestPageFetcher_FetchPageError(t *testing.T) {
	boom := errors.New("boom")

	for _, s := range []Strategy{UpdateTimeIncrement, ConfirmTimeFull} {
		t.Run(s.Method, func(t *testing.T) {
			api := &fakeOrderAPI{total: 250, failOn: map[int]error{2: boom}}
			f := NewPageFetcher(2, nil)

			err := f.Fetch(context.Background(), api, s, Window{Start: 1, End: 2}, 250, func(Page) error { return nil })
			require.Error(t, err)
			assert.ErrorIs(t, err, boom)
		})
	}
}

func TestPageFetcher_FetchHandleError(t *testing.T) {
	api := &fakeOrderAPI{total: 1000}
	f := NewPageFetcher(3, nil)
	stop := errors.New("stop")

	handled := 0
	err := f.Fetch(context.Background(), api, UpdateTimeIncrement, Window{Start: 1, End: 2}, 1000, func(Page) error {
		handled++
		return stop
	})
	require.ErrorIs(t, err, stop)
	assert.Equal(t, 1, handled, "handle 出错后不再处理后续页")
	assert.LessOrEqual(t, len(api.pageCalls()), 11)
}

func TestPageFetcher_FetchCanceled(t *testing.T) {
	api := &fakeOrderAPI{total: 250}
	f := NewPageFetcher(1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.Fetch(ctx, api, ConfirmTimeFull, Window{Start: 1, End: 2}, 250, func(Page) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pdd_order_sync/pkg/pdd"
)

// PageSize 每页条数，拼多多上限 100
const PageSize = pdd.MaxPageSize

// OrderLister 订单列表接口
type OrderLister interface {
	ListOrders(ctx context.Context, req pdd.ListRequest) (*pdd.ListPage, error)
}

// Page 一页订单
type Page struct {
	Number int
	Orders []pdd.OrderInfo
}

// TotalPages 总页数 = total/100 + 1
func TotalPages(total int) int {
	return total/PageSize + 1
}

// ==================== PageFetcher ====================

// PageFetcher 探测总数并按页拉取
type PageFetcher struct {
	concurrency int
	log         *zap.Logger
}

// NewPageFetcher 创建分页拉取器，concurrency 为单店铺内并发页数
func NewPageFetcher(concurrency int, log *zap.Logger) *PageFetcher {
	if concurrency <= 0 {
		concurrency = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PageFetcher{concurrency: concurrency, log: log}
}

// Probe 用 page=1, page_size=1 读取 total_count
func (f *PageFetcher) Probe(ctx context.Context, api OrderLister, s Strategy, w Window) (int, error) {
	res, err := api.ListOrders(ctx, s.ListRequest(w, 1, 1))
	if err != nil {
		return 0, fmt.Errorf("探测订单总数 %s: %w", w, err)
	}
	return res.TotalCount, nil
}

// Fetch 拉取全部页，每到一页交给 handle
// handle 始终在调用方 goroutine 中串行执行；handle 出错会取消剩余请求
func (f *PageFetcher) Fetch(ctx context.Context, api OrderLister, s Strategy, w Window, total int, handle func(Page) error) error {
	if total <= 0 {
		return nil
	}
	pages := s.PageNumbers(TotalPages(total))

	if !s.Concurrent || f.concurrency == 1 {
		for _, n := range pages {
			page, err := f.fetchPage(ctx, api, s, w, n)
			if err != nil {
				return err
			}
			if err := handle(page); err != nil {
				return err
			}
		}
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)

	results := make(chan Page)
	fetchErr := make(chan error, 1)

	go func() {
		for _, n := range pages {
			if gctx.Err() != nil {
				break
			}
			n := n
			g.Go(func() error {
				page, err := f.fetchPage(gctx, api, s, w, n)
				if err != nil {
					return err
				}
				select {
				case results <- page:
					return nil
				case <-gctx.Done():
					return gctx.Err()
				}
			})
		}
		fetchErr <- g.Wait()
		close(results)
	}()

	var handleErr error
	for page := range results {
		if handleErr != nil {
			continue
		}
		if err := handle(page); err != nil {
			handleErr = err
			cancel()
		}
	}

	if err := <-fetchErr; handleErr == nil && err != nil {
		return err
	}
	return handleErr
}

func (f *PageFetcher) fetchPage(ctx context.Context, api OrderLister, s Strategy, w Window, n int) (Page, error) {
	res, err := api.ListOrders(ctx, s.ListRequest(w, n, PageSize))
	if err != nil {
		return Page{}, fmt.Errorf("获取订单数据 %s 页%d: %w", w, n, err)
	}
	f.log.Debug("[PageFetcher] 页完成",
		zap.String("method", s.Method),
		zap.Int("page", n),
		zap.Int("orders", len(res.Orders)),
	)
	return Page{Number: n, Orders: res.Orders}, nil
}

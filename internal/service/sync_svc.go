package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"pdd_order_sync/internal/lock"
	"pdd_order_sync/internal/model"
	"pdd_order_sync/internal/repository"
)

// OrderAPI 同步一个店铺需要的拼多多接口
type OrderAPI interface {
	OrderLister
	RefundFetcher
}

// ClientFactory 为店铺创建接口客户端
type ClientFactory func(mall *model.Mall) OrderAPI

// SyncOptions 同步参数
type SyncOptions struct {
	TenantConcurrency int
	BootstrapLookback time.Duration // 店铺没有水位时，从 now-lookback 开始
	MaxWindowsPerRun  int           // 一次运行每个店铺最多推进的增量窗口数
	LockTTL           time.Duration
	ConfirmStrategy   Strategy
	PrivacyAfterRun   bool // 增量同步后执行收货信息补全
}

// DefaultSyncOptions 默认参数
func DefaultSyncOptions() SyncOptions {
	return SyncOptions{
		TenantConcurrency: 5,
		BootstrapLookback: 24 * time.Hour,
		MaxWindowsPerRun:  1,
		LockTTL:           30 * time.Minute,
		ConfirmStrategy:   ConfirmTimeFull,
		PrivacyAfterRun:   true,
	}
}

// SyncDeps 同步服务依赖
type SyncDeps struct {
	Malls      repository.MallRepository
	UnitOfWork *repository.SyncUnitOfWork
	Planner    *WindowPlanner
	Fetcher    *PageFetcher
	Reconciler *Reconciler
	Privacy    *PrivacyService // 可为空
	Clients    ClientFactory
	Locker     lock.Locker // 为空时使用进程内锁
	Logger     *zap.Logger
}

// ==================== SyncService 同步编排 ====================

// SyncService 按店铺编排：计算窗口 → 探测 → 分页拉取 → 合并 → 写水位
// 每个店铺每个窗口在一个事务内提交，失败只影响该店铺
type SyncService struct {
	deps SyncDeps
	opts SyncOptions
	log  *zap.Logger
}

// NewSyncService 创建同步服务
func NewSyncService(deps SyncDeps, opts SyncOptions) *SyncService {
	if deps.Locker == nil {
		deps.Locker = lock.NewMemoryLocker()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if opts.TenantConcurrency <= 0 {
		opts.TenantConcurrency = 1
	}
	if opts.MaxWindowsPerRun <= 0 {
		opts.MaxWindowsPerRun = 1
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Minute
	}
	if opts.ConfirmStrategy.Method == "" {
		opts.ConfirmStrategy = ConfirmTimeFull
	}
	return &SyncService{
		deps: deps,
		opts: opts,
		log:  deps.Logger.Named("sync"),
	}
}

// ==================== 增量（更新时间） ====================

// SyncByUpdateTime 从各店铺最新水位继续增量同步
// 只有读取店铺列表失败才返回错误，单店铺失败记录在报告中
func (s *SyncService) SyncByUpdateTime(ctx context.Context) (*RunReport, error) {
	report := newRunReport(model.StrategyUpdateTime, s.deps.Planner.Now())

	malls, err := s.deps.Malls.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取店铺列表: %w", err)
	}
	s.log.Info("[SyncService] 开始增量同步",
		zap.String("run_id", report.RunID.String()),
		zap.Int("malls", len(malls)),
	)

	report.Tenants = s.forEachMall(ctx, malls, func(ctx context.Context, mall *model.Mall) TenantResult {
		return s.syncMallByUpdateTime(ctx, mall)
	})

	if s.opts.PrivacyAfterRun && s.deps.Privacy != nil {
		pr, err := s.deps.Privacy.Backfill(ctx)
		if err != nil {
			s.log.Error("[SyncService] 收货信息补全失败", zap.Error(err))
		}
		report.Privacy = pr
	}

	s.finish(report)
	return report, nil
}

func (s *SyncService) syncMallByUpdateTime(ctx context.Context, mall *model.Mall) TenantResult {
	res := TenantResult{MallID: mall.ID, MallName: mall.DisplayName()}
	api := s.deps.Clients(mall)

	for i := 0; i < s.opts.MaxWindowsPerRun; i++ {
		var (
			stats    TenantStats
			w        Window
			cursor   int64
			advanced bool
		)

		err := s.deps.UnitOfWork.Transaction(ctx, func(uow *repository.SyncUnitOfWork) error {
			latest, err := uow.Monitors.Latest(ctx, mall.ID, model.StrategyUpdateTime)
			if err != nil {
				return fmt.Errorf("读取水位: %w", err)
			}
			watermark := s.deps.Planner.Now().Add(-s.opts.BootstrapLookback).Unix()
			if latest != nil {
				watermark = latest.LastRunTs
			}

			w, cursor = s.deps.Planner.UpdateWindow(watermark)
			if w.Empty() {
				return nil
			}

			if err := s.syncWindow(ctx, uow, api, mall, UpdateTimeIncrement, w, &stats); err != nil {
				return err
			}
			if err := s.appendMonitor(ctx, uow, mall.ID, UpdateTimeIncrement.Name, cursor, &stats); err != nil {
				return err
			}
			advanced = true
			return nil
		})

		res.Window = w
		if err != nil {
			res.Err = err
			s.log.Error("[SyncService] 店铺同步失败",
				zap.Int64("mall_id", mall.ID),
				zap.String("mall", res.MallName),
				zap.Stringer("window", w),
				zap.Error(err),
			)
			return res
		}
		if !advanced {
			if res.Windows == 0 {
				res.Skipped = true
				s.log.Info("[SyncService] 窗口为空, 本次跳过",
					zap.String("mall", res.MallName),
					zap.Stringer("window", w),
				)
			}
			return res
		}

		res.Windows++
		res.Cursor = cursor
		res.Stats.Total += stats.Total
		res.Stats.Created += stats.Created
		res.Stats.Updated += stats.Updated
		s.logMallDone(mall, w, stats)
	}
	return res
}

// ==================== 按成交时间 ====================

// SyncByConfirmTime 按成交日同步最近 days 天（含今天）
// 外层按日期，内层按店铺；任何一天某店铺失败不影响其它店铺和日期
func (s *SyncService) SyncByConfirmTime(ctx context.Context, days int) (*RunReport, error) {
	strategy := s.opts.ConfirmStrategy
	report := newRunReport(strategy.Name, s.deps.Planner.Now())

	malls, err := s.deps.Malls.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取店铺列表: %w", err)
	}
	s.log.Info("[SyncService] 开始按成交时间同步",
		zap.String("run_id", report.RunID.String()),
		zap.String("method", strategy.Method),
		zap.Int("days", days),
		zap.Int("malls", len(malls)),
	)

	for _, day := range s.deps.Planner.RecentDays(days) {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		w := s.deps.Planner.DayWindow(day)
		if w.Empty() {
			continue
		}
		results := s.forEachMall(ctx, malls, func(ctx context.Context, mall *model.Mall) TenantResult {
			return s.syncMallByConfirmTime(ctx, mall, strategy, w)
		})
		report.Tenants = append(report.Tenants, results...)
	}

	s.finish(report)
	return report, nil
}

func (s *SyncService) syncMallByConfirmTime(ctx context.Context, mall *model.Mall, strategy Strategy, w Window) TenantResult {
	res := TenantResult{MallID: mall.ID, MallName: mall.DisplayName(), Window: w}
	api := s.deps.Clients(mall)

	var stats TenantStats
	err := s.deps.UnitOfWork.Transaction(ctx, func(uow *repository.SyncUnitOfWork) error {
		if err := s.syncWindow(ctx, uow, api, mall, strategy, w, &stats); err != nil {
			return err
		}
		return s.appendMonitor(ctx, uow, mall.ID, strategy.Name, w.End, &stats)
	})
	if err != nil {
		res.Err = err
		s.log.Error("[SyncService] 店铺同步失败",
			zap.Int64("mall_id", mall.ID),
			zap.String("mall", res.MallName),
			zap.Stringer("window", w),
			zap.Error(err),
		)
		return res
	}

	res.Windows = 1
	res.Cursor = w.End
	res.Stats = stats
	s.logMallDone(mall, w, stats)
	return res
}

// ==================== 公共步骤 ====================

// syncWindow 探测 → 分页拉取 → 合并，全部在 uow 事务内
func (s *SyncService) syncWindow(ctx context.Context, uow *repository.SyncUnitOfWork, api OrderAPI, mall *model.Mall, strategy Strategy, w Window, stats *TenantStats) error {
	total, err := s.deps.Fetcher.Probe(ctx, api, strategy, w)
	if err != nil {
		return err
	}
	stats.Total = total
	s.log.Info("[SyncService] 获取拼多多数据记录",
		zap.String("mall", mall.DisplayName()),
		zap.Stringer("window", w),
		zap.Int("total_count", total),
	)

	return s.deps.Fetcher.Fetch(ctx, api, strategy, w, total, func(p Page) error {
		return s.deps.Reconciler.ReconcilePage(ctx, uow, api, mall.ID, p.Orders, stats)
	})
}

func (s *SyncService) appendMonitor(ctx context.Context, uow *repository.SyncUnitOfWork, mallID int64, strategy string, cursor int64, stats *TenantStats) error {
	m := &model.Monitor{
		MallID:       mallID,
		Strategy:     strategy,
		LastRunTs:    cursor,
		LastRunTime:  time.Unix(cursor, 0).In(s.deps.Planner.Location()),
		TotalCount:   stats.Total,
		CreatedCount: stats.Created,
		UpdatedCount: stats.Updated,
	}
	if err := uow.Monitors.Append(ctx, m); err != nil {
		return fmt.Errorf("写入水位: %w", err)
	}
	return nil
}

// forEachMall 并发处理店铺，单店铺加锁，结果顺序与 malls 一致
func (s *SyncService) forEachMall(ctx context.Context, malls []model.Mall, fn func(ctx context.Context, mall *model.Mall) TenantResult) []TenantResult {
	results := make([]TenantResult, len(malls))
	sem := make(chan struct{}, s.opts.TenantConcurrency)
	var wg sync.WaitGroup

	for i := range malls {
		mall := &malls[i]
		select {
		case <-ctx.Done():
			results[i] = TenantResult{MallID: mall.ID, MallName: mall.DisplayName(), Err: ctx.Err()}
			continue
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(i int, mall *model.Mall) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = s.withMallLock(ctx, mall, fn)
		}(i, mall)
	}

	wg.Wait()
	return results
}

func (s *SyncService) withMallLock(ctx context.Context, mall *model.Mall, fn func(ctx context.Context, mall *model.Mall) TenantResult) TenantResult {
	release, err := s.deps.Locker.Acquire(ctx, lock.MallKey(mall.ID), s.opts.LockTTL)
	if err != nil {
		res := TenantResult{MallID: mall.ID, MallName: mall.DisplayName()}
		if errors.Is(err, lock.ErrLocked) {
			res.Skipped = true
			s.log.Warn("[SyncService] 店铺正在同步中, 跳过", zap.String("mall", res.MallName))
			return res
		}
		res.Err = fmt.Errorf("获取店铺锁: %w", err)
		return res
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn("[SyncService] 释放店铺锁失败", zap.Int64("mall_id", mall.ID), zap.Error(err))
		}
	}()

	s.log.Info("[SyncService] 开始处理", zap.String("mall", mall.DisplayName()))
	return fn(ctx, mall)
}

func (s *SyncService) logMallDone(mall *model.Mall, w Window, stats TenantStats) {
	s.log.Info("[SyncService] 运行完毕",
		zap.String("mall", mall.DisplayName()),
		zap.Stringer("window", w),
		zap.Int("total", stats.Total),
		zap.Int("created", stats.Created),
		zap.Int("updated", stats.Updated),
	)
}

func (s *SyncService) finish(report *RunReport) {
	report.FinishedAt = s.deps.Planner.Now()
	totals := report.Totals()
	s.log.Info("[SyncService] 同步完成",
		zap.String("run_id", report.RunID.String()),
		zap.String("strategy", report.Strategy),
		zap.Int("malls", len(report.Tenants)),
		zap.Int("failed", report.Failed()),
		zap.Int("total", totals.Total),
		zap.Int("created", totals.Created),
		zap.Int("updated", totals.Updated),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
}

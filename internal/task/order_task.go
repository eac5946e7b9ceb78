package task

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"pdd_order_sync/internal/service"
)

// OrderSyncer 订单同步入口，由 service.SyncService 实现
type OrderSyncer interface {
	SyncByUpdateTime(ctx context.Context) (*service.RunReport, error)
	SyncByConfirmTime(ctx context.Context, days int) (*service.RunReport, error)
}

// ==================== OrderSyncTask 订单同步任务 ====================

// OrderSyncTask 订单同步定时任务
// 增量同步按 updateSpec 执行；confirmSpec 非空时另按成交时间补拉最近 confirmDays 天
type OrderSyncTask struct {
	syncer OrderSyncer
	cron   *cron.Cron
	log    *zap.Logger

	updateSpec  string
	confirmSpec string
	confirmDays int
	timeout     time.Duration
	runOnStart  bool

	// 同一类任务不重叠执行
	updateMu  sync.Mutex
	confirmMu sync.Mutex
	wg        sync.WaitGroup
}

// NewOrderSyncTask 创建订单同步任务
func NewOrderSyncTask(syncer OrderSyncer, log *zap.Logger) *OrderSyncTask {
	if log == nil {
		log = zap.NewNop()
	}
	return &OrderSyncTask{
		syncer:      syncer,
		cron:        cron.New(cron.WithSeconds()),
		log:         log,
		updateSpec:  "0 */5 * * * *",
		confirmDays: 1,
		timeout:     30 * time.Minute,
		runOnStart:  true,
	}
}

// SetSchedule 设置调度参数
func (t *OrderSyncTask) SetSchedule(updateSpec, confirmSpec string, confirmDays int, loc *time.Location) {
	if updateSpec != "" {
		t.updateSpec = updateSpec
	}
	t.confirmSpec = confirmSpec
	if confirmDays >= 0 {
		t.confirmDays = confirmDays
	}
	if loc != nil {
		t.cron = cron.New(cron.WithSeconds(), cron.WithLocation(loc))
	}
}

// SetTimeout 设置单次运行超时
func (t *OrderSyncTask) SetTimeout(timeout time.Duration, runOnStart bool) {
	if timeout > 0 {
		t.timeout = timeout
	}
	t.runOnStart = runOnStart
}

// Start 启动定时任务
func (t *OrderSyncTask) Start() error {
	if _, err := t.cron.AddFunc(t.updateSpec, t.runUpdate); err != nil {
		t.log.Error("[OrderSyncTask] 增量任务启动失败", zap.String("spec", t.updateSpec), zap.Error(err))
		return err
	}
	if t.confirmSpec != "" {
		if _, err := t.cron.AddFunc(t.confirmSpec, t.runConfirm); err != nil {
			t.log.Error("[OrderSyncTask] 成交时间任务启动失败", zap.String("spec", t.confirmSpec), zap.Error(err))
			return err
		}
	}

	// 首次执行
	if t.runOnStart {
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			t.log.Info("[OrderSyncTask] 执行首次订单同步...")
			t.runUpdate()
		}()
	}

	t.cron.Start()
	t.log.Info("[OrderSyncTask] 已启动",
		zap.String("update", t.updateSpec),
		zap.String("confirm", t.confirmSpec),
	)
	return nil
}

// Stop 停止任务，等待正在执行的同步结束
func (t *OrderSyncTask) Stop() {
	ctx := t.cron.Stop()
	<-ctx.Done()
	t.wg.Wait()
	t.log.Info("[OrderSyncTask] 已停止")
}

func (t *OrderSyncTask) runUpdate() {
	if !t.updateMu.TryLock() {
		t.log.Warn("[OrderSyncTask] 上一次增量同步尚未结束, 跳过")
		return
	}
	defer t.updateMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	report, err := t.syncer.SyncByUpdateTime(ctx)
	t.logReport("增量同步", report, err)
}

func (t *OrderSyncTask) runConfirm() {
	if !t.confirmMu.TryLock() {
		t.log.Warn("[OrderSyncTask] 上一次成交时间同步尚未结束, 跳过")
		return
	}
	defer t.confirmMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()

	report, err := t.syncer.SyncByConfirmTime(ctx, t.confirmDays)
	t.logReport("成交时间同步", report, err)
}

func (t *OrderSyncTask) logReport(name string, report *service.RunReport, err error) {
	if err != nil {
		t.log.Error("[OrderSyncTask] "+name+"失败", zap.Error(err))
		return
	}
	if report == nil {
		return
	}
	for _, r := range report.Tenants {
		if r.Err != nil {
			t.log.Warn("[OrderSyncTask] 店铺同步失败",
				zap.String("mall", r.MallName),
				zap.Stringer("window", r.Window),
				zap.Error(r.Err),
			)
		}
	}
	totals := report.Totals()
	t.log.Info("[OrderSyncTask] "+name+"完成",
		zap.Int("malls", len(report.Tenants)),
		zap.Int("failed", report.Failed()),
		zap.Int("created", totals.Created),
		zap.Int("updated", totals.Updated),
	)
}

// ==================== 手动触发 ====================

// SyncUpdateNow 立即执行一次增量同步（阻塞）
func (t *OrderSyncTask) SyncUpdateNow(ctx context.Context) (*service.RunReport, error) {
	t.updateMu.Lock()
	defer t.updateMu.Unlock()
	return t.syncer.SyncByUpdateTime(ctx)
}

// SyncConfirmNow 立即按成交时间同步最近 days 天（阻塞）
func (t *OrderSyncTask) SyncConfirmNow(ctx context.Context, days int) (*service.RunReport, error) {
	t.confirmMu.Lock()
	defer t.confirmMu.Unlock()
	return t.syncer.SyncByConfirmTime(ctx, days)
}

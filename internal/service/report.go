package service

import (
	"time"

	"github.com/google/uuid"
)

// TenantStats 单店铺单窗口的计数，随调用链显式传递
type TenantStats struct {
	Total   int
	Created int
	Updated int
}

// TenantResult 单店铺在一次运行中的结果
type TenantResult struct {
	MallID   int64
	MallName string
	Window   Window
	Windows  int // 实际处理并提交的窗口数
	Skipped  bool
	Stats    TenantStats
	Cursor   int64 // 最后写入的水位
	Err      error
}

// RunReport 一次运行的汇总
type RunReport struct {
	RunID      uuid.UUID
	Strategy   string
	StartedAt  time.Time
	FinishedAt time.Time
	Tenants    []TenantResult
	Privacy    *PrivacyReport
}

func newRunReport(strategy string, now time.Time) *RunReport {
	return &RunReport{
		RunID:     uuid.New(),
		Strategy:  strategy,
		StartedAt: now,
	}
}

// Failed 失败的店铺数
func (r *RunReport) Failed() int {
	n := 0
	for _, t := range r.Tenants {
		if t.Err != nil {
			n++
		}
	}
	return n
}

// Totals 合计
func (r *RunReport) Totals() TenantStats {
	var s TenantStats
	for _, t := range r.Tenants {
		s.Total += t.Stats.Total
		s.Created += t.Stats.Created
		s.Updated += t.Stats.Updated
	}
	return s
}

// PrivacyReport 收货信息补全结果
type PrivacyReport struct {
	Batches       int
	Selected      int
	Matched       int
	Unmatched     int
	FailedBatches int
}

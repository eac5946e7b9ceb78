package service

import (
	"fmt"
	"time"
)

const (
	// updateWindowSpan 增量接口单次跨度必须小于 30 分钟
	updateWindowSpan int64 = 1799
	// updateSafetyLag 窗口结束时间至少落后当前时间 3 分钟，避免漏掉仍在写入的订单
	updateSafetyLag int64 = 180
	// watermarkLag 水位至少落后当前时间 30 秒
	watermarkLag int64 = 30
)

// Window 查询时间窗口，单位秒，两端都包含
type Window struct {
	Start int64
	End   int64
}

// Empty 结束时间不晚于开始时间，不发起查询
func (w Window) Empty() bool {
	return w.End <= w.Start
}

// Span 窗口跨度（秒）
func (w Window) Span() int64 {
	return w.End - w.Start
}

func (w Window) String() string {
	return fmt.Sprintf("[%d, %d]", w.Start, w.End)
}

// ==================== WindowPlanner ====================

// WindowPlanner 根据水位或日期计算查询窗口
type WindowPlanner struct {
	loc *time.Location
	now func() time.Time
}

// NewWindowPlanner 创建窗口计算器，now 为空时使用 time.Now
func NewWindowPlanner(loc *time.Location, now func() time.Time) *WindowPlanner {
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	return &WindowPlanner{loc: loc, now: now}
}

// Now 当前时间（所在时区）
func (p *WindowPlanner) Now() time.Time {
	return p.now().In(p.loc)
}

// Location 业务时区
func (p *WindowPlanner) Location() *time.Location {
	return p.loc
}

// UpdateWindow 按更新时间的增量窗口
// 返回窗口及窗口处理完成后应写入的新水位
func (p *WindowPlanner) UpdateWindow(watermark int64) (Window, int64) {
	now := p.now().Unix()

	w := Window{
		Start: watermark + 1,
		End:   watermark + updateWindowSpan,
	}
	if limit := now - updateSafetyLag; w.End > limit {
		w.End = limit
	}

	cursor := w.End
	if limit := now - watermarkLag; cursor > limit {
		cursor = limit
	}
	return w, cursor
}

// DayWindow 按成交时间的自然日窗口，结束时间不超过当前时间
func (p *WindowPlanner) DayWindow(day time.Time) Window {
	d := day.In(p.loc)
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, p.loc)
	end := time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, 0, p.loc)

	w := Window{Start: start.Unix(), End: end.Unix()}
	if now := p.now().Unix(); w.End > now {
		w.End = now
	}
	return w
}

// RecentDays 从 days 天前到今天，按时间正序
func (p *WindowPlanner) RecentDays(days int) []time.Time {
	if days < 0 {
		days = 0
	}
	now := p.Now()
	list := make([]time.Time, 0, days+1)
	for d := days; d >= 0; d-- {
		list = append(list, now.AddDate(0, 0, -d))
	}
	return list
}

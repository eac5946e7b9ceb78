package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"pdd_order_sync/internal/model"
	"pdd_order_sync/internal/repository"
	"pdd_order_sync/pkg/erp321"
)

// BuyerSource 第二系统（聚水潭）按线上单号查询收货信息
type BuyerSource interface {
	GetOrders(ctx context.Context, soIDs []string) ([]erp321.Order, error)
}

// ==================== PrivacyService 收货信息补全 ====================

// PrivacyService 为缺少收货人信息的订单从聚水潭补全
type PrivacyService struct {
	uow       *repository.SyncUnitOfWork
	source    BuyerSource
	batchSize int
	log       *zap.Logger
}

// NewPrivacyService 创建补全服务，batchSize 不超过 20
func NewPrivacyService(uow *repository.SyncUnitOfWork, source BuyerSource, batchSize int, log *zap.Logger) *PrivacyService {
	if batchSize <= 0 || batchSize > erp321.MaxSoIDs {
		batchSize = erp321.MaxSoIDs
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PrivacyService{
		uow:       uow,
		source:    source,
		batchSize: batchSize,
		log:       log.Named("privacy"),
	}
}

// Backfill 分批补全，直到查询不到缺失订单
// 按 so_no 游标推进，未匹配的订单本轮不再重复查询，下次运行时重新尝试
func (s *PrivacyService) Backfill(ctx context.Context) (*PrivacyReport, error) {
	report := &PrivacyReport{}
	cursor := ""

	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		orders, err := s.uow.Orders.FindMissingBuyer(ctx, cursor, s.batchSize)
		if err != nil {
			return report, fmt.Errorf("查询缺少收货信息的订单: %w", err)
		}
		if len(orders) == 0 {
			break
		}
		cursor = orders[len(orders)-1].SoNo
		report.Batches++
		report.Selected += len(orders)

		s.log.Info("[PrivacyService] db没有收货信息的订单", zap.Int("count", len(orders)))

		if err := s.fillBatch(ctx, orders, report); err != nil {
			report.FailedBatches++
			s.log.Error("[PrivacyService] 补充收货人信息失败",
				zap.Strings("so_ids", soNos(orders)),
				zap.Error(err),
			)
		}
	}

	if report.Selected == 0 {
		s.log.Info("[PrivacyService] 没有需要从聚水潭获取数据的订单")
	} else {
		s.log.Info("[PrivacyService] 补全完成",
			zap.Int("selected", report.Selected),
			zap.Int("matched", report.Matched),
			zap.Int("unmatched", report.Unmatched),
			zap.Int("failed_batches", report.FailedBatches),
		)
	}
	return report, nil
}

func (s *PrivacyService) fillBatch(ctx context.Context, orders []model.Order, report *PrivacyReport) error {
	remote, err := s.source.GetOrders(ctx, soNos(orders))
	if err != nil {
		return err
	}

	bySoID := make(map[string]erp321.Order, len(remote))
	for _, r := range remote {
		bySoID[r.SoID] = r
	}

	// 一批内的更新同一事务提交，任一失败整批不生效
	matched, unmatched := 0, 0
	err = s.uow.Transaction(ctx, func(tx *repository.SyncUnitOfWork) error {
		matched, unmatched = 0, 0
		for _, o := range orders {
			r, ok := bySoID[o.SoNo]
			if !ok {
				unmatched++
				s.log.Warn("[PrivacyService] 订单在聚水潭没有找到", zap.String("so_no", o.SoNo))
				continue
			}

			info := model.BuyerInfo{}
			if r.ReceiverMobile != "" {
				info = model.BuyerInfo{
					Account:  r.ReceiverMobile,
					Province: r.ReceiverState,
					City:     r.ReceiverCity,
					Town:     r.ReceiverDistrict,
				}
			}
			if err := tx.Orders.UpdateBuyerInfo(ctx, o.ID, info); err != nil {
				return fmt.Errorf("更新订单 %s 收货信息: %w", o.SoNo, err)
			}
			matched++
		}
		return nil
	})
	if err != nil {
		return err
	}
	report.Matched += matched
	report.Unmatched += unmatched
	return nil
}

func soNos(orders []model.Order) []string {
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.SoNo)
	}
	return ids
}

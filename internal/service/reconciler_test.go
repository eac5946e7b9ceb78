package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"pdd_order_sync/internal/model"
	"pdd_order_sync/internal/repository"
	"pdd_order_sync/pkg/pdd"
)

// ==================== 测试辅助 ====================

func setupServiceTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("连接测试数据库失败: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("获取底层连接失败: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(model.AllModels()...); err != nil {
		t.Fatalf("数据库迁移失败: %v", err)
	}
	return db
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newRemoteOrder(sn string) pdd.OrderInfo {
	o := pdd.OrderInfo{
		OrderSn:          sn,
		ConfirmTime:      "2024-05-09 10:00:00",
		CreatedTime:      "2024-05-09 09:58:00",
		UpdatedAt:        "2024-05-09 11:00:00",
		ConfirmStatus:    1,
		RefundStatus:     1,
		AfterSalesStatus: 0,
		OrderStatus:      1,
		GoodsAmount:      dec("30.00"),
		DiscountAmount:   dec("5.00"),
		PayAmount:        dec("25.00"),
		Postage:          dec("0"),
		ServiceFeeDetail: []pdd.ServiceFeeDetail{
			{ServiceFee: dec("1.20"), ServiceName: "a"},
			{ServiceFee: dec("0.30"), ServiceName: "b"},
		},
		LogisticsID:    44,
		TrackingNumber: "YT100",
		ItemList: []pdd.ItemInfo{
			{GoodsCount: 1, GoodsPrice: dec("10.00"), GoodsName: "杯子", GoodsID: 1, SkuID: 11, OuterID: "A1"},
			{GoodsCount: 2, GoodsPrice: dec("10.00"), GoodsName: "盘子", GoodsID: 2, SkuID: 22, OuterID: "B2"},
		},
	}
	o.Raw, _ = json.Marshal(map[string]string{"order_sn": sn})
	return o
}

func reconcileOne(t *testing.T, db *gorm.DB, r *Reconciler, api RefundFetcher, remote pdd.OrderInfo) bool {
	t.Helper()
	var created bool
	err := repository.NewSyncUnitOfWork(db).Transaction(context.Background(), func(uow *repository.SyncUnitOfWork) error {
		var err error
		created, err = r.Reconcile(context.Background(), uow, api, 7, &remote)
		return err
	})
	require.NoError(t, err)
	return created
}

// ==================== 单元测试 ====================

func TestReconciler_CreateThenUpdate(t *testing.T) {
	db := setupServiceTestDB(t)
	r := NewReconciler(testLoc, nil)
	api := &fakeOrderAPI{}
	orders := repository.NewOrderRepository(db)

	remote := newRemoteOrder("240509-001")
	assert.True(t, reconcileOne(t, db, r, api, remote))

	got, err := orders.GetBySoNoWithItems(context.Background(), "240509-001")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(7), got.MallID)
	assert.True(t, got.ServiceFee.Equal(dec("1.50")), "服务费为明细之和")
	assert.True(t, got.PayAmount.Equal(dec("25.00")))
	assert.Equal(t, 2, got.ItemCount)
	assert.Len(t, got.Items, 2)
	require.NotNil(t, got.ConfirmTime)
	assert.Equal(t, "2024-05-09 10:00:00", got.ConfirmTime.In(testLoc).Format(pddTimeLayout))
	assert.Nil(t, got.ShippingTime)
	assert.Nil(t, got.BuyerAccount, "列表没有收货信息时保持为空，等待补全")

	// 再次合并同一订单：更新而非新增，字段与订单项一致
	remote.OrderStatus = 2
	remote.ShippingTime = "2024-05-09 18:00:00"
	assert.False(t, reconcileOne(t, db, r, api, remote))

	again, err := orders.GetBySoNoWithItems(context.Background(), "240509-001")
	require.NoError(t, err)
	assert.Equal(t, got.ID, again.ID)
	assert.Equal(t, 2, again.OrderStatus)
	require.NotNil(t, again.ShippingTime)
	assert.Equal(t, 2, again.ItemCount)
	require.Len(t, again.Items, 2)
	assert.Equal(t, []string{"杯子", "盘子"}, []string{again.Items[0].GoodsName, again.Items[1].GoodsName})

	var count int64
	require.NoError(t, db.Model(&model.Order{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	require.NoError(t, db.Model(&model.Item{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
	assert.Empty(t, api.refundCalls)
}

func TestReconciler_Idempotent(t *testing.T) {
	db := setupServiceTestDB(t)
	r := NewReconciler(testLoc, nil)
	api := &fakeOrderAPI{}
	orders := repository.NewOrderRepository(db)

	remote := newRemoteOrder("240509-002")
	reconcileOne(t, db, r, api, remote)
	first, err := orders.GetBySoNoWithItems(context.Background(), remote.OrderSn)
	require.NoError(t, err)

	reconcileOne(t, db, r, api, remote)
	second, err := orders.GetBySoNoWithItems(context.Background(), remote.OrderSn)
	require.NoError(t, err)

	assert.Equal(t, first.OrderStatus, second.OrderStatus)
	assert.True(t, first.GoodsAmount.Equal(second.GoodsAmount))
	assert.True(t, first.ServiceFee.Equal(second.ServiceFee))
	assert.Equal(t, first.TrackingNumber, second.TrackingNumber)
	assert.Equal(t, first.ItemCount, second.ItemCount)
	require.Len(t, second.Items, len(first.Items))
	for i := range first.Items {
		assert.Equal(t, first.Items[i].SkuID, second.Items[i].SkuID)
		assert.Equal(t, first.Items[i].Qty, second.Items[i].Qty)
	}
}

func TestReconciler_RefundDetail(t *testing.T) {
	db := setupServiceTestDB(t)
	r := NewReconciler(testLoc, nil)
	api := &fakeOrderAPI{
		refunds: map[string]*pdd.RefundInfo{
			"240509-003": {ID: 9001, AfterSalesType: 2, GoodsNumber: 1, RefundAmount: 1234},
		},
	}

	remote := newRemoteOrder("240509-003")
	remote.AfterSalesStatus = pdd.RefundSucceeded
	reconcileOne(t, db, r, api, remote)

	got, err := repository.NewOrderRepository(db).GetBySoNo(context.Background(), remote.OrderSn)
	require.NoError(t, err)
	require.NotNil(t, got.AfterSalesID)
	assert.Equal(t, int64(9001), *got.AfterSalesID)
	assert.Equal(t, 2, got.AfterSalesType)
	assert.Equal(t, 1, got.GoodsNumber)
	assert.True(t, got.RefundAmount.Equal(dec("12.34")), "退款金额由分转元")
	assert.Equal(t, []string{"240509-003"}, api.refundCalls)

	// 已有售后单号，不再重复查询
	reconcileOne(t, db, r, api, remote)
	assert.Len(t, api.refundCalls, 1)
}

func TestReconciler_RefundDetailErrorRollsBack(t *testing.T) {
	db := setupServiceTestDB(t)
	r := NewReconciler(testLoc, nil)
	api := &fakeOrderAPI{} // 没有售后数据

	remote := newRemoteOrder("240509-004")
	remote.AfterSalesStatus = pdd.RefundSucceeded

	err := repository.NewSyncUnitOfWork(db).Transaction(context.Background(), func(uow *repository.SyncUnitOfWork) error {
		_, err := r.Reconcile(context.Background(), uow, api, 7, &remote)
		return err
	})
	require.Error(t, err)

	got, err := repository.NewOrderRepository(db).GetBySoNo(context.Background(), remote.OrderSn)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestBuildPatch_KeepsBuyerWhenProvinceMissing(t *testing.T) {
	remote := newRemoteOrder("x")
	p, err := BuildPatch(1, &remote, testLoc)
	require.NoError(t, err)
	assert.Nil(t, p.Buyer)
	assert.NotContains(t, p.Columns(), "buyer_account")

	remote.Province = "浙江省"
	remote.City = "杭州市"
	remote.ReceiverPhone = "138****0000"
	p, err = BuildPatch(1, &remote, testLoc)
	require.NoError(t, err)
	require.NotNil(t, p.Buyer)
	assert.Equal(t, "浙江省", p.Buyer.Province)
	assert.Contains(t, p.Columns(), "buyer_account")
}

func TestBuildPatch_BadTime(t *testing.T) {
	remote := newRemoteOrder("x")
	remote.ConfirmTime = "09/05/2024"
	_, err := BuildPatch(1, &remote, testLoc)
	assert.Error(t, err)
}

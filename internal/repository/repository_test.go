package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"pdd_order_sync/internal/model"
)

// ==================== 辅助函数 ====================

func setupRepoTestDB(t *testing.T) *gorm.DB {
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
	// 内存库每个连接独立，固定单连接
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(model.AllModels()...); err != nil {
		t.Fatalf("数据库迁移失败: %v", err)
	}
	return db
}

func newTestOrder(soNo string) *model.Order {
	return &model.Order{
		MallID:      1,
		SoNo:        soNo,
		PayAmount:   decimal.RequireFromString("12.30"),
		GoodsAmount: decimal.RequireFromString("15.00"),
	}
}

// ==================== MallRepository ====================

func TestMallRepository_ListActive(t *testing.T) {
	db := setupRepoTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&model.Mall{Name: "A", Active: true}).Error)
	require.NoError(t, db.Create(&model.Mall{Name: "B", Active: false}).Error)
	require.NoError(t, db.Create(&model.Mall{Name: "C", Active: true}).Error)

	repo := NewMallRepository(db)
	malls, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, malls, 2)
	assert.Equal(t, "A", malls[0].Name)
	assert.Equal(t, "C", malls[1].Name)

	m, err := repo.GetByID(ctx, 999)
	assert.NoError(t, err)
	assert.Nil(t, m)
}

// ==================== OrderRepository ====================

func TestOrderRepository_CreateAndGet(t *testing.T) {
	db := setupRepoTestDB(t)
	ctx := context.Background()
	repo := NewOrderRepository(db)

	o := newTestOrder("240101-0001")
	require.NoError(t, repo.Create(ctx, o))
	assert.NotEqual(t, uuid.Nil, o.ID)

	got, err := repo.GetBySoNo(ctx, "240101-0001")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, o.ID, got.ID)
	assert.True(t, got.PayAmount.Equal(decimal.RequireFromString("12.3")))

	missing, err := repo.GetBySoNo(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestOrderRepository_SoNoUnique(t *testing.T) {
	db := setupRepoTestDB(t)
	ctx := context.Background()
	repo := NewOrderRepository(db)

	require.NoError(t, repo.Create(ctx, newTestOrder("dup")))
	assert.Error(t, repo.Create(ctx, newTestOrder("dup")))
}

func TestOrderRepository_ApplyPatchWritesZeroValues(t *testing.T) {
	db := setupRepoTestDB(t)
	ctx := context.Background()
	repo := NewOrderRepository(db)

	o := newTestOrder("240101-0002")
	o.OrderStatus = 2
	o.TrackingNumber = "YT123"
	require.NoError(t, repo.Create(ctx, o))

	patch := &model.OrderPatch{MallID: 1, OrderStatus: 0, PayAmount: decimal.Zero}
	require.NoError(t, repo.ApplyPatch(ctx, o, patch))

	got, err := repo.GetBySoNo(ctx, "240101-0002")
	require.NoError(t, err)
	assert.Equal(t, 0, got.OrderStatus)
	assert.Equal(t, "", got.TrackingNumber)
	assert.True(t, got.PayAmount.IsZero())
	assert.Nil(t, got.BuyerAccount)
}

func TestOrderRepository_FindMissingBuyerKeyset(t *testing.T) {
	db := setupRepoTestDB(t)
	ctx := context.Background()
	repo := NewOrderRepository(db)

	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, newTestOrder(fmt.Sprintf("so-%02d", i))))
	}
	filled := newTestOrder("so-99")
	account := "13800000000"
	filled.BuyerAccount = &account
	require.NoError(t, repo.Create(ctx, filled))

	first, err := repo.FindMissingBuyer(ctx, "", 3)
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.Equal(t, "so-00", first[0].SoNo)

	second, err := repo.FindMissingBuyer(ctx, first[2].SoNo, 3)
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Equal(t, "so-03", second[0].SoNo)

	require.NoError(t, repo.UpdateBuyerInfo(ctx, second[0].ID, model.BuyerInfo{Account: "", Province: ""}))
	rest, err := repo.FindMissingBuyer(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, rest, 4)
}

// ==================== ItemRepository ====================

func TestItemRepository_ReplaceItems(t *testing.T) {
	db := setupRepoTestDB(t)
	ctx := context.Background()
	orders := NewOrderRepository(db)
	items := NewItemRepository(db)

	o := newTestOrder("240101-0003")
	require.NoError(t, orders.Create(ctx, o))

	require.NoError(t, items.CreateBatch(ctx, []model.Item{
		{OrderID: o.ID, Qty: 1, GoodsID: 2},
		{OrderID: o.ID, Qty: 2, GoodsID: 1},
	}))
	list, err := items.GetByOrderID(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(1), list[0].GoodsID)

	require.NoError(t, items.DeleteByOrderID(ctx, o.ID))
	list, err = items.GetByOrderID(ctx, o.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	assert.NoError(t, items.CreateBatch(ctx, nil))
}

// ==================== MonitorRepository ====================

func TestMonitorRepository_LatestByTs(t *testing.T) {
	db := setupRepoTestDB(t)
	ctx := context.Background()
	repo := NewMonitorRepository(db)

	latest, err := repo.Latest(ctx, 1, model.StrategyUpdateTime)
	require.NoError(t, err)
	assert.Nil(t, latest)

	for _, ts := range []int64{1000, 3000, 2000} {
		require.NoError(t, repo.Append(ctx, &model.Monitor{
			MallID:      1,
			Strategy:    model.StrategyUpdateTime,
			LastRunTs:   ts,
			LastRunTime: time.Unix(ts, 0),
		}))
	}
	require.NoError(t, repo.Append(ctx, &model.Monitor{
		MallID: 1, Strategy: model.StrategyConfirmTime, LastRunTs: 9000, LastRunTime: time.Unix(9000, 0),
	}))

	latest, err = repo.Latest(ctx, 1, model.StrategyUpdateTime)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, int64(3000), latest.LastRunTs)

	list, err := repo.ListByMall(ctx, 1, 10)
	require.NoError(t, err)
	assert.Len(t, list, 4)
}

// ==================== SyncUnitOfWork ====================

func TestSyncUnitOfWork_RollbackAll(t *testing.T) {
	db := setupRepoTestDB(t)
	ctx := context.Background()
	uow := NewSyncUnitOfWork(db)

	boom := errors.New("boom")
	err := uow.Transaction(ctx, func(tx *SyncUnitOfWork) error {
		if err := tx.Orders.Create(ctx, newTestOrder("rollback")); err != nil {
			return err
		}
		if err := tx.Monitors.Append(ctx, &model.Monitor{
			MallID: 1, Strategy: model.StrategyUpdateTime, LastRunTs: 1, LastRunTime: time.Unix(1, 0),
		}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := uow.Orders.GetBySoNo(ctx, "rollback")
	require.NoError(t, err)
	assert.Nil(t, got)
	latest, err := uow.Monitors.Latest(ctx, 1, model.StrategyUpdateTime)
	require.NoError(t, err)
	assert.Nil(t, latest)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"pdd_order_sync/internal/config"
	"pdd_order_sync/internal/lock"
	"pdd_order_sync/internal/logger"
	"pdd_order_sync/internal/model"
	"pdd_order_sync/internal/repository"
	"pdd_order_sync/internal/service"
	"pdd_order_sync/internal/task"
	"pdd_order_sync/pkg/database"
	"pdd_order_sync/pkg/erp321"
	"pdd_order_sync/pkg/pdd"
	"pdd_order_sync/pkg/utils"
)

func main() {
	app := &cli.App{
		Name:  "pdd-sync",
		Usage: "拼多多订单增量同步",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "配置文件路径",
				EnvVars: []string{"PDD_SYNC_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			migrateCommand(),
			updateCommand(),
			confirmCommand(),
			privacyCommand(),
			serveCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// ==================== 命令 ====================

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "创建或更新数据表",
		Action: func(c *cli.Context) error {
			deps, err := initDependencies(c.String("config"))
			if err != nil {
				return err
			}
			defer deps.Close()

			if err := database.Migrate(deps.DB, model.AllModels()...); err != nil {
				return err
			}
			deps.Log.Info("数据表迁移完成")
			return nil
		},
	}
}

func updateCommand() *cli.Command {
	return &cli.Command{
		Name:  "update",
		Usage: "按更新时间执行一次增量同步",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "strict", Usage: "存在失败店铺时以非零状态退出"},
		},
		Action: func(c *cli.Context) error {
			deps, err := initDependencies(c.String("config"))
			if err != nil {
				return err
			}
			defer deps.Close()

			ctx, cancel := runContext(c.Context, deps.Config.Sync.RunTimeout)
			defer cancel()

			report, err := deps.Sync.SyncByUpdateTime(ctx)
			if err != nil {
				return err
			}
			return checkReport(report, c.Bool("strict"))
		},
	}
}

func confirmCommand() *cli.Command {
	return &cli.Command{
		Name:  "confirm",
		Usage: "按成交时间同步最近 N 天（含今天）",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "days", Value: 1, Usage: "回溯天数"},
			&cli.BoolFlag{Name: "basic", Usage: "使用基础信息列表接口"},
			&cli.BoolFlag{Name: "strict", Usage: "存在失败店铺时以非零状态退出"},
		},
		Action: func(c *cli.Context) error {
			deps, err := initDependencies(c.String("config"), func(o *service.SyncOptions) {
				if c.Bool("basic") {
					o.ConfirmStrategy = service.ConfirmTimeBasic
				}
			})
			if err != nil {
				return err
			}
			defer deps.Close()

			ctx, cancel := runContext(c.Context, deps.Config.Sync.RunTimeout)
			defer cancel()

			report, err := deps.Sync.SyncByConfirmTime(ctx, c.Int("days"))
			if err != nil {
				return err
			}
			return checkReport(report, c.Bool("strict"))
		},
	}
}

func privacyCommand() *cli.Command {
	return &cli.Command{
		Name:  "privacy",
		Usage: "从聚水潭补全收货信息",
		Action: func(c *cli.Context) error {
			deps, err := initDependencies(c.String("config"))
			if err != nil {
				return err
			}
			defer deps.Close()

			if deps.Privacy == nil {
				return errors.New("未配置聚水潭 erp321.partner_id")
			}
			ctx, cancel := runContext(c.Context, deps.Config.Sync.RunTimeout)
			defer cancel()

			_, err = deps.Privacy.Backfill(ctx)
			return err
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "常驻运行，按 cron 调度同步",
		Action: func(c *cli.Context) error {
			deps, err := initDependencies(c.String("config"))
			if err != nil {
				return err
			}
			defer deps.Close()

			tm := initTasks(deps)
			if err := tm.Start(); err != nil {
				return err
			}

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			deps.Log.Info("正在关闭...")
			tm.Stop()
			deps.Log.Info("已退出")
			return nil
		},
	}
}

func runContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func checkReport(report *service.RunReport, strict bool) error {
	if strict && report.Failed() > 0 {
		return fmt.Errorf("%d 个店铺同步失败", report.Failed())
	}
	return nil
}

// ==================== 依赖容器 ====================

// Dependencies 依赖容器
type Dependencies struct {
	Config  *config.Config
	Log     *zap.Logger
	DB      *gorm.DB
	Redis   *redis.Client
	Repos   *Repositories
	Sync    *service.SyncService
	Privacy *service.PrivacyService
}

// Repositories 仓库集合
type Repositories struct {
	Mall    repository.MallRepository
	SyncUow *repository.SyncUnitOfWork
}

// Close 释放连接
func (d *Dependencies) Close() {
	if d.Redis != nil {
		_ = d.Redis.Close()
	}
	if d.DB != nil {
		if sqlDB, err := d.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	_ = d.Log.Sync()
}

func initDependencies(configPath string, tweaks ...func(*service.SyncOptions)) (*Dependencies, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: logger.DefaultConfig().TimeFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	db, err := initDatabase(cfg, log)
	if err != nil {
		return nil, err
	}

	deps := &Dependencies{Config: cfg, Log: log, DB: db}

	// 1. Repositories
	deps.Repos = &Repositories{
		Mall:    repository.NewMallRepository(db),
		SyncUow: repository.NewSyncUnitOfWork(db),
	}

	// 2. 店铺锁
	var locker lock.Locker = lock.NewMemoryLocker()
	if cfg.Redis.Addr != "" {
		deps.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		locker = lock.NewRedisLocker(deps.Redis)
	}

	// 3. 外部客户端
	loc := cfg.Sync.MustLocation()
	pddHTTP := utils.NewHTTPClient(utils.ClientOptions{
		BaseURL: cfg.Pdd.BaseURL,
		Timeout: cfg.Pdd.Timeout,
		Debug:   cfg.Pdd.Debug,
	})
	retry := pdd.RetryPolicy{
		Initial:     cfg.Pdd.RetryInitial,
		MaxInterval: cfg.Pdd.RetryMaxBackoff,
		MaxElapsed:  cfg.Pdd.RetryMaxElapsed,
		MaxRetries:  cfg.Pdd.RetryMaxTimes,
	}
	clients := func(mall *model.Mall) service.OrderAPI {
		return pdd.NewClient(pddHTTP, pdd.Credentials{
			ClientID:     mall.ClientID,
			ClientSecret: mall.ClientSecret,
			AccessToken:  mall.Token,
		},
			pdd.WithRateLimit(cfg.Pdd.QPS, cfg.Pdd.Burst),
			pdd.WithRetryPolicy(retry),
			pdd.WithLogger(log.With(zap.Int64("mall_id", mall.ID))),
		)
	}

	if cfg.Erp321.PartnerID != "" {
		erpHTTP := utils.NewHTTPClient(utils.ClientOptions{
			BaseURL: cfg.Erp321.BaseURL,
			Timeout: cfg.Erp321.Timeout,
		})
		erp := erp321.NewClient(erpHTTP, erp321.Credentials{
			PartnerID:  cfg.Erp321.PartnerID,
			PartnerKey: cfg.Erp321.PartnerKey,
			Token:      cfg.Erp321.Token,
		}, log)
		deps.Privacy = service.NewPrivacyService(deps.Repos.SyncUow, erp, cfg.Sync.PrivacyBatchSize, log)
	}

	// 4. Services
	opts := service.SyncOptions{
		TenantConcurrency: cfg.Sync.TenantConcurrency,
		BootstrapLookback: cfg.Sync.BootstrapLookback,
		MaxWindowsPerRun:  cfg.Sync.MaxWindowsPerRun,
		LockTTL:           cfg.Sync.LockTTL,
		ConfirmStrategy:   service.ConfirmTimeFull,
		PrivacyAfterRun:   deps.Privacy != nil,
	}
	for _, tweak := range tweaks {
		tweak(&opts)
	}

	deps.Sync = service.NewSyncService(service.SyncDeps{
		Malls:      deps.Repos.Mall,
		UnitOfWork: deps.Repos.SyncUow,
		Planner:    service.NewWindowPlanner(loc, nil),
		Fetcher:    service.NewPageFetcher(cfg.Sync.PageConcurrency, log),
		Reconciler: service.NewReconciler(loc, log),
		Privacy:    deps.Privacy,
		Clients:    clients,
		Locker:     locker,
		Logger:     log,
	}, opts)

	return deps, nil
}

func initDatabase(cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	return database.InitDB(cfg.Database.DSN(), database.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		LogLevel:        logger.ParseGormLevel(cfg.Database.LogLevel),
	}, log)
}

func initTasks(deps *Dependencies) *task.TaskManager {
	cfg := task.DefaultConfig()
	cfg.UpdateCron = deps.Config.Schedule.UpdateCron
	cfg.ConfirmCron = deps.Config.Schedule.ConfirmCron
	cfg.ConfirmDays = deps.Config.Schedule.ConfirmDays
	cfg.Location = deps.Config.Sync.MustLocation()
	cfg.RunTimeout = deps.Config.Sync.RunTimeout

	return task.NewTaskManager(&task.TaskManagerDeps{
		Syncer: deps.Sync,
		Logger: deps.Log,
	}, cfg)
}

package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata" // 容器镜像可能没有时区数据

	"github.com/spf13/viper"
)

// ==================== 配置结构 ====================

// Config 全局配置
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Pdd      PddConfig      `mapstructure:"pdd"`
	Erp321   Erp321Config   `mapstructure:"erp321"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
}

// DatabaseConfig 数据库连接
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// LogConfig 日志
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// RedisConfig 为空 Addr 时退化为进程内锁
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// PddConfig 拼多多开放平台
type PddConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	Timeout         time.Duration `mapstructure:"timeout"`
	QPS             float64       `mapstructure:"qps"`
	Burst           int           `mapstructure:"burst"`
	RetryInitial    time.Duration `mapstructure:"retry_initial"`
	RetryMaxBackoff time.Duration `mapstructure:"retry_max_backoff"`
	RetryMaxElapsed time.Duration `mapstructure:"retry_max_elapsed"`
	RetryMaxTimes   uint64        `mapstructure:"retry_max_times"`
	Debug           bool          `mapstructure:"debug"`
}

// Erp321Config 聚水潭
type Erp321Config struct {
	BaseURL    string        `mapstructure:"base_url"`
	PartnerID  string        `mapstructure:"partner_id"`
	PartnerKey string        `mapstructure:"partner_key"`
	Token      string        `mapstructure:"token"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// SyncConfig 同步引擎参数
type SyncConfig struct {
	Location          string        `mapstructure:"location"`
	TenantConcurrency int           `mapstructure:"tenant_concurrency"`
	PageConcurrency   int           `mapstructure:"page_concurrency"`
	BootstrapLookback time.Duration `mapstructure:"bootstrap_lookback"`
	MaxWindowsPerRun  int           `mapstructure:"max_windows_per_run"`
	PrivacyBatchSize  int           `mapstructure:"privacy_batch_size"`
	LockTTL           time.Duration `mapstructure:"lock_ttl"`
	RunTimeout        time.Duration `mapstructure:"run_timeout"`
}

// ScheduleConfig serve 模式下的触发表达式（带秒）
type ScheduleConfig struct {
	UpdateCron  string `mapstructure:"update_cron"`
	ConfirmCron string `mapstructure:"confirm_cron"`
	ConfirmDays int    `mapstructure:"confirm_days"`
}

// ==================== 加载 ====================

// Load 读取配置
// 优先级：环境变量 (PDD_SYNC_ 前缀) > 配置文件 > 默认值
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || path != "" {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	v.SetEnvPrefix("PDD_SYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.dbname", "pdd")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("pdd.base_url", "https://gw-api.pinduoduo.com/api/router")
	v.SetDefault("pdd.timeout", 20*time.Second)
	v.SetDefault("pdd.qps", 10)
	v.SetDefault("pdd.burst", 5)
	v.SetDefault("pdd.retry_initial", 200*time.Millisecond)
	v.SetDefault("pdd.retry_max_backoff", 5*time.Second)
	v.SetDefault("pdd.retry_max_elapsed", 2*time.Minute)
	v.SetDefault("pdd.retry_max_times", 30)

	v.SetDefault("erp321.base_url", "https://open.erp321.com/api/open/query.aspx")
	v.SetDefault("erp321.timeout", 20*time.Second)

	v.SetDefault("sync.location", "Asia/Shanghai")
	v.SetDefault("sync.tenant_concurrency", 5)
	v.SetDefault("sync.page_concurrency", 4)
	v.SetDefault("sync.bootstrap_lookback", 24*time.Hour)
	v.SetDefault("sync.max_windows_per_run", 1)
	v.SetDefault("sync.privacy_batch_size", 20)
	v.SetDefault("sync.lock_ttl", 30*time.Minute)
	v.SetDefault("sync.run_timeout", 25*time.Minute)

	v.SetDefault("schedule.update_cron", "0 */5 * * * *")
	v.SetDefault("schedule.confirm_cron", "0 30 3 * * *")
	v.SetDefault("schedule.confirm_days", 1)
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	if _, err := time.LoadLocation(c.Sync.Location); err != nil {
		return fmt.Errorf("sync.location 无效: %w", err)
	}
	if c.Sync.TenantConcurrency <= 0 || c.Sync.PageConcurrency <= 0 {
		return fmt.Errorf("sync concurrency must be positive")
	}
	if c.Sync.PrivacyBatchSize <= 0 || c.Sync.PrivacyBatchSize > 20 {
		return fmt.Errorf("sync.privacy_batch_size must be in (0, 20], got %d", c.Sync.PrivacyBatchSize)
	}
	if c.Sync.MaxWindowsPerRun <= 0 {
		return fmt.Errorf("sync.max_windows_per_run must be positive")
	}
	if c.Pdd.RetryInitial <= 0 {
		return fmt.Errorf("pdd.retry_initial must be positive")
	}
	return nil
}

// DSN 返回 PostgreSQL 连接串
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// MustLocation 返回同步使用的时区，Validate 之后调用
func (s *SyncConfig) MustLocation() *time.Location {
	loc, err := time.LoadLocation(s.Location)
	if err != nil {
		return time.Local
	}
	return loc
}

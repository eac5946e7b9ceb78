package utils

import (
	"time"

	"github.com/go-resty/resty/v2"
)

// ClientOptions HTTP 客户端选项
type ClientOptions struct {
	BaseURL   string
	Timeout   time.Duration
	Debug     bool
	UserAgent string
}

// NewHTTPClient 创建 Resty 客户端，pdd 与 erp321 共用
// 重试策略由调用方按业务错误码控制，这里不开启 resty 自带重试
func NewHTTPClient(opts ClientOptions) *resty.Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "pdd-order-sync/1.0"
	}

	client := resty.New().
		SetDebug(opts.Debug).
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", opts.UserAgent)

	if opts.BaseURL != "" {
		client.SetBaseURL(opts.BaseURL)
	}
	return client
}

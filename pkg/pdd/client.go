package pdd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultBaseURL 拼多多开放平台网关
const DefaultBaseURL = "https://gw-api.pinduoduo.com/api/router"

// Credentials 店铺应用凭证
type Credentials struct {
	ClientID     string
	ClientSecret string
	AccessToken  string
}

// RetryPolicy 限流错误的退避策略
type RetryPolicy struct {
	Initial     time.Duration
	MaxInterval time.Duration
	MaxElapsed  time.Duration
	MaxRetries  uint64 // 0 表示只受 MaxElapsed 约束
}

// DefaultRetryPolicy 默认退避：200ms 起步，最多 30 次 / 2 分钟
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Initial:     200 * time.Millisecond,
		MaxInterval: 5 * time.Second,
		MaxElapsed:  2 * time.Minute,
		MaxRetries:  30,
	}
}

func (p RetryPolicy) newBackOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.Initial
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	eb.MaxElapsedTime = p.MaxElapsed
	eb.Reset()

	var b backoff.BackOff = eb
	if p.MaxRetries > 0 {
		b = backoff.WithMaxRetries(b, p.MaxRetries)
	}
	return backoff.WithContext(b, ctx)
}

// ==================== Client ====================

// Client 拼多多签名请求客户端，每个店铺一个实例
type Client struct {
	http    *resty.Client
	creds   Credentials
	limiter *rate.Limiter
	retry   RetryPolicy
	log     *zap.Logger
	now     func() time.Time

	logisticsMu sync.Mutex
	logistics   map[int64]string
}

// Option 客户端选项
type Option func(*Client)

// WithRateLimit 客户端侧 QPS 限制，qps <= 0 不限制
func WithRateLimit(qps float64, burst int) Option {
	return func(c *Client) {
		if qps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(qps), burst)
	}
}

// WithRetryPolicy 覆盖默认退避策略
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) { c.retry = p }
}

// WithLogger 设置日志
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l.Named("pdd") }
}

// WithClock 测试用时钟
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient 创建客户端
// httpClient 需已设置 BaseURL（见 utils.NewHTTPClient），可在多个店铺间共享
func NewClient(httpClient *resty.Client, creds Credentials, opts ...Option) *Client {
	c := &Client{
		http:    httpClient,
		creds:   creds,
		limiter: rate.NewLimiter(rate.Inf, 0),
		retry:   DefaultRetryPolicy(),
		log:     zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) commonParams(method string) map[string]any {
	return map[string]any{
		"access_token": c.creds.AccessToken,
		"client_id":    c.creds.ClientID,
		"timestamp":    c.now().Unix(),
		"type":         method,
	}
}

// Call 签名并执行一次接口调用
// responseKey 为成功信封的顶层字段（如 order_sn_increment_get_response），为空则解码整个响应体
// 限流错误按退避策略重试，用尽返回 ErrRetryExhausted；其它错误信封返回 *APIError
func (c *Client) Call(ctx context.Context, method, responseKey string, biz map[string]any, out any) error {
	var (
		payload  json.RawMessage
		attempts int
	)

	operation := func() error {
		attempts++
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		params := c.commonParams(method)
		for k, v := range biz {
			params[k] = v
		}
		params["sign"] = Sign(params, c.creds.ClientSecret)

		resp, err := c.http.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(params).
			Post("")
		if err != nil {
			return backoff.Permanent(fmt.Errorf("%w: %s: %v", ErrRequest, method, err))
		}

		data, err := parseEnvelope(method, responseKey, resp.Body())
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.Retryable() {
				return err
			}
			return backoff.Permanent(err)
		}
		payload = data
		return nil
	}

	notify := func(err error, wait time.Duration) {
		c.log.Warn("[PddClient] 接口限流, 稍后重试",
			zap.String("method", method),
			zap.Int("attempt", attempts),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(operation, c.retry.newBackOff(ctx), notify); err != nil {
		if apiErr, ok := AsAPIError(err); ok && apiErr.Retryable() {
			return fmt.Errorf("%w: %s after %d attempts: %w", ErrRetryExhausted, method, attempts, apiErr)
		}
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ErrUnexpectedResponse, method, err)
	}
	return nil
}

type errorBody struct {
	ErrorCode int    `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
	SubCode   any    `json:"sub_code"`
	SubMsg    string `json:"sub_msg"`
	RequestID any    `json:"request_id"`
}

// parseEnvelope 拆信封：error_response 转 APIError，成功取 responseKey
func parseEnvelope(method, responseKey string, body []byte) (json.RawMessage, error) {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %s: invalid json: %v", ErrUnexpectedResponse, method, err)
	}

	if raw, ok := env["error_response"]; ok && !isNull(raw) {
		var eb errorBody
		if err := json.Unmarshal(raw, &eb); err != nil {
			return nil, fmt.Errorf("%w: %s: invalid error_response: %v", ErrUnexpectedResponse, method, err)
		}
		return nil, &APIError{
			Label:     method,
			Code:      eb.ErrorCode,
			Msg:       eb.ErrorMsg,
			SubCode:   stringify(eb.SubCode),
			SubMsg:    eb.SubMsg,
			RequestID: stringify(eb.RequestID),
			Raw:       append([]byte(nil), raw...),
		}
	}

	if responseKey == "" {
		return body, nil
	}
	data, ok := env[responseKey]
	if !ok || isNull(data) {
		return nil, fmt.Errorf("%w: %s: missing %s", ErrUnexpectedResponse, method, responseKey)
	}
	return data, nil
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

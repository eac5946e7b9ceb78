package pdd

import (
	"errors"
	"fmt"
)

var (
	// ErrRetryExhausted 限流重试次数或时长用尽
	ErrRetryExhausted = errors.New("pdd: retry exhausted")
	// ErrRequest 网络层失败，不重试
	ErrRequest = errors.New("pdd: request failed")
	// ErrUnexpectedResponse 响应缺少预期字段
	ErrUnexpectedResponse = errors.New("pdd: unexpected response")
)

// 限流 / 接口暂时不可用 / 服务暂时不可用 / 调用过于频繁
var retryableCodes = map[int]struct{}{
	52101: {},
	52102: {},
	52103: {},
	70031: {},
}

// IsRetryableCode 是否为可重试的错误码
func IsRetryableCode(code int) bool {
	_, ok := retryableCodes[code]
	return ok
}

// APIError 拼多多 error_response
type APIError struct {
	Label     string // 调用标识，一般为接口名
	Code      int
	Msg       string
	SubCode   string
	SubMsg    string
	RequestID string
	Raw       []byte
}

func (e *APIError) Error() string {
	if e.SubMsg != "" {
		return fmt.Sprintf("pdd api [%s] error %d: %s (%s %s)", e.Label, e.Code, e.Msg, e.SubCode, e.SubMsg)
	}
	return fmt.Sprintf("pdd api [%s] error %d: %s", e.Label, e.Code, e.Msg)
}

// Retryable 是否属于限流类错误
func (e *APIError) Retryable() bool {
	return IsRetryableCode(e.Code)
}

// AsAPIError 从错误链中取出 APIError
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

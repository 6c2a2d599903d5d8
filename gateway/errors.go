package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrPriceUnavailable mark_price 与 index_price 都缺失或非正；本轮跳过。
	ErrPriceUnavailable = errors.New("price unavailable")
	// ErrAuth 无法取得 token，属于致命错误。
	ErrAuth = errors.New("auth failure")
	// ErrRejected 交易所返回非 0 code。
	ErrRejected = errors.New("order rejected")
	// ErrSymbolNotFound query_symbol_info 中找不到目标交易对。
	ErrSymbolNotFound = errors.New("symbol not found")
)

// TransportError 网络或 HTTP 层失败。Status 为 0 表示请求未拿到响应。
type TransportError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *TransportError) Error() string {
	switch {
	case e.Err != nil && e.Status == 0:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s status %d: %v", e.Op, e.Status, e.Err)
	default:
		return fmt.Sprintf("%s status %d: %s", e.Op, e.Status, truncate(e.Body, 300))
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport 判断 err 链中是否有 TransportError。
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

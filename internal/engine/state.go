package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuoteState 引擎在两次周期之间携带的全部状态。值类型：每个周期接收旧状态、返回新状态。
// LastBid/LastAsk 为 nil 表示 NO_QUOTE，下个周期必须无条件刷新。
type QuoteState struct {
	LastBid       *decimal.Decimal
	LastAsk       *decimal.Decimal
	LastRefresh   time.Time
	LastReconcile time.Time
}

// HasQuote 是否存在已提交的报价。
func (s QuoteState) HasQuote() bool {
	return s.LastBid != nil && s.LastAsk != nil
}

// Cleared 清掉报价，时间戳保留。
func (s QuoteState) Cleared() QuoteState {
	s.LastBid, s.LastAsk = nil, nil
	return s
}

// Committed 刷新成功后提交最内档价格。
func (s QuoteState) Committed(bid, ask decimal.Decimal, at time.Time) QuoteState {
	s.LastBid, s.LastAsk = &bid, &ask
	s.LastRefresh = at
	return s
}

// Phase 状态名，用于日志。
func (s QuoteState) Phase() string {
	if s.HasQuote() {
		return "QUOTING"
	}
	return "NO_QUOTE"
}

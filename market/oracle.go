package market

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"mmu-quoter/gateway"
)

// PriceSource REST 价格查询。
type PriceSource interface {
	SymbolPrice(ctx context.Context, symbol string) (gateway.PriceSnapshot, error)
}

// Oracle 返回参考价（mark，缺失时 index）。
// 有 websocket 流且足够新鲜时直接用流上的价格，否则走 REST。
type Oracle struct {
	rest       PriceSource
	stream     *Stream
	staleAfter time.Duration
}

// NewOracle stream 可以为 nil；staleAfter <= 0 时不使用 stream。
func NewOracle(rest PriceSource, stream *Stream, staleAfter time.Duration) *Oracle {
	return &Oracle{rest: rest, stream: stream, staleAfter: staleAfter}
}

// FetchMark 失败（两个字段都缺失或非正）返回 gateway.ErrPriceUnavailable。
func (o *Oracle) FetchMark(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if o.stream != nil && o.staleAfter > 0 && o.stream.Symbol == symbol && o.stream.Staleness() <= o.staleAfter {
		snap, _, _ := o.stream.Latest()
		if mark, err := snap.Reference(); err == nil {
			return mark, nil
		}
	}
	snap, err := o.rest.SymbolPrice(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return snap.Reference()
}

package strategy

import (
	"math"

	"github.com/shopspring/decimal"
)

// QuantityParams 描述每档下单量的计算参数。
// ClampMin/ClampMax 为 nil 表示该侧不限制。
type QuantityParams struct {
	Base        decimal.Decimal
	MinQty      decimal.Decimal
	QtyDecimals int32
	JitterPct   float64
	ClampMin    *decimal.Decimal
	ClampMax    *decimal.Decimal
}

// PickQuantity 计算单档下单量。顺序固定：抖动 → 用户上下限 → 交易所最小量 → 精度向下取整。
// 交易所下限必须在用户上下限之后执行，否则可能得到会被拒单的数量。
// rnd 返回 [0,1) 的均匀随机数；为 nil 时不抖动。
func PickQuantity(p QuantityParams, rnd func() float64) decimal.Decimal {
	q := p.Base
	if p.JitterPct > 0 && !math.IsInf(p.JitterPct, 0) && !math.IsNaN(p.JitterPct) && rnd != nil {
		u := (rnd()*2 - 1) * p.JitterPct
		q = p.Base.Mul(decimal.NewFromFloat(1 + u))
	}
	if p.ClampMin != nil && q.LessThan(*p.ClampMin) {
		q = *p.ClampMin
	}
	if p.ClampMax != nil && q.GreaterThan(*p.ClampMax) {
		q = *p.ClampMax
	}
	if q.LessThan(p.MinQty) {
		q = p.MinQty
	}
	q = RoundTo(q, p.QtyDecimals, Down)
	if !q.IsPositive() {
		q = p.MinQty
	}
	return q
}

// NormalizeQuantityParams 在启动时把配置的基础量与上下限对齐到交易所约束：
// 基础量与上下限都不低于 minQty 且按精度向下取整；上下限颠倒时自动交换。
func NormalizeQuantityParams(base decimal.Decimal, clampMin, clampMax *decimal.Decimal, jitterPct float64, info SymbolInfo) QuantityParams {
	p := QuantityParams{
		Base:        RoundTo(decimal.Max(base, info.MinOrderQty), info.QtyDecimals, Down),
		MinQty:      info.MinOrderQty,
		QtyDecimals: info.QtyDecimals,
		JitterPct:   jitterPct,
	}
	if clampMin != nil {
		v := RoundTo(decimal.Max(*clampMin, info.MinOrderQty), info.QtyDecimals, Down)
		p.ClampMin = &v
	}
	if clampMax != nil {
		v := RoundTo(decimal.Max(*clampMax, info.MinOrderQty), info.QtyDecimals, Down)
		p.ClampMax = &v
	}
	if p.ClampMin != nil && p.ClampMax != nil && p.ClampMax.LessThan(*p.ClampMin) {
		p.ClampMin, p.ClampMax = p.ClampMax, p.ClampMin
	}
	return p
}

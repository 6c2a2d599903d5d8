package strategy

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// SymbolInfo 保存交易对的精度与最小下单量，启动时获取一次，运行期只读。
type SymbolInfo struct {
	Symbol        string
	PriceDecimals int32
	QtyDecimals   int32
	MinOrderQty   decimal.Decimal
}

// Validate 检查交易所返回的精度信息是否可用。
func (s SymbolInfo) Validate() error {
	if s.Symbol == "" {
		return errors.New("symbol is required")
	}
	if s.PriceDecimals < 0 || s.QtyDecimals < 0 {
		return fmt.Errorf("symbol %s decimals must be >= 0 (price=%d qty=%d)", s.Symbol, s.PriceDecimals, s.QtyDecimals)
	}
	if !s.MinOrderQty.IsPositive() {
		return fmt.Errorf("symbol %s min_order_qty must be > 0", s.Symbol)
	}
	return nil
}

// PriceTick 价格最小变动单位。
func (s SymbolInfo) PriceTick() decimal.Decimal {
	return Tick(s.PriceDecimals)
}

// MinNotional 按给定价格估算最小名义价值（min_order_qty * price）。
func (s SymbolInfo) MinNotional(price decimal.Decimal) decimal.Decimal {
	return s.MinOrderQty.Mul(price)
}

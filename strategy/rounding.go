package strategy

import "github.com/shopspring/decimal"

// Direction 决定按精度截断的方向。
type Direction int

const (
	// Down 向零截断：买价与所有数量使用，避免高估可成交量。
	Down Direction = iota
	// Up 远离零截断：卖价使用，避免低估报价。
	Up
)

func (d Direction) String() string {
	if d == Up {
		return "up"
	}
	return "down"
}

// RoundTo 按交易所要求的小数位数对 value 做方向性取整。decimals 需 >= 0。
func RoundTo(value decimal.Decimal, decimals int32, dir Direction) decimal.Decimal {
	if dir == Up {
		return value.RoundUp(decimals)
	}
	return value.RoundDown(decimals)
}

// Tick 返回给定精度下的最小变动单位，例如 decimals=2 → 0.01。
func Tick(decimals int32) decimal.Decimal {
	return decimal.New(1, -decimals)
}

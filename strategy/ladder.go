package strategy

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Mode 价差模式：按 bps 相对 mark，或按绝对美元距离。
type Mode int

const (
	ModeBps Mode = iota
	ModeUSD
)

func (m Mode) String() string {
	if m == ModeUSD {
		return "usd"
	}
	return "bps"
}

var (
	bpsDenominator = decimal.NewFromInt(10000)
	minLevelBps    = decimal.NewFromFloat(0.01)
	minLevelUSD    = decimal.NewFromInt(1)
)

// LadderConfig 多档挂单参数。bps 模式使用 TargetBps/StepBps/MaxBps，USD 模式使用 AbsSpread/AbsStep。
type LadderConfig struct {
	Mode      Mode
	Levels    int
	TargetBps decimal.Decimal
	StepBps   decimal.Decimal
	MaxBps    decimal.Decimal
	AbsSpread decimal.Decimal
	AbsStep   decimal.Decimal
}

// LadderLevel 单档买卖价。Level 0 最靠近 mark。
type LadderLevel struct {
	Level int
	Bid   decimal.Decimal
	Ask   decimal.Decimal
}

// LadderPlan 按档位从内到外排列。
type LadderPlan struct {
	Mark   decimal.Decimal
	Levels []LadderLevel
}

// Inner 返回最内档，作为 band 判断的参考价。
func (p LadderPlan) Inner() LadderLevel {
	if len(p.Levels) == 0 {
		return LadderLevel{}
	}
	return p.Levels[0]
}

// Depth 档位数量。
func (p LadderPlan) Depth() int { return len(p.Levels) }

var errBadMark = errors.New("mark price must be > 0")

// BuildLadder 根据 mark 与价差参数生成每一档的买卖价。
// 买价向下取整、卖价向上取整；取整后若 ask <= bid 则把 ask 抬到 bid + 1 tick。
func BuildLadder(mark decimal.Decimal, info SymbolInfo, cfg LadderConfig) (LadderPlan, error) {
	if !mark.IsPositive() {
		return LadderPlan{}, errBadMark
	}
	if cfg.Levels < 1 {
		return LadderPlan{}, fmt.Errorf("ladder levels must be >= 1, got %d", cfg.Levels)
	}
	plan := LadderPlan{Mark: mark, Levels: make([]LadderLevel, 0, cfg.Levels)}
	tick := info.PriceTick()
	for i := 0; i < cfg.Levels; i++ {
		off := levelOffset(mark, i, cfg)
		bid := RoundTo(mark.Sub(off), info.PriceDecimals, Down)
		ask := RoundTo(mark.Add(off), info.PriceDecimals, Up)
		if ask.LessThanOrEqual(bid) {
			ask = bid.Add(tick)
		}
		plan.Levels = append(plan.Levels, LadderLevel{Level: i, Bid: bid, Ask: ask})
	}
	return plan, nil
}

// levelOffset 返回第 i 档相对 mark 的价格偏移（报价货币）。
func levelOffset(mark decimal.Decimal, i int, cfg LadderConfig) decimal.Decimal {
	idx := decimal.NewFromInt(int64(i))
	if cfg.Mode == ModeUSD {
		return decimal.Max(minLevelUSD, cfg.AbsSpread.Add(idx.Mul(cfg.AbsStep)))
	}
	offBps := cfg.TargetBps.Add(idx.Mul(cfg.StepBps))
	if cfg.MaxBps.IsPositive() {
		offBps = decimal.Min(cfg.MaxBps, offBps)
	}
	offBps = decimal.Max(minLevelBps, offBps)
	return mark.Mul(offBps).Div(bpsDenominator)
}

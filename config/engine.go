package config

import (
	"time"

	"github.com/shopspring/decimal"

	"mmu-quoter/internal/engine"
	"mmu-quoter/order"
	"mmu-quoter/strategy"
)

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func dec(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func optDec(v *float64) *decimal.Decimal {
	if v == nil {
		return nil
	}
	d := dec(*v)
	return &d
}

// Mode 报价模式。
func (q QuoteConfig) Mode() strategy.Mode {
	if q.USDMode() {
		return strategy.ModeUSD
	}
	return strategy.ModeBps
}

// Policy 缺档处理策略。
func (q QuoteConfig) Policy() order.ShortfallPolicy {
	if q.StopOnFill != nil && !*q.StopOnFill {
		return order.PolicyContinue
	}
	return order.PolicyStop
}

// LadderConfig 梯子参数。
func (q QuoteConfig) LadderConfig() strategy.LadderConfig {
	return strategy.LadderConfig{
		Mode:      q.Mode(),
		Levels:    q.LadderLevels,
		TargetBps: dec(q.TargetBps),
		StepBps:   dec(floatOr(q.LadderStepBps, 0)),
		MaxBps:    dec(q.MaxBps),
		AbsSpread: dec(q.AbsSpreadUSD),
		AbsStep:   dec(floatOr(q.AbsStepUSD, 0)),
	}
}

// BandConfig 回差带参数，单位随模式。
func (q QuoteConfig) BandConfig() strategy.BandConfig {
	b := strategy.BandConfig{
		Mode:               q.Mode(),
		Min:                dec(floatOr(q.MinBps, 0)),
		Max:                dec(q.MaxBps),
		Ceiling:            dec(floatOr(q.MinIntervalCeiling, 0)),
		MinRefreshInterval: ms(intOr(q.MinRefreshMs, 0)),
	}
	if q.USDMode() {
		b.Min, b.Max = dec(floatOr(q.AbsMinUSD, 0)), dec(q.AbsMaxUSD)
	}
	return b
}

// EngineConfig 组装引擎配置。
func (c AppConfig) EngineConfig() engine.Config {
	q := c.Quote
	return engine.Config{
		Symbol:       c.Exchange.Symbol,
		TimeInForce:  c.Exchange.TimeInForce,
		ReduceOnly:   c.Exchange.ReduceOnly,
		LoopInterval: ms(q.LoopMs),
		Ladder:       q.LadderConfig(),
		Band:         q.BandConfig(),
		QtyBase:      dec(q.Qty),
		QtyMin:       optDec(q.QtyMin),
		QtyMax:       optDec(q.QtyMax),
		QtyJitterPct: q.QtyJitterPct,
		Reconcile: order.ReconcilerConfig{
			Tag:      q.OwnershipTag,
			Depth:    q.LadderLevels,
			Interval: ms(q.OrderCheckMs),
			Policy:   q.Policy(),
		},
		RevalidateLadder: q.RevalidateLadder == nil || *q.RevalidateLadder,
		ErrorAlertAfter:  c.Alert.ErrorCycles,
	}
}

// StreamStaleAfter stream 价格的最大可用时长。
func (c AppConfig) StreamStaleAfter() time.Duration { return ms(c.Exchange.StreamStaleMs) }

// Timeout REST 请求超时。
func (c AppConfig) Timeout() time.Duration { return ms(c.Exchange.TimeoutMs) }

// ThrottleInterval 同一告警的最小间隔。
func (c AppConfig) ThrottleInterval() time.Duration {
	return time.Duration(c.Alert.ThrottleSeconds) * time.Second
}

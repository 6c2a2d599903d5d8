package config

import "strings"

// ValidateParams 校验报价参数。bps 与 USD 两种模式分别检查各自的区间。
func ValidateParams(q QuoteConfig) error {
	if q.Qty <= 0 {
		return ErrInvalid("quote.qty must be > 0")
	}
	if q.QtyJitterPct < 0 || q.QtyJitterPct >= 1 {
		return ErrInvalid("quote.qtyJitterPct must be in [0, 1)")
	}
	if q.QtyMin != nil && *q.QtyMin <= 0 {
		return ErrInvalid("quote.qtyMin must be > 0")
	}
	if q.QtyMax != nil && *q.QtyMax <= 0 {
		return ErrInvalid("quote.qtyMax must be > 0")
	}
	if q.LadderLevels < 1 {
		return ErrInvalid("quote.ladderLevels must be >= 1")
	}
	if q.USDMode() {
		if floatOr(q.AbsMinUSD, 0) < 0 {
			return ErrInvalid("quote.absMinUsd must be >= 0")
		}
		if q.AbsMaxUSD < floatOr(q.AbsMinUSD, 0) {
			return ErrInvalid("quote.absMaxUsd must be >= absMinUsd")
		}
		if floatOr(q.AbsStepUSD, 0) < 0 {
			return ErrInvalid("quote.absStepUsd must be >= 0")
		}
	} else {
		if q.TargetBps <= 0 {
			return ErrInvalid("quote.targetBps must be > 0")
		}
		if floatOr(q.MinBps, 0) < 0 {
			return ErrInvalid("quote.minBps must be >= 0")
		}
		if q.MaxBps < floatOr(q.MinBps, 0) {
			return ErrInvalid("quote.maxBps must be >= minBps")
		}
		if floatOr(q.LadderStepBps, 0) < 0 {
			return ErrInvalid("quote.ladderStepBps must be >= 0")
		}
	}
	if floatOr(q.MinIntervalCeiling, 0) < 0 {
		return ErrInvalid("quote.minIntervalCeiling must be >= 0")
	}
	if q.LoopMs <= 0 || q.OrderCheckMs <= 0 {
		return ErrInvalid("quote.loopMs/orderCheckMs must be > 0")
	}
	if intOr(q.MinRefreshMs, 0) < 0 {
		return ErrInvalid("quote.minRefreshMs must be >= 0")
	}
	if q.OwnershipTag == "" || strings.ContainsAny(q.OwnershipTag, " \t") {
		return ErrInvalid("quote.ownershipTag must be non-empty without spaces")
	}
	return nil
}

// ErrInvalid 用于参数验证错误。
type ErrInvalid string

func (e ErrInvalid) Error() string { return string(e) }

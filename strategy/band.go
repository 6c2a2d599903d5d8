package strategy

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Action 每个周期的决策结果。
type Action int

const (
	Hold Action = iota
	Refresh
)

func (a Action) String() string {
	if a == Refresh {
		return "REFRESH"
	}
	return "HOLD"
}

// Reason 决策原因，按规则顺序命中第一条。
type Reason string

const (
	ReasonNoQuote     Reason = "no-quote"
	ReasonTooClose    Reason = "too-close"
	ReasonBand        Reason = "band"
	ReasonMinInterval Reason = "min-interval"
	ReasonOutOfBand   Reason = "out-of-band"
)

// BandConfig 回差带参数，单位随 Mode 变化（bps 或报价货币）。
// Ceiling 为 min-interval 防抖的安全上限，0 表示不设上限。
type BandConfig struct {
	Mode               Mode
	Min                decimal.Decimal
	Max                decimal.Decimal
	Ceiling            decimal.Decimal
	MinRefreshInterval time.Duration
}

// Validate 检查 band 区间是否合法。
func (c BandConfig) Validate() error {
	if c.Min.IsNegative() {
		return errors.New("band min must be >= 0")
	}
	if c.Max.LessThan(c.Min) {
		return errors.New("band max must be >= min")
	}
	if c.Ceiling.IsNegative() {
		return errors.New("band ceiling must be >= 0")
	}
	if c.MinRefreshInterval < 0 {
		return errors.New("min refresh interval must be >= 0")
	}
	return nil
}

// BandInput 单次决策的输入。LastBid/LastAsk 为 nil 表示当前没有有效报价。
type BandInput struct {
	Mark        decimal.Decimal
	LastBid     *decimal.Decimal
	LastAsk     *decimal.Decimal
	LastRefresh time.Time
	Now         time.Time
}

// Decision 决策输出，附带两侧距离便于日志。
type Decision struct {
	Action      Action
	Reason      Reason
	Mode        Mode
	BidDistance decimal.Decimal
	AskDistance decimal.Decimal
}

// Label 日志里的决策标签，例如 HOLD(band) 或 REFRESH(too-close-usd)。
func (d Decision) Label() string {
	r := string(d.Reason)
	if d.Mode == ModeUSD && d.Reason != ReasonNoQuote {
		r += "-usd"
	}
	return d.Action.String() + "(" + r + ")"
}

// BandEngine 维护回差带判断。无内部状态，同样输入总是得到同样结果。
type BandEngine struct {
	cfg BandConfig
}

func NewBandEngine(cfg BandConfig) (*BandEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &BandEngine{cfg: cfg}, nil
}

// Config 返回 band 参数。
func (e *BandEngine) Config() BandConfig { return e.cfg }

// Decide 按顺序评估：无报价 → 太贴近 → 区间内 → 最小刷新间隔 → 越界。
func (e *BandEngine) Decide(in BandInput) Decision {
	d := Decision{Mode: e.cfg.Mode}
	if in.LastBid == nil || in.LastAsk == nil {
		d.Action, d.Reason = Refresh, ReasonNoQuote
		return d
	}
	d.BidDistance, d.AskDistance = Distances(e.cfg.Mode, in.Mark, *in.LastBid, *in.LastAsk)

	// 太贴近 mark 容易被吃单，无视防抖直接刷新
	if d.BidDistance.LessThan(e.cfg.Min) || d.AskDistance.LessThan(e.cfg.Min) {
		d.Action, d.Reason = Refresh, ReasonTooClose
		return d
	}
	if d.BidDistance.LessThanOrEqual(e.cfg.Max) && d.AskDistance.LessThanOrEqual(e.cfg.Max) {
		d.Action, d.Reason = Hold, ReasonBand
		return d
	}
	if in.Now.Sub(in.LastRefresh) < e.cfg.MinRefreshInterval && e.underCeiling(d.BidDistance) && e.underCeiling(d.AskDistance) {
		d.Action, d.Reason = Hold, ReasonMinInterval
		return d
	}
	d.Action, d.Reason = Refresh, ReasonOutOfBand
	return d
}

func (e *BandEngine) underCeiling(v decimal.Decimal) bool {
	if e.cfg.Ceiling.IsZero() {
		return true
	}
	return v.LessThan(e.cfg.Ceiling)
}

// Distances 计算买卖价相对 mark 的距离：bps 模式为 (mark-bid)/mark*1e4 与 (ask-mark)/mark*1e4，
// USD 模式为 mark-bid 与 ask-mark。mark 为 0 时 bps 距离按 0 处理。
func Distances(mode Mode, mark, bid, ask decimal.Decimal) (bidDist, askDist decimal.Decimal) {
	bidDist = mark.Sub(bid)
	askDist = ask.Sub(mark)
	if mode == ModeUSD {
		return bidDist, askDist
	}
	if mark.IsZero() {
		return decimal.Zero, decimal.Zero
	}
	return bidDist.Div(mark).Mul(bpsDenominator), askDist.Div(mark).Mul(bpsDenominator)
}

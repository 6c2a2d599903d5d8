package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"mmu-quoter/gateway"
	"mmu-quoter/infrastructure/logger"
	"mmu-quoter/order"
	"mmu-quoter/strategy"
)

// ErrStopped 对账发现缺档且策略为 stop：引擎已尽力撤单，进程应退出交由人工检查仓位。
var ErrStopped = errors.New("quote engine stopped after fill or missing level")

// ErrLadderTooClose 新算出的最内档已落在 min 距离以内，本轮只撤不挂。
var ErrLadderTooClose = errors.New("fresh ladder inside min distance")

// PriceOracle 参考价来源。
type PriceOracle interface {
	FetchMark(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Exchange 订单查询与变更。撤单/下单由实现方签名。
type Exchange interface {
	OpenOrders(ctx context.Context, symbol string) ([]order.OpenOrder, error)
	order.Gateway
}

// Metrics 引擎上报的指标，infrastructure/monitor 实现。
type Metrics interface {
	RecordDecision(action, reason string)
	RecordRefresh(placed, rejected, canceled int)
	RecordShortfall()
	RecordCycleError(kind string)
	SetQuote(mark, bid, ask float64)
}

// Alerter 告警出口，infrastructure/alert.Manager 实现。
type Alerter interface {
	SendWarning(message string, fields map[string]interface{}) error
	SendCritical(message string, fields map[string]interface{}) error
}

// Config 引擎配置
type Config struct {
	Symbol      string
	TimeInForce string
	ReduceOnly  bool
	// LoopInterval 价格轮询/决策周期
	LoopInterval time.Duration
	Ladder       strategy.LadderConfig
	Band         strategy.BandConfig
	// 下单量参数，未按交易所精度归一；New 内部用 SymbolInfo 归一
	QtyBase      decimal.Decimal
	QtyMin       *decimal.Decimal
	QtyMax       *decimal.Decimal
	QtyJitterPct float64
	Reconcile    order.ReconcilerConfig
	// RevalidateLadder 挂单前检查新梯子最内档是否已在 min 距离内
	RevalidateLadder bool
	// ErrorAlertAfter 连续多少个周期出错后发告警，0 表示默认 5
	ErrorAlertAfter int
}

// Components 引擎依赖组件
type Components struct {
	Oracle   PriceOracle
	Exchange Exchange
	Logger   *logger.Logger
	Metrics  Metrics
	Alerts   Alerter
	// Rand 返回 [0,1) 随机数，用于下单量抖动；nil 时用 math/rand
	Rand func() float64
	// Clock nil 时用 time.Now
	Clock func() time.Time
}

// CycleOutcome 单个周期做了什么，供日志与测试使用。
type CycleOutcome struct {
	Mark      decimal.Decimal
	Reconcile *order.ReconcileResult
	Decision  strategy.Decision
	Report    *order.ExecutionReport
}

// QuoteEngine 报价维护引擎。周期严格串行：对账 → 决策 → 撤旧挂新 → 提交状态。
type QuoteEngine struct {
	cfg        Config
	info       strategy.SymbolInfo
	qty        strategy.QuantityParams
	band       *strategy.BandEngine
	reconciler *order.Reconciler
	manager    *order.Manager
	mgrCfg     order.ManagerConfig

	oracle   PriceOracle
	exchange Exchange
	logger   *logger.Logger
	metrics  Metrics
	alerts   Alerter
	rnd      func() float64
	now      func() time.Time
}

// New 创建引擎。info 为启动时拉取的交易对精度，整个会话只读。
func New(cfg Config, info strategy.SymbolInfo, c Components) (*QuoteEngine, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := info.Validate(); err != nil {
		return nil, fmt.Errorf("invalid symbol info: %w", err)
	}
	if c.Oracle == nil || c.Exchange == nil {
		return nil, errors.New("oracle and exchange are required")
	}
	band, err := strategy.NewBandEngine(cfg.Band)
	if err != nil {
		return nil, fmt.Errorf("invalid band: %w", err)
	}
	if cfg.ErrorAlertAfter <= 0 {
		cfg.ErrorAlertAfter = 5
	}
	cfg.Reconcile.Depth = cfg.Ladder.Levels

	e := &QuoteEngine{
		cfg:        cfg,
		info:       info,
		qty:        strategy.NormalizeQuantityParams(cfg.QtyBase, cfg.QtyMin, cfg.QtyMax, cfg.QtyJitterPct, info),
		band:       band,
		reconciler: order.NewReconciler(cfg.Reconcile),
		manager:    order.NewManager(c.Exchange),
		mgrCfg: order.ManagerConfig{
			Symbol:      cfg.Symbol,
			Tag:         cfg.Reconcile.Tag,
			TimeInForce: cfg.TimeInForce,
			ReduceOnly:  cfg.ReduceOnly,
		},
		oracle:   c.Oracle,
		exchange: c.Exchange,
		logger:   c.Logger,
		metrics:  c.Metrics,
		alerts:   c.Alerts,
		rnd:      c.Rand,
		now:      c.Clock,
	}
	if e.logger == nil {
		e.logger = logger.NewNop()
	}
	if e.metrics == nil {
		e.metrics = nopMetrics{}
	}
	if e.rnd == nil {
		e.rnd = rand.Float64
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

func validateConfig(cfg Config) error {
	if cfg.Symbol == "" {
		return errors.New("symbol is required")
	}
	if cfg.Reconcile.Tag == "" {
		return errors.New("ownership tag is required")
	}
	if cfg.Ladder.Levels < 1 {
		return errors.New("ladder levels must be >= 1")
	}
	if !cfg.QtyBase.IsPositive() {
		return errors.New("qty must be > 0")
	}
	if cfg.QtyJitterPct < 0 || cfg.QtyJitterPct >= 1 {
		return errors.New("qty jitter must be in [0, 1)")
	}
	if cfg.Band.Mode != cfg.Ladder.Mode {
		return errors.New("band and ladder mode differ")
	}
	return nil
}

// Quantity 归一后的下单量参数。
func (e *QuoteEngine) Quantity() strategy.QuantityParams { return e.qty }

// Reconciler 对账器（统计信息）。
func (e *QuoteEngine) Reconciler() *order.Reconciler { return e.reconciler }

// Run 周期驱动，直到 ctx 取消或对账触发停机。启动后立即执行第一个周期。
// ctx 取消返回 nil；停机返回 ErrStopped。
func (e *QuoteEngine) Run(ctx context.Context) error {
	interval := e.cfg.LoopInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	// 每个周期结束后再等待 interval，慢周期不会导致下一周期紧接着执行
	timer := time.NewTimer(interval)
	defer timer.Stop()

	e.logger.Info("Quote engine starting",
		zap.String("symbol", e.cfg.Symbol),
		zap.String("mode", e.cfg.Ladder.Mode.String()),
		zap.Duration("loop", interval),
		zap.Duration("order_check", e.reconciler.Config().Interval),
		zap.String("policy", e.reconciler.Config().Policy.String()))

	var state QuoteState
	failures := 0
	for {
		next, _, err := e.RunCycle(ctx, state)
		state = next
		switch {
		case errors.Is(err, ErrStopped):
			return err
		case err != nil && ctx.Err() != nil:
			return nil
		case err != nil:
			failures++
			if failures == e.cfg.ErrorAlertAfter && e.alerts != nil {
				_ = e.alerts.SendWarning("quote engine cycles failing", map[string]interface{}{
					"symbol":   e.cfg.Symbol,
					"failures": failures,
					"error":    err.Error(),
				})
			}
		default:
			failures = 0
		}

		timer.Reset(interval)
		select {
		case <-ctx.Done():
			e.logger.Info("Context done, stopping quote engine", zap.String("phase", state.Phase()))
			return nil
		case <-timer.C:
		}
	}
}

// RunCycle 执行一个完整周期并返回新状态。任何错误都只中止本周期，不在周期内重试。
func (e *QuoteEngine) RunCycle(ctx context.Context, state QuoteState) (QuoteState, CycleOutcome, error) {
	var out CycleOutcome

	mark, err := e.oracle.FetchMark(ctx, e.cfg.Symbol)
	if err != nil {
		return state, out, e.fail("price", err)
	}
	out.Mark = mark
	now := e.now()

	if e.reconciler.Due(state.LastReconcile, now) {
		// 先打时间戳，拉单失败也要等下一个间隔
		state.LastReconcile = now
		res, err := e.reconcile(ctx)
		if err != nil {
			return state, out, e.fail("reconcile", err)
		}
		out.Reconcile = &res
		switch res.Status {
		case order.ReconcileEmpty:
			if state.HasQuote() {
				e.logger.LogReconcile("no_owned_orders", map[string]interface{}{"action": "REFRESH"})
			}
			state = state.Cleared()
		case order.ReconcileShortfall:
			state = state.Cleared()
			if e.reconciler.Config().Policy == order.PolicyStop {
				if e.alerts != nil {
					_ = e.alerts.SendCritical("quote engine stopped: fill or missing level, check positions", map[string]interface{}{
						"symbol":   e.cfg.Symbol,
						"buy":      res.BuyCount,
						"sell":     res.SellCount,
						"expected": res.Expected,
					})
				}
				return state, out, ErrStopped
			}
		}
	}

	out.Decision = e.band.Decide(strategy.BandInput{
		Mark:        mark,
		LastBid:     state.LastBid,
		LastAsk:     state.LastAsk,
		LastRefresh: state.LastRefresh,
		Now:         now,
	})
	e.metrics.RecordDecision(out.Decision.Action.String(), string(out.Decision.Reason))
	if out.Decision.Action == strategy.Hold {
		e.logDecision(out.Decision, mark, *state.LastBid, *state.LastAsk, nil)
		return state, out, nil
	}
	return e.refresh(ctx, state, mark, &out)
}

// reconcile 拉取在簿挂单并评估；缺档时尽力撤掉剩余的本引擎订单。
func (e *QuoteEngine) reconcile(ctx context.Context) (order.ReconcileResult, error) {
	raw, err := e.exchange.OpenOrders(ctx, e.cfg.Symbol)
	if err != nil {
		return order.ReconcileResult{}, fmt.Errorf("query open orders: %w", err)
	}
	res := e.reconciler.Evaluate(order.Ingest(raw, e.cfg.Reconcile.Tag), e.now())
	if res.Status != order.ReconcileShortfall {
		return res, nil
	}

	e.metrics.RecordShortfall()
	if err := e.manager.CancelOwned(ctx, res.OwnedIDs); err != nil {
		// 残留订单由下次对账或下次刷新处理
		e.logger.LogError(fmt.Errorf("cancel after fill: %w", err), map[string]interface{}{"order_ids": res.OwnedIDs})
	}
	action := "REFRESH"
	if e.reconciler.Config().Policy == order.PolicyStop {
		action = "STOP"
	}
	e.logger.LogReconcile("fill_or_missing_level", map[string]interface{}{
		"buy":               res.BuyCount,
		"sell":              res.SellCount,
		"expected_per_side": res.Expected,
		"canceled":          len(res.OwnedIDs),
		"action":            action,
	})
	return res, nil
}

// refresh 撤掉本引擎所有挂单并按新梯子挂单。两侧最内档都成功才提交状态。
func (e *QuoteEngine) refresh(ctx context.Context, state QuoteState, mark decimal.Decimal, out *CycleOutcome) (QuoteState, CycleOutcome, error) {
	ladder, err := strategy.BuildLadder(mark, e.info, e.cfg.Ladder)
	if err != nil {
		return state, *out, e.fail("ladder", err)
	}
	qty := strategy.PickQuantity(e.qty, e.rnd)

	raw, err := e.exchange.OpenOrders(ctx, e.cfg.Symbol)
	if err != nil {
		return state, *out, e.fail("open_orders", fmt.Errorf("query open orders: %w", err))
	}
	generation := e.now().UnixMilli()
	plan := order.PlanRefresh(e.info, ladder, qty, order.Ingest(raw, e.cfg.Reconcile.Tag), generation, e.mgrCfg)

	var tooClose error
	if e.cfg.RevalidateLadder {
		inner := ladder.Inner()
		bidD, askD := strategy.Distances(e.cfg.Ladder.Mode, mark, inner.Bid, inner.Ask)
		if bidD.LessThan(e.cfg.Band.Min) || askD.LessThan(e.cfg.Band.Min) {
			// 只撤不挂，避免旧单留在过近的位置
			plan.Placements = nil
			tooClose = fmt.Errorf("%w: bid %s ask %s (min %s)", ErrLadderTooClose, bidD.StringFixed(2), askD.StringFixed(2), e.cfg.Band.Min)
		}
	}

	rep, err := e.manager.Execute(ctx, plan)
	if err != nil {
		return state, *out, e.fail("cancel", err)
	}
	out.Report = &rep
	placed := 0
	for _, r := range rep.Results {
		if r.Accepted() {
			placed++
		}
		e.logPlacement(r)
	}
	e.metrics.RecordRefresh(placed, rep.Rejected(), rep.Canceled)

	if tooClose != nil {
		return state.Cleared(), *out, e.fail("ladder", tooClose)
	}
	if rep.TransportErr != nil {
		return state.Cleared(), *out, e.fail("place", fmt.Errorf("placement aborted: %w", rep.TransportErr))
	}
	if !rep.Committable() {
		return state.Cleared(), *out, e.fail("rejected", fmt.Errorf("%w: %d rejected, inner bid ok=%t ask ok=%t",
			gateway.ErrRejected, rep.Rejected(), rep.InnerBidOK, rep.InnerAskOK))
	}

	inner := ladder.Inner()
	state = state.Committed(inner.Bid, inner.Ask, e.now())
	e.logDecision(out.Decision, mark, inner.Bid, inner.Ask, map[string]interface{}{
		"levels":   ladder.Depth(),
		"qty_each": qty.StringFixed(e.info.QtyDecimals),
		"placed":   placed,
		"canceled": rep.Canceled,
	})
	return state, *out, nil
}

// CancelAll 撤销簿上所有带归属标记的订单，返回撤单数量。
func (e *QuoteEngine) CancelAll(ctx context.Context) (int, error) {
	raw, err := e.exchange.OpenOrders(ctx, e.cfg.Symbol)
	if err != nil {
		return 0, fmt.Errorf("query open orders: %w", err)
	}
	ids := order.OwnedIDs(order.Ingest(raw, e.cfg.Reconcile.Tag))
	if err := e.manager.CancelOwned(ctx, ids); err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (e *QuoteEngine) fail(kind string, err error) error {
	e.metrics.RecordCycleError(kind)
	if errors.Is(err, context.Canceled) {
		return err
	}
	e.logger.LogError(err, map[string]interface{}{"stage": kind, "symbol": e.cfg.Symbol})
	return err
}

func (e *QuoteEngine) logDecision(d strategy.Decision, mark, bid, ask decimal.Decimal, extra map[string]interface{}) {
	bidD, askD := strategy.Distances(d.Mode, mark, bid, ask)
	unit := "bps"
	if d.Mode == strategy.ModeUSD {
		unit = "usd"
	}
	fields := map[string]interface{}{
		"mark":     mark.StringFixed(2),
		"bid":      bid.StringFixed(e.info.PriceDecimals),
		"ask":      ask.StringFixed(e.info.PriceDecimals),
		"bid_dist": bidD.StringFixed(2),
		"ask_dist": askD.StringFixed(2),
		"unit":     unit,
	}
	for k, v := range extra {
		fields[k] = v
	}
	e.logger.LogDecision(d.Label(), fields)
	mf, _ := mark.Float64()
	bf, _ := bid.Float64()
	af, _ := ask.Float64()
	e.metrics.SetQuote(mf, bf, af)
}

func (e *QuoteEngine) logPlacement(r order.PlacementResult) {
	fields := map[string]interface{}{
		"side":  r.Side.String(),
		"level": r.Level,
		"price": r.Price.StringFixed(e.info.PriceDecimals),
		"code":  r.Code,
	}
	event := "placed"
	switch {
	case r.Err != nil:
		event = "place_failed"
		fields["error"] = r.Err.Error()
	case !r.Accepted():
		event = "rejected"
	}
	e.logger.LogOrder(event, r.ClientOrderID, fields)
}

type nopMetrics struct{}

func (nopMetrics) RecordDecision(string, string)      {}
func (nopMetrics) RecordRefresh(int, int, int)        {}
func (nopMetrics) RecordShortfall()                   {}
func (nopMetrics) RecordCycleError(string)            {}
func (nopMetrics) SetQuote(float64, float64, float64) {}

package engine_test

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mmu-quoter/gateway"
	"mmu-quoter/internal/engine"
	"mmu-quoter/order"
	"mmu-quoter/strategy"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// fakeOracle 可变参考价
type fakeOracle struct {
	mark decimal.Decimal
	err  error
}

func (f *fakeOracle) FetchMark(context.Context, string) (decimal.Decimal, error) {
	return f.mark, f.err
}

// fakeExchange 内存订单簿：接受的挂单上簿，撤单移除
type fakeExchange struct {
	mu        sync.Mutex
	book      []order.OpenOrder
	seq       int
	canceled  [][]string
	placed    []order.NewOrderRequest
	openCalls int
	openErr   error
	cancelErr error
	codeFor   func(order.NewOrderRequest) int
	placeErr  func(order.NewOrderRequest) error
}

func (f *fakeExchange) OpenOrders(context.Context, string) ([]order.OpenOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openCalls++
	if f.openErr != nil {
		return nil, f.openErr
	}
	return append([]order.OpenOrder(nil), f.book...), nil
}

func (f *fakeExchange) CancelOrders(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.canceled = append(f.canceled, ids)
	drop := map[string]bool{}
	for _, id := range ids {
		drop[id] = true
	}
	kept := f.book[:0]
	for _, o := range f.book {
		if !drop[o.ID] {
			kept = append(kept, o)
		}
	}
	f.book = kept
	return nil
}

func (f *fakeExchange) NewOrder(_ context.Context, req order.NewOrderRequest) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed = append(f.placed, req)
	if f.placeErr != nil {
		if err := f.placeErr(req); err != nil {
			return 0, err
		}
	}
	code := 0
	if f.codeFor != nil {
		code = f.codeFor(req)
	}
	if code == 0 {
		f.seq++
		f.book = append(f.book, order.OpenOrder{
			ID:            "o" + strconv.Itoa(f.seq),
			ClientOrderID: req.ClientOrderID,
			Side:          req.Side.String(),
			Price:         req.Price,
			Qty:           req.Qty,
		})
	}
	return code, nil
}

func (f *fakeExchange) preload(cids ...string) {
	for _, cid := range cids {
		f.seq++
		side := "buy"
		if strings.Contains(cid, "-ASK-") {
			side = "sell"
		}
		f.book = append(f.book, order.OpenOrder{ID: "pre" + strconv.Itoa(f.seq), ClientOrderID: cid, Side: side})
	}
}

type fakeAlerts struct {
	warnings  []string
	criticals []string
}

func (a *fakeAlerts) SendWarning(msg string, _ map[string]interface{}) error {
	a.warnings = append(a.warnings, msg)
	return nil
}

func (a *fakeAlerts) SendCritical(msg string, _ map[string]interface{}) error {
	a.criticals = append(a.criticals, msg)
	return nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(dur time.Duration) { c.t = c.t.Add(dur) }

func btcInfo() strategy.SymbolInfo {
	return strategy.SymbolInfo{Symbol: "BTC-USD", PriceDecimals: 1, QtyDecimals: 4, MinOrderQty: d("0.0001")}
}

func bpsConfig(levels int, policy order.ShortfallPolicy) engine.Config {
	return engine.Config{
		Symbol:       "BTC-USD",
		TimeInForce:  "alo",
		LoopInterval: 5 * time.Millisecond,
		Ladder: strategy.LadderConfig{
			Mode:      strategy.ModeBps,
			Levels:    levels,
			TargetBps: d("9"),
			StepBps:   d("0.25"),
			MaxBps:    d("9.2"),
		},
		Band: strategy.BandConfig{
			Mode:               strategy.ModeBps,
			Min:                d("4.5"),
			Max:                d("9.2"),
			Ceiling:            d("10"),
			MinRefreshInterval: 20 * time.Second,
		},
		QtyBase:          d("0.0001"),
		Reconcile:        order.ReconcilerConfig{Tag: "MMU", Interval: 15 * time.Second, Policy: policy},
		RevalidateLadder: true,
	}
}

type harness struct {
	eng    *engine.QuoteEngine
	oracle *fakeOracle
	ex     *fakeExchange
	alerts *fakeAlerts
	clock  *clock
}

func newHarness(t *testing.T, cfg engine.Config) *harness {
	t.Helper()
	h := &harness{
		oracle: &fakeOracle{mark: d("65000")},
		ex:     &fakeExchange{},
		alerts: &fakeAlerts{},
		clock:  &clock{t: time.Unix(1700000000, 0)},
	}
	eng, err := engine.New(cfg, btcInfo(), engine.Components{
		Oracle:   h.oracle,
		Exchange: h.ex,
		Alerts:   h.alerts,
		Rand:     func() float64 { return 0.5 },
		Clock:    h.clock.now,
	})
	require.NoError(t, err)
	h.eng = eng
	return h
}

func quoted(bid, ask string, at time.Time) engine.QuoteState {
	return engine.QuoteState{}.Committed(d(bid), d(ask), at)
}

func TestCycleRefreshHoldAndDrift(t *testing.T) {
	h := newHarness(t, bpsConfig(1, order.PolicyStop))
	ctx := context.Background()

	// 启动：NO_QUOTE → REFRESH(no-quote)，提交 L0
	state, out, err := h.eng.RunCycle(ctx, engine.QuoteState{})
	require.NoError(t, err)
	assert.Equal(t, strategy.ReasonNoQuote, out.Decision.Reason)
	require.True(t, state.HasQuote())
	assert.Equal(t, "64941.5", state.LastBid.String())
	assert.Equal(t, "65058.5", state.LastAsk.String())
	require.Len(t, h.ex.placed, 2)
	assert.Equal(t, order.Buy, h.ex.placed[0].Side)
	assert.Equal(t, "MMU-BID-L0-1700000000000", h.ex.placed[0].ClientOrderID)
	assert.Equal(t, "alo", h.ex.placed[0].TimeInForce)

	// mark 不变：HOLD(band)，不触碰订单
	h.clock.advance(15 * time.Second)
	state, out, err = h.eng.RunCycle(ctx, state)
	require.NoError(t, err)
	require.NotNil(t, out.Reconcile)
	assert.Equal(t, order.ReconcileOK, out.Reconcile.Status)
	assert.Equal(t, strategy.Hold, out.Decision.Action)
	assert.Equal(t, strategy.ReasonBand, out.Decision.Reason)
	assert.Len(t, h.ex.placed, 2)

	// mark 漂到 65010，距上次刷新已超过最小间隔 → REFRESH(out-of-band)
	h.clock.advance(15 * time.Second)
	h.oracle.mark = d("65010")
	state, out, err = h.eng.RunCycle(ctx, state)
	require.NoError(t, err)
	assert.Equal(t, strategy.ReasonOutOfBand, out.Decision.Reason)
	assert.Equal(t, "64951.4", state.LastBid.String())
	assert.Equal(t, "65068.6", state.LastAsk.String())
	require.Len(t, h.ex.canceled, 1)
	assert.Len(t, h.ex.canceled[0], 2)
	assert.Len(t, h.ex.book, 2)

	// mark 贴近买价 → REFRESH(too-close)，与时间无关
	h.clock.advance(time.Second)
	h.oracle.mark = d("64955")
	_, out, err = h.eng.RunCycle(ctx, state)
	require.NoError(t, err)
	assert.Nil(t, out.Reconcile)
	assert.Equal(t, strategy.ReasonTooClose, out.Decision.Reason)
}

func TestCycleShortfallStop(t *testing.T) {
	h := newHarness(t, bpsConfig(2, order.PolicyStop))
	h.ex.preload("MMU-BID-L0-1", "MMU-ASK-L0-1", "MMU-ASK-L1-1", "manual-1")

	state, out, err := h.eng.RunCycle(context.Background(), quoted("64941.5", "65058.5", h.clock.now()))
	require.ErrorIs(t, err, engine.ErrStopped)
	require.NotNil(t, out.Reconcile)
	assert.Equal(t, 1, out.Reconcile.BuyCount)
	assert.Equal(t, 2, out.Reconcile.Expected)
	assert.False(t, state.HasQuote())

	require.Len(t, h.ex.canceled, 1)
	assert.ElementsMatch(t, []string{"pre1", "pre2", "pre3"}, h.ex.canceled[0])
	assert.Empty(t, h.ex.placed)
	assert.Len(t, h.alerts.criticals, 1)
	assert.Len(t, h.ex.book, 1, "foreign order must survive")
}

func TestCycleShortfallContinue(t *testing.T) {
	h := newHarness(t, bpsConfig(2, order.PolicyContinue))
	h.ex.preload("MMU-BID-L0-1", "MMU-ASK-L0-1", "MMU-ASK-L1-1")

	state, out, err := h.eng.RunCycle(context.Background(), quoted("64941.5", "65058.5", h.clock.now()))
	require.NoError(t, err)
	assert.Equal(t, order.ReconcileShortfall, out.Reconcile.Status)
	assert.Equal(t, strategy.ReasonNoQuote, out.Decision.Reason)
	assert.True(t, state.HasQuote())
	assert.Len(t, h.ex.canceled, 1)
	assert.Len(t, h.ex.placed, 4)
	assert.Empty(t, h.alerts.criticals)
}

func TestCycleEmptyBookForcesRefresh(t *testing.T) {
	h := newHarness(t, bpsConfig(1, order.PolicyStop))
	state, out, err := h.eng.RunCycle(context.Background(), quoted("64941.5", "65058.5", h.clock.now()))
	require.NoError(t, err)
	assert.Equal(t, order.ReconcileEmpty, out.Reconcile.Status)
	assert.Equal(t, strategy.ReasonNoQuote, out.Decision.Reason)
	assert.True(t, state.HasQuote())
}

func TestCyclePriceUnavailableKeepsState(t *testing.T) {
	h := newHarness(t, bpsConfig(1, order.PolicyStop))
	h.oracle.err = gateway.ErrPriceUnavailable
	prev := quoted("64941.5", "65058.5", h.clock.now())

	state, _, err := h.eng.RunCycle(context.Background(), prev)
	require.ErrorIs(t, err, gateway.ErrPriceUnavailable)
	assert.Equal(t, prev, state)
	assert.Zero(t, h.ex.openCalls)
}

func TestCycleReconcileFetchFailureStampsTimestamp(t *testing.T) {
	h := newHarness(t, bpsConfig(1, order.PolicyStop))
	h.ex.openErr = &gateway.TransportError{Op: "query_open_orders", Status: 503}
	prev := quoted("64941.5", "65058.5", time.Time{})

	state, _, err := h.eng.RunCycle(context.Background(), prev)
	require.Error(t, err)
	assert.True(t, gateway.IsTransport(err))
	assert.True(t, state.HasQuote())
	assert.Equal(t, h.clock.now(), state.LastReconcile)
}

func TestCycleTransportErrorMidPlacementClearsState(t *testing.T) {
	h := newHarness(t, bpsConfig(1, order.PolicyContinue))
	boom := errors.New("connection reset")
	h.ex.placeErr = func(req order.NewOrderRequest) error {
		if req.Side == order.Sell {
			return boom
		}
		return nil
	}
	h.oracle.mark = d("65100")
	prev := quoted("64941.5", "65058.5", h.clock.now().Add(-time.Minute))
	prev.LastReconcile = h.clock.now()

	state, out, err := h.eng.RunCycle(context.Background(), prev)
	require.ErrorIs(t, err, boom)
	assert.False(t, state.HasQuote())
	require.NotNil(t, out.Report)
	assert.True(t, out.Report.InnerBidOK)
}

func TestCycleRejectClearsState(t *testing.T) {
	h := newHarness(t, bpsConfig(1, order.PolicyContinue))
	h.ex.codeFor = func(req order.NewOrderRequest) int {
		if req.Side == order.Buy {
			return 400
		}
		return 0
	}
	state, out, err := h.eng.RunCycle(context.Background(), engine.QuoteState{})
	require.ErrorIs(t, err, gateway.ErrRejected)
	assert.False(t, state.HasQuote())
	assert.Equal(t, 1, out.Report.Rejected())
	assert.True(t, out.Report.InnerAskOK)
}

func TestCycleCancelFailureKeepsState(t *testing.T) {
	h := newHarness(t, bpsConfig(1, order.PolicyContinue))
	h.ex.preload("MMU-BID-L0-1", "MMU-ASK-L0-1")
	h.ex.cancelErr = errors.New("503")
	h.oracle.mark = d("64950")
	prev := quoted("64941.5", "65058.5", h.clock.now())

	state, _, err := h.eng.RunCycle(context.Background(), prev)
	require.ErrorIs(t, err, order.ErrCancelFailed)
	require.True(t, state.HasQuote())
	assert.Equal(t, "64941.5", state.LastBid.String())
	assert.Equal(t, "65058.5", state.LastAsk.String())
	assert.Equal(t, prev.LastRefresh, state.LastRefresh)
	assert.Empty(t, h.ex.placed)
}

func TestCycleLadderInsideMinDistance(t *testing.T) {
	cfg := bpsConfig(1, order.PolicyContinue)
	cfg.Ladder.TargetBps = d("3")
	h := newHarness(t, cfg)
	h.ex.preload("MMU-BID-L0-1", "MMU-ASK-L0-1")

	state, _, err := h.eng.RunCycle(context.Background(), engine.QuoteState{})
	require.ErrorIs(t, err, engine.ErrLadderTooClose)
	assert.False(t, state.HasQuote())
	assert.Empty(t, h.ex.placed)
	require.Len(t, h.ex.canceled, 1)
	assert.Len(t, h.ex.canceled[0], 2)
}

func TestCycleUSDLadder(t *testing.T) {
	cfg := bpsConfig(2, order.PolicyStop)
	cfg.Ladder = strategy.LadderConfig{Mode: strategy.ModeUSD, Levels: 2, AbsSpread: d("1000"), AbsStep: d("100")}
	cfg.Band = strategy.BandConfig{Mode: strategy.ModeUSD, Min: d("300"), Max: d("1500"), Ceiling: d("1500"), MinRefreshInterval: 20 * time.Second}
	h := newHarness(t, cfg)

	state, _, err := h.eng.RunCycle(context.Background(), engine.QuoteState{})
	require.NoError(t, err)
	assert.Equal(t, "64000", state.LastBid.String())
	assert.Equal(t, "66000", state.LastAsk.String())
	prices := make([]string, 0, 4)
	for _, p := range h.ex.placed {
		prices = append(prices, p.Price.String())
	}
	assert.Equal(t, []string{"63900", "64000", "66100", "66000"}, prices)
}

func TestCancelAll(t *testing.T) {
	h := newHarness(t, bpsConfig(1, order.PolicyStop))
	h.ex.preload("MMU-BID-L0-1", "OTHER-ASK-L0-1", "MMU-ASK-L0-1")
	n, err := h.eng.CancelAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, h.ex.book, 1)
}

func TestRunStopsOnShortfall(t *testing.T) {
	h := newHarness(t, bpsConfig(1, order.PolicyStop))
	h.ex.preload("MMU-BID-L0-1")
	err := h.eng.Run(context.Background())
	assert.ErrorIs(t, err, engine.ErrStopped)
	assert.Len(t, h.alerts.criticals, 1)
}

func TestRunReturnsOnCancel(t *testing.T) {
	h := newHarness(t, bpsConfig(1, order.PolicyStop))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.NoError(t, h.eng.Run(ctx))
	assert.GreaterOrEqual(t, len(h.ex.placed), 2)
}

// slowOracle 第一次取价耗时 delay，记录每次调用的开始与结束时间
type slowOracle struct {
	delay time.Duration

	mu     sync.Mutex
	starts []time.Time
	ends   []time.Time
}

func (o *slowOracle) FetchMark(context.Context, string) (decimal.Decimal, error) {
	o.mu.Lock()
	first := len(o.starts) == 0
	o.starts = append(o.starts, time.Now())
	o.mu.Unlock()
	if first {
		time.Sleep(o.delay)
	}
	o.mu.Lock()
	o.ends = append(o.ends, time.Now())
	o.mu.Unlock()
	return decimal.Zero, gateway.ErrPriceUnavailable
}

func TestRunWaitsFullIntervalAfterSlowCycle(t *testing.T) {
	cfg := bpsConfig(1, order.PolicyStop)
	cfg.LoopInterval = 20 * time.Millisecond
	oracle := &slowOracle{delay: 50 * time.Millisecond}
	eng, err := engine.New(cfg, btcInfo(), engine.Components{Oracle: oracle, Exchange: &fakeExchange{}})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	require.NoError(t, eng.Run(ctx))

	oracle.mu.Lock()
	defer oracle.mu.Unlock()
	require.GreaterOrEqual(t, len(oracle.starts), 2)
	gap := oracle.starts[1].Sub(oracle.ends[0])
	assert.GreaterOrEqual(t, gap, cfg.LoopInterval, "next cycle must start a full interval after the slow one ends")
}

func TestRunAlertsOnRepeatedFailures(t *testing.T) {
	cfg := bpsConfig(1, order.PolicyStop)
	cfg.ErrorAlertAfter = 2
	h := newHarness(t, cfg)
	h.oracle.err = gateway.ErrPriceUnavailable
	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	assert.NoError(t, h.eng.Run(ctx))
	assert.Len(t, h.alerts.warnings, 1)
}

func TestNewValidatesConfig(t *testing.T) {
	cfg := bpsConfig(1, order.PolicyStop)
	cfg.Band.Mode = strategy.ModeUSD
	_, err := engine.New(cfg, btcInfo(), engine.Components{Oracle: &fakeOracle{}, Exchange: &fakeExchange{}})
	assert.Error(t, err)

	cfg = bpsConfig(1, order.PolicyStop)
	cfg.Reconcile.Tag = ""
	_, err = engine.New(cfg, btcInfo(), engine.Components{Oracle: &fakeOracle{}, Exchange: &fakeExchange{}})
	assert.Error(t, err)

	_, err = engine.New(bpsConfig(1, order.PolicyStop), btcInfo(), engine.Components{})
	assert.Error(t, err)
}

package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"mmu-quoter/strategy"
)

// Gateway 撤单/下单抽象；与 gateway.Client 对接。所有变更请求都由实现方签名。
type Gateway interface {
	CancelOrders(ctx context.Context, orderIDs []string) error
	NewOrder(ctx context.Context, req NewOrderRequest) (int, error)
}

// ManagerConfig 下单公共参数。
type ManagerConfig struct {
	Symbol      string
	Tag         string
	TimeInForce string
	ReduceOnly  bool
}

// Placement 计划中的单笔挂单。
type Placement struct {
	Level   int
	Request NewOrderRequest
}

// RefreshPlan 一次撤旧挂新的完整计划：先批量撤单，再按顺序挂单。
type RefreshPlan struct {
	Generation int64
	Ladder     strategy.LadderPlan
	Qty        decimal.Decimal
	CancelIDs  []string
	Placements []Placement
}

// PlanRefresh 生成刷新计划。挂单顺序：买单从外到内，再卖单从外到内，
// 这样最容易成交的最内档总是在外侧档位挂好之后才上簿。
func PlanRefresh(info strategy.SymbolInfo, ladder strategy.LadderPlan, qty decimal.Decimal, live []ResidentOrder, generation int64, cfg ManagerConfig) RefreshPlan {
	plan := RefreshPlan{
		Generation: generation,
		Ladder:     ladder,
		Qty:        qty,
		CancelIDs:  OwnedIDs(live),
		Placements: make([]Placement, 0, 2*ladder.Depth()),
	}
	for _, side := range []Side{Buy, Sell} {
		for i := ladder.Depth() - 1; i >= 0; i-- {
			lv := ladder.Levels[i]
			price := lv.Bid
			if side == Sell {
				price = lv.Ask
			}
			cid := ClientOrderID{Tag: cfg.Tag, Side: side, Level: lv.Level, Generation: generation}
			plan.Placements = append(plan.Placements, Placement{
				Level: lv.Level,
				Request: NewOrderRequest{
					Symbol:        cfg.Symbol,
					Side:          side,
					Price:         price,
					Qty:           qty,
					PriceDecimals: info.PriceDecimals,
					QtyDecimals:   info.QtyDecimals,
					TimeInForce:   cfg.TimeInForce,
					ReduceOnly:    cfg.ReduceOnly,
					ClientOrderID: cid.String(),
				},
			})
		}
	}
	return plan
}

// ExecutionReport 刷新执行结果。
type ExecutionReport struct {
	Canceled   int
	Results    []PlacementResult
	InnerBidOK bool
	InnerAskOK bool
	// TransportErr 挂单过程中出现的网络/HTTP 错误，出现后剩余挂单全部放弃。
	TransportErr error
}

// Committable 两侧最内档都被接受时才能提交新的报价状态。
func (r ExecutionReport) Committable() bool {
	return r.TransportErr == nil && r.InnerBidOK && r.InnerAskOK
}

// Rejected 被交易所拒绝的挂单数量。
func (r ExecutionReport) Rejected() int {
	n := 0
	for _, res := range r.Results {
		if res.Err == nil && res.Code != 0 {
			n++
		}
	}
	return n
}

// ErrCancelFailed 撤旧单失败，本轮刷新在挂单前中止。
var ErrCancelFailed = errors.New("cancel before refresh failed")

// Manager 负责按计划撤旧挂新。
type Manager struct {
	gw Gateway
}

func NewManager(gw Gateway) *Manager {
	return &Manager{gw: gw}
}

// CancelOwned 批量撤销给定订单，空列表不发请求。
func (m *Manager) CancelOwned(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return m.gw.CancelOrders(ctx, ids)
}

// Execute 执行刷新计划。某侧出现拒单（code != 0）即停止该侧剩余挂单，已挂档位保留；
// 出现传输错误则放弃本轮所有剩余挂单。失败不在本轮内重试。
func (m *Manager) Execute(ctx context.Context, plan RefreshPlan) (ExecutionReport, error) {
	var rep ExecutionReport
	if err := m.CancelOwned(ctx, plan.CancelIDs); err != nil {
		return rep, fmt.Errorf("%w: %w", ErrCancelFailed, err)
	}
	rep.Canceled = len(plan.CancelIDs)

	stopped := map[Side]bool{}
	for _, p := range plan.Placements {
		side := p.Request.Side
		if stopped[side] {
			continue
		}
		code, err := m.gw.NewOrder(ctx, p.Request)
		res := PlacementResult{
			Side:          side,
			Level:         p.Level,
			Price:         p.Request.Price,
			ClientOrderID: p.Request.ClientOrderID,
			Code:          code,
			Err:           err,
		}
		rep.Results = append(rep.Results, res)
		if err != nil {
			rep.TransportErr = err
			return rep, nil
		}
		if !res.Accepted() {
			stopped[side] = true
			continue
		}
		if p.Level == 0 {
			if side == Buy {
				rep.InnerBidOK = true
			} else {
				rep.InnerAskOK = true
			}
		}
	}
	return rep, nil
}

package gateway

import (
	"context"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"mmu-quoter/order"
)

// OrderReader 只读查询。
type OrderReader interface {
	OpenOrders(ctx context.Context, symbol string) ([]order.OpenOrder, error)
}

// DryRunExchange 查询透传真实交易所，撤单/下单只记日志并在内存中模拟挂单，
// 这样对账能看到“自己挂的单”，不会每轮都判定缺档。
type DryRunExchange struct {
	reader OrderReader
	logger *zap.Logger

	mu     sync.Mutex
	seq    int
	orders map[string]order.OpenOrder
	ids    []string
}

func NewDryRunExchange(reader OrderReader, logger *zap.Logger) *DryRunExchange {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DryRunExchange{
		reader: reader,
		logger: logger,
		orders: make(map[string]order.OpenOrder),
	}
}

// OpenOrders 真实挂单加上模拟挂单。
func (d *DryRunExchange) OpenOrders(ctx context.Context, symbol string) ([]order.OpenOrder, error) {
	var live []order.OpenOrder
	if d.reader != nil {
		var err error
		live, err = d.reader.OpenOrders(ctx, symbol)
		if err != nil {
			return nil, err
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range d.ids {
		live = append(live, d.orders[id])
	}
	return live, nil
}

func (d *DryRunExchange) CancelOrders(_ context.Context, orderIDs []string) error {
	if len(orderIDs) == 0 {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range orderIDs {
		delete(d.orders, id)
	}
	kept := d.ids[:0]
	for _, id := range d.ids {
		if _, ok := d.orders[id]; ok {
			kept = append(kept, id)
		}
	}
	d.ids = kept
	d.logger.Info("order_cancel_dry_run", zap.Strings("order_ids", orderIDs))
	return nil
}

func (d *DryRunExchange) NewOrder(_ context.Context, req order.NewOrderRequest) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	id := "dry-" + strconv.Itoa(d.seq)
	d.orders[id] = order.OpenOrder{
		ID:            id,
		ClientOrderID: req.ClientOrderID,
		Side:          req.Side.String(),
		Price:         req.Price,
		Qty:           req.Qty,
	}
	d.ids = append(d.ids, id)
	d.logger.Info("order_place_dry_run",
		zap.String("symbol", req.Symbol),
		zap.String("side", req.Side.String()),
		zap.String("price", req.Price.StringFixed(req.PriceDecimals)),
		zap.String("qty", req.Qty.StringFixed(req.QtyDecimals)),
		zap.String("client_order_id", req.ClientOrderID),
	)
	return 0, nil
}

// Simulated 当前模拟挂单数量。
func (d *DryRunExchange) Simulated() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.ids)
}

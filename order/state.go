package order

import "github.com/shopspring/decimal"

// OpenOrder 交易所返回的挂单原始视图（gateway 负责解码）。
type OpenOrder struct {
	ID            string
	ClientOrderID string
	Side          string
	Price         decimal.Decimal
	Qty           decimal.Decimal
}

// ResidentOrder 在簿挂单，在拉取时解析一次归属与档位。引擎只观察，不拥有。
type ResidentOrder struct {
	ID       string
	ClientID ClientOrderID
	Side     Side
	Level    int
	Owned    bool
}

// Ingest 把交易所挂单解析为 ResidentOrder。
// 归属只看 client order id；无法解析的 id 视为非本引擎订单。
func Ingest(raw []OpenOrder, tag string) []ResidentOrder {
	out := make([]ResidentOrder, 0, len(raw))
	for _, o := range raw {
		ro := ResidentOrder{ID: o.ID}
		if cid, err := ParseClientOrderID(o.ClientOrderID); err == nil && cid.OwnedBy(tag) {
			ro.ClientID = cid
			ro.Side = cid.Side
			ro.Level = cid.Level
			ro.Owned = true
		}
		if side, ok := ParseSide(o.Side); ok && !ro.Owned {
			ro.Side = side
		}
		out = append(out, ro)
	}
	return out
}

// OwnedIDs 返回本引擎拥有且带交易所 id 的订单 id。
func OwnedIDs(orders []ResidentOrder) []string {
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		if o.Owned && o.ID != "" {
			ids = append(ids, o.ID)
		}
	}
	return ids
}

// NewOrderRequest 下单请求。价格与数量已按精度取整，decimals 用于定长格式化。
type NewOrderRequest struct {
	Symbol        string
	Side          Side
	Price         decimal.Decimal
	Qty           decimal.Decimal
	PriceDecimals int32
	QtyDecimals   int32
	TimeInForce   string
	ReduceOnly    bool
	ClientOrderID string
}

// PlacementResult 单次下单尝试的结果，不持久化。Code == 0 表示交易所接受。
type PlacementResult struct {
	Side          Side
	Level         int
	Price         decimal.Decimal
	ClientOrderID string
	Code          int
	Err           error
}

// Accepted 是否被交易所接受。
func (r PlacementResult) Accepted() bool {
	return r.Err == nil && r.Code == 0
}

package order

import (
	"sync"
	"time"
)

// ReconcileStatus 对账结论。
type ReconcileStatus int

const (
	// ReconcileOK 两侧挂单数都达到预期档数。
	ReconcileOK ReconcileStatus = iota
	// ReconcileEmpty 簿上没有任何本引擎订单（被系统清空/掉线/撤单），只需重新挂单。
	ReconcileEmpty
	// ReconcileShortfall 任一侧数量不足：通常代表某档被吃、被撤或下单失败。
	ReconcileShortfall
)

func (s ReconcileStatus) String() string {
	switch s {
	case ReconcileOK:
		return "ok"
	case ReconcileEmpty:
		return "empty"
	case ReconcileShortfall:
		return "shortfall"
	default:
		return "unknown"
	}
}

// ReconcileResult 单次对账的观测结果。
type ReconcileResult struct {
	Status    ReconcileStatus
	BuyCount  int
	SellCount int
	Expected  int
	OwnedIDs  []string
}

// Missing 是否存在缺档。
func (r ReconcileResult) Missing() bool {
	return r.Status != ReconcileOK
}

// ShortfallPolicy 缺档后的处理策略。
type ShortfallPolicy int

const (
	// PolicyStop 撤单后停机，交由人工检查仓位（默认，避免仓位越滚越大）。
	PolicyStop ShortfallPolicy = iota
	// PolicyContinue 撤单后清空报价状态，下一轮自动重新挂单。
	PolicyContinue
)

func (p ShortfallPolicy) String() string {
	if p == PolicyContinue {
		return "continue"
	}
	return "stop"
}

// ReconcilerConfig 对账器配置
type ReconcilerConfig struct {
	Tag      string        // 归属标记
	Depth    int           // 每侧预期档数
	Interval time.Duration // 对账间隔
	Policy   ShortfallPolicy
}

// Reconciler 订单对账器：按自己的节奏检查本引擎在簿挂单数量是否与档数一致。
// Evaluate 本身不做 I/O，拉单与撤单由引擎负责。
type Reconciler struct {
	cfg ReconcilerConfig

	mu                   sync.RWMutex
	totalReconciliations int64
	shortfalls           int64
	lastReconcileTime    time.Time
	lastResult           ReconcileResult
}

// NewReconciler 创建订单对账器
func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.Depth < 1 {
		cfg.Depth = 1
	}
	return &Reconciler{cfg: cfg}
}

// Config 返回对账配置。
func (r *Reconciler) Config() ReconcilerConfig { return r.cfg }

// Due 距上次对账是否已超过间隔。
func (r *Reconciler) Due(last, now time.Time) bool {
	return now.Sub(last) >= r.cfg.Interval
}

// Evaluate 过滤出本引擎订单并按方向计数，与预期档数比较。
func (r *Reconciler) Evaluate(live []ResidentOrder, now time.Time) ReconcileResult {
	res := ReconcileResult{Expected: r.cfg.Depth, OwnedIDs: OwnedIDs(live)}
	owned := 0
	for _, o := range live {
		if !o.Owned {
			continue
		}
		owned++
		switch o.Side {
		case Buy:
			res.BuyCount++
		case Sell:
			res.SellCount++
		}
	}
	switch {
	case owned == 0:
		res.Status = ReconcileEmpty
	case res.BuyCount < r.cfg.Depth || res.SellCount < r.cfg.Depth:
		res.Status = ReconcileShortfall
	default:
		res.Status = ReconcileOK
	}

	r.mu.Lock()
	r.totalReconciliations++
	if res.Status == ReconcileShortfall {
		r.shortfalls++
	}
	r.lastReconcileTime = now
	r.lastResult = res
	r.mu.Unlock()
	return res
}

// ReconcilerStats 对账统计信息
type ReconcilerStats struct {
	TotalReconciliations int64
	Shortfalls           int64
	LastReconcileTime    time.Time
	LastResult           ReconcileResult
	Interval             time.Duration
}

// GetStatistics 获取对账统计信息
func (r *Reconciler) GetStatistics() ReconcilerStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return ReconcilerStats{
		TotalReconciliations: r.totalReconciliations,
		Shortfalls:           r.shortfalls,
		LastReconcileTime:    r.lastReconcileTime,
		LastResult:           r.lastResult,
		Interval:             r.cfg.Interval,
	}
}

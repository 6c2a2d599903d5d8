package monitor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor Prometheus监控指标收集器
type Monitor struct {
	registry *prometheus.Registry

	// 决策指标
	decisions *prometheus.CounterVec
	refreshes prometheus.Counter

	// 订单指标
	ordersPlaced   prometheus.Counter
	ordersRejected prometheus.Counter
	ordersCanceled prometheus.Counter

	// 对账与错误
	shortfalls  prometheus.Counter
	cycleErrors *prometheus.CounterVec

	// 报价指标
	markPrice prometheus.Gauge
	bidPrice  prometheus.Gauge
	askPrice  prometheus.Gauge

	// 系统指标
	restRequests *prometheus.CounterVec
	restErrors   *prometheus.CounterVec
	restLatency  *prometheus.HistogramVec
}

// Config 监控配置
type Config struct {
	Namespace string
	Subsystem string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "mmu",
		Subsystem: "quoter",
	}
}

// New 创建新的Monitor实例，使用独立 registry
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, Name: name, Help: help})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return factory.NewGauge(prometheus.GaugeOpts{Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, Name: name, Help: help})
	}

	return &Monitor{
		registry: reg,
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "decisions_total",
			Help:      "band 决策次数，按动作与原因",
		}, []string{"action", "reason"}),
		refreshes:      counter("refreshes_total", "撤旧挂新次数"),
		ordersPlaced:   counter("orders_placed_total", "交易所接受的挂单数"),
		ordersRejected: counter("orders_rejected_total", "交易所拒绝的挂单数"),
		ordersCanceled: counter("orders_canceled_total", "撤单数"),
		shortfalls:     counter("reconcile_shortfalls_total", "对账缺档次数"),
		cycleErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "cycle_errors_total",
			Help:      "周期中止次数，按阶段",
		}, []string{"kind"}),
		markPrice: gauge("mark_price", "最近一次参考价"),
		bidPrice:  gauge("bid_price", "当前最内档买价"),
		askPrice:  gauge("ask_price", "当前最内档卖价"),
		restRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "rest_requests_total",
			Help:      "REST 请求数",
		}, []string{"op"}),
		restErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "rest_errors_total",
			Help:      "REST 请求失败数",
		}, []string{"op"}),
		restLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "rest_latency_seconds",
			Help:      "REST 请求延迟分布（秒）",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"op"}),
	}
}

// RecordDecision 记录一次 HOLD/REFRESH 决策
func (m *Monitor) RecordDecision(action, reason string) {
	m.decisions.WithLabelValues(action, reason).Inc()
}

// RecordRefresh 记录一次撤旧挂新的结果
func (m *Monitor) RecordRefresh(placed, rejected, canceled int) {
	m.refreshes.Inc()
	m.ordersPlaced.Add(float64(placed))
	m.ordersRejected.Add(float64(rejected))
	m.ordersCanceled.Add(float64(canceled))
}

// RecordShortfall 记录对账缺档
func (m *Monitor) RecordShortfall() {
	m.shortfalls.Inc()
}

// RecordCycleError 记录周期中止
func (m *Monitor) RecordCycleError(kind string) {
	m.cycleErrors.WithLabelValues(kind).Inc()
}

// SetQuote 更新参考价与最内档报价
func (m *Monitor) SetQuote(mark, bid, ask float64) {
	m.markPrice.Set(mark)
	m.bidPrice.Set(bid)
	m.askPrice.Set(ask)
}

// ObserveREST 记录 REST 调用，签名与 gateway.Observer 一致
func (m *Monitor) ObserveREST(op string, elapsed time.Duration, err error) {
	m.restRequests.WithLabelValues(op).Inc()
	m.restLatency.WithLabelValues(op).Observe(elapsed.Seconds())
	if err != nil {
		m.restErrors.WithLabelValues(op).Inc()
	}
}

// Handler 返回 /metrics 处理器
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回prometheus registry
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

// Serve 在 addr 上暴露 /metrics，ctx 取消后优雅关闭。addr 为空时直接返回。
func (m *Monitor) Serve(ctx context.Context, addr string) error {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

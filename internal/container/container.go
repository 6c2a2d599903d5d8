package container

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mmu-quoter/config"
	"mmu-quoter/gateway"
	"mmu-quoter/infrastructure/alert"
	"mmu-quoter/infrastructure/logger"
	"mmu-quoter/infrastructure/monitor"
	"mmu-quoter/internal/engine"
	"mmu-quoter/market"
	"mmu-quoter/order"
	"mmu-quoter/strategy"
)

// Options 命令行层面的运行选项。
type Options struct {
	DryRun bool
	// Logger 非 nil 时替代按配置创建的日志器（测试用）
	Logger *logger.Logger
}

// Container 依赖注入容器，管理所有组件的生命周期
type Container struct {
	cfg  config.AppConfig
	opts Options

	// 基础设施
	logger  *logger.Logger
	monitor *monitor.Monitor
	alerts  *alert.Manager

	// 交易所网关
	client    *gateway.Client
	exchange  engine.Exchange
	sessionID string

	// 行情
	stream *market.Stream
	oracle *market.Oracle

	info   strategy.SymbolInfo
	engine *engine.QuoteEngine

	lifecycle *LifecycleManager
}

// New 用已加载的配置创建容器。
func New(cfg config.AppConfig, opts Options) *Container {
	config.ApplyDefaults(&cfg)
	return &Container{cfg: cfg, opts: opts, lifecycle: NewLifecycleManager()}
}

// Load 读取配置（含 .env 与环境变量覆盖）后创建容器。
func Load(configPath string, opts Options) (*Container, error) {
	cfg, err := config.LoadWithEnvOverrides(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	return New(cfg, opts), nil
}

// Build 构建所有组件。会访问网络：登录换 token、拉取交易对精度。
func (c *Container) Build(ctx context.Context) error {
	if err := c.BuildInfrastructure(); err != nil {
		return fmt.Errorf("build infrastructure failed: %w", err)
	}
	if err := c.buildGateway(ctx); err != nil {
		if errors.Is(err, gateway.ErrAuth) {
			_ = c.alerts.SendCritical("auth failure at startup", map[string]interface{}{"error": err.Error()})
		}
		return fmt.Errorf("build gateway failed: %w", err)
	}
	c.buildMarket()
	if err := c.buildEngine(ctx); err != nil {
		return fmt.Errorf("build engine failed: %w", err)
	}
	c.registerLifecycleComponents()
	c.logger.Info("container built successfully")
	return nil
}

// BuildInfrastructure 只创建日志/指标/告警，供不下单的命令使用。
func (c *Container) BuildInfrastructure() error {
	if c.logger != nil {
		return nil
	}
	c.logger = c.opts.Logger
	if c.logger == nil {
		var err error
		c.logger, err = logger.New(c.cfg.Log)
		if err != nil {
			return fmt.Errorf("create logger failed: %w", err)
		}
	}
	c.monitor = monitor.New(monitor.DefaultConfig())
	c.alerts = alert.NewManager([]alert.Channel{alert.NewZapChannel("log", c.logger.Logger)}, c.cfg.ThrottleInterval())
	return nil
}

// PublicClient 不带鉴权的 REST 客户端，只能调用行情/精度接口。
func (c *Container) PublicClient() *gateway.Client {
	return &gateway.Client{
		BaseURL:    c.cfg.Exchange.BaseURL,
		HTTPClient: gateway.NewHTTPClient(c.cfg.Timeout()),
		Limiter:    gateway.NewTokenBucketLimiter(c.cfg.REST.Rate, c.cfg.REST.Burst),
	}
}

func (c *Container) buildGateway(ctx context.Context) error {
	if err := config.RequireCredentials(c.cfg); err != nil {
		return fmt.Errorf("%w: %v", gateway.ErrAuth, err)
	}
	kf, err := gateway.LoadKeyFile(c.cfg.Credentials.KeyFile)
	if err != nil {
		return fmt.Errorf("load request signing key (run genkey first): %w", err)
	}
	signer, err := gateway.NewBodySigner(kf)
	if err != nil {
		return err
	}

	httpCli := gateway.NewHTTPClient(c.cfg.Timeout())
	var src gateway.TokenSource = gateway.StaticToken(c.cfg.Credentials.Token)
	if c.cfg.Credentials.Token == "" {
		auth, err := gateway.NewWalletAuthenticator(c.cfg.Exchange.AuthBaseURL, c.cfg.Exchange.Chain,
			c.cfg.Credentials.WalletPrivateKey, kf.RequestID, httpCli)
		if err != nil {
			return err
		}
		c.logger.Info("signing in with wallet", zap.String("address", auth.Address()), zap.String("chain", auth.Chain))
		src = auth
	}
	token, err := src.Token(ctx)
	if err != nil {
		return err
	}

	c.sessionID = c.cfg.Exchange.SessionID
	if c.sessionID == "" {
		c.sessionID = uuid.NewString()
	}
	c.client = &gateway.Client{
		BaseURL:    c.cfg.Exchange.BaseURL,
		Token:      token,
		SessionID:  c.sessionID,
		Signer:     signer,
		HTTPClient: httpCli,
		Limiter:    gateway.NewTokenBucketLimiter(c.cfg.REST.Rate, c.cfg.REST.Burst),
		Observer:   c.monitor.ObserveREST,
	}
	c.exchange = c.client
	if c.opts.DryRun {
		c.exchange = gateway.NewDryRunExchange(c.client, c.logger.Logger)
	}
	return nil
}

func (c *Container) buildMarket() {
	if c.cfg.Exchange.WSURL != "" {
		c.stream = market.NewStream(c.cfg.Exchange.WSURL, c.cfg.Exchange.Symbol, c.logger.Logger)
	}
	c.oracle = market.NewOracle(c.client, c.stream, c.cfg.StreamStaleAfter())
}

func (c *Container) buildEngine(ctx context.Context) error {
	info, err := c.client.SymbolInfo(ctx, c.cfg.Exchange.Symbol)
	if err != nil {
		return fmt.Errorf("fetch symbol info: %w", err)
	}
	c.info = info
	c.engine, err = engine.New(c.cfg.EngineConfig(), info, engine.Components{
		Oracle:   c.oracle,
		Exchange: c.exchange,
		Logger:   c.logger,
		Metrics:  c.monitor,
		Alerts:   c.alerts,
	})
	return err
}

func (c *Container) registerLifecycleComponents() {
	if c.cfg.Metrics.Addr != "" {
		addr := c.cfg.Metrics.Addr
		c.lifecycle.Register(newBackground("metrics_server", c.logger, func(ctx context.Context) error {
			return c.monitor.Serve(ctx, addr)
		}))
	}
	if c.stream != nil {
		c.lifecycle.Register(newBackground("price_stream", c.logger, c.stream.Run))
	}
}

// Banner 启动参数摘要，与引擎决策日志使用相同的单位。
func (c *Container) Banner() {
	q := c.cfg.Quote
	mode := fmt.Sprintf("BPS(target=%g, band=[%g, %g])", q.TargetBps, *q.MinBps, q.MaxBps)
	if q.USDMode() {
		mode = fmt.Sprintf("USD(±%g$, band=[%g, %g])", q.AbsSpreadUSD, *q.AbsMinUSD, q.AbsMaxUSD)
	}
	qp := c.engine.Quantity()
	c.logger.Info("MODE",
		zap.String("mode", mode),
		zap.String("symbol", c.cfg.Exchange.Symbol),
		zap.Bool("dry_run", c.opts.DryRun))
	c.logger.Info("PARAMS",
		zap.Int("ladder_levels", q.LadderLevels),
		zap.Float64("ladder_step_bps", *q.LadderStepBps),
		zap.Float64("abs_step_usd", *q.AbsStepUSD),
		zap.String("qty_base", qp.Base.StringFixed(c.info.QtyDecimals)),
		zap.Float64("qty_jitter_pct", q.QtyJitterPct),
		zap.String("min_qty", c.info.MinOrderQty.String()),
		zap.Int32("price_decimals", c.info.PriceDecimals),
		zap.Int32("qty_decimals", c.info.QtyDecimals),
		zap.Int("loop_ms", q.LoopMs),
		zap.Int("min_refresh_ms", *q.MinRefreshMs),
		zap.Int("order_check_ms", q.OrderCheckMs),
		zap.Bool("stop_on_fill", q.Policy() == order.PolicyStop),
		zap.String("tif", c.cfg.Exchange.TimeInForce),
		zap.String("session_id", c.sessionID))
}

// Run 启动后台组件并运行引擎，直到 ctx 取消或引擎停机。
func (c *Container) Run(ctx context.Context) error {
	if c.engine == nil {
		return errors.New("container not built")
	}
	if err := c.lifecycle.StartAll(ctx); err != nil {
		return fmt.Errorf("start failed: %w", err)
	}
	return c.engine.Run(ctx)
}

// CancelAll 撤销所有带归属标记的挂单。
func (c *Container) CancelAll(ctx context.Context) (int, error) {
	if c.engine == nil {
		return 0, errors.New("container not built")
	}
	return c.engine.CancelAll(ctx)
}

// Stop 停止后台组件；cancelOrders 为真时在退出前撤掉本引擎挂单。
func (c *Container) Stop(cancelOrders bool) error {
	if c.logger == nil {
		return nil
	}
	c.logger.Info("stopping container...")

	err := c.lifecycle.StopAll()
	if err != nil {
		c.logger.LogError(err, map[string]interface{}{"action": "stop"})
	}

	if cancelOrders && c.engine != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		n, cerr := c.engine.CancelAll(ctx)
		cancel()
		if cerr != nil {
			c.logger.LogError(cerr, map[string]interface{}{"action": "cancel_all", "symbol": c.cfg.Exchange.Symbol})
			err = errors.Join(err, cerr)
		} else {
			c.logger.Info("owned orders canceled on exit", zap.Int("count", n), zap.String("symbol", c.cfg.Exchange.Symbol))
		}
	}

	_ = c.logger.Close()
	return err
}

// HealthCheck 后台组件健康状态。
func (c *Container) HealthCheck() error {
	return c.lifecycle.CheckHealth()
}

func (c *Container) Config() config.AppConfig { return c.cfg }

func (c *Container) Logger() *logger.Logger { return c.logger }

func (c *Container) Client() *gateway.Client { return c.client }

func (c *Container) SymbolInfo() strategy.SymbolInfo { return c.info }

func (c *Container) SessionID() string { return c.sessionID }

package config

import (
	"math"

	"mmu-quoter/gateway"
	"mmu-quoter/infrastructure/logger"
)

// 默认值与原先线上运行的参数保持一致。
const (
	DefaultSymbol       = "BTC-USD"
	DefaultOwnershipTag = "MMU"
	DefaultTimeInForce  = "alo"

	defaultQty           = 0.0001
	defaultTargetBps     = 9
	defaultMinBps        = 4.5
	defaultMaxBps        = 9.2
	defaultStepBps       = 0.25
	defaultCeilingBps    = 10
	defaultAbsStepUSD    = 100
	defaultLoopMs        = 15000
	defaultMinRefreshMs  = 20000
	defaultOrderCheckMs  = 15000
	defaultStreamStaleMs = 5000
	defaultTimeoutMs     = 10000
	defaultRESTRate      = 5
	defaultRESTBurst     = 10
	defaultThrottleSec   = 300
	defaultErrorCycles   = 5
)

// ApplyDefaults 填充未配置的字段。USD 模式下 absMin/absMax 由 absSpread 推导：
// absMin = max(0.3*spread, 50)，absMax = max(1.5*spread, spread+50)。
func ApplyDefaults(cfg *AppConfig) {
	if cfg.Env == "" {
		cfg.Env = "prod"
	}

	ex := &cfg.Exchange
	if ex.BaseURL == "" {
		ex.BaseURL = gateway.DefaultPerpsBaseURL
	}
	if ex.AuthBaseURL == "" {
		ex.AuthBaseURL = gateway.DefaultAuthBaseURL
	}
	if ex.Chain == "" {
		ex.Chain = gateway.DefaultChain
	}
	if ex.Symbol == "" {
		ex.Symbol = DefaultSymbol
	}
	if ex.TimeInForce == "" {
		ex.TimeInForce = DefaultTimeInForce
	}
	if ex.StreamStaleMs == 0 {
		ex.StreamStaleMs = defaultStreamStaleMs
	}
	if ex.TimeoutMs == 0 {
		ex.TimeoutMs = defaultTimeoutMs
	}

	if cfg.Credentials.KeyFile == "" {
		cfg.Credentials.KeyFile = gateway.DefaultKeyFile
	}

	q := &cfg.Quote
	if q.Qty == 0 {
		q.Qty = defaultQty
	}
	if q.TargetBps == 0 {
		q.TargetBps = defaultTargetBps
	}
	if q.MinBps == nil {
		q.MinBps = float64Ptr(defaultMinBps)
	}
	if q.MaxBps == 0 {
		q.MaxBps = defaultMaxBps
	}
	if q.LadderLevels == 0 {
		q.LadderLevels = 1
	}
	if q.LadderStepBps == nil {
		q.LadderStepBps = float64Ptr(defaultStepBps)
	}
	if q.AbsStepUSD == nil {
		q.AbsStepUSD = float64Ptr(defaultAbsStepUSD)
	}
	if q.USDMode() {
		if q.AbsMinUSD == nil {
			q.AbsMinUSD = float64Ptr(math.Max(q.AbsSpreadUSD*0.3, 50))
		}
		if q.AbsMaxUSD == 0 {
			q.AbsMaxUSD = math.Max(q.AbsSpreadUSD*1.5, q.AbsSpreadUSD+50)
		}
	}
	if q.MinIntervalCeiling == nil {
		if q.USDMode() {
			q.MinIntervalCeiling = float64Ptr(q.AbsMaxUSD)
		} else {
			q.MinIntervalCeiling = float64Ptr(defaultCeilingBps)
		}
	}
	if q.LoopMs == 0 {
		q.LoopMs = defaultLoopMs
	}
	if q.MinRefreshMs == nil {
		v := defaultMinRefreshMs
		q.MinRefreshMs = &v
	}
	if q.OrderCheckMs == 0 {
		q.OrderCheckMs = defaultOrderCheckMs
	}
	if q.StopOnFill == nil {
		v := true
		q.StopOnFill = &v
	}
	if q.OwnershipTag == "" {
		q.OwnershipTag = DefaultOwnershipTag
	}
	if q.RevalidateLadder == nil {
		v := true
		q.RevalidateLadder = &v
	}

	if cfg.REST.Rate == 0 {
		cfg.REST.Rate = defaultRESTRate
	}
	if cfg.REST.Burst == 0 {
		cfg.REST.Burst = defaultRESTBurst
	}

	def := logger.DefaultConfig()
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Level
	}
	if len(cfg.Log.Outputs) == 0 {
		cfg.Log.Outputs = def.Outputs
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = def.Format
	}

	if cfg.Alert.ThrottleSeconds == 0 {
		cfg.Alert.ThrottleSeconds = defaultThrottleSec
	}
	if cfg.Alert.ErrorCycles == 0 {
		cfg.Alert.ErrorCycles = defaultErrorCycles
	}
}

func float64Ptr(v float64) *float64 { return &v }

// Default 返回全部取默认值的配置，供只读命令（symbolinfo/genkey）在没有配置文件时使用。
func Default() AppConfig {
	var cfg AppConfig
	ApplyDefaults(&cfg)
	return cfg
}

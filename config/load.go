package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"mmu-quoter/infrastructure/logger"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env         string            `yaml:"env"`
	Exchange    ExchangeConfig    `yaml:"exchange"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Quote       QuoteConfig       `yaml:"quote"`
	REST        RESTConfig        `yaml:"rest"`
	Log         logger.Config     `yaml:"log"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Alert       AlertConfig       `yaml:"alert"`
}

// ExchangeConfig StandX 接入参数。
type ExchangeConfig struct {
	BaseURL       string `yaml:"baseURL"`
	AuthBaseURL   string `yaml:"authBaseURL"`
	WSURL         string `yaml:"wsURL"` // 为空时只用 REST 取价
	Chain         string `yaml:"chain"`
	Symbol        string `yaml:"symbol"`
	TimeInForce   string `yaml:"timeInForce"`
	ReduceOnly    bool   `yaml:"reduceOnly"`
	SessionID     string `yaml:"sessionID"` // 为空时启动随机生成
	StreamStaleMs int    `yaml:"streamStaleMs"`
	TimeoutMs     int    `yaml:"timeoutMs"`
}

// CredentialsConfig 签名与鉴权材料，敏感字段优先从环境变量覆盖。
type CredentialsConfig struct {
	WalletPrivateKey string `yaml:"walletPrivateKey"`
	Token            string `yaml:"token"`
	KeyFile          string `yaml:"keyFile"`
}

// QuoteConfig 报价参数。absSpreadUsd > 0 时切换为 USD 模式，bps 相关字段不再生效。
// 0 本身有意义的字段用指针，未配置(nil)才取默认值。
type QuoteConfig struct {
	Qty                float64  `yaml:"qty"`
	QtyJitterPct       float64  `yaml:"qtyJitterPct"` // 0.15 表示 ±15%
	QtyMin             *float64 `yaml:"qtyMin"`
	QtyMax             *float64 `yaml:"qtyMax"`
	TargetBps          float64  `yaml:"targetBps"`
	MinBps             *float64 `yaml:"minBps"`
	MaxBps             float64  `yaml:"maxBps"`
	LadderLevels       int      `yaml:"ladderLevels"`
	LadderStepBps      *float64 `yaml:"ladderStepBps"`
	AbsSpreadUSD       float64  `yaml:"absSpreadUsd"`
	AbsMinUSD          *float64 `yaml:"absMinUsd"`
	AbsMaxUSD          float64  `yaml:"absMaxUsd"`
	AbsStepUSD         *float64 `yaml:"absStepUsd"`
	MinIntervalCeiling *float64 `yaml:"minIntervalCeiling"` // 单位随模式
	LoopMs             int      `yaml:"loopMs"`
	MinRefreshMs       *int     `yaml:"minRefreshMs"`
	OrderCheckMs       int      `yaml:"orderCheckMs"`
	StopOnFill         *bool    `yaml:"stopOnFill"`
	OwnershipTag       string   `yaml:"ownershipTag"`
	RevalidateLadder   *bool    `yaml:"revalidateLadder"`
}

// USDMode 是否使用绝对美元价差。
func (q QuoteConfig) USDMode() bool { return q.AbsSpreadUSD > 0 }

func floatOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

// RESTConfig 本地令牌桶限速。
type RESTConfig struct {
	Rate  float64 `yaml:"rate"`
	Burst int     `yaml:"burst"`
}

// MetricsConfig Prometheus 暴露地址，为空不启动。
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// AlertConfig 告警限流与触发阈值。
type AlertConfig struct {
	ThrottleSeconds int `yaml:"throttleSeconds"`
	ErrorCycles     int `yaml:"errorCycles"`
}

// Load reads YAML config from path, fills defaults and validates.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	ApplyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads .env files (default ./.env, missing is fine) then the YAML,
// and lets env vars override secrets and the symbol.
func LoadWithEnvOverrides(path string, envFiles ...string) (AppConfig, error) {
	if err := loadDotEnv(envFiles...); err != nil {
		return AppConfig{}, err
	}
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	applyEnv(&cfg)
	return cfg, Validate(cfg)
}

func loadDotEnv(files ...string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		files = []string{".env"}
	}
	// 已存在的环境变量优先，godotenv.Load 不覆盖
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

func applyEnv(cfg *AppConfig) {
	if v := os.Getenv("WALLET_PRIVATE_KEY"); v != "" {
		cfg.Credentials.WalletPrivateKey = v
	}
	if v := os.Getenv("STANDX_TOKEN"); v != "" {
		cfg.Credentials.Token = v
	}
	if v := os.Getenv("SESSION_ID"); v != "" {
		cfg.Exchange.SessionID = v
	}
	if v := strings.TrimSpace(os.Getenv("SYMBOL")); v != "" {
		cfg.Exchange.Symbol = v
	}
	if v := strings.TrimSpace(os.Getenv("CHAIN")); v != "" {
		cfg.Exchange.Chain = v
	}
}

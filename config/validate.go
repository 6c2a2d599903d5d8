package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures required fields are present and ranges are sane.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return errors.New("env is required")
	}
	ex := cfg.Exchange
	if ex.BaseURL == "" {
		return errors.New("exchange.baseURL is required")
	}
	if ex.Symbol == "" {
		return errors.New("exchange.symbol is required")
	}
	if ex.Chain == "" {
		return errors.New("exchange.chain is required")
	}
	switch strings.ToLower(ex.TimeInForce) {
	case "alo", "gtc", "ioc":
	default:
		return fmt.Errorf("exchange.timeInForce %q must be one of alo/gtc/ioc", ex.TimeInForce)
	}
	if ex.StreamStaleMs < 0 || ex.TimeoutMs < 0 {
		return errors.New("exchange.streamStaleMs/timeoutMs must be >= 0")
	}
	if err := ValidateParams(cfg.Quote); err != nil {
		return err
	}
	if cfg.REST.Rate <= 0 {
		return errors.New("rest.rate must be > 0")
	}
	if cfg.REST.Burst < 1 {
		return errors.New("rest.burst must be >= 1")
	}
	if cfg.Alert.ThrottleSeconds < 0 || cfg.Alert.ErrorCycles < 0 {
		return errors.New("alert.throttleSeconds/errorCycles must be >= 0")
	}
	return nil
}

// RequireCredentials 下单类命令需要：token 或钱包私钥至少一个，且 session 签名密钥文件路径非空。
func RequireCredentials(cfg AppConfig) error {
	c := cfg.Credentials
	if c.Token == "" && c.WalletPrivateKey == "" {
		return errors.New("credentials.token or credentials.walletPrivateKey is required (or STANDX_TOKEN / WALLET_PRIVATE_KEY)")
	}
	if c.KeyFile == "" {
		return errors.New("credentials.keyFile is required")
	}
	return nil
}

package gateway

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	DefaultAuthBaseURL = "https://api.standx.com/v1/offchain"
	DefaultChain       = "bsc"

	// tokenTTLSeconds 登录 token 有效期（7 天）。
	tokenTTLSeconds = 604800
)

// TokenSource 提供 bearer token。
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken 直接使用配置/环境变量里的 token。
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) {
	if s == "" {
		return "", fmt.Errorf("%w: empty token", ErrAuth)
	}
	return string(s), nil
}

// WalletAuthenticator 通过钱包签名登录换取 token：
// prepare-signin 拿 signedData（JWT），对 payload.message 做 personal_sign，再 login。
type WalletAuthenticator struct {
	BaseURL    string // 形如 https://api.standx.com/v1/offchain
	Chain      string
	RequestID  string // ed25519 公钥 base58，绑定请求签名密钥
	HTTPClient *http.Client

	key *ecdsa.PrivateKey
}

// NewWalletAuthenticator 解析十六进制私钥（可带 0x 前缀）。
func NewWalletAuthenticator(baseURL, chain, walletKeyHex, requestID string, httpCli *http.Client) (*WalletAuthenticator, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(walletKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: parse wallet key: %v", ErrAuth, err)
	}
	if httpCli == nil {
		httpCli = NewDefaultHTTPClient()
	}
	return &WalletAuthenticator{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Chain:      chain,
		RequestID:  requestID,
		HTTPClient: httpCli,
		key:        key,
	}, nil
}

// Address 钱包地址（EIP-55）。
func (a *WalletAuthenticator) Address() string {
	return crypto.PubkeyToAddress(a.key.PublicKey).Hex()
}

type prepareResp struct {
	SignedData string `json:"signedData"`
	Data       struct {
		SignedData string `json:"signedData"`
	} `json:"data"`
}

type loginResp struct {
	Token string `json:"token"`
	Data  struct {
		Token string `json:"token"`
	} `json:"data"`
}

// Token 执行一次完整登录。任何失败都包装为 ErrAuth。
func (a *WalletAuthenticator) Token(ctx context.Context) (string, error) {
	var prep prepareResp
	if err := a.post(ctx, "prepare-signin", map[string]any{
		"address":   a.Address(),
		"requestId": a.RequestID,
	}, &prep); err != nil {
		return "", fmt.Errorf("%w: prepare-signin: %w", ErrAuth, err)
	}
	signedData := prep.SignedData
	if signedData == "" {
		signedData = prep.Data.SignedData
	}
	if signedData == "" {
		return "", fmt.Errorf("%w: prepare-signin returned no signedData", ErrAuth)
	}

	message, err := jwtMessage(signedData)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAuth, err)
	}
	signature, err := personalSign(a.key, message)
	if err != nil {
		return "", fmt.Errorf("%w: sign message: %w", ErrAuth, err)
	}

	var login loginResp
	if err := a.post(ctx, "login", map[string]any{
		"signature":      signature,
		"signedData":     signedData,
		"expiresSeconds": tokenTTLSeconds,
	}, &login); err != nil {
		return "", fmt.Errorf("%w: login: %w", ErrAuth, err)
	}
	token := login.Token
	if token == "" {
		token = login.Data.Token
	}
	if token == "" {
		return "", fmt.Errorf("%w: login returned no token", ErrAuth)
	}
	return token, nil
}

func (a *WalletAuthenticator) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	endpoint := a.BaseURL + "/" + path + "?chain=" + url.QueryEscape(a.Chain)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return &TransportError{Op: path, Err: err}
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return &TransportError{Op: path, Status: resp.StatusCode, Body: string(raw)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// jwtMessage 取 JWT payload 中的 message 字段（不校验签名）。
func jwtMessage(token string) (string, error) {
	parts := strings.Split(token, ".")
	if len(parts) < 2 {
		return "", fmt.Errorf("signedData is not a JWT")
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return "", fmt.Errorf("decode jwt payload: %w", err)
	}
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", fmt.Errorf("parse jwt payload: %w", err)
	}
	if payload.Message == "" {
		return "", fmt.Errorf("signedData missing payload.message")
	}
	return payload.Message, nil
}

// personalSign EIP-191 签名，V 取 27/28。
func personalSign(key *ecdsa.PrivateKey, message string) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	if err != nil {
		return "", err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig), nil
}

package gateway

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cloudflare/circl/sign/ed25519"
	"github.com/mr-tron/base58"
)

// DefaultKeyFile 请求签名密钥的默认文件名。
const DefaultKeyFile = "standx_ed25519.json"

// KeyFile 请求签名用的 ed25519 密钥。RequestID 为公钥的 base58 编码（ClientKey）。
type KeyFile struct {
	PrivB64   string `json:"priv_b64"`
	PubB64    string `json:"pub_b64"`
	RequestID string `json:"requestId"`
	CreatedAt string `json:"created_at,omitempty"`
}

// PrivateKey 解码私钥；兼容 32 字节 seed 与 64 字节完整私钥两种存储。
func (k KeyFile) PrivateKey() (ed25519.PrivateKey, error) {
	raw, err := base64.StdEncoding.DecodeString(k.PrivB64)
	if err != nil {
		return nil, fmt.Errorf("decode priv_b64: %w", err)
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	default:
		return nil, fmt.Errorf("priv_b64 has %d bytes, want %d or %d", len(raw), ed25519.SeedSize, ed25519.PrivateKeySize)
	}
}

// LoadKeyFile 读取密钥文件。
func LoadKeyFile(path string) (KeyFile, error) {
	var k KeyFile
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return k, fmt.Errorf("%s not found, run genkey first: %w", path, err)
		}
		return k, fmt.Errorf("read key file: %w", err)
	}
	if err := json.Unmarshal(raw, &k); err != nil {
		return k, fmt.Errorf("parse key file: %w", err)
	}
	if k.PrivB64 == "" || k.RequestID == "" {
		return k, fmt.Errorf("%s missing priv_b64/requestId, re-run genkey", path)
	}
	if _, err := k.PrivateKey(); err != nil {
		return k, err
	}
	return k, nil
}

// LoadOrCreateKeyFile 文件存在且完整则直接返回，否则生成新密钥写入（0600）。
// 第二个返回值表示是否新建。
func LoadOrCreateKeyFile(path string, now time.Time) (KeyFile, bool, error) {
	if k, err := LoadKeyFile(path); err == nil {
		return k, false, nil
	} else if _, statErr := os.Stat(path); statErr == nil {
		var probe KeyFile
		raw, _ := os.ReadFile(path)
		if json.Unmarshal(raw, &probe) == nil && probe.PrivB64 != "" && probe.RequestID != "" {
			// 文件完整但私钥损坏，不覆盖
			return k, false, err
		}
	}
	k, err := GenerateKeyFile(now)
	if err != nil {
		return k, false, err
	}
	data, err := json.MarshalIndent(k, "", "  ")
	if err != nil {
		return k, false, err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return k, false, fmt.Errorf("write key file: %w", err)
	}
	return k, true, nil
}

// GenerateKeyFile 生成新的 ed25519 密钥。
func GenerateKeyFile(now time.Time) (KeyFile, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return KeyFile{}, fmt.Errorf("generate seed: %w", err)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return KeyFile{
		PrivB64:   base64.StdEncoding.EncodeToString(seed),
		PubB64:    base64.StdEncoding.EncodeToString(pub),
		RequestID: base58.Encode(pub),
		CreatedAt: now.UTC().Format(time.RFC3339),
	}, nil
}

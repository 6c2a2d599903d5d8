package gateway

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cloudflare/circl/sign/ed25519"
	"github.com/google/uuid"
)

// SignVersion 请求签名协议版本。
const SignVersion = "v1"

const (
	headerSignVersion = "x-request-sign-version"
	headerRequestID   = "x-request-id"
	headerTimestamp   = "x-request-timestamp"
	headerSignature   = "x-request-signature"
	headerSessionID   = "x-session-id"
)

// timeNowMillis 可在测试中替换。
var timeNowMillis = func() int64 { return time.Now().UnixMilli() }

// BodySigner 对请求体做 ed25519 签名，生成鉴权头。
type BodySigner struct {
	priv  ed25519.PrivateKey
	newID func() string
}

// NewBodySigner 用密钥文件中的私钥构造签名器。
func NewBodySigner(k KeyFile) (*BodySigner, error) {
	priv, err := k.PrivateKey()
	if err != nil {
		return nil, err
	}
	return &BodySigner{priv: priv, newID: uuid.NewString}, nil
}

// Sign 返回签名头；签名内容为 "v1,{requestId},{timestamp},{body}"。
func (s *BodySigner) Sign(body []byte) http.Header {
	id := s.newID()
	ts := strconv.FormatInt(timeNowMillis(), 10)
	msg := fmt.Sprintf("%s,%s,%s,%s", SignVersion, id, ts, body)
	sig := ed25519.Sign(s.priv, []byte(msg))

	h := http.Header{}
	h.Set(headerSignVersion, SignVersion)
	h.Set(headerRequestID, id)
	h.Set(headerTimestamp, ts)
	h.Set(headerSignature, base64.StdEncoding.EncodeToString(sig))
	return h
}

// PublicKey 返回签名公钥。
func (s *BodySigner) PublicKey() ed25519.PublicKey {
	return s.priv.Public().(ed25519.PublicKey)
}

package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWalletKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func fakeJWT(message string) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none"}`))
	body, _ := json.Marshal(map[string]string{"message": message})
	return header + "." + base64.RawURLEncoding.EncodeToString(body) + ".sig"
}

func TestWalletAuthenticatorLogin(t *testing.T) {
	signed := fakeJWT("standx wants you to sign in")
	var loginBody map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bsc", r.URL.Query().Get("chain"))
		switch r.URL.Path {
		case "/prepare-signin":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "client-key", body["requestId"])
			_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]string{"signedData": signed}})
		case "/login":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&loginBody))
			_ = json.NewEncoder(w).Encode(map[string]string{"token": "tok-1"})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer ts.Close()

	auth, err := NewWalletAuthenticator(ts.URL+"/", "bsc", testWalletKey, "client-key", ts.Client())
	require.NoError(t, err)
	token, err := auth.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.Equal(t, signed, loginBody["signedData"])
	assert.EqualValues(t, tokenTTLSeconds, loginBody["expiresSeconds"])

	// 签名可以恢复出钱包地址
	sig, err := hexutil.Decode(loginBody["signature"].(string))
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.True(t, sig[64] == 27 || sig[64] == 28)
	sig[64] -= 27
	pub, err := crypto.SigToPub(accounts.TextHash([]byte("standx wants you to sign in")), sig)
	require.NoError(t, err)
	assert.Equal(t, auth.Address(), crypto.PubkeyToAddress(*pub).Hex())
}

func TestWalletAuthenticatorFailures(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/prepare-signin" {
			_ = json.NewEncoder(w).Encode(map[string]string{"signedData": fakeJWT("m")})
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	auth, err := NewWalletAuthenticator(ts.URL, "bsc", testWalletKey, "k", ts.Client())
	require.NoError(t, err)
	_, err = auth.Token(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAuth))
	assert.True(t, IsTransport(err))

	_, err = NewWalletAuthenticator(ts.URL, "bsc", "not-hex", "k", nil)
	assert.ErrorIs(t, err, ErrAuth)
}

func TestStaticToken(t *testing.T) {
	tok, err := StaticToken("abc").Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)
	_, err = StaticToken("").Token(context.Background())
	assert.ErrorIs(t, err, ErrAuth)
}

func TestJWTMessage(t *testing.T) {
	msg, err := jwtMessage(fakeJWT("hi"))
	require.NoError(t, err)
	assert.Equal(t, "hi", msg)
	_, err = jwtMessage("garbage")
	assert.Error(t, err)
	_, err = jwtMessage(fakeJWT(""))
	assert.Error(t, err)
}

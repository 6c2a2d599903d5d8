package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"mmu-quoter/order"
	"mmu-quoter/strategy"
)

// DefaultPerpsBaseURL StandX 永续 REST 地址。
const DefaultPerpsBaseURL = "https://perps.standx.com"

// openOrdersLimit 单次查询挂单上限。
const openOrdersLimit = 500

// Observer 记录每次 REST 调用的耗时与结果（metrics 钩子）。
type Observer func(op string, elapsed time.Duration, err error)

// Client StandX perps REST 客户端。查询带 bearer token；撤单/下单额外带
// x-session-id 与 ed25519 签名头。HTTPClient 可注入 httptest。
type Client struct {
	BaseURL    string
	Token      string
	SessionID  string
	Signer     *BodySigner
	HTTPClient *http.Client
	Limiter    RateLimiter
	Observer   Observer
}

// PriceSnapshot query_symbol_price 的结果。字段缺失时为零值。
type PriceSnapshot struct {
	Symbol string
	Mark   decimal.Decimal
	Index  decimal.Decimal
}

// Reference 优先 mark_price，缺失或非正时回退 index_price。
func (p PriceSnapshot) Reference() (decimal.Decimal, error) {
	if p.Mark.IsPositive() {
		return p.Mark, nil
	}
	if p.Index.IsPositive() {
		return p.Index, nil
	}
	return decimal.Zero, fmt.Errorf("%w: %s mark=%s index=%s", ErrPriceUnavailable, p.Symbol, p.Mark, p.Index)
}

// jsonText 兼容字符串与数字两种编码的标量字段。
type jsonText string

func (t *jsonText) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*t = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*t = jsonText(v)
		return nil
	}
	*t = jsonText(s)
	return nil
}

func (t jsonText) decimal() decimal.Decimal {
	if t == "" {
		return decimal.Zero
	}
	v, err := decimal.NewFromString(string(t))
	if err != nil {
		return decimal.Zero
	}
	return v
}

type symbolInfoResp struct {
	Symbol            string   `json:"symbol"`
	PriceTickDecimals jsonText `json:"price_tick_decimals"`
	QtyTickDecimals   jsonText `json:"qty_tick_decimals"`
	MinOrderQty       jsonText `json:"min_order_qty"`
}

type symbolPriceResp struct {
	Symbol     string   `json:"symbol"`
	MarkPrice  jsonText `json:"mark_price"`
	IndexPrice jsonText `json:"index_price"`
}

type openOrderResp struct {
	ID      jsonText `json:"id"`
	ClOrdID string   `json:"cl_ord_id"`
	Side    string   `json:"side"`
	Price   jsonText `json:"price"`
	Qty     jsonText `json:"qty"`
}

type openOrdersResp struct {
	Result []openOrderResp `json:"result"`
}

type codeResp struct {
	Code    *int   `json:"code"`
	Message string `json:"message"`
}

// SymbolInfo 查询交易对精度与最小下单量。
func (c *Client) SymbolInfo(ctx context.Context, symbol string) (strategy.SymbolInfo, error) {
	var list []symbolInfoResp
	q := url.Values{"symbol": {symbol}}
	if err := c.get(ctx, "query_symbol_info", q, false, &list); err != nil {
		return strategy.SymbolInfo{}, err
	}
	for _, s := range list {
		if s.Symbol != symbol {
			continue
		}
		priceDec, err := strconv.Atoi(string(s.PriceTickDecimals))
		if err != nil {
			return strategy.SymbolInfo{}, fmt.Errorf("parse price_tick_decimals %q: %w", s.PriceTickDecimals, err)
		}
		qtyDec, err := strconv.Atoi(string(s.QtyTickDecimals))
		if err != nil {
			return strategy.SymbolInfo{}, fmt.Errorf("parse qty_tick_decimals %q: %w", s.QtyTickDecimals, err)
		}
		info := strategy.SymbolInfo{
			Symbol:        symbol,
			PriceDecimals: int32(priceDec),
			QtyDecimals:   int32(qtyDec),
			MinOrderQty:   s.MinOrderQty.decimal(),
		}
		return info, info.Validate()
	}
	return strategy.SymbolInfo{}, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
}

// SymbolPrice 查询 mark/index 价格。
func (c *Client) SymbolPrice(ctx context.Context, symbol string) (PriceSnapshot, error) {
	var r symbolPriceResp
	if err := c.get(ctx, "query_symbol_price", url.Values{"symbol": {symbol}}, false, &r); err != nil {
		return PriceSnapshot{}, err
	}
	return PriceSnapshot{Symbol: symbol, Mark: r.MarkPrice.decimal(), Index: r.IndexPrice.decimal()}, nil
}

// OpenOrders 查询当前账户在该交易对上的全部挂单。
func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]order.OpenOrder, error) {
	var r openOrdersResp
	q := url.Values{"symbol": {symbol}, "limit": {strconv.Itoa(openOrdersLimit)}}
	if err := c.get(ctx, "query_open_orders", q, true, &r); err != nil {
		return nil, err
	}
	out := make([]order.OpenOrder, 0, len(r.Result))
	for _, o := range r.Result {
		out = append(out, order.OpenOrder{
			ID:            string(o.ID),
			ClientOrderID: o.ClOrdID,
			Side:          o.Side,
			Price:         o.Price.decimal(),
			Qty:           o.Qty.decimal(),
		})
	}
	return out, nil
}

// CancelOrders 批量撤单。空列表不发请求。
func (c *Client) CancelOrders(ctx context.Context, orderIDs []string) error {
	if len(orderIDs) == 0 {
		return nil
	}
	body := map[string]any{"order_id_list": orderIDs}
	return c.postSigned(ctx, "cancel_orders", body, nil)
}

// CodeMissing 响应里没有 code 字段时返回的 code，按拒单处理。
const CodeMissing = -1

// NewOrder 下限价单，返回交易所 code（0 为接受）。
// 非 0 code 不视为 error，由调用方按档位决定是否继续。
func (c *Client) NewOrder(ctx context.Context, req order.NewOrderRequest) (int, error) {
	body := map[string]any{
		"symbol":        req.Symbol,
		"side":          req.Side.String(),
		"order_type":    "limit",
		"qty":           req.Qty.StringFixed(req.QtyDecimals),
		"price":         req.Price.StringFixed(req.PriceDecimals),
		"time_in_force": req.TimeInForce,
		"reduce_only":   req.ReduceOnly,
		"cl_ord_id":     req.ClientOrderID,
	}
	var r codeResp
	if err := c.postSigned(ctx, "new_order", body, &r); err != nil {
		return 0, err
	}
	if r.Code == nil {
		return CodeMissing, nil
	}
	return *r.Code, nil
}

func (c *Client) get(ctx context.Context, op string, q url.Values, auth bool, out any) error {
	endpoint := strings.TrimRight(c.BaseURL, "/") + "/api/" + op
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	if auth {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return c.do(req, op, out)
}

func (c *Client) postSigned(ctx context.Context, op string, body any, out any) error {
	if c.Signer == nil {
		return fmt.Errorf("%s: request signer not set", op)
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	endpoint := strings.TrimRight(c.BaseURL, "/") + "/api/" + op
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	for k, v := range c.Signer.Sign(payload) {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)
	if c.SessionID != "" {
		req.Header.Set(headerSessionID, c.SessionID)
	}
	return c.do(req, op, out)
}

func (c *Client) do(req *http.Request, op string, out any) (err error) {
	if c == nil || c.HTTPClient == nil {
		return fmt.Errorf("http client not set")
	}
	if c.Limiter != nil {
		if err := c.Limiter.Wait(req.Context()); err != nil {
			return err
		}
	}
	start := time.Now()
	defer func() {
		if c.Observer != nil {
			c.Observer(op, time.Since(start), err)
		}
	}()

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: op, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode >= 300 {
		return &TransportError{Op: op, Status: resp.StatusCode, Body: string(raw)}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}

// NewDefaultHTTPClient 提供一个带超时的 http.Client。
func NewDefaultHTTPClient() *http.Client {
	return NewHTTPClient(10 * time.Second)
}

// NewHTTPClient timeout <= 0 时使用 10s。
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

package order

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Side 订单方向，只有买卖两种。
type Side int

const (
	Buy Side = iota + 1
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// tag 返回 client order id 中的方向标记。
func (s Side) tag() string {
	if s == Sell {
		return "ASK"
	}
	return "BID"
}

// ParseSide 解析交易所返回的方向字段（buy/sell/bid/ask，大小写不敏感）。
func ParseSide(raw string) (Side, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "buy", "bid":
		return Buy, true
	case "sell", "ask":
		return Sell, true
	}
	return 0, false
}

// ClientOrderID 嵌在每笔挂单里的归属标记：{tag}-{BID|ASK}-L{level}-{generation}。
// generation 为本轮刷新的毫秒时间戳，避免不同轮次的 id 冲突。
type ClientOrderID struct {
	Tag        string
	Side       Side
	Level      int
	Generation int64
}

func (c ClientOrderID) String() string {
	return fmt.Sprintf("%s-%s-L%d-%d", c.Tag, c.Side.tag(), c.Level, c.Generation)
}

var errMalformedClientID = errors.New("malformed client order id")

// ParseClientOrderID 解析 client order id。tag 本身可以包含 '-'，因此从右往左拆。
func ParseClientOrderID(raw string) (ClientOrderID, error) {
	parts := strings.Split(raw, "-")
	if len(parts) < 4 {
		return ClientOrderID{}, errMalformedClientID
	}
	n := len(parts)
	gen, err := strconv.ParseInt(parts[n-1], 10, 64)
	if err != nil {
		return ClientOrderID{}, fmt.Errorf("%w: generation %q", errMalformedClientID, parts[n-1])
	}
	lvl := parts[n-2]
	if !strings.HasPrefix(lvl, "L") {
		return ClientOrderID{}, fmt.Errorf("%w: level %q", errMalformedClientID, lvl)
	}
	level, err := strconv.Atoi(lvl[1:])
	if err != nil || level < 0 {
		return ClientOrderID{}, fmt.Errorf("%w: level %q", errMalformedClientID, lvl)
	}
	var side Side
	switch parts[n-3] {
	case "BID":
		side = Buy
	case "ASK":
		side = Sell
	default:
		return ClientOrderID{}, fmt.Errorf("%w: side %q", errMalformedClientID, parts[n-3])
	}
	tag := strings.Join(parts[:n-3], "-")
	if tag == "" {
		return ClientOrderID{}, fmt.Errorf("%w: empty tag", errMalformedClientID)
	}
	return ClientOrderID{Tag: tag, Side: side, Level: level, Generation: gen}, nil
}

// OwnedBy 判断该 id 是否属于给定归属标记。
func (c ClientOrderID) OwnedBy(tag string) bool {
	return tag != "" && c.Tag == tag
}

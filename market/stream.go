package market

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"mmu-quoter/gateway"
)

// DefaultStreamURL StandX 行情 websocket。
const DefaultStreamURL = "wss://perps.standx.com/ws-stream/v1"

type subscribeMsg struct {
	Subscribe struct {
		Channel string `json:"channel"`
		Symbol  string `json:"symbol"`
	} `json:"subscribe"`
}

type priceMsg struct {
	Channel string `json:"channel"`
	Data    struct {
		Symbol     string          `json:"symbol"`
		MarkPrice  decimal.Decimal `json:"mark_price"`
		IndexPrice decimal.Decimal `json:"index_price"`
	} `json:"data"`
}

// Stream 订阅 price 频道，只保存最新一帧。读取方按新鲜度决定是否采用。
type Stream struct {
	URL          string
	Symbol       string
	Dialer       *websocket.Dialer
	RetryBackoff time.Duration

	logger *zap.Logger
	now    func() time.Time

	mu   sync.RWMutex
	last gateway.PriceSnapshot
	at   time.Time
}

func NewStream(url, symbol string, logger *zap.Logger) *Stream {
	if url == "" {
		url = DefaultStreamURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stream{
		URL:          url,
		Symbol:       symbol,
		Dialer:       websocket.DefaultDialer,
		RetryBackoff: 3 * time.Second,
		logger:       logger,
		now:          time.Now,
	}
}

// Latest 返回最新价格与其接收时间；尚无数据时 ok 为 false。
func (s *Stream) Latest() (gateway.PriceSnapshot, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.at, !s.at.IsZero()
}

// Staleness 距离上次更新的时长；如无数据返回一年。
func (s *Stream) Staleness() time.Duration {
	_, at, ok := s.Latest()
	if !ok {
		return time.Hour * 24 * 365
	}
	return s.now().Sub(at)
}

// Run 连接并读取，断线后按固定间隔重连，直到 ctx 取消。
func (s *Stream) Run(ctx context.Context) error {
	for {
		err := s.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("price stream disconnected", zap.String("symbol", s.Symbol), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.RetryBackoff):
		}
	}
}

func (s *Stream) runOnce(ctx context.Context) error {
	conn, _, err := s.Dialer.DialContext(ctx, s.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.URL, err)
	}
	defer conn.Close()

	// ctx 取消时关闭连接以打断阻塞的 ReadMessage
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	var sub subscribeMsg
	sub.Subscribe.Channel = "price"
	sub.Subscribe.Symbol = s.Symbol
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	s.logger.Info("price stream connected", zap.String("url", s.URL), zap.String("symbol", s.Symbol))

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		s.handle(raw)
	}
}

func (s *Stream) handle(raw []byte) {
	var msg priceMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.logger.Debug("price stream: skip frame", zap.Error(err))
		return
	}
	if msg.Channel != "price" || msg.Data.Symbol != s.Symbol {
		return
	}
	s.mu.Lock()
	s.last = gateway.PriceSnapshot{Symbol: msg.Data.Symbol, Mark: msg.Data.MarkPrice, Index: msg.Data.IndexPrice}
	s.at = s.now()
	s.mu.Unlock()
}

package feed

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/yanun0323/decimal"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/ws"

	"tickflow/internal/exception"
	"tickflow/internal/schema"
)

const binanceBaseWsURL = "wss://data-stream.binance.vision/ws"

// BinanceConfig selects the stream endpoint for the live feed.
type BinanceConfig struct {
	Name     string
	URL      string
	Exchange schema.ExchangeID
}

// BinanceFeed streams the bookTicker channel and adapts it to market
// updates. bookTicker carries no trade print, so Last is reported as the
// quote midpoint.
type BinanceFeed struct {
	cfg    BinanceConfig
	nextID atomic.Int64

	mu        sync.Mutex
	wss       *ws.WebSocket
	subs      map[string]bool
	started   bool
	cancelSub func()
	done      chan struct{}
}

func NewBinanceFeed(cfg BinanceConfig) *BinanceFeed {
	if cfg.Name == "" {
		cfg.Name = "binance"
	}
	if cfg.URL == "" {
		cfg.URL = binanceBaseWsURL
	}
	return &BinanceFeed{
		cfg:  cfg,
		subs: make(map[string]bool),
	}
}

func (f *BinanceFeed) Name() string { return f.cfg.Name }

func (f *BinanceFeed) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.wss != nil {
		return exception.ErrFeedAlreadyConnected
	}

	wss := ws.New(ctx, f.cfg.URL)
	if err := wss.Start(ctx); err != nil {
		return errors.Wrap(err, "start wss")
	}
	f.wss = wss

	// re-subscribe anything registered before the connection existed
	for symbol := range f.subs {
		if err := f.sendSubscribe(ctx, wss, symbol, true); err != nil {
			wss.Close()
			f.wss = nil
			return errors.Wrap(err, "resubscribe").With("symbol", symbol)
		}
	}
	return nil
}

func (f *BinanceFeed) Disconnect() error {
	if err := f.Stop(); err != nil && err != exception.ErrFeedStopped {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.wss == nil {
		return exception.ErrFeedNotConnected
	}
	f.wss.Close()
	f.wss = nil
	return nil
}

func (f *BinanceFeed) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.wss != nil
}

func (f *BinanceFeed) SubscribeSymbol(symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs[symbol] {
		return nil
	}
	f.subs[symbol] = true
	if f.wss == nil {
		return nil
	}
	if err := f.sendSubscribe(context.Background(), f.wss, symbol, true); err != nil {
		delete(f.subs, symbol)
		return err
	}
	return nil
}

func (f *BinanceFeed) UnsubscribeSymbol(symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.subs[symbol] {
		return exception.ErrFeedUnknownSymbol
	}
	delete(f.subs, symbol)
	if f.wss == nil {
		return nil
	}
	return f.sendUnsubscribe(context.Background(), f.wss, symbol)
}

type binanceStreamRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

type binanceStreamResponse struct {
	ID     int64 `json:"id"`
	Result any   `json:"result"`
}

func (f *BinanceFeed) sendSubscribe(ctx context.Context, wss *ws.WebSocket, symbol string, register bool) error {
	return f.sendMethod(ctx, wss, "SUBSCRIBE", symbol, register)
}

func (f *BinanceFeed) sendUnsubscribe(ctx context.Context, wss *ws.WebSocket, symbol string) error {
	return f.sendMethod(ctx, wss, "UNSUBSCRIBE", symbol, false)
}

func (f *BinanceFeed) sendMethod(ctx context.Context, wss *ws.WebSocket, method, symbol string, register bool) error {
	id := f.nextID.Add(1)
	if err := wss.SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, ws *ws.WebSocket) error {
			payload := binanceStreamRequest{
				Method: method,
				Params: []string{
					fmt.Sprintf("%s@bookTicker", strings.ToLower(symbol)),
				},
				ID: id,
			}

			if err := ws.WriteJSON(payload); err != nil {
				return errors.Wrap(err, "write stream payload").With("payload", payload)
			}

			return nil
		},
		Waiter: func(ctx context.Context, m ws.Message) (bool, error) {
			var resp binanceStreamResponse
			if err := m.Unmarshal(&resp); err != nil || resp.ID != id {
				return false, nil
			}

			if resp.Result != nil {
				return false, errors.Errorf("stream request rejected, err: %+v", resp.Result)
			}
			return true, nil
		},
	}, register); err != nil {
		return errors.Wrap(err, "send and wait")
	}

	return nil
}

type binanceBookTicker struct {
	UpdateID int64           `json:"u"`
	Symbol   string          `json:"s"`
	Bid      decimal.Decimal `json:"b"`
	BidQty   decimal.Decimal `json:"B"`
	Ask      decimal.Decimal `json:"a"`
	AskQty   decimal.Decimal `json:"A"`
}

func (f *BinanceFeed) Start(ctx context.Context, handler Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.wss == nil {
		return exception.ErrFeedNotConnected
	}
	if f.started {
		return exception.ErrFeedAlreadyStarted
	}

	ch, cancel := f.wss.Subscribe()
	f.started = true
	f.cancelSub = cancel
	f.done = make(chan struct{})

	go f.observe(ctx, ch, handler, f.done)
	logs.Info("binance feed started", "name", f.cfg.Name, "url", f.cfg.URL)
	return nil
}

func (f *BinanceFeed) Stop() error {
	f.mu.Lock()
	if !f.started {
		f.mu.Unlock()
		return exception.ErrFeedStopped
	}
	cancel, done := f.cancelSub, f.done
	f.started = false
	f.cancelSub = nil
	f.done = nil
	f.mu.Unlock()

	cancel()
	<-done
	return nil
}

func (f *BinanceFeed) observe(ctx context.Context, ch <-chan ws.Message, handler Handler, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}

			tick, ok := ws.ReadMessage[binanceBookTicker](m)
			if !ok || tick.Symbol == "" {
				continue
			}

			update, err := f.toUpdate(tick)
			if err != nil {
				handler.OnFeedError(f.cfg.Name, err)
				continue
			}
			handler.OnMarketUpdate(f.cfg.Name, update)
		}
	}
}

func (f *BinanceFeed) toUpdate(tick binanceBookTicker) (MarketUpdate, error) {
	bid, err := schema.ParsePrice(tick.Bid.String())
	if err != nil {
		return MarketUpdate{}, errors.Wrap(err, "parse bid").With("symbol", tick.Symbol)
	}
	ask, err := schema.ParsePrice(tick.Ask.String())
	if err != nil {
		return MarketUpdate{}, errors.Wrap(err, "parse ask").With("symbol", tick.Symbol)
	}

	bidSize := sizeOf(tick.BidQty.String())
	askSize := sizeOf(tick.AskQty.String())
	return MarketUpdate{
		Symbol:   tick.Symbol,
		Exchange: f.cfg.Exchange,
		Bid:      bid,
		Ask:      ask,
		Last:     (bid + ask) / 2,
		BidSize:  bidSize,
		AskSize:  askSize,
		Volume:   saturatingAdd(bidSize, askSize),
		TsEvent:  schema.Now(),
	}, nil
}

// sizeOf converts a decimal quantity into 1e-4 units, the same scale as
// prices, so fractional crypto book sizes below one unit survive the
// uint32 size fields. Oversized quantities clamp instead of wrapping.
func sizeOf(qty string) uint32 {
	p, err := schema.ParsePrice(qty)
	if err != nil || p < 0 {
		return 0
	}
	if p > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(p)
}

func saturatingAdd(a, b uint32) uint32 {
	sum := a + b
	if sum < a {
		return math.MaxUint32
	}
	return sum
}

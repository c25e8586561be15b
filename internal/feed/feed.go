/*
Package feed defines the capability contract every market-data source
implements and the adapters that ship with the pipeline.

The engine depends only on the Feed interface; a concrete adapter owns
its transport (websocket, segment replay, synthetic generation) and
delivers parsed updates through the Handler it was started with.
*/
package feed

import (
	"context"

	"tickflow/internal/schema"
)

// MarketUpdate is one parsed top-of-book update from a feed, before
// symbol interning and validation.
type MarketUpdate struct {
	Symbol   string
	Exchange schema.ExchangeID
	Bid      schema.Price
	Ask      schema.Price
	Last     schema.Price
	BidSize  uint32
	AskSize  uint32
	Volume   uint32
	TsEvent  schema.Timestamp
}

// OptionUpdate is one parsed option-contract update from a feed.
type OptionUpdate struct {
	Symbol       string
	Underlying   string
	Strike       schema.Price
	Bid          schema.Price
	Ask          schema.Price
	Last         schema.Price
	ImpliedVol   float64
	Volume       uint32
	OpenInterest uint32
	Expiration   uint32
	DaysToExpiry uint16
	Right        schema.OptionRight
	Style        schema.OptionStyle
	TsEvent      schema.Timestamp
}

// BookUpdate is a level-2 quote refresh: top of book only, no trade
// print attached.
type BookUpdate struct {
	Symbol   string
	Exchange schema.ExchangeID
	Bid      schema.Price
	Ask      schema.Price
	BidSize  uint32
	AskSize  uint32
	TsEvent  schema.Timestamp
}

// Handler receives updates pushed by a running feed. Calls for one feed
// arrive from a single goroutine, in feed order.
type Handler interface {
	OnMarketUpdate(feed string, update MarketUpdate)
	OnOptionUpdate(feed string, update OptionUpdate)
	OnBookUpdate(feed string, update BookUpdate)
	OnFeedError(feed string, err error)
}

// Feed is the capability set every data source implements.
type Feed interface {
	Name() string
	Connect(ctx context.Context) error
	Disconnect() error
	IsConnected() bool
	SubscribeSymbol(symbol string) error
	UnsubscribeSymbol(symbol string) error

	// Start begins delivery to the handler from the feed's own
	// goroutine. Stop halts delivery; the feed stays connected.
	Start(ctx context.Context, handler Handler) error
	Stop() error
}

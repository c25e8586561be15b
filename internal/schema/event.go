package schema

// EventType tags the payload carried by a DataEvent.
type EventType uint8

const (
	EventMarketTick EventType = iota
	EventOptionTick
	EventTrade
	EventOrderBookUpdate
	EventNews
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventMarketTick:
		return "market_tick"
	case EventOptionTick:
		return "option_tick"
	case EventTrade:
		return "trade"
	case EventOrderBookUpdate:
		return "order_book_update"
	case EventNews:
		return "news"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// DataEvent is the unit distributed to subscribers. Exactly one payload
// variant is valid per tag; the payload fields are unexported and only
// reachable through the tag-checked accessors, so a reader cannot touch
// the wrong variant.
type DataEvent struct {
	Type      EventType
	Timestamp Timestamp
	SymbolID  SymbolID
	Code      uint32 // error events only

	market MarketTick
	option OptionTick
}

// NewMarketEvent wraps a market tick. The trade tag reuses the market
// payload since a trade print carries the same top-of-book fields.
func NewMarketEvent(now Timestamp, tick MarketTick) DataEvent {
	return DataEvent{
		Type:      EventMarketTick,
		Timestamp: now,
		SymbolID:  tick.SymbolID,
		market:    tick,
	}
}

// NewTradeEvent wraps a trade print.
func NewTradeEvent(now Timestamp, tick MarketTick) DataEvent {
	e := NewMarketEvent(now, tick)
	e.Type = EventTrade
	return e
}

// NewBookEvent wraps a level-2 quote refresh. The payload is a market
// tick with no trade fields set.
func NewBookEvent(now Timestamp, tick MarketTick) DataEvent {
	e := NewMarketEvent(now, tick)
	e.Type = EventOrderBookUpdate
	return e
}

// NewOptionEvent wraps an option tick.
func NewOptionEvent(now Timestamp, tick OptionTick) DataEvent {
	return DataEvent{
		Type:      EventOptionTick,
		Timestamp: now,
		SymbolID:  tick.SymbolID,
		option:    tick,
	}
}

// NewErrorEvent wraps an error condition observed on the ingestion path.
func NewErrorEvent(now Timestamp, symbolID SymbolID, code uint32) DataEvent {
	return DataEvent{
		Type:      EventError,
		Timestamp: now,
		SymbolID:  symbolID,
		Code:      code,
	}
}

// Market returns the market payload when the tag carries one.
func (e DataEvent) Market() (MarketTick, bool) {
	switch e.Type {
	case EventMarketTick, EventTrade, EventOrderBookUpdate:
		return e.market, true
	default:
		return MarketTick{}, false
	}
}

// Option returns the option payload when the tag carries one.
func (e DataEvent) Option() (OptionTick, bool) {
	if e.Type != EventOptionTick {
		return OptionTick{}, false
	}
	return e.option, true
}

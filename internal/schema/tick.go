package schema

// MarketTick is one top-of-book snapshot for a symbol. The layout is
// fixed at 64 bytes so a slice of ticks packs one tick per cache line.
type MarketTick struct {
	Timestamp Timestamp // 8
	Bid       Price     // 8
	Ask       Price     // 8
	Last      Price     // 8
	SymbolID  SymbolID  // 4
	BidSize   uint32    // 4
	AskSize   uint32    // 4
	Volume    uint32    // 4
	Seq       uint32    // 4
	Exchange  ExchangeID // 4
	_         [8]byte   // pad to 64
}

// Midpoint is the arithmetic mean of best bid and best ask.
func (t MarketTick) Midpoint() Price {
	return (t.Bid + t.Ask) / 2
}

// Spread is ask minus bid.
func (t MarketTick) Spread() Price {
	return t.Ask - t.Bid
}

// SpreadPct is the spread as a percentage of the midpoint.
// Zero when the midpoint is zero.
func (t MarketTick) SpreadPct() float64 {
	mid := t.Midpoint()
	if mid == 0 {
		return 0
	}
	return t.Spread().Float() / mid.Float() * 100
}

// OptionStyle distinguishes exercise conventions.
type OptionStyle uint8

const (
	StyleAmerican OptionStyle = iota
	StyleEuropean
)

// OptionRight distinguishes calls from puts.
type OptionRight uint8

const (
	RightCall OptionRight = iota
	RightPut
)

// OptionTick is one snapshot for a single option contract. Fixed layout,
// padded to two cache lines.
type OptionTick struct {
	Timestamp    Timestamp   // 8
	Strike       Price       // 8
	Bid          Price       // 8
	Ask          Price       // 8
	Last         Price       // 8
	ImpliedVol   float64     // 8
	SymbolID     SymbolID    // 4
	UnderlyingID SymbolID    // 4
	Volume       uint32      // 4
	OpenInterest uint32      // 4
	Expiration   uint32      // 4, YYYYMMDD
	DaysToExpiry uint16      // 2
	Right        OptionRight // 1
	Style        OptionStyle // 1
	_            [56]byte    // pad to 128
}

// Midpoint is the arithmetic mean of best bid and best ask.
func (t OptionTick) Midpoint() Price {
	return (t.Bid + t.Ask) / 2
}

// TimeToExpiry returns the remaining lifetime in years.
func (t OptionTick) TimeToExpiry() float64 {
	return float64(t.DaysToExpiry) / 365
}

// Moneyness is underlying price over strike. Zero when the strike is zero.
func (t OptionTick) Moneyness(underlying Price) float64 {
	if t.Strike == 0 {
		return 0
	}
	return underlying.Float() / t.Strike.Float()
}

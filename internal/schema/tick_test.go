package schema

import (
	"testing"
	"unsafe"
)

func TestTickLayoutSizes(t *testing.T) {
	if size := unsafe.Sizeof(MarketTick{}); size != 64 {
		t.Fatalf("MarketTick is %d bytes, want 64", size)
	}
	if size := unsafe.Sizeof(OptionTick{}); size != 128 {
		t.Fatalf("OptionTick is %d bytes, want 128", size)
	}
}

func TestMarketTickDerived(t *testing.T) {
	tick := MarketTick{Bid: 1000000, Ask: 1001000, Last: 1000500}
	if got := tick.Midpoint(); got != 1000500 {
		t.Fatalf("Midpoint = %d, want 1000500", got)
	}
	if got := tick.Spread(); got != 1000 {
		t.Fatalf("Spread = %d, want 1000", got)
	}
	want := 0.1 / 100.05 * 100
	if got := tick.SpreadPct(); got < want-1e-9 || got > want+1e-9 {
		t.Fatalf("SpreadPct = %v, want %v", got, want)
	}
}

func TestMarketTickSpreadPctZeroMidpoint(t *testing.T) {
	tick := MarketTick{Bid: -1000, Ask: 1000}
	if got := tick.SpreadPct(); got != 0 {
		t.Fatalf("SpreadPct with zero midpoint = %v, want 0", got)
	}
}

func TestOptionTickDerived(t *testing.T) {
	tick := OptionTick{Strike: 1000000, DaysToExpiry: 73}
	if got := tick.TimeToExpiry(); got != 0.2 {
		t.Fatalf("TimeToExpiry = %v, want 0.2", got)
	}
	if got := tick.Moneyness(1100000); got != 1.1 {
		t.Fatalf("Moneyness = %v, want 1.1", got)
	}
	zero := OptionTick{}
	if got := zero.Moneyness(1000000); got != 0 {
		t.Fatalf("Moneyness with zero strike = %v, want 0", got)
	}
}

func TestDataEventTagAccessors(t *testing.T) {
	market := NewMarketEvent(1, MarketTick{SymbolID: 7, Bid: 10, Ask: 20})
	if _, ok := market.Option(); ok {
		t.Fatal("market event exposed option payload")
	}
	tick, ok := market.Market()
	if !ok || tick.SymbolID != 7 {
		t.Fatalf("market accessor: ok=%v tick=%+v", ok, tick)
	}

	option := NewOptionEvent(1, OptionTick{SymbolID: 9})
	if _, ok := option.Market(); ok {
		t.Fatal("option event exposed market payload")
	}

	errEvent := NewErrorEvent(1, 3, 42)
	if _, ok := errEvent.Market(); ok {
		t.Fatal("error event exposed market payload")
	}
	if errEvent.Code != 42 || errEvent.SymbolID != 3 {
		t.Fatalf("error event fields: %+v", errEvent)
	}
}

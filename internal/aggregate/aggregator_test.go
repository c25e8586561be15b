package aggregate

import (
	"math"
	"testing"

	"tickflow/internal/schema"
)

func addTick(a *Aggregator, id schema.SymbolID, mid string, volume uint32) {
	p, _ := schema.ParsePrice(mid)
	a.AddTick(schema.MarketTick{
		SymbolID: id,
		Bid:      p,
		Ask:      p,
		Last:     p,
		Volume:   volume,
	})
}

func TestVWAP(t *testing.T) {
	a := New(DefaultWindow, DefaultPeriodsPerYear)
	addTick(a, 1, "100.00", 100)
	addTick(a, 1, "101.00", 200)
	addTick(a, 1, "99.00", 100)

	vwap, ok := a.VWAP(1, 0)
	if !ok {
		t.Fatal("VWAP unavailable")
	}
	// (100*100 + 101*200 + 99*100) / 400 = 100.25
	if want := schema.Price(1002500); vwap != want {
		t.Fatalf("VWAP = %s, want %s", vwap, want)
	}
}

func TestVWAPUnavailable(t *testing.T) {
	a := New(DefaultWindow, DefaultPeriodsPerYear)

	if _, ok := a.VWAP(1, 0); ok {
		t.Fatal("VWAP available for unknown symbol")
	}

	addTick(a, 1, "100.00", 100)
	if _, ok := a.VWAP(1, 0); ok {
		t.Fatal("VWAP available with one sample")
	}

	addTick(a, 2, "100.00", 0)
	addTick(a, 2, "101.00", 0)
	if _, ok := a.VWAP(2, 0); ok {
		t.Fatal("VWAP available with zero total volume")
	}
}

func TestVWAPWindowSubset(t *testing.T) {
	a := New(DefaultWindow, DefaultPeriodsPerYear)
	addTick(a, 1, "50.00", 1000) // outside the 2-sample window
	addTick(a, 1, "100.00", 100)
	addTick(a, 1, "102.00", 100)

	vwap, ok := a.VWAP(1, 2)
	if !ok {
		t.Fatal("VWAP unavailable")
	}
	if want := schema.Price(1010000); vwap != want {
		t.Fatalf("VWAP over window 2 = %s, want %s", vwap, want)
	}
}

func TestVolatility(t *testing.T) {
	a := New(DefaultWindow, 252)

	if _, ok := a.Volatility(1, 0); ok {
		t.Fatal("volatility available for unknown symbol")
	}
	addTick(a, 1, "100.00", 100)
	if _, ok := a.Volatility(1, 0); ok {
		t.Fatal("volatility available with one sample")
	}

	// one return: defined but zero
	addTick(a, 1, "101.00", 100)
	vol, ok := a.Volatility(1, 0)
	if !ok || vol != 0 {
		t.Fatalf("single-return volatility = (%v, %v), want (0, true)", vol, ok)
	}

	addTick(a, 1, "102.00", 100)
	vol, ok = a.Volatility(1, 0)
	if !ok {
		t.Fatal("volatility unavailable with three samples")
	}

	// recompute by hand: sample stddev of the two log returns, annualized
	r1 := math.Log(101.0 / 100.0)
	r2 := math.Log(102.0 / 101.0)
	mean := (r1 + r2) / 2
	variance := ((r1-mean)*(r1-mean) + (r2-mean)*(r2-mean)) / 1
	want := math.Sqrt(variance) * math.Sqrt(252)
	if diff := math.Abs(vol - want); diff > 1e-12 {
		t.Fatalf("volatility = %v, want %v", vol, want)
	}
	if math.IsNaN(vol) {
		t.Fatal("volatility is NaN")
	}
}

func TestWindowEviction(t *testing.T) {
	a := New(4, DefaultPeriodsPerYear)
	for i := 0; i < 10; i++ {
		addTick(a, 1, "100.00", 100)
	}
	if got := a.SampleCount(1); got != 4 {
		t.Fatalf("SampleCount = %d, want 4", got)
	}

	addTick(a, 1, "200.00", 100)
	history := a.PriceHistory(1, 100)
	if len(history) != 4 {
		t.Fatalf("history length = %d, want 4", len(history))
	}
	if history[len(history)-1] != schema.Price(2000000) {
		t.Fatalf("newest mid = %s, want 200.0000", history[len(history)-1])
	}
}

func TestLatestTick(t *testing.T) {
	a := New(DefaultWindow, DefaultPeriodsPerYear)
	if _, ok := a.LatestTick(1); ok {
		t.Fatal("LatestTick available for unknown symbol")
	}

	addTick(a, 1, "100.00", 100)
	addTick(a, 1, "105.00", 200)
	tick, ok := a.LatestTick(1)
	if !ok || tick.Volume != 200 {
		t.Fatalf("LatestTick = (%+v, %v)", tick, ok)
	}
}

func TestPriceHistoryOrder(t *testing.T) {
	a := New(DefaultWindow, DefaultPeriodsPerYear)
	for _, mid := range []string{"1.00", "2.00", "3.00"} {
		addTick(a, 1, mid, 100)
	}

	history := a.PriceHistory(1, 2)
	if len(history) != 2 {
		t.Fatalf("history length = %d, want 2", len(history))
	}
	if history[0] != schema.Price(20000) || history[1] != schema.Price(30000) {
		t.Fatalf("history = %v, want newest last", history)
	}
}

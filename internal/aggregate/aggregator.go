// Package aggregate maintains per-symbol rolling price/volume history and
// derives VWAP and realized volatility on demand.
package aggregate

import (
	"math"
	"sync"

	"tickflow/internal/schema"
)

const (
	DefaultWindow         = 64
	DefaultPeriodsPerYear = 252
)

type sample struct {
	mid    schema.Price
	ts     schema.Timestamp
	volume uint32
}

// series is one symbol's rolling window: a fixed ring with oldest-evicted
// semantics, plus the latest full tick.
type series struct {
	samples []sample
	start   int
	size    int
	latest  schema.MarketTick
}

func (s *series) add(sm sample) {
	if s.size < len(s.samples) {
		s.samples[(s.start+s.size)%len(s.samples)] = sm
		s.size++
		return
	}
	s.samples[s.start] = sm
	s.start = (s.start + 1) % len(s.samples)
}

// at returns the i-th sample, oldest first.
func (s *series) at(i int) sample {
	return s.samples[(s.start+i)%len(s.samples)]
}

// Aggregator owns the rolling histories. All methods are safe for
// concurrent use; readers observe a best-effort, eventually consistent
// view while writers hold the lock only long enough to append.
type Aggregator struct {
	mu             sync.RWMutex
	window         int
	periodsPerYear float64
	bySymbol       map[schema.SymbolID]*series
}

func New(window int, periodsPerYear float64) *Aggregator {
	if window < 2 {
		window = DefaultWindow
	}
	if periodsPerYear <= 0 {
		periodsPerYear = DefaultPeriodsPerYear
	}
	return &Aggregator{
		window:         window,
		periodsPerYear: periodsPerYear,
		bySymbol:       make(map[schema.SymbolID]*series),
	}
}

// AddTick appends the tick to the symbol's rolling history, evicting the
// oldest sample when the window is full.
func (a *Aggregator) AddTick(tick schema.MarketTick) {
	a.mu.Lock()
	s := a.bySymbol[tick.SymbolID]
	if s == nil {
		s = &series{samples: make([]sample, a.window)}
		a.bySymbol[tick.SymbolID] = s
	}
	s.add(sample{mid: tick.Midpoint(), ts: tick.Timestamp, volume: tick.Volume})
	s.latest = tick
	a.mu.Unlock()
}

// VWAP is the volume-weighted average midpoint over the most recent
// window samples. Unavailable with fewer than two samples or zero total
// volume.
func (a *Aggregator) VWAP(id schema.SymbolID, window int) (schema.Price, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s := a.bySymbol[id]
	if s == nil || s.size < 2 {
		return 0, false
	}
	n := clampWindow(window, s.size)

	var notional, volume int64
	for i := s.size - n; i < s.size; i++ {
		sm := s.at(i)
		notional += int64(sm.mid) * int64(sm.volume)
		volume += int64(sm.volume)
	}
	if volume == 0 {
		return 0, false
	}
	// round half up on the scaled integer
	return schema.Price((notional + volume/2) / volume), true
}

// Volatility is the sample standard deviation of log returns between
// consecutive midpoints, annualized by the configured trading periods
// per year. Unavailable with fewer than two samples; never NaN.
func (a *Aggregator) Volatility(id schema.SymbolID, window int) (float64, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s := a.bySymbol[id]
	if s == nil || s.size < 2 {
		return 0, false
	}
	n := clampWindow(window, s.size)
	if n < 2 {
		n = 2
	}

	returns := make([]float64, 0, n-1)
	for i := s.size - n + 1; i < s.size; i++ {
		prev := s.at(i - 1).mid
		curr := s.at(i).mid
		if prev <= 0 || curr <= 0 {
			continue
		}
		returns = append(returns, math.Log(curr.Float()/prev.Float()))
	}
	if len(returns) == 0 {
		return 0, false
	}
	if len(returns) == 1 {
		return 0, true
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns) - 1)

	return math.Sqrt(variance) * math.Sqrt(a.periodsPerYear), true
}

// LatestTick returns the most recent tick seen for the symbol.
func (a *Aggregator) LatestTick(id schema.SymbolID) (schema.MarketTick, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s := a.bySymbol[id]
	if s == nil || s.size == 0 {
		return schema.MarketTick{}, false
	}
	return s.latest, true
}

// PriceHistory returns up to count recent midpoints, newest last.
func (a *Aggregator) PriceHistory(id schema.SymbolID, count int) []schema.Price {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s := a.bySymbol[id]
	if s == nil || s.size == 0 || count <= 0 {
		return nil
	}
	n := count
	if n > s.size {
		n = s.size
	}
	out := make([]schema.Price, 0, n)
	for i := s.size - n; i < s.size; i++ {
		out = append(out, s.at(i).mid)
	}
	return out
}

// SampleCount returns the number of samples currently held for a symbol.
func (a *Aggregator) SampleCount(id schema.SymbolID) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if s := a.bySymbol[id]; s != nil {
		return s.size
	}
	return 0
}

func clampWindow(window, size int) int {
	if window <= 0 || window > size {
		return size
	}
	return window
}

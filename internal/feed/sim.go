package feed

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/yanun0323/logs"

	"tickflow/internal/exception"
	"tickflow/internal/schema"
)

// SimConfig controls the synthetic feed. Seed makes the walk
// reproducible; Interval is the gap between ticks across all symbols.
type SimConfig struct {
	Name      string
	Exchange  schema.ExchangeID
	Symbols   []string
	Interval  time.Duration
	Seed      int64
	BasePrice schema.Price
	Spread    schema.Price
	MaxStep   schema.Price
	BaseSize  uint32
}

func (c SimConfig) withDefaults() SimConfig {
	if c.Name == "" {
		c.Name = "sim"
	}
	if c.Interval <= 0 {
		c.Interval = time.Millisecond
	}
	if c.BasePrice <= 0 {
		c.BasePrice = schema.PriceFromFloat(100)
	}
	if c.Spread <= 0 {
		c.Spread = schema.PriceFromFloat(0.01)
	}
	if c.MaxStep <= 0 {
		c.MaxStep = schema.PriceFromFloat(0.05)
	}
	if c.BaseSize == 0 {
		c.BaseSize = 100
	}
	return c
}

// SimFeed generates a random-walk top-of-book stream, round-robin over
// the subscribed symbols.
type SimFeed struct {
	cfg SimConfig

	mu        sync.Mutex
	symbols   []string
	mids      map[string]schema.Price
	connected bool
	started   bool
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewSimFeed(cfg SimConfig) *SimFeed {
	cfg = cfg.withDefaults()
	f := &SimFeed{
		cfg:  cfg,
		mids: make(map[string]schema.Price),
	}
	for _, symbol := range cfg.Symbols {
		f.addSymbolLocked(symbol)
	}
	return f
}

func (f *SimFeed) Name() string { return f.cfg.Name }

func (f *SimFeed) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connected {
		return exception.ErrFeedAlreadyConnected
	}
	f.connected = true
	return nil
}

func (f *SimFeed) Disconnect() error {
	if err := f.Stop(); err != nil && err != exception.ErrFeedStopped {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return exception.ErrFeedNotConnected
	}
	f.connected = false
	return nil
}

func (f *SimFeed) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *SimFeed) SubscribeSymbol(symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addSymbolLocked(symbol)
	return nil
}

func (f *SimFeed) UnsubscribeSymbol(symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, s := range f.symbols {
		if s == symbol {
			f.symbols = append(f.symbols[:i], f.symbols[i+1:]...)
			delete(f.mids, symbol)
			return nil
		}
	}
	return exception.ErrFeedUnknownSymbol
}

func (f *SimFeed) addSymbolLocked(symbol string) {
	if _, ok := f.mids[symbol]; ok {
		return
	}
	f.symbols = append(f.symbols, symbol)
	// stagger base prices so symbols do not move in lockstep
	f.mids[symbol] = f.cfg.BasePrice + schema.Price(len(f.symbols))*f.cfg.Spread
}

// Start launches the generation goroutine. Delivery stays in feed order
// because a single goroutine drives the handler.
func (f *SimFeed) Start(ctx context.Context, handler Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return exception.ErrFeedNotConnected
	}
	if f.started {
		return exception.ErrFeedAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	f.started = true
	f.cancel = cancel
	f.done = make(chan struct{})

	go f.run(runCtx, handler, f.done)
	logs.Info("sim feed started", "name", f.cfg.Name, "symbols", len(f.symbols))
	return nil
}

func (f *SimFeed) Stop() error {
	f.mu.Lock()
	if !f.started {
		f.mu.Unlock()
		return exception.ErrFeedStopped
	}
	cancel, done := f.cancel, f.done
	f.started = false
	f.cancel = nil
	f.done = nil
	f.mu.Unlock()

	cancel()
	<-done
	return nil
}

func (f *SimFeed) run(ctx context.Context, handler Handler, done chan struct{}) {
	defer close(done)

	rng := rand.New(rand.NewSource(f.cfg.Seed))
	ticker := time.NewTicker(f.cfg.Interval)
	defer ticker.Stop()

	index := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		update, ok := f.next(rng, &index)
		if !ok {
			continue
		}
		handler.OnMarketUpdate(f.cfg.Name, update)
	}
}

// next advances the walk for the round-robin symbol under the lock, then
// builds the update outside any shared state.
func (f *SimFeed) next(rng *rand.Rand, index *int) (MarketUpdate, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.symbols) == 0 {
		return MarketUpdate{}, false
	}
	*index = *index % len(f.symbols)
	symbol := f.symbols[*index]
	*index++

	step := schema.Price(rng.Int63n(int64(f.cfg.MaxStep)*2+1)) - f.cfg.MaxStep
	mid := f.mids[symbol] + step
	if floor := f.cfg.Spread * 2; mid < floor {
		mid = floor
	}
	f.mids[symbol] = mid

	half := f.cfg.Spread / 2
	if half == 0 {
		half = 1
	}
	now := schema.Now()
	return MarketUpdate{
		Symbol:   symbol,
		Exchange: f.cfg.Exchange,
		Bid:      mid - half,
		Ask:      mid + half,
		Last:     mid,
		BidSize:  f.cfg.BaseSize + uint32(rng.Intn(100)),
		AskSize:  f.cfg.BaseSize + uint32(rng.Intn(100)),
		Volume:   f.cfg.BaseSize + uint32(rng.Intn(900)),
		TsEvent:  now,
	}, true
}

/*
Package engine wires feeds, validation, aggregation and distribution
into one restartable pipeline.

Each feed gets its own bounded single-producer ring; the feed's delivery
goroutine is the only producer and the distribution goroutine is the
only consumer, so the hot path never takes a lock. The distribution
goroutine merges the rings round-robin, updates the aggregator and fans
events out to subscribers.

Every data update handed to the engine is accounted for exactly once:

	processed + dropped + rejected + filtered == emitted

Feed error events are distributed like any other event but are counted
by feed_errors alone, outside this identity.
*/
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tickflow/internal/aggregate"
	"tickflow/internal/bus"
	"tickflow/internal/exception"
	"tickflow/internal/feed"
	"tickflow/internal/obs"
	"tickflow/internal/schema"
	"tickflow/internal/validate"
)

// State is the engine lifecycle phase.
type State uint32

const (
	StateIdle State = iota
	StateInitialized
	StateRunning
	StateStopped
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Config controls the pipeline shape. BufferCapacity is per feed and
// must be a power of two; a ring holds capacity-1 events.
type Config struct {
	Workers          int
	BufferCapacity   int
	EnableEquities   bool
	EnableOptions    bool
	EnableLevel2     bool
	EnableNews       bool
	Rules            validate.Rules
	AggregatorWindow int
	PeriodsPerYear   float64
	IdleSleep        time.Duration
}

// DefaultConfig mirrors the production defaults.
func DefaultConfig() Config {
	return Config{
		Workers:          4,
		BufferCapacity:   1 << 20,
		EnableEquities:   true,
		EnableOptions:    true,
		EnableLevel2:     true,
		EnableNews:       false,
		Rules:            validate.DefaultRules(),
		AggregatorWindow: aggregate.DefaultWindow,
		PeriodsPerYear:   aggregate.DefaultPeriodsPerYear,
		IdleSleep:        50 * time.Microsecond,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Workers < 1 {
		return exception.ErrWorkersConfig
	}
	if c.BufferCapacity < 2 || c.BufferCapacity&(c.BufferCapacity-1) != 0 {
		return exception.ErrBufferConfig
	}
	if c.AggregatorWindow < 2 {
		return exception.ErrWindowConfig
	}
	return nil
}

// Subscriber receives every distributed event. Callbacks run on the
// distribution goroutine and must not block.
type Subscriber func(schema.DataEvent)

// lane is one feed's private path into the distribution goroutine.
type lane struct {
	feed    feed.Feed
	ring    *bus.Ring[schema.DataEvent]
	handler *laneHandler
}

// Engine is the market data pipeline.
type Engine struct {
	cfg Config

	mu    sync.Mutex
	state atomic.Uint32
	feeds []feed.Feed
	lanes []*lane

	interner   *schema.Interner
	validator  *validate.Validator
	aggregator *aggregate.Aggregator
	metrics    *obs.Metrics

	subsMu sync.RWMutex
	subs   []Subscriber

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an engine in the Idle state.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		cfg:        cfg,
		interner:   schema.NewInterner(),
		validator:  validate.New(cfg.Rules),
		aggregator: aggregate.New(cfg.AggregatorWindow, cfg.PeriodsPerYear),
		metrics:    obs.NewMetrics(),
	}, nil
}

// State returns the current lifecycle phase.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// AddFeed registers a feed. Feeds must be registered before Initialize.
func (e *Engine) AddFeed(f feed.Feed) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.State() != StateIdle {
		return exception.ErrSubscribeAfterRun
	}
	e.feeds = append(e.feeds, f)
	return nil
}

// SubscribeSymbols subscribes every registered feed to the symbols.
func (e *Engine) SubscribeSymbols(symbols []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, f := range e.feeds {
		for _, symbol := range symbols {
			if err := f.SubscribeSymbol(symbol); err != nil {
				return errors.Wrap(err, "subscribe symbol").
					With("feed", f.Name()).
					With("symbol", symbol)
			}
		}
	}
	return nil
}

// SubscribeToEvents registers a distribution callback. Safe at any time;
// new subscribers see only events distributed after registration.
func (e *Engine) SubscribeToEvents(fn Subscriber) error {
	if fn == nil {
		return exception.ErrNilSubscriber
	}
	e.subsMu.Lock()
	e.subs = append(e.subs, fn)
	e.subsMu.Unlock()
	return nil
}

// Initialize connects every feed and allocates the per-feed rings.
// Valid from Idle or Stopped; from Stopped it is a no-op for feeds that
// stayed connected.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.State() {
	case StateIdle, StateStopped:
	default:
		return exception.ErrAlreadyRunning
	}
	if len(e.feeds) == 0 {
		return exception.ErrNoFeeds
	}

	if e.lanes == nil {
		lanes := make([]*lane, 0, len(e.feeds))
		for _, f := range e.feeds {
			ring, err := bus.NewRing[schema.DataEvent](e.cfg.BufferCapacity)
			if err != nil {
				return err
			}
			l := &lane{feed: f, ring: ring}
			l.handler = newLaneHandler(e, l)
			lanes = append(lanes, l)
		}
		e.lanes = lanes
	}

	for _, f := range e.feeds {
		if f.IsConnected() {
			continue
		}
		if err := f.Connect(ctx); err != nil {
			return errors.Wrap(err, "connect feed").With("feed", f.Name())
		}
	}

	e.state.Store(uint32(StateInitialized))
	logs.Info("engine initialized", "feeds", len(e.feeds), "buffer", e.cfg.BufferCapacity)
	return nil
}

// Start launches feed delivery and the distribution goroutine. Valid
// from Initialized or Stopped; counters persist across restarts.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.State() {
	case StateInitialized, StateStopped:
	case StateRunning:
		return exception.ErrAlreadyRunning
	default:
		return exception.ErrNotInitialized
	}

	runCtx, cancel := context.WithCancel(ctx)

	for i, l := range e.lanes {
		if err := l.feed.Start(runCtx, l.handler); err != nil {
			for _, started := range e.lanes[:i] {
				_ = started.feed.Stop()
			}
			cancel()
			e.state.Store(uint32(StateError))
			return errors.Wrap(err, "start feed").With("feed", l.feed.Name())
		}
	}

	e.cancel = cancel
	for _, shard := range shardLanes(e.lanes, e.cfg.Workers) {
		shard := shard
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.distribute(runCtx, shard)
		}()
	}

	e.metrics.MarkStart(time.Now())
	e.state.Store(uint32(StateRunning))
	logs.Info("engine running", "feeds", len(e.lanes))
	return nil
}

// Stop halts delivery and distribution. Feeds stay connected so the
// engine can be restarted. In-flight ring events are drained before the
// distribution goroutine exits.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.State() != StateRunning {
		return exception.ErrNotRunning
	}

	for _, l := range e.lanes {
		if err := l.feed.Stop(); err != nil && err != exception.ErrFeedStopped {
			logs.Warn("feed stop failed", "feed", l.feed.Name(), "error", err)
		}
	}

	e.cancel()
	e.wg.Wait()
	e.cancel = nil

	e.state.Store(uint32(StateStopped))
	logs.Info("engine stopped", "processed", e.metrics.EventsProcessed(), "dropped", e.metrics.EventsDropped())
	return nil
}

// Shutdown stops the engine if running and disconnects every feed.
func (e *Engine) Shutdown() error {
	if e.State() == StateRunning {
		if err := e.Stop(); err != nil {
			return err
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, f := range e.feeds {
		if !f.IsConnected() {
			continue
		}
		if err := f.Disconnect(); err != nil {
			logs.Warn("feed disconnect failed", "feed", f.Name(), "error", err)
		}
	}
	return nil
}

// LatestMarketData returns the most recent tick for a symbol.
func (e *Engine) LatestMarketData(symbol string) (schema.MarketTick, bool) {
	id, ok := e.interner.Lookup(symbol)
	if !ok {
		return schema.MarketTick{}, false
	}
	return e.aggregator.LatestTick(id)
}

// PriceHistory returns up to count recent midpoints, newest last.
func (e *Engine) PriceHistory(symbol string, count int) []schema.Price {
	id, ok := e.interner.Lookup(symbol)
	if !ok {
		return nil
	}
	return e.aggregator.PriceHistory(id, count)
}

// VWAP returns the volume weighted average price over the window.
func (e *Engine) VWAP(symbol string, window int) (schema.Price, bool) {
	id, ok := e.interner.Lookup(symbol)
	if !ok {
		return 0, false
	}
	return e.aggregator.VWAP(id, window)
}

// Volatility returns annualized realized volatility over the window.
func (e *Engine) Volatility(symbol string, window int) (float64, bool) {
	id, ok := e.interner.Lookup(symbol)
	if !ok {
		return 0, false
	}
	return e.aggregator.Volatility(id, window)
}

func (e *Engine) EventsProcessed() uint64 { return e.metrics.EventsProcessed() }
func (e *Engine) EventsDropped() uint64   { return e.metrics.EventsDropped() }
func (e *Engine) TicksRejected() uint64   { return e.metrics.TicksRejected() }
func (e *Engine) ProcessingRate() float64 { return e.metrics.ProcessingRate() }

func (e *Engine) Metrics() *obs.Metrics             { return e.metrics }
func (e *Engine) Interner() *schema.Interner        { return e.interner }
func (e *Engine) Aggregator() *aggregate.Aggregator { return e.aggregator }
func (e *Engine) Validator() *validate.Validator    { return e.validator }

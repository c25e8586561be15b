package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickflow/internal/exception"
	"tickflow/internal/feed"
	"tickflow/internal/schema"
)

// stubFeed hands the registered handler back to the test so updates can
// be injected deterministically from the test goroutine.
type stubFeed struct {
	name string

	mu        sync.Mutex
	connected bool
	started   bool
	handler   feed.Handler
	failStart bool
}

func (f *stubFeed) Name() string { return f.name }

func (f *stubFeed) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *stubFeed) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *stubFeed) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *stubFeed) SubscribeSymbol(string) error   { return nil }
func (f *stubFeed) UnsubscribeSymbol(string) error { return nil }

func (f *stubFeed) Start(ctx context.Context, handler feed.Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failStart {
		return exception.ErrFeedNotConnected
	}
	f.started = true
	f.handler = handler
	return nil
}

func (f *stubFeed) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = false
	return nil
}

func (f *stubFeed) emit(update feed.MarketUpdate) {
	f.currentHandler().OnMarketUpdate(f.name, update)
}

func (f *stubFeed) emitOption(update feed.OptionUpdate) {
	f.currentHandler().OnOptionUpdate(f.name, update)
}

func (f *stubFeed) emitBook(update feed.BookUpdate) {
	f.currentHandler().OnBookUpdate(f.name, update)
}

func (f *stubFeed) emitError(err error) {
	f.currentHandler().OnFeedError(f.name, err)
}

func (f *stubFeed) currentHandler() feed.Handler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handler
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.BufferCapacity = 1 << 10
	cfg.IdleSleep = time.Microsecond
	return cfg
}

func update(symbol string, bid, ask, last float64, volume uint32) feed.MarketUpdate {
	return feed.MarketUpdate{
		Symbol:  symbol,
		Bid:     schema.PriceFromFloat(bid),
		Ask:     schema.PriceFromFloat(ask),
		Last:    schema.PriceFromFloat(last),
		BidSize: 100,
		AskSize: 100,
		Volume:  volume,
		TsEvent: schema.Now(),
	}
}

func waitProcessed(t *testing.T, e *Engine, want uint64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.EventsProcessed() >= want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("processed %d events, want >= %d", e.EventsProcessed(), want)
}

func TestEngineLifecycle(t *testing.T) {
	e, err := New(testConfig())
	require.NoError(t, err)
	assert.Equal(t, StateIdle, e.State())

	// not initialized yet
	assert.Equal(t, exception.ErrNotInitialized, e.Start(context.Background()))
	assert.Equal(t, exception.ErrNotRunning, e.Stop())

	// no feeds registered
	assert.Equal(t, exception.ErrNoFeeds, e.Initialize(context.Background()))

	f := &stubFeed{name: "stub"}
	require.NoError(t, e.AddFeed(f))
	require.NoError(t, e.Initialize(context.Background()))
	assert.Equal(t, StateInitialized, e.State())
	assert.True(t, f.IsConnected())

	// feeds are fixed once initialized
	assert.Equal(t, exception.ErrSubscribeAfterRun, e.AddFeed(&stubFeed{name: "late"}))

	require.NoError(t, e.Start(context.Background()))
	assert.Equal(t, StateRunning, e.State())
	assert.Equal(t, exception.ErrAlreadyRunning, e.Start(context.Background()))

	require.NoError(t, e.Stop())
	assert.Equal(t, StateStopped, e.State())
	assert.True(t, f.IsConnected())

	// restartable from Stopped
	require.NoError(t, e.Start(context.Background()))
	assert.Equal(t, StateRunning, e.State())
	require.NoError(t, e.Shutdown())
	assert.False(t, f.IsConnected())
}

func TestEngineConfigValidation(t *testing.T) {
	bad := testConfig()
	bad.Workers = 0
	_, err := New(bad)
	assert.Equal(t, exception.ErrWorkersConfig, err)

	bad = testConfig()
	bad.BufferCapacity = 1000
	_, err = New(bad)
	assert.Equal(t, exception.ErrBufferConfig, err)

	bad = testConfig()
	bad.AggregatorWindow = 1
	_, err = New(bad)
	assert.Equal(t, exception.ErrWindowConfig, err)
}

func TestEngineStartFailureEntersErrorState(t *testing.T) {
	e, err := New(testConfig())
	require.NoError(t, err)
	require.NoError(t, e.AddFeed(&stubFeed{name: "broken", failStart: true}))
	require.NoError(t, e.Initialize(context.Background()))

	require.Error(t, e.Start(context.Background()))
	assert.Equal(t, StateError, e.State())
}

func TestEnginePipelineFlow(t *testing.T) {
	e, err := New(testConfig())
	require.NoError(t, err)

	f := &stubFeed{name: "stub"}
	require.NoError(t, e.AddFeed(f))

	var mu sync.Mutex
	var received []schema.DataEvent
	require.NoError(t, e.SubscribeToEvents(func(event schema.DataEvent) {
		mu.Lock()
		received = append(received, event)
		mu.Unlock()
	}))

	require.NoError(t, e.Initialize(context.Background()))
	require.NoError(t, e.Start(context.Background()))

	f.emit(update("AAPL", 100.00, 100.10, 100.05, 500))
	f.emit(update("AAPL", 100.05, 100.15, 100.10, 300))
	f.emit(update("MSFT", 50.00, 50.05, 50.02, 200))

	waitProcessed(t, e, 3)
	require.NoError(t, e.Stop())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 3)
	for _, event := range received {
		assert.Equal(t, schema.EventMarketTick, event.Type)
	}

	tick, ok := e.LatestMarketData("AAPL")
	require.True(t, ok)
	assert.Equal(t, schema.PriceFromFloat(100.15), tick.Ask)
	assert.Equal(t, uint32(2), tick.Seq)

	history := e.PriceHistory("AAPL", 10)
	assert.Len(t, history, 2)
}

func TestEngineRejectsInvalidTicks(t *testing.T) {
	e, err := New(testConfig())
	require.NoError(t, err)
	f := &stubFeed{name: "stub"}
	require.NoError(t, e.AddFeed(f))
	require.NoError(t, e.Initialize(context.Background()))
	require.NoError(t, e.Start(context.Background()))

	f.emit(update("AAPL", 100.00, 99.95, 99.97, 500)) // crossed book
	f.emit(update("bad sym", 100.00, 100.10, 100.05, 500))
	f.emit(update("AAPL", 100.00, 100.10, 100.05, 500))

	waitProcessed(t, e, 1)
	require.NoError(t, e.Stop())

	assert.Equal(t, uint64(1), e.EventsProcessed())
	assert.Equal(t, uint64(2), e.TicksRejected())
}

func TestEngineAccountingInvariant(t *testing.T) {
	cfg := testConfig()
	cfg.EnableOptions = false
	e, err := New(cfg)
	require.NoError(t, err)
	f := &stubFeed{name: "stub"}
	require.NoError(t, e.AddFeed(f))
	require.NoError(t, e.Initialize(context.Background()))
	require.NoError(t, e.Start(context.Background()))

	const emitted = 5000
	price := 100.0
	for i := 0; i < emitted; i++ {
		switch i % 10 {
		case 7: // crossed book, rejected
			f.emit(update("AAPL", price, price-0.01, price, 100))
		case 8: // options disabled, filtered
			f.emitOption(feed.OptionUpdate{Symbol: "AAPL260116C150"})
		default:
			f.emit(update("AAPL", price, price+0.02, price+0.01, 100))
			price += 0.01
		}
	}

	require.NoError(t, e.Stop())

	m := e.Metrics()
	total := m.EventsProcessed() + m.EventsDropped() + m.TicksRejected() + m.TicksFiltered()
	assert.Equal(t, uint64(emitted), total,
		"processed=%d dropped=%d rejected=%d filtered=%d",
		m.EventsProcessed(), m.EventsDropped(), m.TicksRejected(), m.TicksFiltered())
}

func TestEngineBookUpdates(t *testing.T) {
	e, err := New(testConfig())
	require.NoError(t, err)
	f := &stubFeed{name: "stub"}
	require.NoError(t, e.AddFeed(f))

	var mu sync.Mutex
	var received []schema.DataEvent
	require.NoError(t, e.SubscribeToEvents(func(event schema.DataEvent) {
		mu.Lock()
		received = append(received, event)
		mu.Unlock()
	}))

	require.NoError(t, e.Initialize(context.Background()))
	require.NoError(t, e.Start(context.Background()))

	f.emitBook(feed.BookUpdate{
		Symbol:  "AAPL",
		Bid:     schema.PriceFromFloat(100.00),
		Ask:     schema.PriceFromFloat(100.10),
		BidSize: 300,
		AskSize: 200,
		TsEvent: schema.Now(),
	})
	f.emitBook(feed.BookUpdate{ // crossed, rejected
		Symbol:  "AAPL",
		Bid:     schema.PriceFromFloat(100.10),
		Ask:     schema.PriceFromFloat(100.00),
		TsEvent: schema.Now(),
	})

	waitProcessed(t, e, 1)
	require.NoError(t, e.Stop())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, schema.EventOrderBookUpdate, received[0].Type)
	tick, ok := received[0].Market()
	require.True(t, ok)
	assert.Equal(t, uint32(300), tick.BidSize)
	assert.Equal(t, uint64(1), e.TicksRejected())

	// book quotes land in the midpoint history
	assert.Len(t, e.PriceHistory("AAPL", 10), 1)
}

func TestEngineBookUpdatesDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.EnableLevel2 = false
	e, err := New(cfg)
	require.NoError(t, err)
	f := &stubFeed{name: "stub"}
	require.NoError(t, e.AddFeed(f))
	require.NoError(t, e.Initialize(context.Background()))
	require.NoError(t, e.Start(context.Background()))

	f.emitBook(feed.BookUpdate{
		Symbol: "AAPL",
		Bid:    schema.PriceFromFloat(100.00),
		Ask:    schema.PriceFromFloat(100.10),
	})

	require.NoError(t, e.Stop())
	assert.Equal(t, uint64(0), e.EventsProcessed())
	assert.Equal(t, uint64(1), e.Metrics().TicksFiltered())
}

func TestEngineMultiFeedAccounting(t *testing.T) {
	cfg := testConfig()
	cfg.Workers = 2 // fewer workers than feeds, shards hold multiple lanes
	cfg.BufferCapacity = 256
	cfg.EnableOptions = false
	e, err := New(cfg)
	require.NoError(t, err)

	feeds := []*stubFeed{{name: "alpha"}, {name: "beta"}, {name: "gamma"}}
	symbols := []string{"AAPL", "MSFT", "GOOGL"}
	for _, f := range feeds {
		require.NoError(t, e.AddFeed(f))
	}
	require.NoError(t, e.Initialize(context.Background()))
	require.NoError(t, e.Start(context.Background()))

	const perFeed = 20000
	var wg sync.WaitGroup
	for i, f := range feeds {
		wg.Add(1)
		go func(f *stubFeed, symbol string) {
			defer wg.Done()
			price := 100.0
			for n := 0; n < perFeed; n++ {
				switch n % 10 {
				case 7: // crossed book, rejected
					f.emit(update(symbol, price, price-0.01, price, 100))
				case 8: // options disabled, filtered
					f.emitOption(feed.OptionUpdate{Symbol: symbol})
				default:
					f.emit(update(symbol, price, price+0.02, price+0.01, 100))
					price += 0.01
				}
			}
		}(f, symbols[i])
	}
	wg.Wait()

	require.NoError(t, e.Stop())

	m := e.Metrics()
	total := m.EventsProcessed() + m.EventsDropped() + m.TicksRejected() + m.TicksFiltered()
	assert.Equal(t, uint64(len(feeds)*perFeed), total,
		"processed=%d dropped=%d rejected=%d filtered=%d",
		m.EventsProcessed(), m.EventsDropped(), m.TicksRejected(), m.TicksFiltered())

	// each feed's symbol made it through its own lane
	for _, symbol := range symbols {
		_, ok := e.LatestMarketData(symbol)
		assert.True(t, ok, symbol)
	}
}

func TestEngineFeedErrorsOutsideAccounting(t *testing.T) {
	e, err := New(testConfig())
	require.NoError(t, err)
	f := &stubFeed{name: "stub"}
	require.NoError(t, e.AddFeed(f))
	require.NoError(t, e.Initialize(context.Background()))
	require.NoError(t, e.Start(context.Background()))

	f.emit(update("AAPL", 100.00, 100.10, 100.05, 500))
	f.emitError(exception.ErrFeedNotConnected)
	f.emit(update("AAPL", 100.02, 100.12, 100.07, 500))

	waitProcessed(t, e, 2)
	require.NoError(t, e.Stop())

	m := e.Metrics()
	assert.Equal(t, uint64(2), m.EventsProcessed())
	assert.Equal(t, uint64(1), m.FeedErrors())
	total := m.EventsProcessed() + m.EventsDropped() + m.TicksRejected() + m.TicksFiltered()
	assert.Equal(t, uint64(2), total)
}

func TestEngineCountersPersistAcrossRestart(t *testing.T) {
	e, err := New(testConfig())
	require.NoError(t, err)
	f := &stubFeed{name: "stub"}
	require.NoError(t, e.AddFeed(f))
	require.NoError(t, e.Initialize(context.Background()))
	require.NoError(t, e.Start(context.Background()))

	f.emit(update("AAPL", 100.00, 100.10, 100.05, 500))
	waitProcessed(t, e, 1)
	require.NoError(t, e.Stop())
	first := e.EventsProcessed()

	require.NoError(t, e.Start(context.Background()))
	f.emit(update("AAPL", 100.02, 100.12, 100.07, 500))
	waitProcessed(t, e, first+1)
	require.NoError(t, e.Stop())

	assert.Equal(t, first+1, e.EventsProcessed())
}

func TestEngineFeedErrorProducesErrorEvent(t *testing.T) {
	e, err := New(testConfig())
	require.NoError(t, err)
	f := &stubFeed{name: "stub"}
	require.NoError(t, e.AddFeed(f))

	events := make(chan schema.DataEvent, 1)
	require.NoError(t, e.SubscribeToEvents(func(event schema.DataEvent) {
		if event.Type == schema.EventError {
			select {
			case events <- event:
			default:
			}
		}
	}))

	require.NoError(t, e.Initialize(context.Background()))
	require.NoError(t, e.Start(context.Background()))

	f.emitError(exception.ErrFeedNotConnected)

	select {
	case event := <-events:
		assert.Equal(t, uint32(ErrCodeFeedFailure), event.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("no error event distributed")
	}

	require.NoError(t, e.Stop())
	assert.Equal(t, uint64(1), e.Metrics().FeedErrors())
}

func TestSubscribeToEventsNil(t *testing.T) {
	e, err := New(testConfig())
	require.NoError(t, err)
	assert.Equal(t, exception.ErrNilSubscriber, e.SubscribeToEvents(nil))
}

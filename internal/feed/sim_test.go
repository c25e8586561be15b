package feed

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickflow/internal/exception"
)

type captureHandler struct {
	mu      sync.Mutex
	updates []MarketUpdate
	errs    []error
}

func (h *captureHandler) OnMarketUpdate(feed string, update MarketUpdate) {
	h.mu.Lock()
	h.updates = append(h.updates, update)
	h.mu.Unlock()
}

func (h *captureHandler) OnOptionUpdate(feed string, update OptionUpdate) {}

func (h *captureHandler) OnBookUpdate(feed string, update BookUpdate) {}

func (h *captureHandler) OnFeedError(feed string, err error) {
	h.mu.Lock()
	h.errs = append(h.errs, err)
	h.mu.Unlock()
}

func (h *captureHandler) snapshot() []MarketUpdate {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]MarketUpdate, len(h.updates))
	copy(out, h.updates)
	return out
}

func TestSimFeedLifecycle(t *testing.T) {
	f := NewSimFeed(SimConfig{Symbols: []string{"AAPL"}})
	handler := &captureHandler{}

	assert.Equal(t, exception.ErrFeedNotConnected, f.Start(context.Background(), handler))

	require.NoError(t, f.Connect(context.Background()))
	assert.Equal(t, exception.ErrFeedAlreadyConnected, f.Connect(context.Background()))
	assert.True(t, f.IsConnected())

	require.NoError(t, f.Start(context.Background(), handler))
	assert.Equal(t, exception.ErrFeedAlreadyStarted, f.Start(context.Background(), handler))

	require.NoError(t, f.Stop())
	assert.Equal(t, exception.ErrFeedStopped, f.Stop())

	require.NoError(t, f.Disconnect())
	assert.False(t, f.IsConnected())
	assert.Equal(t, exception.ErrFeedNotConnected, f.Disconnect())
}

func TestSimFeedGeneratesValidQuotes(t *testing.T) {
	f := NewSimFeed(SimConfig{
		Symbols:  []string{"AAPL", "MSFT"},
		Interval: 100 * time.Microsecond,
		Seed:     1,
	})
	handler := &captureHandler{}

	require.NoError(t, f.Connect(context.Background()))
	require.NoError(t, f.Start(context.Background(), handler))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(handler.snapshot()) >= 20 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	require.NoError(t, f.Stop())

	updates := handler.snapshot()
	require.GreaterOrEqual(t, len(updates), 20)

	seen := map[string]bool{}
	for _, u := range updates {
		seen[u.Symbol] = true
		assert.Less(t, u.Bid, u.Ask, "quote must not be crossed")
		assert.GreaterOrEqual(t, u.Last, u.Bid)
		assert.LessOrEqual(t, u.Last, u.Ask)
		assert.NotZero(t, u.Volume)
		assert.NotZero(t, u.TsEvent)
	}
	assert.True(t, seen["AAPL"] && seen["MSFT"], "round robin must cover all symbols, saw %v", seen)
}

func TestSimFeedSubscriptionManagement(t *testing.T) {
	f := NewSimFeed(SimConfig{Symbols: []string{"AAPL"}})

	require.NoError(t, f.SubscribeSymbol("MSFT"))
	require.NoError(t, f.SubscribeSymbol("MSFT")) // idempotent
	require.NoError(t, f.UnsubscribeSymbol("AAPL"))
	assert.Equal(t, exception.ErrFeedUnknownSymbol, f.UnsubscribeSymbol("AAPL"))
}

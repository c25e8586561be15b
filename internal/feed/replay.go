package feed

import (
	"context"
	"sync"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tickflow/internal/codec"
	"tickflow/internal/exception"
	"tickflow/internal/recorder"
	"tickflow/internal/schema"
)

// ReplayConfig selects the segment directory and playback pace.
type ReplayConfig struct {
	Name     string
	Playback recorder.PlaybackConfig
}

// ReplayFeed re-delivers a recorded event stream as if it were live.
// Symbol names are rebuilt from the symbol records embedded in the
// segments, so replay does not depend on the recording process's id
// assignment order.
type ReplayFeed struct {
	name     string
	playback *recorder.Playback

	mu        sync.Mutex
	filter    map[string]bool
	connected bool
	started   bool
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewReplayFeed(cfg ReplayConfig) (*ReplayFeed, error) {
	if cfg.Name == "" {
		cfg.Name = "replay"
	}
	playback, err := recorder.NewPlayback(cfg.Playback)
	if err != nil {
		return nil, errors.Wrap(err, "create playback")
	}
	return &ReplayFeed{
		name:     cfg.Name,
		playback: playback,
		filter:   make(map[string]bool),
	}, nil
}

func (f *ReplayFeed) Name() string { return f.name }

func (f *ReplayFeed) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connected {
		return exception.ErrFeedAlreadyConnected
	}
	f.connected = true
	return nil
}

func (f *ReplayFeed) Disconnect() error {
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

func (f *ReplayFeed) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// SubscribeSymbol narrows replay to the given symbols. With no
// subscriptions every recorded symbol is delivered.
func (f *ReplayFeed) SubscribeSymbol(symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter[symbol] = true
	return nil
}

func (f *ReplayFeed) UnsubscribeSymbol(symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.filter[symbol] {
		return exception.ErrFeedUnknownSymbol
	}
	delete(f.filter, symbol)
	return nil
}

func (f *ReplayFeed) Start(ctx context.Context, handler Handler) error {
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
	return nil
}

func (f *ReplayFeed) Stop() error {
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

func (f *ReplayFeed) run(ctx context.Context, handler Handler, done chan struct{}) {
	defer close(done)

	names := make(map[uint32]string)
	err := f.playback.Run(ctx, func(header recorder.RecordHeader, payload []byte) error {
		switch header.Kind {
		case recorder.RecordSymbol:
			id, name, ok := recorder.DecodeSymbolPayload(payload)
			if !ok {
				return errors.New("malformed symbol record")
			}
			names[id] = name
			return nil
		case recorder.RecordEvent:
			event, ok := codec.DecodeEvent(payload)
			if !ok {
				return errors.New("malformed event record")
			}
			f.deliver(handler, names, event)
			return nil
		default:
			// unknown record kinds are skipped for forward compatibility
			return nil
		}
	})
	if err != nil && err != context.Canceled && ctx.Err() == nil {
		logs.Warn("replay stopped", "feed", f.name, "error", err)
		handler.OnFeedError(f.name, err)
	}
}

func (f *ReplayFeed) deliver(handler Handler, names map[uint32]string, event schema.DataEvent) {
	symbol := names[uint32(event.SymbolID)]
	if symbol == "" {
		return
	}
	if !f.wantSymbol(symbol) {
		return
	}

	if tick, ok := event.Market(); ok {
		if event.Type == schema.EventOrderBookUpdate {
			handler.OnBookUpdate(f.name, BookUpdate{
				Symbol:   symbol,
				Exchange: tick.Exchange,
				Bid:      tick.Bid,
				Ask:      tick.Ask,
				BidSize:  tick.BidSize,
				AskSize:  tick.AskSize,
				TsEvent:  tick.Timestamp,
			})
			return
		}
		handler.OnMarketUpdate(f.name, MarketUpdate{
			Symbol:   symbol,
			Exchange: tick.Exchange,
			Bid:      tick.Bid,
			Ask:      tick.Ask,
			Last:     tick.Last,
			BidSize:  tick.BidSize,
			AskSize:  tick.AskSize,
			Volume:   tick.Volume,
			TsEvent:  tick.Timestamp,
		})
		return
	}
	if tick, ok := event.Option(); ok {
		handler.OnOptionUpdate(f.name, OptionUpdate{
			Symbol:       symbol,
			Underlying:   names[uint32(tick.UnderlyingID)],
			Strike:       tick.Strike,
			Bid:          tick.Bid,
			Ask:          tick.Ask,
			Last:         tick.Last,
			ImpliedVol:   tick.ImpliedVol,
			Volume:       tick.Volume,
			OpenInterest: tick.OpenInterest,
			Expiration:   tick.Expiration,
			DaysToExpiry: tick.DaysToExpiry,
			Right:        tick.Right,
			Style:        tick.Style,
			TsEvent:      tick.Timestamp,
		})
	}
}

func (f *ReplayFeed) wantSymbol(symbol string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.filter) == 0 {
		return true
	}
	return f.filter[symbol]
}

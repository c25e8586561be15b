package engine

import (
	"context"
	"runtime"
	"time"

	"github.com/yanun0323/logs"

	"tickflow/internal/feed"
	"tickflow/internal/schema"
	"tickflow/internal/validate"
)

// Error codes carried by EventError events.
const (
	ErrCodeFeedFailure  = 1
	ErrCodeBadSymbol    = 2
	ErrCodeDroppedEvent = 3
)

// laneHandler adapts one feed's delivery callbacks onto its ring. It is
// driven by that feed's single delivery goroutine, so the per-symbol
// sequence map needs no lock and the ring sees exactly one producer.
type laneHandler struct {
	engine *Engine
	lane   *lane
	seq    map[schema.SymbolID]uint32
}

func newLaneHandler(e *Engine, l *lane) *laneHandler {
	return &laneHandler{
		engine: e,
		lane:   l,
		seq:    make(map[schema.SymbolID]uint32),
	}
}

func (h *laneHandler) OnMarketUpdate(feedName string, update feed.MarketUpdate) {
	e := h.engine
	if !e.cfg.EnableEquities {
		e.metrics.IncFiltered()
		return
	}

	id, err := e.interner.ID(update.Symbol)
	if err != nil {
		e.metrics.IncRejected()
		return
	}

	tick := schema.MarketTick{
		Timestamp: update.TsEvent,
		Bid:       update.Bid,
		Ask:       update.Ask,
		Last:      update.Last,
		SymbolID:  id,
		BidSize:   update.BidSize,
		AskSize:   update.AskSize,
		Volume:    update.Volume,
		Seq:       h.nextSeq(id),
		Exchange:  update.Exchange,
	}
	if tick.Timestamp == 0 {
		tick.Timestamp = schema.Now()
	}

	// best-effort previous tick; a missing one relaxes the jump rule only
	var prev *schema.MarketTick
	if last, ok := e.aggregator.LatestTick(id); ok {
		prev = &last
	}
	if reason := e.validator.Validate(tick, prev); reason != validate.ReasonNone {
		e.metrics.IncRejected()
		return
	}

	h.push(schema.NewMarketEvent(schema.Now(), tick))
}

func (h *laneHandler) OnOptionUpdate(feedName string, update feed.OptionUpdate) {
	e := h.engine
	if !e.cfg.EnableOptions {
		e.metrics.IncFiltered()
		return
	}

	id, err := e.interner.ID(update.Symbol)
	if err != nil {
		e.metrics.IncRejected()
		return
	}
	var underlyingID schema.SymbolID
	if update.Underlying != "" {
		if uid, err := e.interner.ID(update.Underlying); err == nil {
			underlyingID = uid
		}
	}

	tick := schema.OptionTick{
		Timestamp:    update.TsEvent,
		Strike:       update.Strike,
		Bid:          update.Bid,
		Ask:          update.Ask,
		Last:         update.Last,
		ImpliedVol:   update.ImpliedVol,
		SymbolID:     id,
		UnderlyingID: underlyingID,
		Volume:       update.Volume,
		OpenInterest: update.OpenInterest,
		Expiration:   update.Expiration,
		DaysToExpiry: update.DaysToExpiry,
		Right:        update.Right,
		Style:        update.Style,
	}
	if tick.Timestamp == 0 {
		tick.Timestamp = schema.Now()
	}

	h.push(schema.NewOptionEvent(schema.Now(), tick))
}

func (h *laneHandler) OnBookUpdate(feedName string, update feed.BookUpdate) {
	e := h.engine
	if !e.cfg.EnableLevel2 {
		e.metrics.IncFiltered()
		return
	}

	id, err := e.interner.ID(update.Symbol)
	if err != nil {
		e.metrics.IncRejected()
		return
	}
	// book refreshes carry no trade print, only the crossed-quote rule applies
	if update.Ask <= update.Bid {
		e.metrics.IncRejected()
		return
	}

	tick := schema.MarketTick{
		Timestamp: update.TsEvent,
		Bid:       update.Bid,
		Ask:       update.Ask,
		SymbolID:  id,
		BidSize:   update.BidSize,
		AskSize:   update.AskSize,
		Seq:       h.nextSeq(id),
		Exchange:  update.Exchange,
	}
	if tick.Timestamp == 0 {
		tick.Timestamp = schema.Now()
	}

	h.push(schema.NewBookEvent(schema.Now(), tick))
}

func (h *laneHandler) OnFeedError(feedName string, err error) {
	e := h.engine
	e.metrics.IncFeedError()
	logs.Warn("feed error", "feed", feedName, "error", err)
	// error events ride the ring but live outside the data accounting;
	// feed_errors is their counter
	if !h.lane.ring.Push(schema.NewErrorEvent(schema.Now(), 0, ErrCodeFeedFailure)) {
		logs.Warn("error event dropped", "feed", feedName)
	}
}

// nextSeq hands out the per-feed per-symbol sequence, starting at 1.
func (h *laneHandler) nextSeq(id schema.SymbolID) uint32 {
	next := h.seq[id] + 1
	h.seq[id] = next
	return next
}

// push enqueues onto the lane ring. A full ring is a counted drop, never
// a block: feed delivery must stay ahead of a slow consumer.
func (h *laneHandler) push(event schema.DataEvent) {
	if !h.lane.ring.Push(event) {
		h.engine.metrics.IncDropped()
	}
}

// distribute drains a set of lanes round-robin until the context ends,
// then drains the residue so Stop never strands queued events. Spins
// briefly when all lanes are empty, yields, then sleeps.
func (e *Engine) distribute(ctx context.Context, lanes []*lane) {
	const spinLimit = 64

	idle := 0
	for {
		worked := false
		for _, l := range lanes {
			event, ok := l.ring.Pop()
			if !ok {
				continue
			}
			e.dispatch(event)
			worked = true
		}

		if worked {
			idle = 0
			continue
		}

		select {
		case <-ctx.Done():
			e.drain(lanes)
			return
		default:
		}

		idle++
		switch {
		case idle < spinLimit:
		case idle < spinLimit*2:
			runtime.Gosched()
		default:
			time.Sleep(e.cfg.IdleSleep)
		}
	}
}

func (e *Engine) drain(lanes []*lane) {
	for _, l := range lanes {
		for {
			event, ok := l.ring.Pop()
			if !ok {
				break
			}
			e.dispatch(event)
		}
	}
}

// dispatch applies one event to the aggregator and fans it out.
func (e *Engine) dispatch(event schema.DataEvent) {
	if tick, ok := event.Market(); ok {
		e.aggregator.AddTick(tick)
	}
	e.metrics.ObserveDistribute(schema.Now().Sub(event.Timestamp))

	e.subsMu.RLock()
	subs := e.subs
	e.subsMu.RUnlock()
	for _, fn := range subs {
		fn(event)
	}

	if event.Type != schema.EventError {
		e.metrics.IncProcessed()
	}
}

// shardLanes splits lanes across workers so every ring keeps exactly
// one consumer goroutine.
func shardLanes(lanes []*lane, workers int) [][]*lane {
	if workers > len(lanes) {
		workers = len(lanes)
	}
	if workers < 1 {
		workers = 1
	}
	shards := make([][]*lane, workers)
	for i, l := range lanes {
		shards[i%workers] = append(shards[i%workers], l)
	}
	return shards
}

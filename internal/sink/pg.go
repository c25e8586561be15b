// Package sink contains downstream consumers of the distributed event
// stream: relational history, a latest-value cache and durable segments.
// Every sink exposes a non-blocking Handle so the distribution goroutine
// never waits on I/O.
package sink

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"tickflow/internal/schema"
)

// TickRow is the relational projection of one market tick.
type TickRow struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	Symbol    string `gorm:"index:idx_ticks_symbol_ts,priority:1;size:16"`
	Ts        int64  `gorm:"index:idx_ticks_symbol_ts,priority:2"`
	Bid       int64
	Ask       int64
	Last      int64
	BidSize   uint32
	AskSize   uint32
	Volume    uint32
	Seq       uint32
	Exchange  uint32
	CreatedAt time.Time
}

func (TickRow) TableName() string { return "ticks" }

// PGConfig controls the relational sink.
type PGConfig struct {
	DSN           string
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
}

func (c PGConfig) withDefaults() PGConfig {
	if c.QueueSize == 0 {
		c.QueueSize = 8192
	}
	if c.BatchSize == 0 {
		c.BatchSize = 500
	}
	if c.FlushInterval == 0 {
		c.FlushInterval = time.Second
	}
	return c
}

// PGSink batches market ticks into PostgreSQL. A full queue is a counted
// drop, never a stall.
type PGSink struct {
	cfg      PGConfig
	db       *gorm.DB
	interner *schema.Interner
	ch       chan TickRow
	dropped  atomic.Uint64
	wg       sync.WaitGroup
	closed   atomic.Bool
}

// NewPGSink opens the connection, migrates the schema and starts the
// batch writer goroutine.
func NewPGSink(ctx context.Context, cfg PGConfig, interner *schema.Interner) (*PGSink, error) {
	cfg = cfg.withDefaults()
	if cfg.DSN == "" {
		return nil, errors.New("postgres sink requires a DSN")
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{})
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	if err := db.WithContext(ctx).AutoMigrate(&TickRow{}); err != nil {
		return nil, errors.Wrap(err, "migrate ticks table")
	}

	s := &PGSink{
		cfg:      cfg,
		db:       db,
		interner: interner,
		ch:       make(chan TickRow, cfg.QueueSize),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
	return s, nil
}

// Handle implements the engine subscriber signature.
func (s *PGSink) Handle(event schema.DataEvent) {
	tick, ok := event.Market()
	if !ok {
		return
	}
	row := TickRow{
		Symbol:   s.interner.Symbol(tick.SymbolID),
		Ts:       int64(tick.Timestamp),
		Bid:      int64(tick.Bid),
		Ask:      int64(tick.Ask),
		Last:     int64(tick.Last),
		BidSize:  tick.BidSize,
		AskSize:  tick.AskSize,
		Volume:   tick.Volume,
		Seq:      tick.Seq,
		Exchange: uint32(tick.Exchange),
	}

	select {
	case s.ch <- row:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns the number of rows shed due to a full queue.
func (s *PGSink) Dropped() uint64 { return s.dropped.Load() }

// Close flushes pending rows and releases the connection pool.
func (s *PGSink) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(s.ch)
	s.wg.Wait()

	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *PGSink) run(ctx context.Context) {
	batch := make([]TickRow, 0, s.cfg.BatchSize)
	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := s.db.WithContext(ctx).CreateInBatches(batch, s.cfg.BatchSize).Error; err != nil {
			logs.Warn("postgres sink flush failed", "rows", len(batch), "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case row, ok := <-s.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, row)
			if len(batch) >= s.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

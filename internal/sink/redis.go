package sink

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tickflow/internal/schema"
)

// RedisConfig controls the latest-value cache and stream publisher.
type RedisConfig struct {
	URL       string
	Password  string
	StreamKey string
	KeyPrefix string
	TTL       time.Duration
	QueueSize int
	MaxLen    int64
}

func (c RedisConfig) withDefaults() RedisConfig {
	if c.StreamKey == "" {
		c.StreamKey = "tickflow:ticks"
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "tick:"
	}
	if c.TTL == 0 {
		c.TTL = 5 * time.Minute
	}
	if c.QueueSize == 0 {
		c.QueueSize = 8192
	}
	if c.MaxLen == 0 {
		c.MaxLen = 100_000
	}
	return c
}

// RedisSink keeps the latest tick per symbol under tick:{symbol} and
// appends every tick to a capped stream for downstream consumers.
type RedisSink struct {
	cfg      RedisConfig
	client   *redis.Client
	interner *schema.Interner
	ch       chan schema.MarketTick
	dropped  atomic.Uint64
	wg       sync.WaitGroup
	closed   atomic.Bool
}

// NewRedisSink connects, verifies with a ping and starts the publisher
// goroutine.
func NewRedisSink(ctx context.Context, cfg RedisConfig, interner *schema.Interner) (*RedisSink, error) {
	cfg = cfg.withDefaults()

	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	if cfg.Password != "" {
		opt.Password = cfg.Password
	}

	client := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, errors.Wrap(err, "redis ping")
	}

	s := &RedisSink{
		cfg:      cfg,
		client:   client,
		interner: interner,
		ch:       make(chan schema.MarketTick, cfg.QueueSize),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
	return s, nil
}

// Handle implements the engine subscriber signature.
func (s *RedisSink) Handle(event schema.DataEvent) {
	tick, ok := event.Market()
	if !ok {
		return
	}
	select {
	case s.ch <- tick:
	default:
		s.dropped.Add(1)
	}
}

// Dropped returns the number of ticks shed due to a full queue.
func (s *RedisSink) Dropped() uint64 { return s.dropped.Load() }

// Close drains the queue and closes the connection.
func (s *RedisSink) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(s.ch)
	s.wg.Wait()
	return s.client.Close()
}

func (s *RedisSink) run(ctx context.Context) {
	for tick := range s.ch {
		if err := s.publish(ctx, tick); err != nil && ctx.Err() == nil {
			logs.Warn("redis sink publish failed", "symbol", tick.SymbolID, "error", err)
		}
	}
}

func (s *RedisSink) publish(ctx context.Context, tick schema.MarketTick) error {
	symbol := s.interner.Symbol(tick.SymbolID)
	if symbol == "" {
		return nil
	}

	values := map[string]any{
		"symbol":   symbol,
		"ts":       int64(tick.Timestamp),
		"bid":      tick.Bid.String(),
		"ask":      tick.Ask.String(),
		"last":     tick.Last.String(),
		"bid_size": tick.BidSize,
		"ask_size": tick.AskSize,
		"volume":   tick.Volume,
		"seq":      tick.Seq,
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, s.cfg.KeyPrefix+symbol, values)
	pipe.Expire(ctx, s.cfg.KeyPrefix+symbol, s.cfg.TTL)
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: s.cfg.StreamKey,
		MaxLen: s.cfg.MaxLen,
		Approx: true,
		Values: values,
	})
	_, err := pipe.Exec(ctx)
	return err
}

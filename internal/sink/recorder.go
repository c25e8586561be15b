package sink

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/yanun0323/errors"

	"tickflow/internal/codec"
	"tickflow/internal/recorder"
	"tickflow/internal/schema"
)

// RecorderSink persists the event stream into CRC-framed segments. A
// symbol mapping record is written before a symbol's first event so
// replay can rebuild names without the original interner.
type RecorderSink struct {
	writer   *recorder.Writer
	interner *schema.Interner

	mu      sync.Mutex
	known   map[schema.SymbolID]bool
	buf     []byte
	seq     uint64
	dropped atomic.Uint64
}

// NewRecorderSink creates the segment writer and starts its loop.
func NewRecorderSink(ctx context.Context, cfg recorder.Config, interner *schema.Interner) (*RecorderSink, error) {
	writer, err := recorder.NewWriter(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "create segment writer")
	}
	if err := writer.Start(ctx); err != nil {
		return nil, errors.Wrap(err, "start segment writer")
	}
	return &RecorderSink{
		writer:   writer,
		interner: interner,
		known:    make(map[schema.SymbolID]bool),
	}, nil
}

// Handle implements the engine subscriber signature. Encoding happens
// under a short lock; the disk write is handed to the writer queue.
func (s *RecorderSink) Handle(event schema.DataEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.SymbolID != 0 && !s.known[event.SymbolID] {
		if s.writeSymbol(event.SymbolID) {
			s.known[event.SymbolID] = true
		}
	}

	s.seq++
	s.buf = codec.EncodeEvent(s.buf, event)
	header := recorder.RecordHeader{
		Kind: recorder.RecordEvent,
		Seq:  s.seq,
		Ts:   int64(event.Timestamp),
	}
	if err := s.writer.TryAppend(header, s.buf); err != nil {
		s.dropped.Add(1)
	}
}

func (s *RecorderSink) writeSymbol(id schema.SymbolID) bool {
	name := s.interner.Symbol(id)
	if name == "" {
		return false
	}
	s.seq++
	s.buf = recorder.EncodeSymbolPayload(s.buf, uint32(id), name)
	header := recorder.RecordHeader{Kind: recorder.RecordSymbol, Seq: s.seq}
	return s.writer.TryAppend(header, s.buf) == nil
}

// Dropped returns the number of records shed due to a full queue.
func (s *RecorderSink) Dropped() uint64 { return s.dropped.Load() }

// Close flushes and closes the segment writer.
func (s *RecorderSink) Close() error {
	return s.writer.Close()
}

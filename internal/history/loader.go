// Package history loads recorded tick data from CSV exports and derives
// per-symbol summary statistics for offline analysis.
package history

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tickflow/internal/schema"
)

// Expected column order. A header row is detected and skipped.
var columns = []string{"timestamp", "symbol", "bid", "ask", "last", "bid_size", "ask_size", "volume"}

// Row is one parsed CSV line, before symbol interning.
type Row struct {
	Symbol  string
	Tick    schema.MarketTick
	TsEvent schema.Timestamp
}

// Stats summarizes one symbol's loaded rows.
type Stats struct {
	Records  int
	MinLast  schema.Price
	MaxLast  schema.Price
	SumLast  int64
	First    schema.Timestamp
	LastSeen schema.Timestamp
}

// AvgLast is the arithmetic mean of Last over the loaded rows.
func (s Stats) AvgLast() schema.Price {
	if s.Records == 0 {
		return 0
	}
	return schema.Price(s.SumLast / int64(s.Records))
}

// Loader reads tick CSVs and accumulates per-symbol stats across files.
type Loader struct {
	interner *schema.Interner
	rows     []Row
	stats    map[string]*Stats
	skipped  int
}

func NewLoader(interner *schema.Interner) *Loader {
	return &Loader{
		interner: interner,
		stats:    make(map[string]*Stats),
	}
}

// LoadFile parses one CSV file. Malformed lines are skipped and counted,
// not fatal; a malformed file structure is.
func (l *Loader) LoadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open history file")
	}
	defer file.Close()

	if err := l.load(file); err != nil {
		return errors.Wrap(err, "load history file").With("path", path)
	}
	logs.Info("history file loaded", "path", path, "rows", len(l.rows), "skipped", l.skipped)
	return nil
}

func (l *Loader) load(r io.Reader) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(columns)
	reader.ReuseRecord = true

	first := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if first {
			first = false
			if record[0] == columns[0] {
				continue
			}
		}

		row, err := parseRow(record)
		if err != nil {
			l.skipped++
			continue
		}
		if _, err := l.interner.ID(row.Symbol); err != nil {
			l.skipped++
			continue
		}
		l.append(row)
	}
}

func parseRow(record []string) (Row, error) {
	ts, err := time.Parse(time.RFC3339Nano, record[0])
	if err != nil {
		return Row{}, err
	}
	symbol := record[1]

	bid, err := schema.ParsePrice(record[2])
	if err != nil {
		return Row{}, err
	}
	ask, err := schema.ParsePrice(record[3])
	if err != nil {
		return Row{}, err
	}
	last, err := schema.ParsePrice(record[4])
	if err != nil {
		return Row{}, err
	}

	bidSize, err := strconv.ParseUint(record[5], 10, 32)
	if err != nil {
		return Row{}, err
	}
	askSize, err := strconv.ParseUint(record[6], 10, 32)
	if err != nil {
		return Row{}, err
	}
	volume, err := strconv.ParseUint(record[7], 10, 32)
	if err != nil {
		return Row{}, err
	}

	tsEvent := schema.Timestamp(ts.UnixNano())
	return Row{
		Symbol: symbol,
		Tick: schema.MarketTick{
			Timestamp: tsEvent,
			Bid:       bid,
			Ask:       ask,
			Last:      last,
			BidSize:   uint32(bidSize),
			AskSize:   uint32(askSize),
			Volume:    uint32(volume),
		},
		TsEvent: tsEvent,
	}, nil
}

func (l *Loader) append(row Row) {
	if id, ok := l.interner.Lookup(row.Symbol); ok {
		row.Tick.SymbolID = id
	}
	l.rows = append(l.rows, row)

	s := l.stats[row.Symbol]
	if s == nil {
		s = &Stats{MinLast: row.Tick.Last, MaxLast: row.Tick.Last, First: row.TsEvent}
		l.stats[row.Symbol] = s
	}
	s.Records++
	s.SumLast += int64(row.Tick.Last)
	if row.Tick.Last < s.MinLast {
		s.MinLast = row.Tick.Last
	}
	if row.Tick.Last > s.MaxLast {
		s.MaxLast = row.Tick.Last
	}
	if row.TsEvent < s.First {
		s.First = row.TsEvent
	}
	if row.TsEvent > s.LastSeen {
		s.LastSeen = row.TsEvent
	}
}

// Rows returns the loaded rows in file order.
func (l *Loader) Rows() []Row { return l.rows }

// Stats returns the accumulated stats for a symbol.
func (l *Loader) Stats(symbol string) (Stats, bool) {
	s, ok := l.stats[symbol]
	if !ok {
		return Stats{}, false
	}
	return *s, true
}

// Symbols returns the set of symbols seen so far, in no particular order.
func (l *Loader) Symbols() []string {
	out := make([]string, 0, len(l.stats))
	for symbol := range l.stats {
		out = append(out, symbol)
	}
	return out
}

// Skipped returns the number of malformed or invalid lines dropped.
func (l *Loader) Skipped() int { return l.skipped }

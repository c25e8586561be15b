// Command replay inspects recorded segment directories: it re-reads the
// stream, rebuilds the symbol mapping and prints per-symbol statistics.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/yanun0323/logs"

	"tickflow/internal/codec"
	"tickflow/internal/recorder"
	"tickflow/internal/schema"
)

type symbolStats struct {
	name    string
	events  int
	minLast schema.Price
	maxLast schema.Price
	lastTs  schema.Timestamp
}

func main() {
	if err := run(); err != nil {
		logs.Error("replay exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	dirFlag := flag.String("dir", "", "segment directory")
	prefixFlag := flag.String("prefix", "ticks", "segment file prefix")
	speedFlag := flag.Float64("speed", 0, "playback speed; 0 replays as fast as possible")
	noVerifyFlag := flag.Bool("no-verify", false, "skip checksum verification")
	flag.Parse()

	if *dirFlag == "" {
		return fmt.Errorf("missing segment directory; use -dir")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	playback, err := recorder.NewPlayback(recorder.PlaybackConfig{
		Dir:             *dirFlag,
		FilePrefix:      *prefixFlag,
		Speed:           *speedFlag,
		DisableChecksum: *noVerifyFlag,
	})
	if err != nil {
		return err
	}

	names := make(map[uint32]string)
	stats := make(map[schema.SymbolID]*symbolStats)
	var total, malformed int

	err = playback.Run(ctx, func(header recorder.RecordHeader, payload []byte) error {
		switch header.Kind {
		case recorder.RecordSymbol:
			id, name, ok := recorder.DecodeSymbolPayload(payload)
			if !ok {
				malformed++
				return nil
			}
			names[id] = name
		case recorder.RecordEvent:
			total++
			event, ok := codec.DecodeEvent(payload)
			if !ok {
				malformed++
				return nil
			}
			record(stats, names, event)
		}
		return nil
	})
	if err != nil && ctx.Err() == nil {
		return err
	}

	report(stats, total, malformed)
	return nil
}

func record(stats map[schema.SymbolID]*symbolStats, names map[uint32]string, event schema.DataEvent) {
	tick, ok := event.Market()
	if !ok {
		return
	}
	s := stats[tick.SymbolID]
	if s == nil {
		s = &symbolStats{
			name:    names[uint32(tick.SymbolID)],
			minLast: tick.Last,
			maxLast: tick.Last,
		}
		stats[tick.SymbolID] = s
	}
	s.events++
	if tick.Last < s.minLast {
		s.minLast = tick.Last
	}
	if tick.Last > s.maxLast {
		s.maxLast = tick.Last
	}
	if tick.Timestamp > s.lastTs {
		s.lastTs = tick.Timestamp
	}
}

func report(stats map[schema.SymbolID]*symbolStats, total, malformed int) {
	rows := make([]*symbolStats, 0, len(stats))
	for _, s := range stats {
		rows = append(rows, s)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].name < rows[j].name })

	fmt.Printf("events=%d symbols=%d malformed=%d\n", total, len(rows), malformed)
	for _, s := range rows {
		fmt.Printf("  %-12s events=%-8d last=[%s, %s] as_of=%s\n",
			s.name, s.events, s.minLast, s.maxLast, s.lastTs.Time().Format("2006-01-02T15:04:05.000Z07:00"))
	}
}

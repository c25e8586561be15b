package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/joho/godotenv"
	"github.com/yanun0323/logs"

	"tickflow/internal/api"
	"tickflow/internal/engine"
	"tickflow/internal/feed"
	"tickflow/internal/instrumentation"
	"tickflow/internal/ops"
	"tickflow/internal/recorder"
	"tickflow/internal/sink"
)

func main() {
	if err := run(); err != nil {
		logs.Error("pipeline exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := ops.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.PyroscopeURL != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: cfg.AppName,
			ServerAddress:   cfg.PyroscopeURL,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			return err
		}
		defer func() { _ = profiler.Stop() }()
	}

	e, err := engine.New(cfg.EngineConfig())
	if err != nil {
		return err
	}

	src, err := buildFeed(cfg)
	if err != nil {
		return err
	}
	if err := e.AddFeed(src); err != nil {
		return err
	}

	closers, err := attachSinks(ctx, cfg, e)
	defer func() {
		for _, closeSink := range closers {
			if err := closeSink(); err != nil {
				logs.Warn("sink close failed", "error", err)
			}
		}
	}()
	if err != nil {
		return err
	}

	instrumentation.NewMetrics(e.Metrics())

	if err := e.Initialize(ctx); err != nil {
		return err
	}
	if err := e.SubscribeSymbols(cfg.Symbols); err != nil {
		return err
	}
	if err := e.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := e.Shutdown(); err != nil {
			logs.Warn("engine shutdown failed", "error", err)
		}
	}()

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.NewServer(e).Handler(),
	}
	go func() {
		logs.Info("api listening", "addr", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logs.Error("api server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logs.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logs.Warn("api shutdown failed", "error", err)
	}
	return nil
}

func buildFeed(cfg ops.Config) (feed.Feed, error) {
	switch cfg.FeedKind {
	case "binance":
		return feed.NewBinanceFeed(feed.BinanceConfig{URL: cfg.FeedURL, Exchange: 2}), nil
	case "replay":
		return feed.NewReplayFeed(feed.ReplayConfig{
			Playback: recorder.PlaybackConfig{
				Dir:        cfg.RecordDir,
				FilePrefix: cfg.RecordFilePrefix,
				Speed:      1,
			},
		})
	default:
		return feed.NewSimFeed(feed.SimConfig{
			Exchange: ops.SimExchange,
			Symbols:  cfg.Symbols,
			Interval: cfg.SimInterval,
			Seed:     cfg.SimSeed,
		}), nil
	}
}

// attachSinks wires the configured sinks as engine subscribers and
// returns their closers in close order.
func attachSinks(ctx context.Context, cfg ops.Config, e *engine.Engine) ([]func() error, error) {
	var closers []func() error

	if cfg.RecordDir != "" && cfg.FeedKind != "replay" {
		rec, err := sink.NewRecorderSink(ctx, cfg.RecorderConfig(), e.Interner())
		if err != nil {
			return closers, err
		}
		closers = append(closers, rec.Close)
		if err := e.SubscribeToEvents(rec.Handle); err != nil {
			return closers, err
		}
	}

	if cfg.PostgresDSN != "" {
		pg, err := sink.NewPGSink(ctx, cfg.PGConfig(), e.Interner())
		if err != nil {
			return closers, err
		}
		closers = append(closers, pg.Close)
		if err := e.SubscribeToEvents(pg.Handle); err != nil {
			return closers, err
		}
	}

	if cfg.RedisURL != "" {
		rd, err := sink.NewRedisSink(ctx, cfg.RedisConfig(), e.Interner())
		if err != nil {
			return closers, err
		}
		closers = append(closers, rd.Close)
		if err := e.SubscribeToEvents(rd.Handle); err != nil {
			return closers, err
		}
	}

	return closers, nil
}

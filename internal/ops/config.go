// Package ops resolves runtime configuration from the environment into
// the concrete component configs the binaries wire together.
package ops

import (
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/yanun0323/errors"

	"tickflow/internal/engine"
	"tickflow/internal/recorder"
	"tickflow/internal/schema"
	"tickflow/internal/sink"
	"tickflow/internal/validate"
)

// Config is the environment-facing layout. The symbol universe is
// runtime data, not a compiled-in list.
type Config struct {
	// Pipeline
	Workers        int      `env:"WORKERS" envDefault:"4"`
	BufferCapacity int      `env:"BUFFER_CAPACITY" envDefault:"1048576"`
	Symbols        []string `env:"SYMBOLS" envSeparator:"," envDefault:"AAPL,MSFT,GOOGL,TSLA"`
	EnableEquities bool     `env:"ENABLE_EQUITIES" envDefault:"true"`
	EnableOptions  bool     `env:"ENABLE_OPTIONS" envDefault:"true"`
	EnableLevel2   bool     `env:"ENABLE_LEVEL2" envDefault:"true"`
	EnableNews     bool     `env:"ENABLE_NEWS" envDefault:"false"`

	// Validation thresholds
	MaxPriceChangePct float64 `env:"MAX_PRICE_CHANGE_PCT" envDefault:"20"`
	MaxSpreadPct      float64 `env:"MAX_SPREAD_PCT" envDefault:"5"`
	MinVolume         uint32  `env:"MIN_VOLUME" envDefault:"1"`
	MaxVolume         uint32  `env:"MAX_VOLUME" envDefault:"1000000000"`

	// Analytics
	AggregatorWindow int     `env:"AGGREGATOR_WINDOW" envDefault:"64"`
	PeriodsPerYear   float64 `env:"PERIODS_PER_YEAR" envDefault:"252"`

	// Feeds
	FeedKind    string        `env:"FEED" envDefault:"sim"` // sim | binance | replay
	FeedURL     string        `env:"FEED_URL"`
	SimInterval time.Duration `env:"SIM_INTERVAL" envDefault:"1ms"`
	SimSeed     int64         `env:"SIM_SEED" envDefault:"42"`

	// HTTP API
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`

	// Recorder
	RecordDir        string `env:"RECORD_DIR"`
	RecordMaxBytes   int64  `env:"RECORD_MAX_BYTES" envDefault:"268435456"`
	RecordFilePrefix string `env:"RECORD_FILE_PREFIX" envDefault:"ticks"`

	// Relational sink
	PostgresDSN string `env:"POSTGRES_DSN"`

	// Cache sink
	RedisURL      string `env:"REDIS_URL"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisStream   string `env:"REDIS_STREAM" envDefault:"tickflow:ticks"`

	// Profiling
	PyroscopeURL string `env:"PYROSCOPE_URL"`
	AppName      string `env:"APP_NAME" envDefault:"tickflow"`
}

// Load parses the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse environment")
	}
	for i := range cfg.Symbols {
		cfg.Symbols[i] = strings.TrimSpace(cfg.Symbols[i])
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine would refuse anyway, with
// better messages.
func (c Config) Validate() error {
	if c.Workers < 1 {
		return errors.New("WORKERS must be >= 1")
	}
	if c.BufferCapacity < 2 || c.BufferCapacity&(c.BufferCapacity-1) != 0 {
		return errors.New("BUFFER_CAPACITY must be a power of two >= 2")
	}
	if len(c.Symbols) == 0 {
		return errors.New("SYMBOLS must name at least one symbol")
	}
	for _, symbol := range c.Symbols {
		if symbol == "" {
			return errors.New("SYMBOLS contains an empty entry")
		}
	}
	if c.AggregatorWindow < 2 {
		return errors.New("AGGREGATOR_WINDOW must be >= 2")
	}
	switch c.FeedKind {
	case "sim", "binance", "replay":
	default:
		return errors.Errorf("unknown FEED %q", c.FeedKind)
	}
	if c.FeedKind == "replay" && c.RecordDir == "" {
		return errors.New("FEED=replay requires RECORD_DIR")
	}
	return nil
}

// EngineConfig maps the environment onto the engine configuration.
func (c Config) EngineConfig() engine.Config {
	cfg := engine.DefaultConfig()
	cfg.Workers = c.Workers
	cfg.BufferCapacity = c.BufferCapacity
	cfg.EnableEquities = c.EnableEquities
	cfg.EnableOptions = c.EnableOptions
	cfg.EnableLevel2 = c.EnableLevel2
	cfg.EnableNews = c.EnableNews
	cfg.Rules = validate.Rules{
		MaxPriceChangePct: c.MaxPriceChangePct,
		MaxSpreadPct:      c.MaxSpreadPct,
		MinVolume:         c.MinVolume,
		MaxVolume:         c.MaxVolume,
	}
	cfg.AggregatorWindow = c.AggregatorWindow
	cfg.PeriodsPerYear = c.PeriodsPerYear
	return cfg
}

// RecorderConfig builds the segment writer config. Only meaningful when
// RecordDir is set.
func (c Config) RecorderConfig() recorder.Config {
	cfg := recorder.DefaultConfig(c.RecordDir)
	cfg.SegmentMaxBytes = c.RecordMaxBytes
	cfg.FilePrefix = c.RecordFilePrefix
	return cfg
}

// RedisConfig builds the cache sink config. Only meaningful when
// RedisURL is set.
func (c Config) RedisConfig() sink.RedisConfig {
	return sink.RedisConfig{
		URL:       c.RedisURL,
		Password:  c.RedisPassword,
		StreamKey: c.RedisStream,
	}
}

// PGConfig builds the relational sink config. Only meaningful when
// PostgresDSN is set.
func (c Config) PGConfig() sink.PGConfig {
	return sink.PGConfig{DSN: c.PostgresDSN}
}

// SimExchange is the venue id reported by the synthetic feed.
const SimExchange schema.ExchangeID = 1

// Package api exposes the read side of the pipeline over HTTP: latest
// ticks, derived analytics and pipeline statistics.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yanun0323/logs"

	"tickflow/internal/engine"
	"tickflow/internal/schema"
)

// Server serves the query API for one engine.
type Server struct {
	engine *engine.Engine
	router chi.Router
}

func NewServer(e *engine.Engine) *Server {
	s := &Server{engine: e}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Get("/symbols", s.handleSymbols)
		r.Route("/ticks/{symbol}", func(r chi.Router) {
			r.Get("/", s.handleLatest)
			r.Get("/history", s.handleHistory)
			r.Get("/vwap", s.handleVWAP)
			r.Get("/volatility", s.handleVolatility)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for mounting into an http.Server.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.engine.State()
	status := http.StatusOK
	if state == engine.StateError {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{"state": state.String()})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Metrics().Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"state":             s.engine.State().String(),
		"events_processed":  snap.EventsProcessed,
		"events_dropped":    snap.EventsDropped,
		"ticks_rejected":    snap.TicksRejected,
		"ticks_filtered":    snap.TicksFiltered,
		"feed_errors":       snap.FeedErrors,
		"processing_rate":   snap.ProcessingRate,
		"symbols":           s.engine.Interner().Count(),
		"distribute_avg_us": snap.DistributeLatency.Avg.Microseconds(),
		"distribute_max_us": snap.DistributeLatency.Max.Microseconds(),
	})
}

func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	interner := s.engine.Interner()
	count := interner.Count()
	symbols := make([]string, 0, count)
	for id := 1; id <= count; id++ {
		if name := interner.Symbol(schema.SymbolID(id)); name != "" {
			symbols = append(symbols, name)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"symbols": symbols})
}

type tickResponse struct {
	Symbol   string  `json:"symbol"`
	Ts       int64   `json:"ts"`
	Bid      string  `json:"bid"`
	Ask      string  `json:"ask"`
	Last     string  `json:"last"`
	Mid      string  `json:"mid"`
	Spread   float64 `json:"spread_pct"`
	BidSize  uint32  `json:"bid_size"`
	AskSize  uint32  `json:"ask_size"`
	Volume   uint32  `json:"volume"`
	Seq      uint32  `json:"seq"`
	Exchange uint32  `json:"exchange"`
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	tick, ok := s.engine.LatestMarketData(symbol)
	if !ok {
		writeError(w, http.StatusNotFound, "no data for symbol")
		return
	}
	writeJSON(w, http.StatusOK, tickResponse{
		Symbol:   symbol,
		Ts:       int64(tick.Timestamp),
		Bid:      tick.Bid.String(),
		Ask:      tick.Ask.String(),
		Last:     tick.Last.String(),
		Mid:      tick.Midpoint().String(),
		Spread:   tick.SpreadPct(),
		BidSize:  tick.BidSize,
		AskSize:  tick.AskSize,
		Volume:   tick.Volume,
		Seq:      tick.Seq,
		Exchange: uint32(tick.Exchange),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	count := queryInt(r, "count", 64)
	history := s.engine.PriceHistory(symbol, count)
	if history == nil {
		writeError(w, http.StatusNotFound, "no data for symbol")
		return
	}
	prices := make([]string, 0, len(history))
	for _, p := range history {
		prices = append(prices, p.String())
	}
	writeJSON(w, http.StatusOK, map[string]any{"symbol": symbol, "mids": prices})
}

func (s *Server) handleVWAP(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	window := queryInt(r, "window", 0)
	vwap, ok := s.engine.VWAP(symbol, window)
	if !ok {
		writeError(w, http.StatusNotFound, "vwap unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"symbol": symbol, "vwap": vwap.String()})
}

func (s *Server) handleVolatility(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	window := queryInt(r, "window", 0)
	vol, ok := s.engine.Volatility(symbol, window)
	if !ok {
		writeError(w, http.StatusNotFound, "volatility unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"symbol": symbol, "volatility": vol})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logs.Warn("write response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

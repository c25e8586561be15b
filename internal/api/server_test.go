package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickflow/internal/engine"
	"tickflow/internal/schema"
)

func testServer(t *testing.T) (*engine.Engine, *httptest.Server) {
	t.Helper()

	cfg := engine.DefaultConfig()
	cfg.BufferCapacity = 1 << 10
	e, err := engine.New(cfg)
	require.NoError(t, err)

	server := httptest.NewServer(NewServer(e).Handler())
	t.Cleanup(server.Close)
	return e, server
}

func seedTicks(t *testing.T, e *engine.Engine) {
	t.Helper()
	id, err := e.Interner().ID("AAPL")
	require.NoError(t, err)
	for i, mid := range []float64{100.00, 101.00, 99.00} {
		volume := uint32(100)
		if i == 1 {
			volume = 200
		}
		p := schema.PriceFromFloat(mid)
		e.Aggregator().AddTick(schema.MarketTick{
			Timestamp: schema.Now(),
			Bid:       p - 50,
			Ask:       p + 50,
			Last:      p,
			SymbolID:  id,
			Volume:    volume,
			Seq:       uint32(i + 1),
		})
	}
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	_, server := testServer(t)

	var body map[string]string
	status := getJSON(t, server.URL+"/healthz", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "idle", body["state"])
}

func TestLatestTickEndpoint(t *testing.T) {
	e, server := testServer(t)
	seedTicks(t, e)

	var body map[string]any
	status := getJSON(t, server.URL+"/api/v1/ticks/AAPL/", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "AAPL", body["symbol"])
	assert.Equal(t, "99.0000", body["last"])
	assert.Equal(t, float64(3), body["seq"])

	status = getJSON(t, server.URL+"/api/v1/ticks/NOPE/", &body)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestVWAPEndpoint(t *testing.T) {
	e, server := testServer(t)
	seedTicks(t, e)

	var body map[string]any
	status := getJSON(t, server.URL+"/api/v1/ticks/AAPL/vwap", &body)
	assert.Equal(t, http.StatusOK, status)
	// (100*100 + 101*200 + 99*100) / 400
	assert.Equal(t, "100.2500", body["vwap"])
}

func TestHistoryEndpoint(t *testing.T) {
	e, server := testServer(t)
	seedTicks(t, e)

	var body struct {
		Symbol string   `json:"symbol"`
		Mids   []string `json:"mids"`
	}
	status := getJSON(t, server.URL+"/api/v1/ticks/AAPL/history?count=2", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{"101.0000", "99.0000"}, body.Mids)
}

func TestStatsEndpoint(t *testing.T) {
	e, server := testServer(t)
	seedTicks(t, e)

	var body map[string]any
	status := getJSON(t, server.URL+"/api/v1/stats", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "idle", body["state"])
	assert.Equal(t, float64(1), body["symbols"])
}

func TestSymbolsEndpoint(t *testing.T) {
	e, server := testServer(t)
	seedTicks(t, e)

	var body struct {
		Symbols []string `json:"symbols"`
	}
	status := getJSON(t, server.URL+"/api/v1/symbols", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, []string{"AAPL"}, body.Symbols)
}

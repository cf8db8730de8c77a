package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/orbitcex/depthbook/internal/metrics"
	"github.com/orbitcex/depthbook/internal/orderbook"
	"github.com/orbitcex/depthbook/internal/sequencer"
	"github.com/orbitcex/depthbook/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// syncedFetcher resolves every rebuild immediately with an empty book so the
// sequencers report healthy.
type syncedFetcher struct{ seq uint64 }

func (f syncedFetcher) FetchSnapshot(_ context.Context, instrument string) (models.BookSnapshot, error) {
	return models.BookSnapshot{Instrument: instrument, Sequence: f.seq}, nil
}

func newTestServer(t *testing.T) (*Server, *orderbook.Manager, *sequencer.Group) {
	t.Helper()
	mgr := orderbook.NewManager([]string{"BTC-USD"}, zap.NewNop())
	group := sequencer.NewGroup(mgr, syncedFetcher{}, sequencer.Config{}, zap.NewNop(), metrics.NewNop())
	srv := NewServer(zap.NewNop(), mgr, group, []float64{0.01}, prometheus.NewRegistry())
	return srv, mgr, group
}

func seedBook(t *testing.T, mgr *orderbook.Manager) *orderbook.OrderBook {
	t.Helper()
	book, ok := mgr.Book("BTC-USD")
	require.True(t, ok)
	require.NoError(t, book.ApplyRebuildSnapshot(models.BookSnapshot{
		Instrument: "BTC-USD", Sequence: 9,
		Bids: []models.BookLevelEntry{{Price: 100, Size: 1, OrderID: "b1"}},
		Asks: []models.BookLevelEntry{{Price: 101, Size: 2, OrderID: "a1"}},
	}))
	return book
}

func doRequest(srv *Server, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestBBOEndpoint(t *testing.T) {
	srv, mgr, _ := newTestServer(t)
	seedBook(t, mgr)

	rec := doRequest(srv, "/api/v1/bbo/BTC-USD")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Instrument string   `json:"instrument"`
		Sequence   uint64   `json:"sequence"`
		BidPrice   *float64 `json:"bid_price"`
		BidSize    *float64 `json:"bid_size"`
		AskPrice   *float64 `json:"ask_price"`
		AskSize    *float64 `json:"ask_size"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "BTC-USD", body.Instrument)
	assert.Equal(t, uint64(9), body.Sequence)
	require.NotNil(t, body.BidPrice)
	assert.Equal(t, 100.0, *body.BidPrice)
	require.NotNil(t, body.AskSize)
	assert.Equal(t, 2.0, *body.AskSize)
}

func TestBBOEmptyBookNulls(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doRequest(srv, "/api/v1/bbo/BTC-USD")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Nil(t, body["bid_price"])
	assert.Nil(t, body["ask_price"])
}

func TestBBOUnknownInstrument(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doRequest(srv, "/api/v1/bbo/DOGE-USD")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDepthEndpoint(t *testing.T) {
	srv, mgr, _ := newTestServer(t)
	seedBook(t, mgr)

	rec := doRequest(srv, "/api/v1/depth/BTC-USD?pct=0.01&pct=0.5")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Instrument string `json:"instrument"`
		Depths     []struct {
			Pct      float64 `json:"pct"`
			BidCount int     `json:"bid_count"`
			BidSize  float64 `json:"bid_size"`
			AskCount int     `json:"ask_count"`
			AskSize  float64 `json:"ask_size"`
		} `json:"depths"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Depths, 2)
	assert.Equal(t, 0.01, body.Depths[0].Pct)
	// The wide band covers both resting orders.
	assert.Equal(t, 1, body.Depths[1].BidCount)
	assert.Equal(t, 1.0, body.Depths[1].BidSize)
	assert.Equal(t, 1, body.Depths[1].AskCount)
	assert.Equal(t, 2.0, body.Depths[1].AskSize)
}

func TestDepthBadPct(t *testing.T) {
	srv, mgr, _ := newTestServer(t)
	seedBook(t, mgr)

	assert.Equal(t, http.StatusBadRequest, doRequest(srv, "/api/v1/depth/BTC-USD?pct=abc").Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(srv, "/api/v1/depth/BTC-USD?pct=-1").Code)
}

func TestBookEndpoint(t *testing.T) {
	srv, mgr, _ := newTestServer(t)
	seedBook(t, mgr)

	rec := doRequest(srv, "/api/v1/book/BTC-USD")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var snap models.BookSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "BTC-USD", snap.Instrument)
	assert.Equal(t, uint64(9), snap.Sequence)
	require.Len(t, snap.Bids, 1)
	assert.Equal(t, models.BookLevelEntry{Price: 100, Size: 1, OrderID: "b1"}, snap.Bids[0])
}

func TestHealthzTracksSyncState(t *testing.T) {
	srv, _, group := newTestServer(t)

	// Before Start the sequencer has never synced.
	rec := doRequest(srv, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	group.Start(ctx)

	s, ok := group.Sequencer("BTC-USD")
	require.True(t, ok)
	require.Eventually(t, func() bool { return s.State() == sequencer.StateSynced },
		2*time.Second, time.Millisecond)

	rec = doRequest(srv, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Instruments map[string]string `json:"instruments"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "synced", body.Instruments["BTC-USD"])
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.EventsApplied.WithLabelValues("BTC-USD", "open").Inc()

	mgr := orderbook.NewManager([]string{"BTC-USD"}, zap.NewNop())
	group := sequencer.NewGroup(mgr, syncedFetcher{}, sequencer.Config{}, zap.NewNop(), m)
	srv := NewServer(zap.NewNop(), mgr, group, nil, reg)

	rec := doRequest(srv, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "depthbook_events_applied_total")
}

package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/orbitcex/depthbook/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(snapshotURL string) *Client {
	return NewClient("ws://unused", snapshotURL, []string{"BTC-USD"}, zap.NewNop())
}

func TestToEventOpen(t *testing.T) {
	c := newTestClient("")
	ev, ok := c.toEvent(wireMessage{
		Type: "open", Instrument: "BTC-USD", Sequence: 10,
		OrderID: "abc", Price: "295.96", Size: "4.39", Side: "sell", Time: 1700000000000,
	})
	require.True(t, ok)
	assert.Equal(t, models.EventOpen, ev.Type)
	assert.Equal(t, "BTC-USD", ev.Instrument)
	assert.Equal(t, uint64(10), ev.Sequence)
	assert.Equal(t, "abc", ev.OrderID)
	assert.Equal(t, 295.96, ev.Price)
	assert.Equal(t, 4.39, ev.Size)
	assert.Equal(t, models.SideAsk, ev.Side)
	assert.Equal(t, int64(1700000000000), ev.Time.UnixMilli())
}

func TestToEventAliases(t *testing.T) {
	c := newTestClient("")
	cases := map[string]models.EventType{
		"open":   models.EventOpen,
		"cancel": models.EventCancel,
		"done":   models.EventCancel,
		"resize": models.EventResize,
		"change": models.EventResize,
		"trade":  models.EventTrade,
		"match":  models.EventTrade,
	}
	for wire, want := range cases {
		ev, ok := c.toEvent(wireMessage{Type: wire, Sequence: 1})
		require.True(t, ok, wire)
		assert.Equal(t, want, ev.Type, wire)
	}
}

func TestToEventResizeSizes(t *testing.T) {
	c := newTestClient("")
	ev, ok := c.toEvent(wireMessage{
		Type: "change", Sequence: 2, OrderID: "abc",
		OldSize: "5.0", NewSize: "3.5", Side: "buy",
	})
	require.True(t, ok)
	assert.Equal(t, 5.0, ev.OldSize)
	assert.Equal(t, 3.5, ev.NewSize)
	assert.Equal(t, models.SideBid, ev.Side)
}

func TestToEventRejects(t *testing.T) {
	c := newTestClient("")

	// Non-book messages are skipped silently.
	_, ok := c.toEvent(wireMessage{Type: "heartbeat", Sequence: 1})
	assert.False(t, ok)
	_, ok = c.toEvent(wireMessage{Type: "subscriptions"})
	assert.False(t, ok)

	_, ok = c.toEvent(wireMessage{Type: "open", Sequence: 1, Side: "north"})
	assert.False(t, ok)
	_, ok = c.toEvent(wireMessage{Type: "open", Sequence: 1, Side: "buy", Price: "not-a-number"})
	assert.False(t, ok)
}

func TestFetchSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BTC-USD", r.URL.Query().Get("instrument"))
		w.Write([]byte(`{
			"instrument": "BTC-USD",
			"sequence": 42,
			"bids": [["100.5","1.25","b1"],["100","2","b2"]],
			"asks": [["101","3","a1"]],
			"time": 1700000000000
		}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	snap, err := c.FetchSnapshot(context.Background(), "BTC-USD")
	require.NoError(t, err)

	assert.Equal(t, "BTC-USD", snap.Instrument)
	assert.Equal(t, uint64(42), snap.Sequence)
	assert.Equal(t, int64(1700000000000), snap.Time)
	require.Len(t, snap.Bids, 2)
	assert.Equal(t, models.BookLevelEntry{Price: 100.5, Size: 1.25, OrderID: "b1"}, snap.Bids[0])
	require.Len(t, snap.Asks, 1)
	assert.Equal(t, models.BookLevelEntry{Price: 101, Size: 3, OrderID: "a1"}, snap.Asks[0])
}

func TestFetchSnapshotErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.FetchSnapshot(context.Background(), "BTC-USD")
	assert.Error(t, err)

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"bids": [["oops","1","b1"]]}`))
	}))
	defer bad.Close()

	c = newTestClient(bad.URL)
	_, err = c.FetchSnapshot(context.Background(), "BTC-USD")
	assert.ErrorContains(t, err, "snapshot bids")
}

func TestParseDecimalExact(t *testing.T) {
	v, err := parseDecimal("0.00000001")
	require.NoError(t, err)
	assert.Equal(t, 1e-8, v)

	v, err = parseDecimal("")
	require.NoError(t, err)
	assert.Zero(t, v)

	_, err = parseDecimal("12.a")
	assert.Error(t, err)
}

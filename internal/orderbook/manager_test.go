package orderbook

import (
	"testing"

	"github.com/orbitcex/depthbook/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestManagerRoute(t *testing.T) {
	m := NewManager([]string{"BTC-USD", "ETH-USD"}, zap.NewNop())

	ev := openEv(1, "A", 100, 1, models.SideBid)
	ev.Instrument = "ETH-USD"
	require.NoError(t, m.Route(ev))

	eth, ok := m.Book("ETH-USD")
	require.True(t, ok)
	assert.Equal(t, 100.0, eth.BBO().BidPrice)

	btc, ok := m.Book("BTC-USD")
	require.True(t, ok)
	orders, _, _ := btc.Counts()
	assert.Zero(t, orders, "events stay on their own instrument")
}

func TestManagerUnknownInstrument(t *testing.T) {
	m := NewManager([]string{"BTC-USD"}, zap.NewNop())

	ev := openEv(1, "A", 100, 1, models.SideBid)
	ev.Instrument = "DOGE-USD"
	assert.ErrorIs(t, m.Route(ev), ErrUnknownInstrument)

	_, ok := m.Book("DOGE-USD")
	assert.False(t, ok)
}

func TestManagerInstrumentsSorted(t *testing.T) {
	m := NewManager([]string{"ETH-USD", "BTC-USD", "SOL-USD"}, zap.NewNop())
	assert.Equal(t, []string{"BTC-USD", "ETH-USD", "SOL-USD"}, m.Instruments())
}

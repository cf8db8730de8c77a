package orderbook

import (
	"fmt"
	"sort"

	"github.com/orbitcex/depthbook/pkg/models"
	"go.uber.org/zap"
)

// Manager owns one OrderBook per instrument and demultiplexes validated
// updates by instrument. The instrument set is fixed at startup.
type Manager struct {
	books  map[string]*OrderBook
	logger *zap.Logger
}

func NewManager(instruments []string, logger *zap.Logger) *Manager {
	m := &Manager{
		books:  make(map[string]*OrderBook, len(instruments)),
		logger: logger,
	}
	for _, ins := range instruments {
		m.books[ins] = NewOrderBook(ins, logger)
	}
	return m
}

// Book returns the order book for an instrument.
func (m *Manager) Book(instrument string) (*OrderBook, bool) {
	ob, ok := m.books[instrument]
	return ob, ok
}

// Route applies a validated event to the matching book.
func (m *Manager) Route(ev models.BookEvent) error {
	ob, ok := m.books[ev.Instrument]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownInstrument, ev.Instrument)
	}
	return ob.Apply(ev)
}

// Instruments lists the configured instruments in stable order.
func (m *Manager) Instruments() []string {
	out := make([]string, 0, len(m.books))
	for ins := range m.books {
		out = append(out, ins)
	}
	sort.Strings(out)
	return out
}

package sequencer

import (
	"context"

	"github.com/orbitcex/depthbook/internal/metrics"
	"github.com/orbitcex/depthbook/internal/orderbook"
	"github.com/orbitcex/depthbook/pkg/models"
	"go.uber.org/zap"
)

// Group holds one sequencer per configured instrument and demultiplexes the
// raw feed by instrument.
type Group struct {
	seqs   map[string]*Sequencer
	logger *zap.Logger
}

func NewGroup(mgr *orderbook.Manager, fetcher SnapshotFetcher, cfg Config, logger *zap.Logger, m *metrics.Metrics) *Group {
	g := &Group{
		seqs:   make(map[string]*Sequencer),
		logger: logger,
	}
	for _, ins := range mgr.Instruments() {
		book, _ := mgr.Book(ins)
		g.seqs[ins] = New(ins, book, fetcher, cfg, logger, m)
	}
	return g
}

// Start requests the initial rebuild for every instrument.
func (g *Group) Start(ctx context.Context) {
	for _, s := range g.seqs {
		s.Start(ctx)
	}
}

// Handle routes one raw feed event to its instrument's sequencer. Events for
// unconfigured instruments are dropped.
func (g *Group) Handle(ctx context.Context, ev models.BookEvent) {
	s, ok := g.seqs[ev.Instrument]
	if !ok {
		g.logger.Warn("event for unconfigured instrument dropped",
			zap.String("instrument", ev.Instrument))
		return
	}
	s.Handle(ctx, ev)
}

// Sequencer returns the sequencer for one instrument.
func (g *Group) Sequencer(instrument string) (*Sequencer, bool) {
	s, ok := g.seqs[instrument]
	return s, ok
}

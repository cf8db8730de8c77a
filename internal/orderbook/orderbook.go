// Per-instrument limit order book, maintained from a validated exchange feed.
// A single writer applies updates; readers query BBO, depth and snapshots
// concurrently. One RWMutex per book is the consistency boundary: it is held
// for the whole of every mutation and for the whole of every batched read,
// so readers never observe a partially-applied update.

package orderbook

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/orbitcex/depthbook/pkg/models"
	"go.uber.org/zap"
)

// BBO is the inside price and aggregate size on each side. Prices and sizes
// are NaN when the side is empty.
type BBO struct {
	BidPrice float64
	BidSize  float64
	AskPrice float64
	AskSize  float64
}

// DepthStats aggregates both sides of the book within a percentage band
// around the mid price.
type DepthStats struct {
	Pct      float64
	BidCount int
	BidSize  float64
	AskCount int
	AskSize  float64
}

// TradeStats are feed-trade statistics. Trades never mutate the ladder;
// liquidity leaves only via the paired cancel/resize from the exchange.
type TradeStats struct {
	LastPrice float64
	LastSize  float64
	Count     uint64
	Volume    float64
}

// OrderBook owns the two ladders, the order registry and the order pool for
// one instrument. Created once at startup and never torn down while the
// process runs.
type OrderBook struct {
	instrument string
	logger     *zap.Logger

	mu      sync.RWMutex
	bids    *Ladder
	asks    *Ladder
	orders  map[string]*Order
	pool    *OrderPool
	lastSeq uint64
	trades  TradeStats
}

func NewOrderBook(instrument string, logger *zap.Logger) *OrderBook {
	return &OrderBook{
		instrument: instrument,
		logger:     logger.With(zap.String("instrument", instrument)),
		bids:       NewLadder(models.SideBid),
		asks:       NewLadder(models.SideAsk),
		orders:     make(map[string]*Order, 1024),
		pool:       NewOrderPool(),
	}
}

func (ob *OrderBook) Instrument() string { return ob.instrument }

// LastSequence returns the sequence number of the last applied event.
func (ob *OrderBook) LastSequence() uint64 {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.lastSeq
}

// Apply dispatches one validated feed event to the matching mutation.
func (ob *OrderBook) Apply(ev models.BookEvent) error {
	switch ev.Type {
	case models.EventOpen:
		return ob.ApplyOpen(ev)
	case models.EventCancel:
		return ob.ApplyCancel(ev)
	case models.EventResize:
		return ob.ApplyResize(ev)
	case models.EventTrade:
		return ob.ApplyTrade(ev)
	}
	return fmt.Errorf("%w: event type %v", ErrMalformedEvent, ev.Type)
}

// ApplyOpen attaches a new resting order to its price level, creating the
// level if absent. An ID the book already holds is ignored; the feed can
// replay orders around reconnects.
func (ob *OrderBook) ApplyOpen(ev models.BookEvent) error {
	if err := validPriceSize(ev.Price, ev.Size); err != nil {
		return err
	}
	if ev.Side != models.SideBid && ev.Side != models.SideAsk {
		return fmt.Errorf("%w: open with side %v", ErrMalformedEvent, ev.Side)
	}

	ob.mu.Lock()
	defer ob.mu.Unlock()
	if _, exists := ob.orders[ev.OrderID]; exists {
		ob.logger.Debug("open for known order ignored",
			zap.String("order_id", ev.OrderID), zap.Uint64("sequence", ev.Sequence))
		ob.advanceLocked(ev.Sequence)
		return nil
	}
	ob.insertLocked(ev.OrderID, ev.Price, ev.Size, ev.Side, ev.Time)
	ob.advanceLocked(ev.Sequence)
	return nil
}

// ApplyCancel detaches the order and removes its level if now empty. A
// cancel for an order the book never saw is a no-op: the exchange streams
// cancels for orders that predate our snapshot.
func (ob *OrderBook) ApplyCancel(ev models.BookEvent) error {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	o, ok := ob.orders[ev.OrderID]
	if !ok {
		ob.logger.Debug("cancel for unknown order",
			zap.String("order_id", ev.OrderID), zap.Uint64("sequence", ev.Sequence))
		ob.advanceLocked(ev.Sequence)
		return nil
	}
	ob.removeLocked(o)
	ob.advanceLocked(ev.Sequence)
	return nil
}

// ApplyResize updates the order's size and its level aggregate in place.
// A new size at or below zero removes the order.
func (ob *OrderBook) ApplyResize(ev models.BookEvent) error {
	if math.IsNaN(ev.NewSize) || math.IsInf(ev.NewSize, 0) {
		return fmt.Errorf("%w: resize to %v", ErrMalformedEvent, ev.NewSize)
	}

	ob.mu.Lock()
	defer ob.mu.Unlock()
	o, ok := ob.orders[ev.OrderID]
	if !ok {
		ob.logger.Debug("resize for unknown order",
			zap.String("order_id", ev.OrderID), zap.Uint64("sequence", ev.Sequence))
		ob.advanceLocked(ev.Sequence)
		return nil
	}
	if ev.NewSize <= 0 {
		ob.removeLocked(o)
	} else {
		o.level.resize(o, ev.NewSize)
	}
	ob.advanceLocked(ev.Sequence)
	return nil
}

// ApplyTrade records trade statistics. No ladder effect.
func (ob *OrderBook) ApplyTrade(ev models.BookEvent) error {
	if err := validPriceSize(ev.Price, ev.Size); err != nil {
		return err
	}

	ob.mu.Lock()
	defer ob.mu.Unlock()
	ob.trades.LastPrice = ev.Price
	ob.trades.LastSize = ev.Size
	ob.trades.Count++
	ob.trades.Volume += ev.Size
	ob.advanceLocked(ev.Sequence)
	return nil
}

// ApplyRebuildSnapshot atomically replaces all book state with the
// authoritative payload and sets the applied sequence to the payload's.
// A malformed payload leaves the book untouched.
func (ob *OrderBook) ApplyRebuildSnapshot(snap models.BookSnapshot) error {
	for _, e := range snap.Bids {
		if err := validPriceSize(e.Price, e.Size); err != nil {
			return fmt.Errorf("snapshot bid %q: %w", e.OrderID, err)
		}
	}
	for _, e := range snap.Asks {
		if err := validPriceSize(e.Price, e.Size); err != nil {
			return fmt.Errorf("snapshot ask %q: %w", e.OrderID, err)
		}
	}

	ob.mu.Lock()
	defer ob.mu.Unlock()
	for _, o := range ob.orders {
		ob.pool.Put(o)
	}
	clear(ob.orders)
	ob.bids.Clear()
	ob.asks.Clear()

	ts := time.UnixMilli(snap.Time)
	for _, e := range snap.Bids {
		ob.insertLocked(e.OrderID, e.Price, e.Size, models.SideBid, ts)
	}
	for _, e := range snap.Asks {
		ob.insertLocked(e.OrderID, e.Price, e.Size, models.SideAsk, ts)
	}
	ob.lastSeq = snap.Sequence
	ob.logger.Info("book rebuilt from snapshot",
		zap.Uint64("sequence", snap.Sequence),
		zap.Int("bids", len(snap.Bids)), zap.Int("asks", len(snap.Asks)))
	return nil
}

// BBO returns the inside of both sides under one lock acquisition.
func (ob *OrderBook) BBO() BBO {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.bboLocked()
}

// Depth aggregates both sides within pct of the mid price. Zero stats when
// either side is empty (no mid).
func (ob *OrderBook) Depth(pct float64) DepthStats {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.depthLocked(pct)
}

// BBOAndDepths computes the BBO and every requested depth tier under a
// single lock acquisition, so all tiers reflect one book state and N tiers
// do not cost N acquisitions.
func (ob *OrderBook) BBOAndDepths(pcts []float64) (BBO, []DepthStats) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	bbo := ob.bboLocked()
	depths := make([]DepthStats, len(pcts))
	for i, pct := range pcts {
		depths[i] = ob.depthLocked(pct)
	}
	return bbo, depths
}

// Trades returns the accumulated trade statistics.
func (ob *OrderBook) Trades() TradeStats {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.trades
}

// Counts reports resting orders and linked levels per side.
func (ob *OrderBook) Counts() (orders, bidLevels, askLevels int) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return len(ob.orders), ob.bids.Len(), ob.asks.Len()
}

// PoolStats exposes the order pool counters for metrics collection.
func (ob *OrderBook) PoolStats() PoolStats {
	return ob.pool.Stats()
}

// Snapshot serializes the full book at one consistent instant, inside-out
// on both sides.
func (ob *OrderBook) Snapshot() models.BookSnapshot {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	snap := models.BookSnapshot{
		Asks:       make([]models.BookLevelEntry, 0, len(ob.orders)/2),
		Bids:       make([]models.BookLevelEntry, 0, len(ob.orders)/2),
		Instrument: ob.instrument,
		Sequence:   ob.lastSeq,
		Time:       time.Now().UnixMilli(),
	}
	ob.asks.Walk(func(lvl *PriceLevel) bool {
		for _, o := range lvl.orders {
			snap.Asks = append(snap.Asks, models.BookLevelEntry{Price: o.Price, Size: o.Size, OrderID: o.ID})
		}
		return true
	})
	ob.bids.Walk(func(lvl *PriceLevel) bool {
		for _, o := range lvl.orders {
			snap.Bids = append(snap.Bids, models.BookLevelEntry{Price: o.Price, Size: o.Size, OrderID: o.ID})
		}
		return true
	})
	return snap
}

// CheckInvariants validates ladder ordering and level aggregates. A failure
// is fatal for this instrument until the next rebuild.
func (ob *OrderBook) CheckInvariants() error {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	if err := ob.bids.checkSorted(); err != nil {
		return err
	}
	return ob.asks.checkSorted()
}

func (ob *OrderBook) bboLocked() BBO {
	return BBO{
		BidPrice: ob.bids.BestPrice(),
		BidSize:  ob.bids.BestSize(),
		AskPrice: ob.asks.BestPrice(),
		AskSize:  ob.asks.BestSize(),
	}
}

func (ob *OrderBook) depthLocked(pct float64) DepthStats {
	stats := DepthStats{Pct: pct}
	bid := ob.bids.BestPrice()
	ask := ob.asks.BestPrice()
	if math.IsNaN(bid) || math.IsNaN(ask) {
		return stats
	}
	mid := (bid + ask) / 2
	bidThreshold := mid * (1 - pct)
	askThreshold := mid * (1 + pct)
	stats.BidCount = ob.bids.CountWithin(bidThreshold)
	stats.BidSize = ob.bids.SizeWithin(bidThreshold)
	stats.AskCount = ob.asks.CountWithin(askThreshold)
	stats.AskSize = ob.asks.SizeWithin(askThreshold)
	return stats
}

func (ob *OrderBook) insertLocked(id string, price, size float64, side models.Side, ts time.Time) {
	o := ob.pool.Get()
	o.ID = id
	o.Price = price
	o.Size = size
	o.Side = side
	o.Time = ts
	ladder := ob.bids
	if side == models.SideAsk {
		ladder = ob.asks
	}
	ladder.FindOrCreate(price).attach(o)
	ob.orders[id] = o
}

func (ob *OrderBook) removeLocked(o *Order) {
	lvl := o.level
	lvl.detach(o)
	if lvl.Count() == 0 {
		ladder := ob.bids
		if o.Side == models.SideAsk {
			ladder = ob.asks
		}
		ladder.Remove(lvl)
	}
	delete(ob.orders, o.ID)
	ob.pool.Put(o)
}

func (ob *OrderBook) advanceLocked(seq uint64) {
	if seq > ob.lastSeq {
		ob.lastSeq = seq
	}
}

func validPriceSize(price, size float64) error {
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return fmt.Errorf("%w: price %v", ErrMalformedEvent, price)
	}
	if math.IsNaN(size) || math.IsInf(size, 0) || size <= 0 {
		return fmt.Errorf("%w: size %v", ErrMalformedEvent, size)
	}
	return nil
}

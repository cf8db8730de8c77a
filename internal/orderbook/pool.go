// Object pools for order and price-level records. Pre-allocated buffered
// channels give a zero-allocation hot path with plain allocation as the
// overflow fallback.

package orderbook

import (
	"sync"
	"sync/atomic"
)

const orderPoolSize = 4096

// PoolStats is a point-in-time snapshot of pool counters.
type PoolStats struct {
	Gets        int64
	Puts        int64
	Hits        int64
	Allocations int64
}

// OrderPool recycles Order records for one book. It is owned by that book's
// writer and must not be shared across instruments.
type OrderPool struct {
	orders chan *Order

	gets   atomic.Int64
	puts   atomic.Int64
	hits   atomic.Int64
	allocs atomic.Int64
}

func NewOrderPool() *OrderPool {
	p := &OrderPool{
		orders: make(chan *Order, orderPoolSize),
	}
	for i := 0; i < orderPoolSize; i++ {
		p.orders <- &Order{}
	}
	return p
}

// Get returns a recycled order, or a fresh one if the pool ran dry.
func (p *OrderPool) Get() *Order {
	p.gets.Add(1)
	select {
	case o := <-p.orders:
		p.hits.Add(1)
		return o
	default:
		p.allocs.Add(1)
		return &Order{}
	}
}

// Put clears the order and returns it to the free list. If the pool is full
// the record is left for the GC.
func (p *OrderPool) Put(o *Order) {
	if o == nil {
		return
	}
	o.reset()
	p.puts.Add(1)
	select {
	case p.orders <- o:
	default:
	}
}

func (p *OrderPool) Stats() PoolStats {
	return PoolStats{
		Gets:        p.gets.Load(),
		Puts:        p.puts.Load(),
		Hits:        p.hits.Load(),
		Allocations: p.allocs.Load(),
	}
}

// Price levels churn with every level creation/removal, so they share one
// process-wide sync.Pool.
var priceLevelPool = sync.Pool{
	New: func() any { return &PriceLevel{} },
}

func getPriceLevel(price float64) *PriceLevel {
	lvl := priceLevelPool.Get().(*PriceLevel)
	lvl.Price = price
	if lvl.orders == nil {
		lvl.orders = make(map[string]*Order, 4)
	}
	return lvl
}

func putPriceLevel(lvl *PriceLevel) {
	if lvl == nil {
		return
	}
	lvl.Price = 0
	lvl.TotalSize = 0
	clear(lvl.orders)
	priceLevelPool.Put(lvl)
}

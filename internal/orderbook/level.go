package orderbook

// PriceLevel aggregates the orders resting at one price. TotalSize and the
// order count are always the exact sums over the attached orders; an empty
// level is unlinked from its ladder immediately.
type PriceLevel struct {
	Price     float64
	TotalSize float64

	orders map[string]*Order
}

func (pl *PriceLevel) Count() int {
	return len(pl.orders)
}

func (pl *PriceLevel) attach(o *Order) {
	pl.orders[o.ID] = o
	pl.TotalSize += o.Size
	o.level = pl
}

func (pl *PriceLevel) detach(o *Order) {
	delete(pl.orders, o.ID)
	pl.TotalSize -= o.Size
	if len(pl.orders) == 0 {
		pl.TotalSize = 0
	}
	o.level = nil
}

// resize adjusts one attached order's size and the level aggregate in place.
func (pl *PriceLevel) resize(o *Order, newSize float64) {
	pl.TotalSize += newSize - o.Size
	o.Size = newSize
}

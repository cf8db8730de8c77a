package orderbook

import (
	"fmt"
	"math"

	"github.com/orbitcex/depthbook/pkg/models"
	"github.com/tidwall/btree"
)

// Ladder is the sorted set of price levels for one side of one book. The
// B-tree keeps levels in ascending price order; side-aware iteration always
// starts at the inside of the book (highest bid, lowest ask), so the within
// queries touch only the levels inside the threshold.
type Ladder struct {
	side   models.Side
	levels *btree.Map[float64, *PriceLevel]
}

func NewLadder(side models.Side) *Ladder {
	return &Ladder{
		side:   side,
		levels: btree.NewMap[float64, *PriceLevel](32),
	}
}

func (l *Ladder) Side() models.Side { return l.side }

func (l *Ladder) Len() int { return l.levels.Len() }

// Best returns the inside level, or nil when the side is empty.
func (l *Ladder) Best() *PriceLevel {
	var lvl *PriceLevel
	var ok bool
	if l.side == models.SideBid {
		_, lvl, ok = l.levels.Max()
	} else {
		_, lvl, ok = l.levels.Min()
	}
	if !ok {
		return nil
	}
	return lvl
}

// BestPrice returns the inside price, NaN when the side is empty.
func (l *Ladder) BestPrice() float64 {
	best := l.Best()
	if best == nil {
		return math.NaN()
	}
	return best.Price
}

// BestSize returns the aggregate size at the inside, NaN when empty.
func (l *Ladder) BestSize() float64 {
	best := l.Best()
	if best == nil {
		return math.NaN()
	}
	return best.TotalSize
}

// FindOrCreate returns the level whose price is within PriceEpsilon of the
// given price, creating and linking a new one in sort position otherwise.
func (l *Ladder) FindOrCreate(price float64) *PriceLevel {
	var found *PriceLevel
	l.levels.Ascend(price-PriceEpsilon, func(p float64, lvl *PriceLevel) bool {
		if p < price+PriceEpsilon {
			found = lvl
		}
		return false
	})
	if found != nil {
		return found
	}
	lvl := getPriceLevel(price)
	l.levels.Set(price, lvl)
	return lvl
}

// Remove unlinks an empty level and recycles it.
func (l *Ladder) Remove(lvl *PriceLevel) {
	l.levels.Delete(lvl.Price)
	putPriceLevel(lvl)
}

// CountWithin counts resting orders on levels no farther from the inside
// than the threshold price, inclusive within PriceEpsilon.
func (l *Ladder) CountWithin(threshold float64) int {
	count := 0
	l.within(threshold, func(lvl *PriceLevel) {
		count += lvl.Count()
	})
	return count
}

// SizeWithin sums aggregate size over levels no farther from the inside
// than the threshold price, inclusive within PriceEpsilon.
func (l *Ladder) SizeWithin(threshold float64) float64 {
	size := 0.0
	l.within(threshold, func(lvl *PriceLevel) {
		size += lvl.TotalSize
	})
	return size
}

func (l *Ladder) within(threshold float64, fn func(*PriceLevel)) {
	if l.side == models.SideBid {
		l.levels.Reverse(func(p float64, lvl *PriceLevel) bool {
			if p < threshold-PriceEpsilon {
				return false
			}
			fn(lvl)
			return true
		})
		return
	}
	l.levels.Scan(func(p float64, lvl *PriceLevel) bool {
		if p > threshold+PriceEpsilon {
			return false
		}
		fn(lvl)
		return true
	})
}

// Walk visits every level from the inside of the book outward.
func (l *Ladder) Walk(fn func(*PriceLevel) bool) {
	if l.side == models.SideBid {
		l.levels.Reverse(func(_ float64, lvl *PriceLevel) bool {
			return fn(lvl)
		})
		return
	}
	l.levels.Scan(func(_ float64, lvl *PriceLevel) bool {
		return fn(lvl)
	})
}

// Clear unlinks every level, recycling them. Used on full rebuild.
func (l *Ladder) Clear() {
	var lvls []*PriceLevel
	l.levels.Scan(func(_ float64, lvl *PriceLevel) bool {
		lvls = append(lvls, lvl)
		return true
	})
	l.levels.Clear()
	for _, lvl := range lvls {
		putPriceLevel(lvl)
	}
}

// checkSorted verifies the strict inside-out ordering and the level
// aggregates. Failure means corrupted state and forces a rebuild.
func (l *Ladder) checkSorted() error {
	prev := math.NaN()
	var err error
	l.Walk(func(lvl *PriceLevel) bool {
		if lvl.Count() == 0 {
			err = fmt.Errorf("%w: empty level left linked at %v", ErrInvariant, lvl.Price)
			return false
		}
		sum := 0.0
		for _, o := range lvl.orders {
			sum += o.Size
		}
		if math.Abs(sum-lvl.TotalSize) > PriceEpsilon {
			err = fmt.Errorf("%w: level %v aggregate %v != order sum %v",
				ErrInvariant, lvl.Price, lvl.TotalSize, sum)
			return false
		}
		if !math.IsNaN(prev) {
			inOrder := lvl.Price < prev
			if l.side == models.SideAsk {
				inOrder = lvl.Price > prev
			}
			if !inOrder {
				err = fmt.Errorf("%w: %s ladder unsorted at %v after %v",
					ErrInvariant, l.side, lvl.Price, prev)
				return false
			}
		}
		prev = lvl.Price
		return true
	})
	return err
}

package orderbook

import (
	"time"

	"github.com/orbitcex/depthbook/pkg/models"
)

// PriceEpsilon is the tolerance under which two wire-parsed prices are the
// same price level. Guards against float noise in decimal-string prices.
const PriceEpsilon = 1e-8

// Order is one resting order. Orders are pooled; the zero value is the
// released state. The level field is a non-owning back-reference used for
// O(1) detach; the level owns aggregation.
type Order struct {
	ID    string
	Price float64
	Size  float64
	Side  models.Side
	Time  time.Time

	level *PriceLevel
}

func (o *Order) reset() {
	*o = Order{}
}

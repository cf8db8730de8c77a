package orderbook

import "errors"

var (
	// ErrMalformedEvent marks an event the book rejected without applying it
	// (unknown side, non-finite price or size). The feed keeps running.
	ErrMalformedEvent = errors.New("malformed book event")

	// ErrUnknownInstrument is returned when an event names an instrument the
	// manager was not configured with.
	ErrUnknownInstrument = errors.New("unknown instrument")

	// ErrInvariant marks corrupted per-instrument book state. The book must
	// not be read again until a rebuild snapshot has been applied.
	ErrInvariant = errors.New("order book invariant violated")
)

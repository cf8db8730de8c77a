package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
)

// BookLevelEntry is one resting order in a full-book snapshot, serialized as
// the [price, size, "orderId"] triple expected by downstream replay tooling.
type BookLevelEntry struct {
	Price   float64
	Size    float64
	OrderID string
}

func (e BookLevelEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]any{e.Price, e.Size, e.OrderID})
}

func (e *BookLevelEntry) UnmarshalJSON(data []byte) error {
	var raw [3]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw[0], &e.Price); err != nil {
		return fmt.Errorf("level entry price: %w", err)
	}
	if err := json.Unmarshal(raw[1], &e.Size); err != nil {
		return fmt.Errorf("level entry size: %w", err)
	}
	if err := json.Unmarshal(raw[2], &e.OrderID); err != nil {
		return fmt.Errorf("level entry order id: %w", err)
	}
	return nil
}

// BookSnapshot is a full-book representation at a single consistent instant.
// Field order is a compatibility surface for replay tooling; do not reorder.
type BookSnapshot struct {
	Asks       []BookLevelEntry `json:"asks"`
	Bids       []BookLevelEntry `json:"bids"`
	Instrument string           `json:"instrument"`
	Sequence   uint64           `json:"sequence"`
	Time       int64            `json:"time"`
}

var snapshotBufferPool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// MarshalJSONBuffer serializes the snapshot through a pooled buffer to keep
// audit logging off the allocator on the hot path.
func (s *BookSnapshot) MarshalJSONBuffer() ([]byte, error) {
	buf := snapshotBufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		snapshotBufferPool.Put(buf)
		return nil, err
	}
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	snapshotBufferPool.Put(buf)
	return out, nil
}

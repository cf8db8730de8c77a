package models

import (
	"fmt"
	"time"
)

// Side identifies which half of the book an order rests on.
type Side uint8

const (
	SideBid Side = iota
	SideAsk
)

func (s Side) String() string {
	switch s {
	case SideBid:
		return "bid"
	case SideAsk:
		return "ask"
	}
	return fmt.Sprintf("side(%d)", uint8(s))
}

// ParseSide maps the wire spellings used by exchange feeds onto a Side.
func ParseSide(s string) (Side, error) {
	switch s {
	case "bid", "buy", "b":
		return SideBid, nil
	case "ask", "sell", "s":
		return SideAsk, nil
	}
	return 0, fmt.Errorf("unknown side %q", s)
}

// EventType discriminates the book-affecting event variants carried by the feed.
type EventType uint8

const (
	EventOpen EventType = iota + 1
	EventCancel
	EventResize
	EventTrade
)

func (t EventType) String() string {
	switch t {
	case EventOpen:
		return "open"
	case EventCancel:
		return "cancel"
	case EventResize:
		return "resize"
	case EventTrade:
		return "trade"
	}
	return fmt.Sprintf("event(%d)", uint8(t))
}

// BookEvent is one sequenced order-update event for a single instrument.
// Which fields are meaningful depends on Type:
//
//	open:   OrderID, Price, Size, Side, Time
//	cancel: OrderID, RemainingSize
//	resize: OrderID, OldSize, NewSize
//	trade:  Price, Size, Side (statistics only, no ladder effect)
type BookEvent struct {
	Type       EventType
	Instrument string
	Sequence   uint64

	OrderID       string
	Price         float64
	Size          float64
	RemainingSize float64
	OldSize       float64
	NewSize       float64
	Side          Side
	Time          time.Time
}

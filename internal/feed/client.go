// Exchange feed adapter: a websocket client that parses level-3 wire
// messages into typed book events, and the REST snapshot fetcher the
// sequencer uses to resync. Wire prices and sizes are decimal strings;
// they are parsed exactly before conversion for the float64 book core.

package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/orbitcex/depthbook/pkg/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	eventChanSize       = 4096
	reconnectMin        = time.Second
	reconnectMax        = 30 * time.Second
	snapshotHTTPTimeout = 10 * time.Second
)

// wireMessage is one level-3 feed message.
type wireMessage struct {
	Type       string `json:"type"`
	Instrument string `json:"instrument"`
	Sequence   uint64 `json:"sequence"`
	OrderID    string `json:"order_id"`
	Price      string `json:"price"`
	Size       string `json:"size"`
	Remaining  string `json:"remaining_size"`
	OldSize    string `json:"old_size"`
	NewSize    string `json:"new_size"`
	Side       string `json:"side"`
	Time       int64  `json:"time"`
}

type wireSnapshot struct {
	Instrument string      `json:"instrument"`
	Sequence   uint64      `json:"sequence"`
	Bids       [][3]string `json:"bids"`
	Asks       [][3]string `json:"asks"`
	Time       int64       `json:"time"`
}

type subscribeMessage struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

// Client streams typed book events from the exchange websocket and serves
// authoritative snapshots over REST. It implements sequencer.SnapshotFetcher.
type Client struct {
	wsURL       string
	snapshotURL string
	instruments []string
	httpc       *http.Client
	logger      *zap.Logger
	events      chan models.BookEvent
}

func NewClient(wsURL, snapshotURL string, instruments []string, logger *zap.Logger) *Client {
	return &Client{
		wsURL:       wsURL,
		snapshotURL: snapshotURL,
		instruments: instruments,
		httpc:       &http.Client{Timeout: snapshotHTTPTimeout},
		logger:      logger,
		events:      make(chan models.BookEvent, eventChanSize),
	}
}

// Events is the typed event stream. Closed when Run returns.
func (c *Client) Events() <-chan models.BookEvent {
	return c.events
}

// Run connects, subscribes and pumps events until ctx ends, reconnecting
// with backoff on stream errors. Gap handling across reconnects belongs to
// the sequencer, not the transport.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.events)
	backoff := reconnectMin
	for {
		err := c.stream(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Error("feed stream ended, reconnecting",
			zap.Error(err), zap.Duration("backoff", backoff))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > reconnectMax {
			backoff = reconnectMax
		}
	}
}

func (c *Client) stream(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.wsURL, err)
	}
	defer conn.Close()

	sub := subscribeMessage{Op: "subscribe", Args: c.instruments}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	c.logger.Info("feed connected", zap.Strings("instruments", c.instruments))

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		var msg wireMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Warn("unparseable feed message", zap.Error(err))
			continue
		}
		ev, ok := c.toEvent(msg)
		if !ok {
			continue
		}
		select {
		case c.events <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) toEvent(msg wireMessage) (models.BookEvent, bool) {
	ev := models.BookEvent{
		Instrument: msg.Instrument,
		Sequence:   msg.Sequence,
		OrderID:    msg.OrderID,
		Time:       time.UnixMilli(msg.Time),
	}
	switch msg.Type {
	case "open":
		ev.Type = models.EventOpen
	case "cancel", "done":
		ev.Type = models.EventCancel
	case "resize", "change":
		ev.Type = models.EventResize
	case "trade", "match":
		ev.Type = models.EventTrade
	default:
		// Heartbeats, subscription acks and other non-book messages.
		return models.BookEvent{}, false
	}

	if msg.Side != "" {
		side, err := models.ParseSide(msg.Side)
		if err != nil {
			c.logger.Warn("feed message with bad side",
				zap.String("side", msg.Side), zap.Uint64("sequence", msg.Sequence))
			return models.BookEvent{}, false
		}
		ev.Side = side
	}

	var err error
	if ev.Price, err = parseDecimal(msg.Price); err != nil {
		c.logger.Warn("feed message with bad price", zap.String("price", msg.Price), zap.Error(err))
		return models.BookEvent{}, false
	}
	if ev.Size, err = parseDecimal(msg.Size); err != nil {
		return models.BookEvent{}, false
	}
	if ev.RemainingSize, err = parseDecimal(msg.Remaining); err != nil {
		return models.BookEvent{}, false
	}
	if ev.OldSize, err = parseDecimal(msg.OldSize); err != nil {
		return models.BookEvent{}, false
	}
	if ev.NewSize, err = parseDecimal(msg.NewSize); err != nil {
		return models.BookEvent{}, false
	}
	return ev, true
}

// FetchSnapshot retrieves the authoritative full book for one instrument.
func (c *Client) FetchSnapshot(ctx context.Context, instrument string) (models.BookSnapshot, error) {
	u, err := url.Parse(c.snapshotURL)
	if err != nil {
		return models.BookSnapshot{}, fmt.Errorf("snapshot url: %w", err)
	}
	q := u.Query()
	q.Set("instrument", instrument)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return models.BookSnapshot{}, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return models.BookSnapshot{}, fmt.Errorf("snapshot fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return models.BookSnapshot{}, fmt.Errorf("snapshot fetch: status %d", resp.StatusCode)
	}

	var wire wireSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return models.BookSnapshot{}, fmt.Errorf("snapshot decode: %w", err)
	}
	snap := models.BookSnapshot{
		Instrument: instrument,
		Sequence:   wire.Sequence,
		Time:       wire.Time,
	}
	if snap.Bids, err = toEntries(wire.Bids); err != nil {
		return models.BookSnapshot{}, fmt.Errorf("snapshot bids: %w", err)
	}
	if snap.Asks, err = toEntries(wire.Asks); err != nil {
		return models.BookSnapshot{}, fmt.Errorf("snapshot asks: %w", err)
	}
	return snap, nil
}

func toEntries(raw [][3]string) ([]models.BookLevelEntry, error) {
	out := make([]models.BookLevelEntry, 0, len(raw))
	for _, r := range raw {
		price, err := parseDecimal(r[0])
		if err != nil {
			return nil, fmt.Errorf("price %q: %w", r[0], err)
		}
		size, err := parseDecimal(r[1])
		if err != nil {
			return nil, fmt.Errorf("size %q: %w", r[1], err)
		}
		out = append(out, models.BookLevelEntry{Price: price, Size: size, OrderID: r[2]})
	}
	return out, nil
}

func parseDecimal(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}

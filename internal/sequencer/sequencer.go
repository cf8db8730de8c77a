// Feed consistency protocol. One Sequencer per instrument sits between the
// transport and the order book: it drops duplicates, applies contiguous
// events, and on a sequence gap buffers everything while an authoritative
// snapshot is fetched out of band. The book only ever observes a contiguous,
// duplicate-free, order-preserving event stream.

package sequencer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/orbitcex/depthbook/internal/metrics"
	"github.com/orbitcex/depthbook/internal/orderbook"
	"github.com/orbitcex/depthbook/pkg/models"
	"go.uber.org/zap"
)

// State of one instrument's feed.
type State int32

const (
	// StateUnsynced: initial, or after a forced reset; a rebuild is
	// required but no fetch is in flight yet.
	StateUnsynced State = iota
	// StateRebuilding: snapshot fetch in flight, events buffering.
	StateRebuilding
	// StateSynced: events apply directly.
	StateSynced
)

func (s State) String() string {
	switch s {
	case StateUnsynced:
		return "unsynced"
	case StateRebuilding:
		return "rebuilding"
	case StateSynced:
		return "synced"
	}
	return "unknown"
}

// Applier is the order book surface the sequencer drives.
type Applier interface {
	Apply(models.BookEvent) error
	ApplyRebuildSnapshot(models.BookSnapshot) error
}

// SnapshotFetcher fetches an authoritative full-book snapshot for one
// instrument. Implementations block until the exchange responds or ctx ends.
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context, instrument string) (models.BookSnapshot, error)
}

// Config bounds the rebuild retry backoff and the event buffer.
type Config struct {
	RetryMin  time.Duration
	RetryMax  time.Duration
	BufferCap int
}

func (c Config) withDefaults() Config {
	if c.RetryMin <= 0 {
		c.RetryMin = 250 * time.Millisecond
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 5 * time.Second
	}
	if c.BufferCap <= 0 {
		c.BufferCap = 1 << 16
	}
	return c
}

// Sequencer tracks the last-applied sequence for one instrument and owns
// the rebuild state machine. Handle is called by the instrument's single
// writer; the fetch goroutine synchronizes through the same mutex.
type Sequencer struct {
	instrument string
	book       Applier
	fetcher    SnapshotFetcher
	cfg        Config
	logger     *zap.Logger
	metrics    *metrics.Metrics

	mu            sync.Mutex
	state         State
	appliedSeq    uint64
	buffer        []models.BookEvent
	fetchInFlight bool
}

func New(instrument string, book Applier, fetcher SnapshotFetcher, cfg Config, logger *zap.Logger, m *metrics.Metrics) *Sequencer {
	return &Sequencer{
		instrument: instrument,
		book:       book,
		fetcher:    fetcher,
		cfg:        cfg.withDefaults(),
		logger:     logger.With(zap.String("instrument", instrument)),
		metrics:    m,
		state:      StateUnsynced,
	}
}

// Start requests the initial snapshot rebuild.
func (s *Sequencer) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureFetchLocked(ctx)
}

// Handle processes one raw feed event.
func (s *Sequencer) Handle(ctx context.Context, ev models.BookEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSynced {
		s.bufferLocked(ev)
		s.ensureFetchLocked(ctx)
		return
	}
	s.processLocked(ctx, ev)
}

// State reports the current protocol state.
func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// AppliedSequence reports the last sequence consumed by this sequencer.
func (s *Sequencer) AppliedSequence() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appliedSeq
}

// Buffered reports how many events are waiting on a rebuild.
func (s *Sequencer) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buffer)
}

// processLocked handles one event while SYNCED: dedupe, apply, or start a
// gap rebuild. May leave the sequencer REBUILDING.
func (s *Sequencer) processLocked(ctx context.Context, ev models.BookEvent) {
	switch {
	case ev.Sequence <= s.appliedSeq:
		s.metrics.DuplicatesDropped.WithLabelValues(s.instrument).Inc()
	case ev.Sequence == s.appliedSeq+1:
		s.applyLocked(ctx, ev)
	default:
		s.logger.Warn("sequence gap detected",
			zap.Uint64("expected", s.appliedSeq+1),
			zap.Uint64("got", ev.Sequence))
		s.metrics.GapsDetected.WithLabelValues(s.instrument).Inc()
		s.state = StateRebuilding
		s.bufferLocked(ev)
		s.ensureFetchLocked(ctx)
	}
}

func (s *Sequencer) applyLocked(ctx context.Context, ev models.BookEvent) {
	if err := s.book.Apply(ev); err != nil {
		if errors.Is(err, orderbook.ErrInvariant) {
			s.logger.Error("book state corrupted, forcing rebuild", zap.Error(err))
			s.state = StateRebuilding
			s.buffer = s.buffer[:0]
			s.ensureFetchLocked(ctx)
			return
		}
		// Bad event, book unchanged. Consume its sequence and keep going.
		s.logger.Warn("event rejected",
			zap.Uint64("sequence", ev.Sequence),
			zap.String("type", ev.Type.String()),
			zap.Error(err))
		s.metrics.MalformedEvents.WithLabelValues(s.instrument).Inc()
	} else {
		s.metrics.EventsApplied.WithLabelValues(s.instrument, ev.Type.String()).Inc()
	}
	s.appliedSeq = ev.Sequence
}

func (s *Sequencer) bufferLocked(ev models.BookEvent) {
	if len(s.buffer) >= s.cfg.BufferCap {
		s.logger.Warn("rebuild buffer full, dropping oldest event",
			zap.Uint64("dropped_sequence", s.buffer[0].Sequence))
		copy(s.buffer, s.buffer[1:])
		s.buffer = s.buffer[:len(s.buffer)-1]
	}
	s.buffer = append(s.buffer, ev)
	s.metrics.BufferLength.WithLabelValues(s.instrument).Set(float64(len(s.buffer)))
}

// ensureFetchLocked moves to REBUILDING and starts the snapshot fetch unless
// one is already in flight. Nested rebuild requests never start a second
// concurrent fetch.
func (s *Sequencer) ensureFetchLocked(ctx context.Context) {
	if s.state == StateSynced || s.fetchInFlight {
		return
	}
	s.state = StateRebuilding
	s.fetchInFlight = true
	rebuildID := uuid.NewString()
	go s.fetchLoop(ctx, rebuildID)
}

// fetchLoop retries the snapshot fetch with bounded backoff until it
// succeeds or ctx ends. Buffered events are never dropped while a retry is
// outstanding.
func (s *Sequencer) fetchLoop(ctx context.Context, rebuildID string) {
	log := s.logger.With(zap.String("rebuild_id", rebuildID))
	backoff := s.cfg.RetryMin
	for {
		snap, err := s.fetcher.FetchSnapshot(ctx, s.instrument)
		if err == nil {
			if s.finishRebuild(ctx, snap, log) {
				return
			}
			// Payload rejected by the book; retry like a fetch failure.
		} else {
			if ctx.Err() != nil {
				s.abortFetch(log)
				return
			}
			log.Error("snapshot fetch failed", zap.Error(err))
			s.metrics.FetchRetries.WithLabelValues(s.instrument).Inc()
		}
		select {
		case <-ctx.Done():
			s.abortFetch(log)
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > s.cfg.RetryMax {
			backoff = s.cfg.RetryMax
		}
	}
}

func (s *Sequencer) abortFetch(log *zap.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchInFlight = false
	log.Info("snapshot fetch abandoned", zap.Int("buffered", len(s.buffer)))
}

// finishRebuild applies the snapshot, flips to SYNCED and drains the
// buffer through the normal dedupe/apply path. Returns false when the book
// rejected the payload and the fetch should be retried.
func (s *Sequencer) finishRebuild(ctx context.Context, snap models.BookSnapshot, log *zap.Logger) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.book.ApplyRebuildSnapshot(snap); err != nil {
		log.Error("rebuild snapshot rejected", zap.Error(err))
		return false
	}
	s.fetchInFlight = false
	s.appliedSeq = snap.Sequence
	s.state = StateSynced
	s.metrics.Rebuilds.WithLabelValues(s.instrument).Inc()
	log.Info("feed resynced",
		zap.Uint64("sequence", snap.Sequence),
		zap.Int("buffered", len(s.buffer)))
	s.drainLocked(ctx)
	return true
}

// drainLocked replays the buffered events in arrival order. If a new gap
// shows up mid-drain the sequencer re-enters REBUILDING and keeps the rest
// of the buffer for the next drain.
func (s *Sequencer) drainLocked(ctx context.Context) {
	pending := s.buffer
	s.buffer = nil
	for i := range pending {
		s.processLocked(ctx, pending[i])
		if s.state != StateSynced {
			s.buffer = append(s.buffer, pending[i+1:]...)
			break
		}
	}
	s.metrics.BufferLength.WithLabelValues(s.instrument).Set(float64(len(s.buffer)))
}

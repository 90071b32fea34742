// Package stream fans ingested records out to live subscribers and keeps a
// bounded in-memory history for query backfill.
package stream

import (
	"log/slog"
	"sync"
	"sync/atomic"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/google/uuid"

	"containeryard/internal/logging"
	"containeryard/internal/logquery"
	"containeryard/internal/record"
)

// DefaultHistorySize is the ring capacity used when Config.HistorySize is zero.
const DefaultHistorySize = 10000

// DefaultSubscriberBuffer is the per-subscriber channel capacity used when
// Subscribe is called with a non-positive buffer.
const DefaultSubscriberBuffer = 256

// Config configures a Hub.
type Config struct {
	// HistorySize is the number of records retained for Recent queries.
	HistorySize int
	// Logger for structured logging. If nil, logging is disabled.
	Logger *slog.Logger
}

// Subscription is one live listener. Records matching its query are
// delivered on C. A slow consumer loses its oldest buffered records rather
// than stalling the hub.
type Subscription struct {
	// ID uniquely identifies the subscription.
	ID uuid.UUID
	// Name is a human-readable handle for log lines and debugging.
	Name string
	// C delivers matching records. It is closed by Close.
	C <-chan *record.Record

	query   *logquery.Query
	ch      chan *record.Record
	dropped atomic.Uint64
	hub     *Hub
	once    sync.Once
}

// Dropped returns how many records this subscription lost to backpressure.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Close detaches the subscription from the hub and closes C.
func (s *Subscription) Close() {
	s.once.Do(func() { s.hub.unsubscribe(s) })
}

// Hub is the central record distributor. Every digested record is published
// here; subscribers see the records their query matches, and Recent replays
// matches from the history ring.
type Hub struct {
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[uuid.UUID]*Subscription

	// history is a ring: next is the slot for the upcoming record, full
	// flips once the ring wraps.
	ring []*record.Record
	next int
	full bool

	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewHub creates a hub with the given configuration.
func NewHub(cfg Config) *Hub {
	size := cfg.HistorySize
	if size <= 0 {
		size = DefaultHistorySize
	}
	return &Hub{
		logger: logging.Default(cfg.Logger).With("component", "stream-hub"),
		subs:   make(map[uuid.UUID]*Subscription),
		ring:   make([]*record.Record, size),
	}
}

// Publish stores the record in history and delivers it to every subscriber
// whose query matches. Publish never blocks on slow subscribers.
func (h *Hub) Publish(rec *record.Record) {
	h.published.Add(1)

	h.mu.Lock()
	h.ring[h.next] = rec
	h.next++
	if h.next == len(h.ring) {
		h.next = 0
		h.full = true
	}
	h.mu.Unlock()

	view := rec.QueryView()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if !sub.query.Matches(view) {
			continue
		}
		select {
		case sub.ch <- rec:
			continue
		default:
		}
		// Buffer full: evict the oldest buffered record to make room, so a
		// lagging consumer sees the newest data when it catches up.
		select {
		case <-sub.ch:
			sub.dropped.Add(1)
			h.dropped.Add(1)
		default:
		}
		select {
		case sub.ch <- rec:
		default:
			sub.dropped.Add(1)
			h.dropped.Add(1)
		}
	}
}

// Subscribe registers a listener for records matching query. A nil query
// matches everything. Callers must Close the subscription when done.
func (h *Hub) Subscribe(query *logquery.Query, buffer int) *Subscription {
	if query == nil {
		query = logquery.Parse("")
	}
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}

	ch := make(chan *record.Record, buffer)
	sub := &Subscription{
		ID:    uuid.New(),
		Name:  petname.Generate(2, "-"),
		C:     ch,
		query: query,
		ch:    ch,
		hub:   h,
	}

	h.mu.Lock()
	h.subs[sub.ID] = sub
	h.mu.Unlock()

	h.logger.Info("subscriber attached", "id", sub.ID, "name", sub.Name, "query", query.String())
	return sub
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	delete(h.subs, sub.ID)
	h.mu.Unlock()
	close(sub.ch)

	h.logger.Info("subscriber detached",
		"id", sub.ID, "name", sub.Name, "dropped", sub.Dropped())
}

// Recent returns up to limit history records matching query, oldest first.
// A nil query matches everything; limit <= 0 means no limit.
func (h *Hub) Recent(query *logquery.Query, limit int) []*record.Record {
	if query == nil {
		query = logquery.Parse("")
	}

	h.mu.RLock()
	ordered := h.snapshotLocked()
	h.mu.RUnlock()

	var out []*record.Record
	for _, rec := range ordered {
		if query.Matches(rec.QueryView()) {
			out = append(out, rec)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// snapshotLocked flattens the ring into chronological order.
func (h *Hub) snapshotLocked() []*record.Record {
	if !h.full {
		return append([]*record.Record(nil), h.ring[:h.next]...)
	}
	out := make([]*record.Record, 0, len(h.ring))
	out = append(out, h.ring[h.next:]...)
	out = append(out, h.ring[:h.next]...)
	return out
}

// Stats is a point-in-time snapshot of hub counters.
type Stats struct {
	Published   uint64 `json:"published"`
	Dropped     uint64 `json:"dropped"`
	Subscribers int    `json:"subscribers"`
	HistoryLen  int    `json:"history_len"`
	HistoryCap  int    `json:"history_cap"`
}

// Stats returns current hub counters.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	histLen := h.next
	if h.full {
		histLen = len(h.ring)
	}
	return Stats{
		Published:   h.published.Load(),
		Dropped:     h.dropped.Load(),
		Subscribers: len(h.subs),
		HistoryLen:  histLen,
		HistoryCap:  len(h.ring),
	}
}

// Package stream fans committed engine events out to websocket subscribers
// and to durable sinks such as the indexer.
package stream

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"cdpvault/core/events"
)

// Record is the wire and storage form of one engine event.
type Record struct {
	ID         string            `json:"id"`
	Seq        uint64            `json:"seq"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Time       time.Time         `json:"time"`
}

// Ilk returns the collateral type the event refers to, if any.
func (r Record) Ilk() string { return r.Attributes["ilk"] }

// Sink receives every record in order. Append must not block for long; it
// runs while the engine commits.
type Sink interface {
	Append(Record)
}

type subscriber struct {
	ch    chan Record
	types map[string]struct{}
}

// Hub implements events.Emitter.
type Hub struct {
	mu      sync.Mutex
	seq     uint64
	nextSub uint64
	subs    map[uint64]*subscriber
	sinks   []Sink
	forward events.Fanout
	logger  *slog.Logger
	now     func() time.Time
	dropped atomic.Uint64
}

// NewHub returns a hub that also forwards every raw event to forward.
func NewHub(logger *slog.Logger, forward ...events.Emitter) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:    make(map[uint64]*subscriber),
		forward: forward,
		logger:  logger,
		now:     time.Now,
	}
}

// AddSink registers a durable consumer.
func (h *Hub) AddSink(sink Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sinks = append(h.sinks, sink)
}

// Resume continues numbering after seq, typically the last indexed record.
func (h *Hub) Resume(seq uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if seq > h.seq {
		h.seq = seq
	}
}

// Emit converts evt to a Record and delivers it.
func (h *Hub) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	h.forward.Emit(evt)
	flat := events.Flatten(evt)
	rec := Record{ID: uuid.NewString(), Type: flat.Type, Attributes: flat.Attributes, Time: h.now().UTC()}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	rec.Seq = h.seq
	for _, sink := range h.sinks {
		sink.Append(rec)
	}
	for id, sub := range h.subs {
		if len(sub.types) > 0 {
			if _, ok := sub.types[rec.Type]; !ok {
				continue
			}
		}
		select {
		case sub.ch <- rec:
		default:
			h.dropped.Add(1)
			h.logger.Warn("stream subscriber lagging", "subscriber", id, "type", rec.Type)
		}
	}
}

// Subscribe returns a channel of records, optionally restricted to types.
// Records are dropped for a subscriber whose buffer is full. The returned
// function unsubscribes and closes the channel.
func (h *Hub) Subscribe(buffer int, types ...string) (<-chan Record, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	sub := &subscriber{ch: make(chan Record, buffer)}
	if len(types) > 0 {
		sub.types = make(map[string]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}
	h.mu.Lock()
	h.nextSub++
	id := h.nextSub
	h.subs[id] = sub
	h.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(sub.ch)
		})
	}
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped for slow subscribers.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Package events streams record, pattern and index change notifications to
// Server-Sent Events clients.
package events

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// Event types.
const (
	TypeRecordCreated  = "record.created"
	TypeRecordUpdated  = "record.updated"
	TypeRecordDeleted  = "record.deleted"
	TypePatternChanged = "pattern.changed"
	TypeIndexRebuilt   = "index.rebuilt"
	TypeIndexChanged   = "index.changed"
)

// Defaults.
const (
	DefaultIndexThrottle     = 2 * time.Second
	DefaultHeartbeatInterval = 15 * time.Second

	clientBuffer  = 64
	publishBuffer = 256
)

// Event is one message sent to every client.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`

	// touchesIndex makes the loop follow the event with a throttled
	// index.changed.
	touchesIndex bool
}

// RecordEvent builds the event for a record change. kind is created,
// updated or deleted; ok is false for any other kind.
func RecordEvent(kind, entityType, id string) (ev Event, ok bool) {
	var typ string
	switch kind {
	case "created":
		typ = TypeRecordCreated
	case "updated":
		typ = TypeRecordUpdated
	case "deleted":
		typ = TypeRecordDeleted
	default:
		return Event{}, false
	}
	return Event{
		Type:         typ,
		Data:         map[string]string{"entity_type": entityType, "id": id},
		touchesIndex: true,
	}, true
}

// PatternEvent builds the event for a pattern change.
func PatternEvent(kind, id string) Event {
	return Event{Type: TypePatternChanged, Data: map[string]string{"kind": kind, "id": id}}
}

// Option configures a Broker.
type Option func(*Broker)

// WithHeartbeatInterval sets how often ServeHTTP writes a keep-alive
// comment. Zero or negative values keep the default.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.heartbeat = d
		}
	}
}

// Broker fans events out to SSE clients.
//
// A single goroutine owns the client set, the event sequence and the
// index.changed throttle; public methods talk to it over channels.
type Broker struct {
	indexMin  time.Duration
	heartbeat time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a Broker that emits at most one index.changed event per
// indexThrottle.
func NewBroker(indexThrottle time.Duration, opts ...Option) *Broker {
	if indexThrottle <= 0 {
		indexThrottle = DefaultIndexThrottle
	}
	b := &Broker{
		indexMin:      indexThrottle,
		heartbeat:     DefaultHeartbeatInterval,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, publishBuffer),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		seq       uint64
		lastIndex time.Time
	)

	send := func(ev Event) {
		raw, err := encode(seq+1, ev)
		if err != nil {
			return
		}
		seq++
		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Slow client; drop rather than stall the loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case ev := <-b.publishCh:
			send(ev)
			if !ev.touchesIndex {
				continue
			}
			if now := time.Now(); now.Sub(lastIndex) >= b.indexMin {
				lastIndex = now
				send(Event{Type: TypeIndexChanged, Data: map[string]string{}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// encode renders ev in the text/event-stream wire format.
func encode(id uint64, ev Event) ([]byte, error) {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, fmt.Errorf("events: encode %s: %w", ev.Type, err)
	}
	return []byte("id: " + strconv.FormatUint(id, 10) + "\nevent: " + ev.Type + "\ndata: " + string(payload) + "\n\n"), nil
}

// Close stops the loop and closes every client channel. It is idempotent.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish broadcasts ev. It is a no-op once the broker is closed.
func (b *Broker) Publish(ev Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- ev:
	case <-b.stopped:
	}
}

// PublishRecordEvent satisfies records.Notifier. Unknown kinds are ignored.
func (b *Broker) PublishRecordEvent(kind, entityType, id string) {
	if ev, ok := RecordEvent(kind, entityType, id); ok {
		b.Publish(ev)
	}
}

// PublishPatternEvent announces a pattern change.
func (b *Broker) PublishPatternEvent(kind, id string) {
	b.Publish(PatternEvent(kind, id))
}

// PublishIndexEvent forwards search index notifications. Only rebuilds are
// broadcast; per-entry changes are covered by record events.
func (b *Broker) PublishIndexEvent(kind, _ string) {
	if kind == "rebuilt" {
		b.Publish(Event{Type: TypeIndexRebuilt, Data: map[string]string{}})
	}
}

// ServeHTTP streams events to one client (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ticker := time.NewTicker(b.heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprintf(w, ": heartbeat %s\n\n", time.Now().UTC().Format(time.RFC3339)); err != nil {
				return
			}
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if _, err := w.Write(msg); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// Package bus carries topic-keyed JSON messages between the navigation loops
// and their collaborators.
//
// Delivery is best-effort and at-most-once: subscribers that fall behind
// miss messages rather than stall the publisher. Consumers must treat every
// input as possibly stale or missing.
package bus

import (
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrClosed is returned when publishing on a closed bus.
var ErrClosed = errors.New("bus closed")

// Message is a payload received on a topic.
type Message struct {
	Topic      string
	Payload    []byte
	ReceivedAt time.Time
}

// Stats counts traffic through a bus.
type Stats struct {
	Published uint64 `json:"published"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
}

// Bus is a topic-based publish/subscribe transport.
type Bus interface {
	// Publish sends payload on topic. It never waits for subscribers.
	Publish(topic string, payload []byte) error
	// Subscribe returns a channel receiving messages on the given topics,
	// or on every topic when none are given. The id is used to unsubscribe.
	Subscribe(topics ...string) (string, <-chan Message)
	// Unsubscribe closes and removes a subscription.
	Unsubscribe(id string)
	// Stats returns traffic counters.
	Stats() Stats
	// Close closes every subscription and releases the transport.
	Close() error
}

// randomID generates a random subscription ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

type subscriber struct {
	topics map[string]struct{} // empty matches every topic
	ch     chan Message
}

func (s *subscriber) wants(topic string) bool {
	if len(s.topics) == 0 {
		return true
	}
	_, ok := s.topics[topic]
	return ok
}

// hub is the subscriber registry and fan-out shared by every transport.
type hub struct {
	buffer int

	mu      sync.Mutex
	subs    map[string]*subscriber
	closing bool

	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

func newHub(buffer int) *hub {
	if buffer < 1 {
		buffer = 1
	}
	return &hub{buffer: buffer, subs: make(map[string]*subscriber)}
}

func (h *hub) subscribe(topics ...string) (string, chan Message) {
	id := randomID()
	ch := make(chan Message, h.buffer)
	set := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		set[t] = struct{}{}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		// Already closing: hand back a closed channel so callers don't block.
		close(ch)
		return id, ch
	}
	h.subs[id] = &subscriber{topics: set, ch: ch}
	return id, ch
}

func (h *hub) unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.subs[id]; ok {
		close(s.ch)
		delete(h.subs, id)
	}
}

// deliver fans m out without blocking. Full subscriber buffers drop it.
func (h *hub) deliver(m Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return
	}
	for _, s := range h.subs {
		if !s.wants(m.Topic) {
			continue
		}
		select {
		case s.ch <- m:
			h.delivered.Add(1)
		default:
			h.dropped.Add(1)
		}
	}
}

// topics returns the union of subscribed topics and whether any
// subscription wants every topic.
func (h *hub) topics() (map[string]struct{}, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	all := false
	out := make(map[string]struct{})
	for _, s := range h.subs {
		if len(s.topics) == 0 {
			all = true
		}
		for t := range s.topics {
			out[t] = struct{}{}
		}
	}
	return out, all
}

func (h *hub) isClosing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closing
}

// close closes every subscription. It reports false if already closed.
func (h *hub) close() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.closing = true
	for id, s := range h.subs {
		close(s.ch)
		delete(h.subs, id)
	}
	return true
}

func (h *hub) stats() Stats {
	return Stats{
		Published: h.published.Load(),
		Delivered: h.delivered.Load(),
		Dropped:   h.dropped.Load(),
	}
}

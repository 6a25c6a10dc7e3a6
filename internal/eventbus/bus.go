// Package eventbus implements the bounded, drop-on-full fan-out of spec
// §4.7: any number of publishers per topic, many independent subscribers, none of
// which may ever back-pressure the publisher. This replaces the gateway
// dispatcher's eventAggregator, which polled every handler's event channel
// in a busy loop (time.Sleep(10 * time.Millisecond)) — a pattern this
// module does not carry forward because a select-based fan-in subscribes
// to channels directly instead of polling them.
package eventbus

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Topic names the four channels spec §4.7 requires.
type Topic string

const (
	TopicSessionEvent Topic = "sessionEvent"
	TopicFrameIn      Topic = "frameIn"
	TopicFrameOut     Topic = "frameOut"
	TopicMetricsTick  Topic = "metricsTick"
)

// Event is the envelope published on every topic. Payload is topic-specific
// (a session state change, a decoded frame, a metrics snapshot, ...).
type Event struct {
	Topic     Topic
	SessionID string
	Payload   interface{}
}

// DefaultSubscriberBuffer is the per-subscriber queue depth before events
// are dropped rather than delivered.
const DefaultSubscriberBuffer = 256

// Bus is a many-subscriber fan-out keyed by topic; Publish may be called
// concurrently from any number of goroutines. The zero value is not usable;
// construct with New.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Topic][]*subscriber
	bufferSize  int
}

type subscriber struct {
	ch     chan Event
	name   string
	dropCt atomic.Uint64
}

// New returns a ready-to-use Bus. bufferSize <= 0 selects
// DefaultSubscriberBuffer.
func New(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = DefaultSubscriberBuffer
	}
	return &Bus{
		subscribers: make(map[Topic][]*subscriber),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers a new subscriber on topic and returns a channel the
// caller must range over (or select on) from its own goroutine. name is
// used only in the drop-warning log line.
func (b *Bus) Subscribe(topic Topic, name string) <-chan Event {
	sub := &subscriber{ch: make(chan Event, b.bufferSize), name: name}
	b.mu.Lock()
	b.subscribers[topic] = append(b.subscribers[topic], sub)
	b.mu.Unlock()
	return sub.ch
}

// Unsubscribe removes every subscriber registered under name for topic and
// closes its channel.
func (b *Bus) Unsubscribe(topic Topic, name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.subscribers[topic][:0]
	for _, sub := range b.subscribers[topic] {
		if sub.name == name {
			close(sub.ch)
			continue
		}
		kept = append(kept, sub)
	}
	b.subscribers[topic] = kept
}

// Publish fans ev out to every subscriber of ev.Topic. A subscriber whose
// buffer is full is dropped for this event (not unsubscribed) and a warning
// is logged; Publish itself never blocks, which is the guarantee the
// session hot path depends on.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	subs := b.subscribers[ev.Topic]
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.ch <- ev:
		default:
			dropped := sub.dropCt.Add(1)
			log.Warn().
				Str("topic", string(ev.Topic)).
				Str("subscriber", sub.name).
				Uint64("dropped_total", dropped).
				Msg("eventbus: subscriber buffer full, dropping event")
		}
	}
}

// SubscriberCount reports how many subscribers a topic currently has, for
// diagnostics and tests.
func (b *Bus) SubscriberCount(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[topic])
}

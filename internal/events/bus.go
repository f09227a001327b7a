// Package events provides the in-process pub/sub channel that fans
// debate lifecycle notifications out to websocket clients, the metrics
// layer, and the optional Kafka mirror.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event.
type EventType string

const (
	EventDebateStarted   EventType = "debate.started"
	EventDebateMessage   EventType = "debate.message"
	EventDebateError     EventType = "debate.error"
	EventDebateStopped   EventType = "debate.stopped"
	EventDebateCompleted EventType = "debate.completed"

	EventCacheHit  EventType = "cache.hit"
	EventCacheMiss EventType = "cache.miss"

	EventAgentStanceChanged EventType = "agent.stance.changed"
	EventFactCheckRequested EventType = "debate.factcheck"
)

// Event is a single bus notification.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Source    string      `json:"source,omitempty"`
	SessionID string      `json:"session_id,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewEvent creates an event with a fresh id and timestamp.
func NewEvent(eventType EventType, sessionID string, payload interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		SessionID: sessionID,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

type subscriber struct {
	id      string
	channel chan *Event
	closed  bool
	mu      sync.RWMutex
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.channel)
	}
}

// trySend delivers without ever blocking the publisher for longer than
// the timeout. Slow consumers lose events rather than stalling debates.
func (s *subscriber) trySend(event *Event, timeout time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case s.channel <- event:
		return true
	case <-timer.C:
		return false
	}
}

// BusConfig holds event bus tuning.
type BusConfig struct {
	BufferSize     int
	PublishTimeout time.Duration
}

// DefaultBusConfig returns the default bus tuning.
func DefaultBusConfig() *BusConfig {
	return &BusConfig{
		BufferSize:     256,
		PublishTimeout: 10 * time.Millisecond,
	}
}

// BusMetrics tracks delivery statistics.
type BusMetrics struct {
	EventsPublished   int64
	EventsDelivered   int64
	EventsDropped     int64
	SubscribersActive int64
}

// Bus is an in-process pub/sub fanout.
type Bus struct {
	subscribers map[EventType][]*subscriber
	allSubs     []*subscriber
	mu          sync.RWMutex
	config      *BusConfig
	metrics     BusMetrics
	closed      bool
}

// NewBus creates an event bus.
func NewBus(config *BusConfig) *Bus {
	if config == nil {
		config = DefaultBusConfig()
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 256
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = 10 * time.Millisecond
	}
	return &Bus{
		subscribers: make(map[EventType][]*subscriber),
		config:      config,
	}
}

// Publish sends an event to every matching subscriber. Publishing is
// fire-and-forget: delivery failures are counted, never surfaced.
func (b *Bus) Publish(event *Event) {
	if event == nil {
		return
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	subs := make([]*subscriber, 0, len(b.subscribers[event.Type])+len(b.allSubs))
	subs = append(subs, b.subscribers[event.Type]...)
	subs = append(subs, b.allSubs...)
	b.mu.RUnlock()

	atomic.AddInt64(&b.metrics.EventsPublished, 1)

	for _, sub := range subs {
		if sub.trySend(event, b.config.PublishTimeout) {
			atomic.AddInt64(&b.metrics.EventsDelivered, 1)
		} else {
			atomic.AddInt64(&b.metrics.EventsDropped, 1)
		}
	}
}

// Subscribe returns a channel receiving events of one type.
func (b *Bus) Subscribe(eventType EventType) <-chan *Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan *Event)
		close(ch)
		return ch
	}

	sub := &subscriber{
		id:      uuid.New().String(),
		channel: make(chan *Event, b.config.BufferSize),
	}
	b.subscribers[eventType] = append(b.subscribers[eventType], sub)
	atomic.AddInt64(&b.metrics.SubscribersActive, 1)

	return sub.channel
}

// SubscribeAll returns a channel receiving every event.
func (b *Bus) SubscribeAll() <-chan *Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan *Event)
		close(ch)
		return ch
	}

	sub := &subscriber{
		id:      uuid.New().String(),
		channel: make(chan *Event, b.config.BufferSize),
	}
	b.allSubs = append(b.allSubs, sub)
	atomic.AddInt64(&b.metrics.SubscribersActive, 1)

	return sub.channel
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(ch <-chan *Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.subscribers {
		for i, sub := range subs {
			if sub.channel == ch {
				sub.close()
				b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
				atomic.AddInt64(&b.metrics.SubscribersActive, -1)
				return
			}
		}
	}

	for i, sub := range b.allSubs {
		if sub.channel == ch {
			sub.close()
			b.allSubs = append(b.allSubs[:i], b.allSubs[i+1:]...)
			atomic.AddInt64(&b.metrics.SubscribersActive, -1)
			return
		}
	}
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, subs := range b.subscribers {
		for _, sub := range subs {
			sub.close()
		}
	}
	for _, sub := range b.allSubs {
		sub.close()
	}

	b.subscribers = make(map[EventType][]*subscriber)
	b.allSubs = nil
	atomic.StoreInt64(&b.metrics.SubscribersActive, 0)
}

// Metrics returns a copy of the current bus metrics.
func (b *Bus) Metrics() BusMetrics {
	return BusMetrics{
		EventsPublished:   atomic.LoadInt64(&b.metrics.EventsPublished),
		EventsDelivered:   atomic.LoadInt64(&b.metrics.EventsDelivered),
		EventsDropped:     atomic.LoadInt64(&b.metrics.EventsDropped),
		SubscribersActive: atomic.LoadInt64(&b.metrics.SubscribersActive),
	}
}

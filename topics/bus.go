// Package topics provides an in-process publish/subscribe bus keyed by topic name. It carries the
// sampled references, point clouds and status events that the planner exchanges with the controller.
package topics

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"golang.org/x/time/rate"

	"github.com/agimus-project/agimus/logging"
)

// ErrClosed is returned when using a closed bus or reading from a closed subscription.
var ErrClosed = errors.New("topic bus is closed")

// DefaultQueueSize is used for subscriptions created with a non positive queue size.
const DefaultQueueSize = 1

// Message is a payload published on a topic.
type Message struct {
	Topic   string
	Stamp   time.Time
	Payload any
}

// Subscription receives the messages of one topic. Messages that do not fit in its queue are dropped.
type Subscription struct {
	id      string
	topic   string
	ch      chan Message
	dropped atomic.Int64
}

// ID uniquely identifies the subscription.
func (s *Subscription) ID() string {
	return s.id
}

// Topic returns the subscribed topic.
func (s *Subscription) Topic() string {
	return s.topic
}

// C returns the message channel. It is closed by Unsubscribe and by closing the bus.
func (s *Subscription) C() <-chan Message {
	return s.ch
}

// Dropped returns how many messages were dropped because the queue was full.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Next waits for the next message.
func (s *Subscription) Next(ctx context.Context) (Message, error) {
	select {
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case msg, ok := <-s.ch:
		if !ok {
			return Message{}, ErrClosed
		}
		return msg, nil
	}
}

// Bus fans out published messages to the subscribers of their topic. Delivery never blocks the publisher.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]*Subscription
	latest      map[string]Message
	published   map[string]int64
	recordMu    sync.Mutex
	closed      bool
	// dropLog throttles the warnings about full subscriber queues.
	dropLog rate.Sometimes

	clock  clock.Clock
	logger logging.Logger
}

// NewBus returns an empty bus. A nil clock means the wall clock.
func NewBus(clk clock.Clock, logger logging.Logger) *Bus {
	if clk == nil {
		clk = clock.New()
	}
	return &Bus{
		subscribers: map[string]map[string]*Subscription{},
		latest:      map[string]Message{},
		published:   map[string]int64{},
		dropLog:     rate.Sometimes{First: 1, Interval: 5 * time.Second},
		clock:       clk,
		logger:      logger,
	}
}

// Publish stamps payload with the bus clock and delivers it to every subscriber of topic.
func (b *Bus) Publish(topic string, payload any) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	msg := Message{Topic: topic, Stamp: b.clock.Now(), Payload: payload}
	for _, sub := range b.subscribers[topic] {
		select {
		case sub.ch <- msg:
		default:
			dropped := sub.dropped.Add(1)
			b.dropLog.Do(func() {
				b.logger.Warnw("dropping messages, subscriber queue full",
					"topic", topic, "subscription", sub.id, "dropped", dropped)
			})
		}
	}
	b.recordLocked(msg)
	return nil
}

// recordLocked keeps the latest message and the count of a topic. Called with the read lock held so the
// maps are guarded by recordMu.
func (b *Bus) recordLocked(msg Message) {
	b.recordMu.Lock()
	defer b.recordMu.Unlock()
	b.latest[msg.Topic] = msg
	b.published[msg.Topic]++
}

// Subscribe registers a new subscription to topic with room for queueSize messages.
func (b *Bus) Subscribe(topic string, queueSize int) (*Subscription, error) {
	if topic == "" {
		return nil, errors.New("topic name cannot be empty")
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	sub := &Subscription{id: uuid.NewString(), topic: topic, ch: make(chan Message, queueSize)}
	if b.subscribers[topic] == nil {
		b.subscribers[topic] = map[string]*Subscription{}
	}
	b.subscribers[topic][sub.id] = sub
	return sub, nil
}

// Unsubscribe removes sub from the bus and closes its channel. Unsubscribing twice is a no-op.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.subscribers[sub.topic]
	if !ok {
		return
	}
	if _, ok := subs[sub.id]; !ok {
		return
	}
	close(sub.ch)
	delete(subs, sub.id)
	if len(subs) == 0 {
		delete(b.subscribers, sub.topic)
	}
}

// Topics returns the sorted names of every topic that was published to or subscribed to.
func (b *Bus) Topics() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	b.recordMu.Lock()
	defer b.recordMu.Unlock()
	names := lo.Uniq(append(lo.Keys(b.subscribers), lo.Keys(b.published)...))
	sort.Strings(names)
	return names
}

// Latest returns the last message published on topic.
func (b *Bus) Latest(topic string) (Message, bool) {
	b.recordMu.Lock()
	defer b.recordMu.Unlock()
	msg, ok := b.latest[topic]
	return msg, ok
}

// PublishedCount returns how many messages were published on topic.
func (b *Bus) PublishedCount(topic string) int64 {
	b.recordMu.Lock()
	defer b.recordMu.Unlock()
	return b.published[topic]
}

// Close closes every subscription. Later publications and subscriptions fail with ErrClosed.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for topic, subs := range b.subscribers {
		for id, sub := range subs {
			close(sub.ch)
			delete(subs, id)
		}
		delete(b.subscribers, topic)
	}
	return nil
}

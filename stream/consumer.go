// Package stream implements the topic-subscription layer: consumers that
// hold pattern subscriptions, mute sets and a delivery queue, and the Hub
// that routes broadcast payloads to every matching connected consumer. It
// is the push side of the event package; a Hub satisfies event.Broadcaster.
package stream

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/yaoapp/pulse/topic"
)

// AllTopics subscribes a consumer to every non-empty topic.
const AllTopics = topic.Wildcard

// ListenBuffer is the channel buffer used by Consumer.Listen.
const ListenBuffer = 64

// Delivery is one payload routed to a consumer.
type Delivery struct {
	Topic   string
	Sender  string
	Payload any
}

// senderSet is an allow-set of sender identities; nil means any sender.
type senderSet map[string]struct{}

func (s senderSet) allows(sender string) bool {
	if s == nil {
		return true
	}
	_, ok := s[sender]
	return ok
}

func newSenderSet(senders []string) senderSet {
	if len(senders) == 0 {
		return nil
	}
	set := make(senderSet, len(senders))
	for _, s := range senders {
		set[s] = struct{}{}
	}
	return set
}

// Consumer filters a hub's broadcast stream by topic pattern and sender and
// queues matching payloads for one long-lived reader.
//
// Lifecycle: created → connected → disconnected, re-enterable. Only a
// connected consumer is registered with the hub and accepts deliveries;
// Disconnect discards anything still queued. All methods are safe for
// concurrent use.
type Consumer struct {
	id  string
	hub *Hub

	mu        sync.Mutex
	subs      map[string]senderSet
	muted     map[string]struct{}
	queue     []Delivery
	signal    chan struct{}
	done      chan struct{}
	connected bool
}

// ConsumerOption configures a new consumer.
type ConsumerOption func(*consumerConfig) error

type consumerConfig struct {
	id    string
	subs  map[string]senderSet
	muted []string
}

// WithID sets the consumer identity. An empty id is ignored and one is
// generated instead.
func WithID(id string) ConsumerOption {
	return func(c *consumerConfig) error {
		c.id = id
		return nil
	}
}

// WithTopics subscribes the given patterns for any sender.
func WithTopics(patterns ...string) ConsumerOption {
	return func(c *consumerConfig) error {
		for _, p := range patterns {
			if err := topic.Validate(p); err != nil {
				return err
			}
			c.subs[p] = nil
		}
		return nil
	}
}

// WithTopicSenders subscribes each pattern with an explicit sender
// allow-set. An empty sender list means any sender.
func WithTopicSenders(subs map[string][]string) ConsumerOption {
	return func(c *consumerConfig) error {
		for p, senders := range subs {
			if err := topic.Validate(p); err != nil {
				return err
			}
			c.subs[p] = newSenderSet(senders)
		}
		return nil
	}
}

// WithMuted excludes the given patterns even when a subscription matches.
func WithMuted(patterns ...string) ConsumerOption {
	return func(c *consumerConfig) error {
		for _, p := range patterns {
			if err := topic.Validate(p); err != nil {
				return err
			}
			c.muted = append(c.muted, p)
		}
		return nil
	}
}

// NewConsumer creates a consumer bound to hub. The consumer starts
// disconnected; call Connect (or Scope) before expecting deliveries.
// Malformed patterns in the options are rejected here, before they can
// corrupt matching.
func NewConsumer(hub *Hub, opts ...ConsumerOption) (*Consumer, error) {
	cfg := consumerConfig{subs: make(map[string]senderSet)}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	if cfg.id == "" {
		cfg.id = uuid.NewString()
	}

	c := &Consumer{
		id:     cfg.id,
		hub:    hub,
		subs:   cfg.subs,
		muted:  make(map[string]struct{}, len(cfg.muted)),
		signal: make(chan struct{}, 1),
	}
	for _, p := range cfg.muted {
		c.muted[p] = struct{}{}
	}
	return c, nil
}

// ID returns the consumer identity.
func (c *Consumer) ID() string { return c.id }

// Subscribe adds or overwrites a pattern's sender filter. No senders means
// any sender. Subscribing the same pattern twice is idempotent.
func (c *Consumer) Subscribe(pattern string, senders ...string) error {
	if err := topic.Validate(pattern); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[pattern] = newSenderSet(senders)
	return nil
}

// Unsubscribe removes a pattern. No-op when absent.
func (c *Consumer) Unsubscribe(pattern string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, pattern)
}

// Mute excludes a pattern. Muted patterns take precedence over
// subscriptions.
func (c *Consumer) Mute(pattern string) error {
	if err := topic.Validate(pattern); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.muted[pattern] = struct{}{}
	return nil
}

// Unmute removes a pattern from the mute set. No-op when absent.
func (c *Consumer) Unmute(pattern string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.muted, pattern)
}

// Connect marks the consumer connected and registers it with the hub.
// Calling Connect on a connected consumer is a no-op. Returns the consumer
// for chaining.
func (c *Consumer) Connect() *Consumer {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return c
	}
	c.connected = true
	c.done = make(chan struct{})
	// Drain a stale wakeup left over from a previous connection.
	select {
	case <-c.signal:
	default:
	}
	// Register while still holding c.mu so the flag and the registry never
	// disagree; a racing Disconnect cannot interleave between them. The hub
	// never takes a consumer lock while holding its own, so the nested
	// acquisition is safe.
	c.hub.register(c)
	c.mu.Unlock()
	return c
}

// Disconnect unregisters the consumer and discards its queue. Payloads
// queued but not yet read are lost: disconnect is configuration removal,
// not a pause. Pending Next calls return promptly. Safe to call when
// already disconnected. Returns the consumer for chaining.
func (c *Consumer) Disconnect() *Consumer {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return c
	}
	c.connected = false
	c.queue = nil
	close(c.done)
	c.hub.unregister(c.id)
	c.mu.Unlock()
	return c
}

// Connected reports the connection state.
func (c *Consumer) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Scope connects the consumer, runs fn, and guarantees Disconnect on every
// exit path including a panic inside fn.
func (c *Consumer) Scope(fn func(*Consumer) error) error {
	c.Connect()
	defer c.Disconnect()
	return fn(c)
}

// Deliver enqueues one payload. It returns false without enqueuing when the
// consumer is disconnected. It never blocks the caller; the queue is
// unbounded and FIFO.
func (c *Consumer) Deliver(topicName, sender string, payload any) bool {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return false
	}
	c.queue = append(c.queue, Delivery{Topic: topicName, Sender: sender, Payload: payload})
	c.mu.Unlock()

	select {
	case c.signal <- struct{}{}:
	default:
	}
	return true
}

// wants reports whether a broadcast should be delivered: the topic must
// match a subscribed pattern whose sender set allows sender, and must not
// match any muted pattern.
func (c *Consumer) wants(topicName, sender string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return false
	}
	for p := range c.muted {
		if topic.Match(p, topicName) {
			return false
		}
	}
	for p, senders := range c.subs {
		if topic.Match(p, topicName) && senders.allows(sender) {
			return true
		}
	}
	return false
}

// Next blocks until a delivery is available and returns it. It returns
// ok=false when the consumer disconnects or ctx is done; disconnection
// wakes a pending Next promptly. It never returns an error for an empty
// queue; it just keeps waiting.
func (c *Consumer) Next(ctx context.Context) (Delivery, bool) {
	for {
		c.mu.Lock()
		if !c.connected {
			c.mu.Unlock()
			return Delivery{}, false
		}
		if len(c.queue) > 0 {
			d := c.queue[0]
			c.queue = c.queue[1:]
			more := len(c.queue) > 0
			c.mu.Unlock()
			if more {
				// Keep the wakeup armed for the next call.
				select {
				case c.signal <- struct{}{}:
				default:
				}
			}
			return d, true
		}
		done := c.done
		c.mu.Unlock()

		select {
		case <-c.signal:
		case <-done:
			return Delivery{}, false
		case <-ctx.Done():
			return Delivery{}, false
		}
	}
}

// Listen pumps deliveries into a channel until the consumer disconnects or
// ctx is done, then closes it. The channel is buffered; a reader that falls
// more than ListenBuffer behind delays the pump, not other consumers.
func (c *Consumer) Listen(ctx context.Context) <-chan Delivery {
	out := make(chan Delivery, ListenBuffer)
	go func() {
		defer close(out)
		for {
			d, ok := c.Next(ctx)
			if !ok {
				return
			}
			select {
			case out <- d:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// QueueLen returns the number of queued, unread deliveries.
func (c *Consumer) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

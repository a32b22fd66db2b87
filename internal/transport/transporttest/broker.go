// Package transporttest provides an in-memory broker implementing the
// transport interfaces for tests. Routing follows RabbitMQ's direct-exchange
// rules: bound queues receive messages whose routing key matches, and the
// empty exchange routes straight to the queue named by the key. Unroutable
// messages are dropped and counted.
package transporttest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"labmq/internal/transport"
)

const queueBuffer = 128

// Broker is an in-memory stand-in for a RabbitMQ node.
type Broker struct {
	mu        sync.Mutex
	exchanges map[string]bool
	bindings  map[string]map[string][]string
	queues    map[string]*queue
	acks      map[string]int
	nacks     map[string]int
	dropped   int
	genSeq    int

	done      chan struct{}
	closeOnce sync.Once
}

type queue struct {
	name string
	msgs chan transport.Delivery
}

// NewBroker returns an empty broker with no topology declared.
func NewBroker() *Broker {
	return &Broker{
		exchanges: make(map[string]bool),
		bindings:  make(map[string]map[string][]string),
		queues:    make(map[string]*queue),
		acks:      make(map[string]int),
		nacks:     make(map[string]int),
		done:      make(chan struct{}),
	}
}

// Connect returns a connection bound to this broker. Every connection shares
// the broker's topology and queues, mirroring separate processes talking to
// one node.
func (b *Broker) Connect() transport.Connection {
	return &conn{b: b}
}

// Close tears the broker down, ending every consume loop.
func (b *Broker) Close() {
	b.closeOnce.Do(func() { close(b.done) })
}

// Acked reports how many deliveries from the queue have been acknowledged.
func (b *Broker) Acked(queueName string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.acks[queueName]
}

// Nacked reports how many deliveries from the queue have been rejected.
func (b *Broker) Nacked(queueName string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nacks[queueName]
}

// Dropped reports how many published messages matched no queue.
func (b *Broker) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// QueueDepth reports the number of deliveries waiting in the queue.
func (b *Broker) QueueDepth(queueName string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if q, ok := b.queues[queueName]; ok {
		return len(q.msgs)
	}
	return 0
}

// Queues lists every declared queue name in sorted order.
func (b *Broker) Queues() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.queues))
	for name := range b.queues {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasBinding reports whether the queue is bound to the exchange under the key.
func (b *Broker) HasBinding(exchange, key, queueName string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, bound := range b.bindings[exchange][key] {
		if bound == queueName {
			return true
		}
	}
	return false
}

func (b *Broker) declareExchange(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.exchanges[name] = true
	if b.bindings[name] == nil {
		b.bindings[name] = make(map[string][]string)
	}
}

func (b *Broker) declareQueue(name string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.queues[name]; !ok {
		b.queues[name] = &queue{name: name, msgs: make(chan transport.Delivery, queueBuffer)}
	}
	return name
}

func (b *Broker) declareExclusiveQueue() string {
	b.mu.Lock()
	b.genSeq++
	name := fmt.Sprintf("amq.gen-%d", b.genSeq)
	b.mu.Unlock()
	return b.declareQueue(name)
}

func (b *Broker) bind(queueName, key, exchange string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.exchanges[exchange] {
		return fmt.Errorf("exchange %q not declared", exchange)
	}
	if _, ok := b.queues[queueName]; !ok {
		return fmt.Errorf("queue %q not declared", queueName)
	}
	for _, bound := range b.bindings[exchange][key] {
		if bound == queueName {
			return nil
		}
	}
	b.bindings[exchange][key] = append(b.bindings[exchange][key], queueName)
	return nil
}

func (b *Broker) route(exchange, key string, pub transport.Publishing) error {
	b.mu.Lock()
	var targets []*queue
	if exchange == "" {
		if q, ok := b.queues[key]; ok {
			targets = append(targets, q)
		} else {
			b.dropped++
		}
	} else {
		if !b.exchanges[exchange] {
			b.mu.Unlock()
			return fmt.Errorf("exchange %q not declared", exchange)
		}
		for _, name := range b.bindings[exchange][key] {
			if q, ok := b.queues[name]; ok {
				targets = append(targets, q)
			}
		}
		if len(targets) == 0 {
			b.dropped++
		}
	}
	b.mu.Unlock()

	for _, q := range targets {
		delivery := transport.Delivery{
			Exchange:      exchange,
			RoutingKey:    key,
			CorrelationID: pub.CorrelationID,
			ReplyTo:       pub.ReplyTo,
			Headers:       cloneHeaders(pub.Headers),
			Body:          append([]byte(nil), pub.Body...),
			Acker:         &acker{b: b, queue: q.name},
		}
		select {
		case q.msgs <- delivery:
		case <-b.done:
			return errors.New("broker closed")
		}
	}
	return nil
}

func (b *Broker) queueByName(name string) (*queue, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[name]
	return q, ok
}

func cloneHeaders(headers map[string]any) map[string]any {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]any, len(headers))
	for k, v := range headers {
		out[k] = v
	}
	return out
}

type conn struct {
	b *Broker
}

func (c *conn) Channel() (transport.Channel, error) {
	return &channel{b: c.b}, nil
}

func (c *conn) NotifyClose() <-chan error {
	out := make(chan error)
	go func() {
		<-c.b.done
		close(out)
	}()
	return out
}

func (c *conn) Close() error { return nil }

type channel struct {
	b        *Broker
	prefetch int
}

func (c *channel) ExchangeDeclare(name string) error {
	c.b.declareExchange(name)
	return nil
}

func (c *channel) QueueDeclare(name string) (string, error) {
	return c.b.declareQueue(name), nil
}

func (c *channel) ExclusiveQueueDeclare() (string, error) {
	return c.b.declareExclusiveQueue(), nil
}

func (c *channel) QueueBind(queueName, key, exchange string) error {
	return c.b.bind(queueName, key, exchange)
}

func (c *channel) Qos(prefetch int) error {
	c.prefetch = prefetch
	return nil
}

func (c *channel) Consume(ctx context.Context, queueName string) (<-chan transport.Delivery, error) {
	q, ok := c.b.queueByName(queueName)
	if !ok {
		return nil, fmt.Errorf("queue %q not declared", queueName)
	}

	out := make(chan transport.Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.b.done:
				return
			case delivery := <-q.msgs:
				select {
				case out <- delivery:
				case <-ctx.Done():
					return
				case <-c.b.done:
					return
				}
			}
		}
	}()
	return out, nil
}

func (c *channel) Publish(ctx context.Context, exchange, key string, pub transport.Publishing) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.b.route(exchange, key, pub)
}

func (c *channel) Close() error { return nil }

type acker struct {
	b     *Broker
	queue string
	once  sync.Once
}

func (a *acker) Ack() error {
	a.once.Do(func() {
		a.b.mu.Lock()
		a.b.acks[a.queue]++
		a.b.mu.Unlock()
	})
	return nil
}

func (a *acker) Nack(requeue bool) error {
	a.once.Do(func() {
		a.b.mu.Lock()
		a.b.nacks[a.queue]++
		a.b.mu.Unlock()
	})
	return nil
}

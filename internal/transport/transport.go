package transport

import "context"

// Acknowledger settles a delivery with the broker.
type Acknowledger interface {
	Ack() error
	Nack(requeue bool) error
}

// Delivery is one message received from a queue.
type Delivery struct {
	Exchange      string
	RoutingKey    string
	CorrelationID string
	ReplyTo       string
	Headers       map[string]any
	Body          []byte
	Acker         Acknowledger
}

// Ack confirms the delivery. Deliveries without an acknowledger settle as a
// no-op so tests can construct bare values.
func (d Delivery) Ack() error {
	if d.Acker == nil {
		return nil
	}
	return d.Acker.Ack()
}

// Nack returns the delivery to the broker, optionally requeueing it.
func (d Delivery) Nack(requeue bool) error {
	if d.Acker == nil {
		return nil
	}
	return d.Acker.Nack(requeue)
}

// HeaderString returns the named header when it carries a string value.
func (d Delivery) HeaderString(key string) string {
	if d.Headers == nil {
		return ""
	}
	if value, ok := d.Headers[key]; ok {
		if s, ok := value.(string); ok {
			return s
		}
	}
	return ""
}

// Publishing is one message to be published.
type Publishing struct {
	ContentType   string
	CorrelationID string
	ReplyTo       string
	Headers       map[string]any
	Body          []byte
}

// Channel is one broker channel: topology declaration, consuming, publishing.
// Channels are not safe for concurrent use; give each consumer its own.
type Channel interface {
	// ExchangeDeclare declares a non-durable direct exchange.
	ExchangeDeclare(name string) error
	// QueueDeclare declares a non-durable named queue and returns its name.
	QueueDeclare(name string) (string, error)
	// ExclusiveQueueDeclare declares a server-named, exclusive, auto-deleted
	// queue and returns the generated name.
	ExclusiveQueueDeclare() (string, error)
	// QueueBind binds a queue to an exchange under a routing key.
	QueueBind(queue, key, exchange string) error
	// Qos caps the number of unacknowledged deliveries outstanding on this
	// channel.
	Qos(prefetch int) error
	// Consume starts delivering messages from the queue. The returned channel
	// closes when ctx is cancelled or the connection goes away.
	Consume(ctx context.Context, queue string) (<-chan Delivery, error)
	// Publish sends a message to the exchange under the routing key. The empty
	// exchange routes directly to the queue named by the key.
	Publish(ctx context.Context, exchange, key string, pub Publishing) error
	Close() error
}

// Connection is an open broker connection able to mint channels.
type Connection interface {
	Channel() (Channel, error)
	// NotifyClose reports an unsolicited connection loss. The channel closes
	// once, after the connection is gone, carrying the broker error if any.
	NotifyClose() <-chan error
	Close() error
}

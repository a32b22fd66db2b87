package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Options configures the AMQP connection.
type Options struct {
	URL            string
	DialTimeout    time.Duration
	Heartbeat      time.Duration
	ConnectionName string
}

// AMQPConnection is the production Connection backed by rabbitmq/amqp091-go.
type AMQPConnection struct {
	conn *amqp.Connection
}

// Dial opens a broker connection. The context bounds the TCP dial; the AMQP
// handshake is additionally bounded by the dial timeout.
func Dial(ctx context.Context, opts Options) (*AMQPConnection, error) {
	timeout := opts.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	cfg := amqp.Config{
		Heartbeat:  opts.Heartbeat,
		Properties: amqp.NewConnectionProperties(),
		Dial: func(network, addr string) (net.Conn, error) {
			dialer := net.Dialer{Timeout: timeout}
			return dialer.DialContext(ctx, network, addr)
		},
	}
	if opts.ConnectionName != "" {
		cfg.Properties.SetClientConnectionName(opts.ConnectionName)
	}

	conn, err := amqp.DialConfig(opts.URL, cfg)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	return &AMQPConnection{conn: conn}, nil
}

// Channel opens a fresh channel on the connection.
func (c *AMQPConnection) Channel() (Channel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	return &amqpChannel{ch: ch}, nil
}

// NotifyClose reports an unsolicited connection loss.
func (c *AMQPConnection) NotifyClose() <-chan error {
	out := make(chan error, 1)
	closes := c.conn.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		defer close(out)
		if err, ok := <-closes; ok && err != nil {
			out <- err
		}
	}()
	return out
}

// Close shuts the connection down, tearing down every channel with it.
func (c *AMQPConnection) Close() error {
	return c.conn.Close()
}

type amqpChannel struct {
	ch *amqp.Channel
}

func (c *amqpChannel) ExchangeDeclare(name string) error {
	if err := c.ch.ExchangeDeclare(name, amqp.ExchangeDirect, false, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", name, err)
	}
	return nil
}

func (c *amqpChannel) QueueDeclare(name string) (string, error) {
	queue, err := c.ch.QueueDeclare(name, false, false, false, false, nil)
	if err != nil {
		return "", fmt.Errorf("declare queue %s: %w", name, err)
	}
	return queue.Name, nil
}

func (c *amqpChannel) ExclusiveQueueDeclare() (string, error) {
	queue, err := c.ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return "", fmt.Errorf("declare exclusive queue: %w", err)
	}
	return queue.Name, nil
}

func (c *amqpChannel) QueueBind(queue, key, exchange string) error {
	if err := c.ch.QueueBind(queue, key, exchange, false, nil); err != nil {
		return fmt.Errorf("bind %s to %s/%s: %w", queue, exchange, key, err)
	}
	return nil
}

func (c *amqpChannel) Qos(prefetch int) error {
	return c.ch.Qos(prefetch, 0, false)
}

func (c *amqpChannel) Consume(ctx context.Context, queue string) (<-chan Delivery, error) {
	deliveries, err := c.ch.ConsumeWithContext(ctx, queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", queue, err)
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		for msg := range deliveries {
			d := Delivery{
				Exchange:      msg.Exchange,
				RoutingKey:    msg.RoutingKey,
				CorrelationID: msg.CorrelationId,
				ReplyTo:       msg.ReplyTo,
				Headers:       map[string]any(msg.Headers),
				Body:          msg.Body,
				Acker:         amqpAcker{msg: msg},
			}
			select {
			case out <- d:
			case <-ctx.Done():
				_ = msg.Nack(false, true)
				return
			}
		}
	}()
	return out, nil
}

func (c *amqpChannel) Publish(ctx context.Context, exchange, key string, pub Publishing) error {
	msg := amqp.Publishing{
		ContentType:   pub.ContentType,
		CorrelationId: pub.CorrelationID,
		ReplyTo:       pub.ReplyTo,
		Body:          pub.Body,
	}
	if len(pub.Headers) > 0 {
		msg.Headers = amqp.Table(pub.Headers)
	}
	if err := c.ch.PublishWithContext(ctx, exchange, key, false, false, msg); err != nil {
		return fmt.Errorf("publish to %s/%s: %w", exchange, key, err)
	}
	return nil
}

func (c *amqpChannel) Close() error {
	return c.ch.Close()
}

type amqpAcker struct {
	msg amqp.Delivery
}

func (a amqpAcker) Ack() error {
	return a.msg.Ack(false)
}

func (a amqpAcker) Nack(requeue bool) error {
	return a.msg.Nack(false, requeue)
}

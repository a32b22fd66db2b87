package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"labmq/internal/logging"
	"labmq/internal/protocol"
	"labmq/internal/transport"
)

// Consumer drains the control queue, translating raw Connect/Release bodies
// into controller calls and publishing the raw replies.
type Consumer struct {
	ctrl   *Controller
	ch     transport.Channel
	logger *slog.Logger
}

// NewConsumer wires a controller to a broker channel. The channel must belong
// to this consumer alone.
func NewConsumer(ctrl *Controller, ch transport.Channel, logger *slog.Logger) *Consumer {
	return &Consumer{
		ctrl:   ctrl,
		ch:     ch,
		logger: logging.NewComponentLogger(logger, "control"),
	}
}

// Run consumes control messages until ctx is cancelled or the transport goes
// away. Individual bad messages are logged and acknowledged; they never stop
// the loop.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.ch.Qos(1); err != nil {
		return fmt.Errorf("set control qos: %w", err)
	}
	deliveries, err := c.ch.Consume(ctx, protocol.ControlQueue)
	if err != nil {
		return fmt.Errorf("consume control queue: %w", err)
	}

	c.logger.Info("control consumer started", logging.String(logging.FieldQueue, protocol.ControlQueue))
	for delivery := range deliveries {
		c.handle(ctx, delivery)
	}
	c.logger.Info("control consumer stopped")
	return nil
}

func (c *Consumer) handle(ctx context.Context, d transport.Delivery) {
	defer func() {
		if err := d.Ack(); err != nil {
			c.logger.Warn("control ack failed", logging.Error(err))
		}
	}()

	body := strings.TrimSpace(string(d.Body))
	switch body {
	case protocol.ControlConnect:
		c.handleConnect(ctx, d)
	case protocol.ControlRelease:
		c.handleRelease(ctx, d)
	default:
		c.logger.Warn("unrecognized control body",
			logging.String("body", body),
			logging.String(logging.FieldClient, d.ReplyTo),
			logging.Alert("bad_control_message"))
	}
}

func (c *Consumer) handleConnect(ctx context.Context, d transport.Delivery) {
	if d.ReplyTo == "" {
		c.logger.Warn("connect without reply address", logging.Alert("bad_control_message"))
		return
	}

	grant := c.ctrl.Connect(ctx, d.ReplyTo)

	var pub transport.Publishing
	pub.ContentType = "text/plain"
	pub.CorrelationID = d.CorrelationID
	switch grant.Decision {
	case Granted:
		pub.Body = []byte(protocol.ReplyConnected)
		pub.Headers = map[string]any{protocol.TokenHeader: grant.Token}
	case AlreadyHeld:
		pub.Body = []byte(protocol.ReplyAlreadyConnected)
		pub.Headers = map[string]any{protocol.TokenHeader: grant.Token}
	case Waitlisted:
		pub.Body = []byte(protocol.ReplyQueued)
	}

	if err := c.ch.Publish(ctx, "", d.ReplyTo, pub); err != nil {
		c.logger.Error("connect reply failed",
			logging.String(logging.FieldClient, d.ReplyTo),
			logging.Error(err))
	}
}

func (c *Consumer) handleRelease(ctx context.Context, d transport.Delivery) {
	token := d.HeaderString(protocol.TokenHeader)
	released, promotion := c.ctrl.Release(ctx, d.ReplyTo, token)
	if !released {
		return
	}

	if d.ReplyTo != "" {
		reply := transport.Publishing{
			ContentType:   "text/plain",
			CorrelationID: d.CorrelationID,
			Body:          []byte(protocol.ReplyReleased),
		}
		if err := c.ch.Publish(ctx, "", d.ReplyTo, reply); err != nil {
			c.logger.Warn("release reply failed",
				logging.String(logging.FieldClient, d.ReplyTo),
				logging.Error(err))
		}
	}

	if promotion == nil {
		return
	}
	// The unsolicited grant carries no correlation id; waiting clients
	// recognize it by body alone.
	grant := transport.Publishing{
		ContentType: "text/plain",
		Body:        []byte(protocol.ReplyConnected),
		Headers:     map[string]any{protocol.TokenHeader: promotion.Token},
	}
	if err := c.ch.Publish(ctx, "", promotion.Client, grant); err != nil {
		c.logger.Error("session grant delivery failed",
			logging.String(logging.FieldClient, promotion.Client),
			logging.Error(err),
			logging.Alert("grant_undelivered"))
	}
}

package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"labmq/internal/logging"
	"labmq/internal/protocol"
	"labmq/internal/transport"
)

// Fallback deadlines applied when a caller's context carries none. Every wire
// wait is bounded.
const (
	DefaultCallTimeout = 30 * time.Second
	DefaultGrantWait   = 5 * time.Minute
)

// ConnectStatus reports the admission outcome of a Connect round trip.
type ConnectStatus int

const (
	// Granted means this client now holds the hardware session.
	Granted ConnectStatus = iota
	// Queued means another client holds the session and this one joined the
	// wait queue.
	Queued
)

func (s ConnectStatus) String() string {
	if s == Granted {
		return "granted"
	}
	return "queued"
}

// Options configures a Client.
type Options struct {
	// Channel is the broker channel the client owns. Required.
	Channel transport.Channel
	// Logger receives client diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
	// CallTimeout bounds calls whose context has no deadline.
	CallTimeout time.Duration
	// GrantWait bounds AwaitGrant when its context has no deadline.
	GrantWait time.Duration
}

// Client is one broker client: a private reply queue, an optional session
// token, and correlated request/reply calls. At most one call is in flight at
// a time; concurrent callers serialize on the internal mutex.
type Client struct {
	ch        transport.Channel
	logger    *slog.Logger
	callWait  time.Duration
	grantWait time.Duration

	mu         sync.Mutex
	reply      string
	deliveries <-chan transport.Delivery
	cancel     context.CancelFunc
	token      string
	queued     bool
	closed     bool
}

// NewClient declares the reply queue and starts consuming it. The channel
// belongs to the client from here on; Close tears it down.
func NewClient(opts Options) (*Client, error) {
	if opts.Channel == nil {
		return nil, errors.New("rpc client requires a channel")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		ch:        opts.Channel,
		logger:    logging.NewComponentLogger(logger, "rpc"),
		callWait:  opts.CallTimeout,
		grantWait: opts.GrantWait,
	}
	if c.callWait <= 0 {
		c.callWait = DefaultCallTimeout
	}
	if c.grantWait <= 0 {
		c.grantWait = DefaultGrantWait
	}

	for _, exchange := range []string{protocol.ExchangeCommands, protocol.ExchangeData, protocol.ExchangeControl} {
		if err := c.ch.ExchangeDeclare(exchange); err != nil {
			return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
		}
	}

	reply, err := c.ch.ExclusiveQueueDeclare()
	if err != nil {
		return nil, fmt.Errorf("declare reply queue: %w", err)
	}
	c.reply = reply

	ctx, cancel := context.WithCancel(context.Background())
	deliveries, err := c.ch.Consume(ctx, reply)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("consume reply queue: %w", err)
	}
	c.cancel = cancel
	c.deliveries = deliveries
	return c, nil
}

// Identity returns the reply queue name, which doubles as this client's
// identity on the wire.
func (c *Client) Identity() string { return c.reply }

// Token returns the held session token, empty when no session is held.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Connect requests the hardware session. On a grant the token is stored and
// attached to subsequent calls; on Queued the caller may AwaitGrant.
func (c *Client) Connect(ctx context.Context) (ConnectStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrClosed
	}

	ctx, cancel := withFallbackDeadline(ctx, c.callWait)
	defer cancel()

	reply, err := c.control(ctx, protocol.ControlConnect, nil)
	if err != nil {
		return 0, err
	}

	switch string(reply.Body) {
	case protocol.ReplyConnected, protocol.ReplyAlreadyConnected:
		c.token = reply.HeaderString(protocol.TokenHeader)
		c.queued = false
		return Granted, nil
	case protocol.ReplyQueued:
		c.queued = true
		return Queued, nil
	default:
		return 0, fmt.Errorf("unexpected connect reply %q", string(reply.Body))
	}
}

// AwaitGrant blocks until the session grant for a queued Connect arrives. It
// returns immediately when the client already holds a session.
func (c *Client) AwaitGrant(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.token != "" {
		return nil
	}
	if !c.queued {
		return ErrNoSession
	}

	ctx, cancel := withFallbackDeadline(ctx, c.grantWait)
	defer cancel()

	for {
		select {
		case d, ok := <-c.deliveries:
			if !ok {
				return ErrClosed
			}
			c.ack(d)
			if c.absorbGrant(d) {
				return nil
			}
			c.logger.Warn("dropping reply with foreign correlation id",
				logging.String(logging.FieldCorrelationID, d.CorrelationID))
		case <-ctx.Done():
			return fmt.Errorf("awaiting session grant: %w", ctx.Err())
		}
	}
}

// Call publishes a command request and blocks for its correlated reply. The
// raw response body comes back for the caller to decode; server status
// strings and error envelopes surface as typed errors instead.
func (c *Client) Call(ctx context.Context, exchange, routingKey, command string, args any) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	body, err := protocol.NewRequest(command, args)
	if err != nil {
		return nil, err
	}

	ctx, cancel := withFallbackDeadline(ctx, c.callWait)
	defer cancel()

	corrID := uuid.NewString()
	pub := transport.Publishing{
		ContentType:   "application/json",
		CorrelationID: corrID,
		ReplyTo:       c.reply,
		Body:          body,
	}
	if c.token != "" {
		pub.Headers = map[string]any{protocol.TokenHeader: c.token}
	}
	if err := c.ch.Publish(ctx, exchange, routingKey, pub); err != nil {
		return nil, fmt.Errorf("publish %s: %w", command, err)
	}

	reply, err := c.await(ctx, corrID)
	if err != nil {
		return nil, err
	}
	return decodeReply(command, reply.Body)
}

// Release gives up the held session. Failures are logged, never returned; the
// client forgets its token either way.
func (c *Client) Release(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.releaseLocked(ctx)
}

// Close releases any held session, then tears down the reply consumer and the
// channel. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.releaseLocked(context.Background())
	c.closed = true
	if c.cancel != nil {
		c.cancel()
	}
	return c.ch.Close()
}

func (c *Client) releaseLocked(ctx context.Context) {
	// Leaving the wait queue is local only; the daemon notices a dead waiter
	// when its grant delivery fails.
	c.queued = false
	if c.token == "" {
		return
	}

	ctx, cancel := withFallbackDeadline(ctx, c.callWait)
	defer cancel()

	headers := map[string]any{protocol.TokenHeader: c.token}
	reply, err := c.control(ctx, protocol.ControlRelease, headers)
	switch {
	case err != nil:
		c.logger.Warn("session release failed", logging.Error(err))
	case string(reply.Body) != protocol.ReplyReleased:
		c.logger.Warn("unexpected release reply", logging.String("body", string(reply.Body)))
	}
	c.token = ""
}

// control publishes a raw admission body and waits for its correlated reply.
func (c *Client) control(ctx context.Context, body string, headers map[string]any) (transport.Delivery, error) {
	corrID := uuid.NewString()
	pub := transport.Publishing{
		ContentType:   "text/plain",
		CorrelationID: corrID,
		ReplyTo:       c.reply,
		Headers:       headers,
		Body:          []byte(body),
	}
	if err := c.ch.Publish(ctx, protocol.ExchangeControl, protocol.ControlQueue, pub); err != nil {
		return transport.Delivery{}, fmt.Errorf("publish %s: %w", body, err)
	}
	return c.await(ctx, corrID)
}

// await pumps reply deliveries until one matches corrID. Unsolicited session
// grants observed along the way are absorbed into the client state so they
// are never lost; anything else off-correlation is logged and dropped.
func (c *Client) await(ctx context.Context, corrID string) (transport.Delivery, error) {
	for {
		select {
		case d, ok := <-c.deliveries:
			if !ok {
				return transport.Delivery{}, ErrClosed
			}
			c.ack(d)
			if d.CorrelationID == corrID {
				return d, nil
			}
			if c.absorbGrant(d) {
				continue
			}
			c.logger.Warn("dropping reply with foreign correlation id",
				logging.String(logging.FieldCorrelationID, d.CorrelationID))
		case <-ctx.Done():
			return transport.Delivery{}, fmt.Errorf("awaiting reply for %s: %w", corrID, ctx.Err())
		}
	}
}

// absorbGrant recognizes the uncorrelated Connected push sent when a queued
// client is promoted. The token is stored so a later AwaitGrant returns at
// once.
func (c *Client) absorbGrant(d transport.Delivery) bool {
	if d.CorrelationID != "" || string(d.Body) != protocol.ReplyConnected {
		return false
	}
	c.token = d.HeaderString(protocol.TokenHeader)
	c.queued = false
	c.logger.Info("session granted", logging.String(logging.FieldClient, c.reply))
	return true
}

func (c *Client) ack(d transport.Delivery) {
	if err := d.Ack(); err != nil {
		c.logger.Warn("reply ack failed", logging.Error(err))
	}
}

// decodeReply maps server status and error bodies onto typed errors.
func decodeReply(command string, body []byte) (json.RawMessage, error) {
	if msg, ok := protocol.DecodeError(body); ok {
		return nil, &ServerError{Message: msg}
	}
	if protocol.DecodeStatus(body, protocol.StatusUnauthorized) {
		return nil, fmt.Errorf("%s: %w", command, ErrUnauthorized)
	}
	if protocol.DecodeStatus(body, protocol.StatusUnknownCommand) {
		return nil, fmt.Errorf("%s: %w", command, ErrUnknownCommand)
	}
	return json.RawMessage(body), nil
}

// Executed reports whether a response body is the plain success status.
func Executed(body json.RawMessage) bool {
	return protocol.DecodeStatus(body, protocol.StatusCommandExecuted)
}

// withFallbackDeadline bounds ctx with the fallback timeout when it carries no
// deadline of its own.
func withFallbackDeadline(ctx context.Context, fallback time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, fallback)
}

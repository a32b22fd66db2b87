package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"labmq/internal/logging"
)

// Recorder receives session lifecycle events for the audit journal.
type Recorder interface {
	RecordSession(ctx context.Context, event, client string) error
}

// Session identifies the client currently holding control authority.
type Session struct {
	Client    string
	Token     string
	GrantedAt time.Time
}

// Decision classifies the outcome of a Connect request.
type Decision int

const (
	// Granted means the caller now holds the session.
	Granted Decision = iota
	// AlreadyHeld means the caller was the holder before the request.
	AlreadyHeld
	// Waitlisted means the caller was appended to the wait queue.
	Waitlisted
)

// Grant is the controller's answer to a Connect request.
type Grant struct {
	Decision Decision
	Token    string
}

// Promotion names the wait-queue head that received the session after a
// release.
type Promotion struct {
	Client string
	Token  string
}

// Controller arbitrates control authority: one active session, FIFO waiters.
// All methods are safe for concurrent use; dispatchers consult Authorize from
// their own goroutines.
type Controller struct {
	mu      sync.Mutex
	active  *Session
	waiters []string

	logger   *slog.Logger
	recorder Recorder
}

// NewController returns a controller with no active session. The recorder may
// be nil when auditing is disabled.
func NewController(logger *slog.Logger, recorder Recorder) *Controller {
	return &Controller{
		logger:   logging.NewComponentLogger(logger, "session"),
		recorder: recorder,
	}
}

// Connect requests control authority for the given client identity.
func (c *Controller) Connect(ctx context.Context, client string) Grant {
	c.mu.Lock()
	if c.active == nil {
		token := uuid.NewString()
		c.active = &Session{Client: client, Token: token, GrantedAt: time.Now()}
		c.mu.Unlock()

		c.logger.Info("session granted", logging.String(logging.FieldClient, client))
		c.record(ctx, "granted", client)
		return Grant{Decision: Granted, Token: token}
	}

	if c.active.Client == client {
		token := c.active.Token
		c.mu.Unlock()

		c.logger.Info("connect from current holder", logging.String(logging.FieldClient, client))
		return Grant{Decision: AlreadyHeld, Token: token}
	}

	c.waiters = append(c.waiters, client)
	position := len(c.waiters)
	c.mu.Unlock()

	c.logger.Info("client queued for session",
		logging.String(logging.FieldClient, client),
		logging.Int("position", position))
	c.record(ctx, "queued", client)
	return Grant{Decision: Waitlisted}
}

// Release gives up control authority. The caller must present the active
// session's token or be the active identity; anything else is ignored. When a
// waiter is promoted, the new session is installed before Release returns so
// no interloper can slip in between.
func (c *Controller) Release(ctx context.Context, client, token string) (bool, *Promotion) {
	c.mu.Lock()
	if c.active == nil || !c.matchesActiveLocked(client, token) {
		c.mu.Unlock()
		c.logger.Warn("ignoring release from non-holder",
			logging.String(logging.FieldClient, client),
			logging.Alert("unauthorized_release"))
		return false, nil
	}

	released := c.active.Client
	c.active = nil

	var promotion *Promotion
	if len(c.waiters) > 0 {
		next := c.waiters[0]
		c.waiters = c.waiters[1:]
		freshToken := uuid.NewString()
		c.active = &Session{Client: next, Token: freshToken, GrantedAt: time.Now()}
		promotion = &Promotion{Client: next, Token: freshToken}
	}
	c.mu.Unlock()

	c.logger.Info("session released", logging.String(logging.FieldClient, released))
	c.record(ctx, "released", released)
	if promotion != nil {
		c.logger.Info("session promoted from wait queue",
			logging.String(logging.FieldClient, promotion.Client))
		c.record(ctx, "promoted", promotion.Client)
	}
	return true, promotion
}

func (c *Controller) matchesActiveLocked(client, token string) bool {
	if token != "" && token == c.active.Token {
		return true
	}
	return client != "" && client == c.active.Client
}

// Authorize reports whether the token belongs to the active session. Empty
// tokens never authorize.
func (c *Controller) Authorize(token string) bool {
	if token == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil && c.active.Token == token
}

// Active returns a copy of the current session, if any.
func (c *Controller) Active() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return Session{}, false
	}
	return *c.active, true
}

// Waiters returns the wait queue in FIFO order.
func (c *Controller) Waiters() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.waiters))
	copy(out, c.waiters)
	return out
}

func (c *Controller) record(ctx context.Context, event, client string) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.RecordSession(ctx, event, client); err != nil {
		c.logger.Warn("audit record failed",
			logging.String("event", event),
			logging.Error(err))
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"labmq/internal/config"
	"labmq/internal/logging"
	"labmq/internal/rpc"
	"labmq/internal/transport"
)

type commandContext struct {
	configFlag  *string
	brokerFlag  *string
	timeoutFlag *time.Duration
	waitFlag    *bool

	configOnce  sync.Once
	config      *config.Config
	configPath  string
	configFound bool
	configErr   error
}

func newCommandContext(configFlag, brokerFlag *string, timeoutFlag *time.Duration, waitFlag *bool) *commandContext {
	return &commandContext{
		configFlag:  configFlag,
		brokerFlag:  brokerFlag,
		timeoutFlag: timeoutFlag,
		waitFlag:    waitFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolvedPath, found, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.brokerFlag != nil {
			if url := strings.TrimSpace(*c.brokerFlag); url != "" {
				cfg.Broker.URL = url
			}
		}
		c.config = cfg
		c.configPath = resolvedPath
		c.configFound = found
	})
	return c.config, c.configErr
}

func (c *commandContext) callTimeout(cfg *config.Config) time.Duration {
	if c.timeoutFlag != nil && *c.timeoutFlag > 0 {
		return *c.timeoutFlag
	}
	return cfg.CallTimeout()
}

func (c *commandContext) waitForGrant() bool {
	return c.waitFlag != nil && *c.waitFlag
}

// dialBroker is swapped by tests to run commands against an in-process broker.
var dialBroker = func(ctx context.Context, opts transport.Options) (transport.Connection, error) {
	return transport.Dial(ctx, opts)
}

// withSession dials the broker, opens a scoped hardware session, runs fn, and
// releases the session on the way out. A held session is only waited for when
// the --wait flag asks for it.
func (c *commandContext) withSession(cmd *cobra.Command, fn func(context.Context, *rpc.Client) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	conn, err := dialBroker(ctx, transport.Options{
		URL:            cfg.Broker.URL,
		DialTimeout:    cfg.DialTimeout(),
		Heartbeat:      cfg.BrokerHeartbeat(),
		ConnectionName: "labmq",
	})
	if err != nil {
		return wrapDialError(err, cfg.Broker.URL)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}

	client, err := rpc.NewClient(rpc.Options{
		Channel:     ch,
		Logger:      logging.NewNop(),
		CallTimeout: c.callTimeout(cfg),
		GrantWait:   cfg.GrantWait(),
	})
	if err != nil {
		return err
	}
	defer client.Close()

	status, err := client.Connect(ctx)
	if err != nil {
		return fmt.Errorf("request hardware session: %w", err)
	}
	if status == rpc.Queued {
		if !c.waitForGrant() {
			return errors.New("hardware session is held by another client (re-run with --wait to queue for it)")
		}
		fmt.Fprintln(cmd.ErrOrStderr(), "Session held by another client; waiting for the grant...")
		if err := client.AwaitGrant(ctx); err != nil {
			return fmt.Errorf("wait for hardware session: %w", err)
		}
	}

	return fn(ctx, client)
}

func wrapDialError(err error, url string) error {
	var netErr net.Error
	switch {
	case errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("connect to broker %s: timed out; verify the broker address and that RabbitMQ is running", url)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("connect to broker %s: %w", url, err)
	}
}

package daemon_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"labmq/internal/audit"
	"labmq/internal/config"
	"labmq/internal/daemon"
	"labmq/internal/logging"
	"labmq/internal/protocol"
	"labmq/internal/rpc"
	"labmq/internal/testsupport"
	"labmq/internal/transport/transporttest"
)

func startDaemon(t *testing.T, cfg *config.Config, store *audit.Store) (*daemon.Daemon, *transporttest.Broker) {
	t.Helper()

	broker := transporttest.NewBroker()
	d, err := daemon.New(daemon.Options{
		Config:  cfg,
		Logger:  logging.NewNop(),
		Conn:    broker.Connect(),
		Store:   store,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("start daemon: %v", err)
	}
	t.Cleanup(func() {
		if err := d.Close(); err != nil {
			t.Errorf("close daemon: %v", err)
		}
	})
	return d, broker
}

func newClient(t *testing.T, broker *transporttest.Broker) *rpc.Client {
	t.Helper()

	ch, err := broker.Connect().Channel()
	if err != nil {
		t.Fatalf("open channel: %v", err)
	}
	client, err := rpc.NewClient(rpc.Options{
		Channel:     ch,
		Logger:      logging.NewNop(),
		CallTimeout: 2 * time.Second,
		GrantWait:   2 * time.Second,
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() {
		if err := client.Close(); err != nil {
			t.Errorf("close client: %v", err)
		}
	})
	return client
}

func connect(t *testing.T, client *rpc.Client) {
	t.Helper()
	status, err := client.Connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if status != rpc.Granted {
		t.Fatalf("connect status = %v, want granted", status)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func TestStartDeclaresTopology(t *testing.T) {
	_, broker := startDaemon(t, testsupport.NewConfig(t), nil)

	declared := make(map[string]bool)
	for _, q := range broker.Queues() {
		declared[q] = true
	}
	want := []string{
		protocol.ControlQueue,
		protocol.ServerQueue,
		protocol.TelemetryQueue,
		protocol.CommandQueue(protocol.SubsystemMotion),
		protocol.DataQueue(protocol.SubsystemMotion),
		protocol.CommandQueue(protocol.SubsystemDigitizer),
		protocol.DataQueue(protocol.SubsystemDigitizer),
		protocol.CommandQueue(protocol.SubsystemGPIO),
		protocol.DataQueue(protocol.SubsystemGPIO),
	}
	for _, q := range want {
		if !declared[q] {
			t.Errorf("queue %s not declared", q)
		}
	}

	motionQueue := protocol.CommandQueue(protocol.SubsystemMotion)
	motionData := protocol.DataQueue(protocol.SubsystemMotion)
	checks := []struct {
		exchange string
		queue    string
	}{
		{protocol.ExchangeControl, protocol.ControlQueue},
		{protocol.ExchangeCommands, protocol.ServerQueue},
		{protocol.ExchangeData, protocol.TelemetryQueue},
		{protocol.ExchangeCommands, motionQueue},
		{protocol.ExchangeData, motionData},
	}
	for _, check := range checks {
		if !broker.HasBinding(check.exchange, check.queue, check.queue) {
			t.Errorf("queue %s not bound to exchange %s", check.queue, check.exchange)
		}
	}
}

func TestDisabledSubsystemDeclaresNoQueues(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSubsystemsDisabled(protocol.SubsystemDigitizer))
	_, broker := startDaemon(t, cfg, nil)

	for _, q := range broker.Queues() {
		if q == protocol.CommandQueue(protocol.SubsystemDigitizer) || q == protocol.DataQueue(protocol.SubsystemDigitizer) {
			t.Fatalf("queue %s declared for disabled subsystem", q)
		}
	}

	client := newClient(t, broker)
	connect(t, client)
	info, err := client.ServerInfo(context.Background())
	if err != nil {
		t.Fatalf("server-info: %v", err)
	}
	if slices.Contains(info.Subsystems, protocol.SubsystemDigitizer) {
		t.Errorf("subsystems = %v, disabled digitizer should be absent", info.Subsystems)
	}
	if !slices.Contains(info.Subsystems, protocol.SubsystemMotion) {
		t.Errorf("subsystems = %v, motion should be present", info.Subsystems)
	}
}

func TestSecondInstanceRefused(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	startDaemon(t, cfg, nil)

	second, err := daemon.New(daemon.Options{
		Config: cfg,
		Logger: logging.NewNop(),
		Conn:   transporttest.NewBroker().Connect(),
	})
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("second instance started despite held lock")
	}
}

func TestStopReleasesLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first, err := daemon.New(daemon.Options{
		Config: cfg,
		Logger: logging.NewNop(),
		Conn:   transporttest.NewBroker().Connect(),
	})
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("start daemon: %v", err)
	}
	first.Stop()
	first.Stop()
	if first.Status().Running {
		t.Error("stopped daemon reports running")
	}

	second, err := daemon.New(daemon.Options{
		Config: cfg,
		Logger: logging.NewNop(),
		Conn:   transporttest.NewBroker().Connect(),
	})
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	if err := second.Start(context.Background()); err != nil {
		t.Fatalf("start after stop: %v", err)
	}
	second.Stop()
}

func TestNewValidatesDependencies(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := daemon.New(daemon.Options{Config: cfg, Logger: logging.NewNop()}); err == nil {
		t.Error("new daemon without connection should fail")
	}
	if _, err := daemon.New(daemon.Options{Logger: logging.NewNop(), Conn: transporttest.NewBroker().Connect()}); err == nil {
		t.Error("new daemon without config should fail")
	}
}

func TestBuiltinsRoundTrip(t *testing.T) {
	_, broker := startDaemon(t, testsupport.NewConfig(t), nil)
	client := newClient(t, broker)
	connect(t, client)
	ctx := context.Background()

	sum, err := client.Add(ctx, 2, 3)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if sum != 5 {
		t.Errorf("add(2, 3) = %v, want 5", sum)
	}

	fib, err := client.Fib(ctx, 10)
	if err != nil {
		t.Fatalf("get-fib: %v", err)
	}
	if fib != 55 {
		t.Errorf("fib(10) = %d, want 55", fib)
	}

	if err := client.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}

	info, err := client.ServerInfo(ctx)
	if err != nil {
		t.Fatalf("server-info: %v", err)
	}
	if info.Version != "test" {
		t.Errorf("version = %q, want test", info.Version)
	}
	if info.ActiveClient != client.Identity() {
		t.Errorf("active client = %q, want %q", info.ActiveClient, client.Identity())
	}
	wantSubsystems := []string{protocol.SubsystemMotion, protocol.SubsystemDigitizer, protocol.SubsystemGPIO}
	for _, name := range wantSubsystems {
		if !slices.Contains(info.Subsystems, name) {
			t.Errorf("subsystems = %v, missing %s", info.Subsystems, name)
		}
	}

	lists, err := client.ListCommands(ctx)
	if err != nil {
		t.Fatalf("list-commands: %v", err)
	}
	byQueue := make(map[string][]string, len(lists))
	for _, l := range lists {
		byQueue[l.Queue] = l.Commands
	}
	if !slices.Contains(byQueue[protocol.CommandQueue(protocol.SubsystemMotion)], "move-to") {
		t.Errorf("motion commands = %v, missing move-to", byQueue[protocol.CommandQueue(protocol.SubsystemMotion)])
	}
	if !slices.Contains(byQueue[protocol.ServerQueue], "get-fib") {
		t.Errorf("server commands = %v, missing get-fib", byQueue[protocol.ServerQueue])
	}
	if !slices.Contains(byQueue[protocol.TelemetryQueue], "ping") {
		t.Errorf("telemetry commands = %v, missing ping", byQueue[protocol.TelemetryQueue])
	}
}

// TestSessionHandoffBetweenClients walks the whole admission lifecycle: a
// holder works, a second client queues and is refused, release promotes the
// waiter, and subsystem state survives the handoff.
func TestSessionHandoffBetweenClients(t *testing.T) {
	_, broker := startDaemon(t, testsupport.NewConfig(t), nil)
	ctx := context.Background()

	alice := newClient(t, broker)
	connect(t, alice)
	if err := alice.SetRate(ctx, 3.2); err != nil {
		t.Fatalf("set-rate: %v", err)
	}

	bob := newClient(t, broker)
	status, err := bob.Connect(ctx)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if status != rpc.Queued {
		t.Fatalf("second connect status = %v, want queued", status)
	}
	if _, err := bob.SampleRate(ctx); !errors.Is(err, rpc.ErrUnauthorized) {
		t.Fatalf("queued client call error = %v, want unauthorized", err)
	}

	alice.Release(ctx)
	if err := bob.AwaitGrant(ctx); err != nil {
		t.Fatalf("await grant: %v", err)
	}

	rate, err := bob.SampleRate(ctx)
	if err != nil {
		t.Fatalf("get-rate: %v", err)
	}
	if rate != 3.2 {
		t.Errorf("rate = %v, want 3.2 set by the previous holder", rate)
	}

	if _, err := alice.SampleRate(ctx); !errors.Is(err, rpc.ErrUnauthorized) {
		t.Fatalf("released client call error = %v, want unauthorized", err)
	}
}

func TestCommandJournalRecords(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenJournal(t, cfg)
	_, broker := startDaemon(t, cfg, store)

	client := newClient(t, broker)
	connect(t, client)
	ctx := context.Background()

	if err := client.MoveTo(ctx, 1, 2, 3); err != nil {
		t.Fatalf("move-to: %v", err)
	}

	var entries []protocol.CommandRecord
	var err error
	waitFor(t, func() bool {
		entries, err = client.RecentCommands(ctx, 10)
		if err != nil {
			t.Fatalf("recent-commands: %v", err)
		}
		for _, entry := range entries {
			if entry.Command == "move-to" {
				return true
			}
		}
		return false
	})

	for _, entry := range entries {
		if entry.Command != "move-to" {
			continue
		}
		if entry.Queue != protocol.CommandQueue(protocol.SubsystemMotion) {
			t.Errorf("queue = %q, want %q", entry.Queue, protocol.CommandQueue(protocol.SubsystemMotion))
		}
		if entry.Client != client.Identity() {
			t.Errorf("client = %q, want %q", entry.Client, client.Identity())
		}
		if entry.Outcome != audit.OutcomeExecuted {
			t.Errorf("outcome = %q, want %q", entry.Outcome, audit.OutcomeExecuted)
		}
	}
}

func TestRecentCommandsWithoutJournal(t *testing.T) {
	_, broker := startDaemon(t, testsupport.NewConfig(t), nil)
	client := newClient(t, broker)
	connect(t, client)

	_, err := client.RecentCommands(context.Background(), 5)
	var serverErr *rpc.ServerError
	if !errors.As(err, &serverErr) {
		t.Fatalf("recent-commands error = %v, want server error", err)
	}
}

func TestStatusSnapshot(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, broker := startDaemon(t, cfg, nil)

	st := d.Status()
	if !st.Running {
		t.Error("status should report running")
	}
	if st.Version != "test" {
		t.Errorf("version = %q, want test", st.Version)
	}
	if st.LockPath != cfg.LockPath() {
		t.Errorf("lock path = %q, want %q", st.LockPath, cfg.LockPath())
	}
	if len(st.Subsystems) != 4 {
		t.Fatalf("units = %d, want motion, digitizer, gpio, and server", len(st.Subsystems))
	}
	for _, sub := range st.Subsystems {
		if !sub.Available {
			t.Errorf("subsystem %s reports unavailable at startup", sub.Name)
		}
		if sub.CommandCount == 0 {
			t.Errorf("subsystem %s reports no commands", sub.Name)
		}
	}

	client := newClient(t, broker)
	connect(t, client)
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}

	waitFor(t, func() bool {
		for _, sub := range d.Status().Subsystems {
			if sub.Name == "server" && sub.Processed > 0 {
				return true
			}
		}
		return false
	})

	if got := d.Status().ActiveClient; got != client.Identity() {
		t.Errorf("active client = %q, want %q", got, client.Identity())
	}
}

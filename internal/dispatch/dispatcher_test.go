package dispatch_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"labmq/internal/audit"
	"labmq/internal/dispatch"
	"labmq/internal/logging"
	"labmq/internal/protocol"
	"labmq/internal/transport"
	"labmq/internal/transport/transporttest"
)

const testToken = "11111111-2222-3333-4444-555555555555"

type staticAuth string

func (a staticAuth) Authorize(token string) bool {
	return token != "" && token == string(a)
}

type captureRecorder struct {
	mu   sync.Mutex
	cmds []audit.Command
}

func (r *captureRecorder) RecordCommand(_ context.Context, cmd audit.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds = append(r.cmds, cmd)
	return nil
}

func (r *captureRecorder) outcomes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.cmds))
	for i, cmd := range r.cmds {
		out[i] = cmd.Outcome
	}
	return out
}

func mustRegistry(t *testing.T, bindings []dispatch.Binding) *dispatch.Registry {
	t.Helper()
	reg, err := dispatch.NewRegistry(bindings)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func declareSubsystemTopology(t *testing.T, broker *transporttest.Broker, subsystem string) {
	t.Helper()
	ch, err := broker.Connect().Channel()
	if err != nil {
		t.Fatalf("open channel: %v", err)
	}
	for _, exchange := range []string{protocol.ExchangeCommands, protocol.ExchangeData} {
		if err := ch.ExchangeDeclare(exchange); err != nil {
			t.Fatalf("declare exchange: %v", err)
		}
	}
	commandQueue := protocol.CommandQueue(subsystem)
	dataQueue := protocol.DataQueue(subsystem)
	for queue, exchange := range map[string]string{
		commandQueue: protocol.ExchangeCommands,
		dataQueue:    protocol.ExchangeData,
	} {
		if _, err := ch.QueueDeclare(queue); err != nil {
			t.Fatalf("declare queue %s: %v", queue, err)
		}
		if err := ch.QueueBind(queue, queue, exchange); err != nil {
			t.Fatalf("bind queue %s: %v", queue, err)
		}
	}
}

func startDispatcher(t *testing.T, broker *transporttest.Broker, opts dispatch.Options) *dispatch.Dispatcher {
	t.Helper()
	ch, err := broker.Connect().Channel()
	if err != nil {
		t.Fatalf("open channel: %v", err)
	}
	opts.Channel = ch
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	d, err := dispatch.NewDispatcher(opts)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("dispatcher run: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("dispatcher did not stop")
		}
	})
	return d
}

type requester struct {
	t          *testing.T
	ch         transport.Channel
	reply      string
	deliveries <-chan transport.Delivery
	seq        int
}

func newRequester(t *testing.T, broker *transporttest.Broker) *requester {
	t.Helper()
	ch, err := broker.Connect().Channel()
	if err != nil {
		t.Fatalf("open channel: %v", err)
	}
	reply, err := ch.ExclusiveQueueDeclare()
	if err != nil {
		t.Fatalf("declare reply queue: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	deliveries, err := ch.Consume(ctx, reply)
	if err != nil {
		t.Fatalf("consume reply queue: %v", err)
	}
	return &requester{t: t, ch: ch, reply: reply, deliveries: deliveries}
}

func (r *requester) send(exchange, key, token string, body []byte) string {
	r.t.Helper()
	r.seq++
	corrID := fmt.Sprintf("%s-corr-%d", r.reply, r.seq)
	pub := transport.Publishing{
		ContentType:   "application/json",
		CorrelationID: corrID,
		ReplyTo:       r.reply,
		Body:          body,
	}
	if token != "" {
		pub.Headers = map[string]any{protocol.TokenHeader: token}
	}
	if err := r.ch.Publish(context.Background(), exchange, key, pub); err != nil {
		r.t.Fatalf("publish request: %v", err)
	}
	return corrID
}

func (r *requester) call(exchange, key, token, command string, args any) transport.Delivery {
	r.t.Helper()
	body, err := protocol.NewRequest(command, args)
	if err != nil {
		r.t.Fatalf("encode request: %v", err)
	}
	corrID := r.send(exchange, key, token, body)
	reply := r.receive()
	if reply.CorrelationID != corrID {
		r.t.Fatalf("correlation mismatch: got %q want %q", reply.CorrelationID, corrID)
	}
	return reply
}

func (r *requester) receive() transport.Delivery {
	r.t.Helper()
	select {
	case d, ok := <-r.deliveries:
		if !ok {
			r.t.Fatal("reply channel closed")
		}
		return d
	case <-time.After(2 * time.Second):
		r.t.Fatal("timed out waiting for reply")
		return transport.Delivery{}
	}
}

func TestDispatchExecutesCommand(t *testing.T) {
	broker := transporttest.NewBroker()
	t.Cleanup(broker.Close)
	declareSubsystemTopology(t, broker, "motion")

	var got struct {
		X float64 `json:"x"`
	}
	commands := mustRegistry(t, []dispatch.Binding{{
		Name: "move-to",
		Handler: func(_ context.Context, args json.RawMessage) (any, error) {
			if err := json.Unmarshal(args, &got); err != nil {
				return nil, err
			}
			return nil, nil
		},
	}})
	rec := &captureRecorder{}
	d := startDispatcher(t, broker, dispatch.Options{
		Subsystem: "motion",
		Commands:  commands,
		Data:      mustRegistry(t, nil),
		Auth:      staticAuth(testToken),
		Recorder:  rec,
	})

	client := newRequester(t, broker)
	reply := client.call(protocol.ExchangeCommands, "motion_queue", testToken, "move-to", map[string]float64{"x": 12.5})

	if !protocol.DecodeStatus(reply.Body, protocol.StatusCommandExecuted) {
		t.Fatalf("reply = %s, want executed status", reply.Body)
	}
	if got.X != 12.5 {
		t.Fatalf("handler saw x=%v", got.X)
	}
	if d.Processed() != 1 {
		t.Fatalf("processed = %d", d.Processed())
	}

	waitFor(t, func() bool { return broker.Acked("motion_queue") == 1 })
	outcomes := rec.outcomes()
	if len(outcomes) != 1 || outcomes[0] != audit.OutcomeExecuted {
		t.Fatalf("outcomes = %v", outcomes)
	}
}

func TestDispatchRefusesBadToken(t *testing.T) {
	broker := transporttest.NewBroker()
	t.Cleanup(broker.Close)
	declareSubsystemTopology(t, broker, "motion")

	invoked := false
	commands := mustRegistry(t, []dispatch.Binding{{
		Name: "send-home",
		Handler: func(context.Context, json.RawMessage) (any, error) {
			invoked = true
			return nil, nil
		},
	}})
	rec := &captureRecorder{}
	startDispatcher(t, broker, dispatch.Options{
		Subsystem: "motion",
		Commands:  commands,
		Data:      mustRegistry(t, nil),
		Auth:      staticAuth(testToken),
		Recorder:  rec,
	})

	client := newRequester(t, broker)

	reply := client.call(protocol.ExchangeCommands, "motion_queue", "", "send-home", nil)
	if !protocol.DecodeStatus(reply.Body, protocol.StatusUnauthorized) {
		t.Fatalf("reply = %s, want unauthorized status", reply.Body)
	}

	reply = client.call(protocol.ExchangeCommands, "motion_queue", "wrong-token", "send-home", nil)
	if !protocol.DecodeStatus(reply.Body, protocol.StatusUnauthorized) {
		t.Fatalf("reply = %s, want unauthorized status", reply.Body)
	}

	if invoked {
		t.Fatal("handler must not run for unauthorized requests")
	}
	waitFor(t, func() bool { return len(rec.outcomes()) == 2 })
	for _, outcome := range rec.outcomes() {
		if outcome != audit.OutcomeUnauthorized {
			t.Fatalf("outcome = %q", outcome)
		}
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	broker := transporttest.NewBroker()
	t.Cleanup(broker.Close)
	declareSubsystemTopology(t, broker, "gpio")

	commands := mustRegistry(t, []dispatch.Binding{{
		Name:    "pulse",
		Handler: func(context.Context, json.RawMessage) (any, error) { return nil, nil },
	}})
	startDispatcher(t, broker, dispatch.Options{
		Subsystem: "gpio",
		Commands:  commands,
		Data:      mustRegistry(t, nil),
		Auth:      staticAuth(testToken),
	})

	client := newRequester(t, broker)
	reply := client.call(protocol.ExchangeCommands, "gpio_queue", testToken, "explode", nil)
	if !protocol.DecodeStatus(reply.Body, protocol.StatusUnknownCommand) {
		t.Fatalf("reply = %s, want unknown-command status", reply.Body)
	}
}

func TestDispatchHandlerErrorBecomesEnvelope(t *testing.T) {
	broker := transporttest.NewBroker()
	t.Cleanup(broker.Close)
	declareSubsystemTopology(t, broker, "motion")

	commands := mustRegistry(t, []dispatch.Binding{
		{
			Name: "move-to",
			Handler: func(context.Context, json.RawMessage) (any, error) {
				return nil, errors.New("target outside travel range")
			},
		},
		{
			Name:    "send-home",
			Handler: func(context.Context, json.RawMessage) (any, error) { return nil, nil },
		},
	})
	startDispatcher(t, broker, dispatch.Options{
		Subsystem: "motion",
		Commands:  commands,
		Data:      mustRegistry(t, nil),
		Auth:      staticAuth(testToken),
	})

	client := newRequester(t, broker)

	reply := client.call(protocol.ExchangeCommands, "motion_queue", testToken, "move-to", nil)
	msg, ok := protocol.DecodeError(reply.Body)
	if !ok {
		t.Fatalf("reply = %s, want error envelope", reply.Body)
	}
	if msg != "target outside travel range" {
		t.Fatalf("error message = %q", msg)
	}

	// The loop must keep serving after the failure.
	reply = client.call(protocol.ExchangeCommands, "motion_queue", testToken, "send-home", nil)
	if !protocol.DecodeStatus(reply.Body, protocol.StatusCommandExecuted) {
		t.Fatalf("reply = %s, want executed status", reply.Body)
	}
}

func TestDispatchSurvivesHandlerPanic(t *testing.T) {
	broker := transporttest.NewBroker()
	t.Cleanup(broker.Close)
	declareSubsystemTopology(t, broker, "digitizer")

	commands := mustRegistry(t, []dispatch.Binding{
		{
			Name: "start-collect",
			Handler: func(context.Context, json.RawMessage) (any, error) {
				panic("device wedged")
			},
		},
		{
			Name:    "force-stop",
			Handler: func(context.Context, json.RawMessage) (any, error) { return nil, nil },
		},
	})
	startDispatcher(t, broker, dispatch.Options{
		Subsystem: "digitizer",
		Commands:  commands,
		Data:      mustRegistry(t, nil),
		Auth:      staticAuth(testToken),
	})

	client := newRequester(t, broker)

	reply := client.call(protocol.ExchangeCommands, "digitizer_queue", testToken, "start-collect", nil)
	if msg, ok := protocol.DecodeError(reply.Body); !ok || msg == "" {
		t.Fatalf("reply = %s, want panic error envelope", reply.Body)
	}

	reply = client.call(protocol.ExchangeCommands, "digitizer_queue", testToken, "force-stop", nil)
	if !protocol.DecodeStatus(reply.Body, protocol.StatusCommandExecuted) {
		t.Fatalf("dispatcher died after panic: %s", reply.Body)
	}
}

func TestDispatchNormalizesFuncResults(t *testing.T) {
	broker := transporttest.NewBroker()
	t.Cleanup(broker.Close)
	declareSubsystemTopology(t, broker, "gpio")

	commands := mustRegistry(t, []dispatch.Binding{{
		Name: "pulse",
		Handler: func(context.Context, json.RawMessage) (any, error) {
			return func() {}, nil
		},
	}})
	startDispatcher(t, broker, dispatch.Options{
		Subsystem: "gpio",
		Commands:  commands,
		Data:      mustRegistry(t, nil),
		Auth:      staticAuth(testToken),
	})

	client := newRequester(t, broker)
	reply := client.call(protocol.ExchangeCommands, "gpio_queue", testToken, "pulse", nil)
	if !protocol.DecodeStatus(reply.Body, protocol.StatusCommandExecuted) {
		t.Fatalf("func result must normalize to executed status, got %s", reply.Body)
	}
}

func TestDispatchMalformedBody(t *testing.T) {
	broker := transporttest.NewBroker()
	t.Cleanup(broker.Close)
	declareSubsystemTopology(t, broker, "motion")

	startDispatcher(t, broker, dispatch.Options{
		Subsystem: "motion",
		Commands:  mustRegistry(t, nil),
		Data:      mustRegistry(t, nil),
		Auth:      staticAuth(testToken),
	})

	client := newRequester(t, broker)
	client.send(protocol.ExchangeCommands, "motion_queue", testToken, []byte(`{"command":`))
	reply := client.receive()
	if _, ok := protocol.DecodeError(reply.Body); !ok {
		t.Fatalf("reply = %s, want error envelope", reply.Body)
	}
}

func TestDispatchRoutesDataQueueToDataRegistry(t *testing.T) {
	broker := transporttest.NewBroker()
	t.Cleanup(broker.Close)
	declareSubsystemTopology(t, broker, "digitizer")

	data := mustRegistry(t, []dispatch.Binding{{
		Name: "get-rate",
		Handler: func(context.Context, json.RawMessage) (any, error) {
			return 2.0, nil
		},
	}})
	startDispatcher(t, broker, dispatch.Options{
		Subsystem: "digitizer",
		Commands:  mustRegistry(t, nil),
		Data:      data,
		Auth:      staticAuth(testToken),
	})

	client := newRequester(t, broker)

	reply := client.call(protocol.ExchangeData, "digitizer_data", testToken, "get-rate", nil)
	var rate float64
	if err := json.Unmarshal(reply.Body, &rate); err != nil || rate != 2.0 {
		t.Fatalf("reply = %s (err=%v), want 2.0", reply.Body, err)
	}

	// The same name on the commands queue is unknown: the tables are disjoint.
	reply = client.call(protocol.ExchangeCommands, "digitizer_queue", testToken, "get-rate", nil)
	if !protocol.DecodeStatus(reply.Body, protocol.StatusUnknownCommand) {
		t.Fatalf("reply = %s, want unknown-command status", reply.Body)
	}
}

func TestDispatchPreservesQueueOrder(t *testing.T) {
	broker := transporttest.NewBroker()
	t.Cleanup(broker.Close)
	declareSubsystemTopology(t, broker, "motion")

	var mu sync.Mutex
	var order []string
	commands := mustRegistry(t, []dispatch.Binding{{
		Name: "run-gcode",
		Handler: func(_ context.Context, args json.RawMessage) (any, error) {
			var line string
			if err := json.Unmarshal(args, &line); err != nil {
				return nil, err
			}
			mu.Lock()
			order = append(order, line)
			mu.Unlock()
			return nil, nil
		},
	}})
	startDispatcher(t, broker, dispatch.Options{
		Subsystem: "motion",
		Commands:  commands,
		Data:      mustRegistry(t, nil),
		Auth:      staticAuth(testToken),
	})

	client := newRequester(t, broker)
	lines := []string{"G28", "G0 X10", "G0 Y20", "G0 Z5"}
	for _, line := range lines {
		reply := client.call(protocol.ExchangeCommands, "motion_queue", testToken, "run-gcode", line)
		if !protocol.DecodeStatus(reply.Body, protocol.StatusCommandExecuted) {
			t.Fatalf("reply = %s", reply.Body)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != len(lines) {
		t.Fatalf("order = %v", order)
	}
	for i := range lines {
		if order[i] != lines[i] {
			t.Fatalf("processing order %v does not match arrival order %v", order, lines)
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition never became true")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

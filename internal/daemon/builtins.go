package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"labmq/internal/dispatch"
	"labmq/internal/protocol"
)

// serverSubsystem labels the daemon's own dispatcher in logs and the journal.
const serverSubsystem = "server"

// serverCommands returns the self-test table served on the rpc queue.
func serverCommands() []dispatch.Binding {
	return []dispatch.Binding{
		{Name: "add", Handler: addHandler},
		{Name: "get-fib", Handler: fibHandler},
	}
}

// telemetryBindings returns the data table served on the telemetry queue.
func (d *Daemon) telemetryBindings() []dispatch.Binding {
	return []dispatch.Binding{
		{Name: "ping", Handler: func(context.Context, json.RawMessage) (any, error) {
			return protocol.PingReply, nil
		}},
		{Name: "server-info", Handler: d.serverInfo},
		{Name: "list-commands", Handler: d.listCommands},
		{Name: "recent-commands", Handler: d.recentCommands},
	}
}

// addHandler sums a two-term sequence.
func addHandler(_ context.Context, raw json.RawMessage) (any, error) {
	var terms []float64
	if err := protocol.DecodeArgs(raw, &terms); err != nil {
		return nil, err
	}
	if len(terms) != 2 {
		return nil, fmt.Errorf("add takes two terms, got %d", len(terms))
	}
	return terms[0] + terms[1], nil
}

func fibHandler(_ context.Context, raw json.RawMessage) (any, error) {
	var n int
	if err := protocol.DecodeArgs(raw, &n); err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("fibonacci index must be non-negative, got %d", n)
	}
	return fib(n), nil
}

// fib computes the usual F(0)=0, F(1)=1 sequence.
func fib(n int) int {
	a, b := 0, 1
	for ; n > 0; n-- {
		a, b = b, a+b
	}
	return a
}

func (d *Daemon) serverInfo(context.Context, json.RawMessage) (any, error) {
	info := protocol.ServerInfo{
		Version:       d.version,
		PID:           os.Getpid(),
		UptimeSeconds: time.Since(d.startedAt).Seconds(),
		QueuedClients: len(d.ctrl.Waiters()),
	}
	for _, u := range d.units {
		if u.name == serverSubsystem {
			continue
		}
		info.Subsystems = append(info.Subsystems, u.name)
	}
	if active, ok := d.ctrl.Active(); ok {
		info.ActiveClient = active.Client
	}
	return info, nil
}

func (d *Daemon) listCommands(context.Context, json.RawMessage) (any, error) {
	queues := make([]protocol.QueueCommands, 0, 2*len(d.units))
	for _, u := range d.units {
		queues = append(queues,
			protocol.QueueCommands{Queue: u.commandQueue, Commands: u.commands.Names()},
			protocol.QueueCommands{Queue: u.dataQueue, Commands: u.data.Names()},
		)
	}
	sort.Slice(queues, func(i, j int) bool { return queues[i].Queue < queues[j].Queue })
	return queues, nil
}

func (d *Daemon) recentCommands(ctx context.Context, raw json.RawMessage) (any, error) {
	if d.store == nil {
		return nil, errors.New("audit journal disabled")
	}
	var args struct {
		Limit int `json:"limit"`
	}
	if err := protocol.DecodeArgs(raw, &args); err != nil {
		return nil, err
	}
	limit := args.Limit
	if limit <= 0 {
		limit = d.cfg.Audit.RecentLimit
	}
	entries, err := d.store.RecentCommands(ctx, limit)
	if err != nil {
		return nil, err
	}
	records := make([]protocol.CommandRecord, 0, len(entries))
	for _, entry := range entries {
		records = append(records, protocol.CommandRecord{
			OccurredAt: entry.OccurredAt,
			Subsystem:  entry.Subsystem,
			Queue:      entry.Queue,
			Command:    entry.Command,
			Client:     entry.Client,
			Outcome:    entry.Outcome,
			LatencyMS:  entry.LatencyMS,
		})
	}
	return records, nil
}

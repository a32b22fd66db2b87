package gpio

import (
	"context"
	"encoding/json"

	"labmq/internal/dispatch"
	"labmq/internal/protocol"
)

type pulseArgs struct {
	N    int `json:"n"`
	Wait int `json:"wait"`
}

type writeArgs struct {
	X bool `json:"x"`
}

// Commands returns the mutating command table served on the gpio command
// queue.
func Commands(pin *Pin) []dispatch.Binding {
	return []dispatch.Binding{
		{Name: "pulse", Handler: pulse(pin)},
		{Name: "slow-write", Handler: slowWrite(pin)},
	}
}

// Data returns the read-only table served on the gpio data queue.
func Data(pin *Pin) []dispatch.Binding {
	return []dispatch.Binding{
		{Name: "slow-read", Handler: func(context.Context, json.RawMessage) (any, error) {
			return pin.SlowRead()
		}},
		{Name: "get-read", Handler: func(context.Context, json.RawMessage) (any, error) {
			return pin.LastRead(), nil
		}},
		{Name: "get-write", Handler: func(context.Context, json.RawMessage) (any, error) {
			return pin.Level(), nil
		}},
	}
}

func pulse(pin *Pin) dispatch.Handler {
	return func(_ context.Context, raw json.RawMessage) (any, error) {
		var args pulseArgs
		if err := protocol.DecodeArgs(raw, &args); err != nil {
			return nil, err
		}
		return nil, pin.Pulse(args.N, args.Wait)
	}
}

func slowWrite(pin *Pin) dispatch.Handler {
	return func(_ context.Context, raw json.RawMessage) (any, error) {
		var args writeArgs
		if err := protocol.DecodeArgs(raw, &args); err != nil {
			return nil, err
		}
		return nil, pin.SlowWrite(args.X)
	}
}

package motion

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"labmq/internal/dispatch"
	"labmq/internal/protocol"
)

// axesArgs carries optional per-axis values; an absent key leaves that axis
// untouched.
type axesArgs struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
	Z *float64 `json:"z"`
}

func (a axesArgs) values() (x, y, z float64) {
	return floatOrNaN(a.X), floatOrNaN(a.Y), floatOrNaN(a.Z)
}

func floatOrNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

type axisFlagsArgs struct {
	X bool `json:"x"`
	Y bool `json:"y"`
	Z bool `json:"z"`
}

type gcodeArgs struct {
	GCode   string `json:"gcode"`
	Attempt int    `json:"attempt"`
	WaitAck bool   `json:"waitack"`
}

// Commands returns the mutating command table served on the motion command
// queue.
func Commands(stage *Stage) []dispatch.Binding {
	return []dispatch.Binding{
		{Name: "move-to", Handler: moveTo(stage)},
		{Name: "run-gcode", Handler: runGCode(stage)},
		{Name: "set-speed-limit", Handler: setSpeedLimit(stage)},
		{Name: "enable-stepper", Handler: stepperHandler(stage.EnableStepper)},
		{Name: "disable-stepper", Handler: stepperHandler(stage.DisableStepper)},
		{Name: "send-home", Handler: stepperHandler(stage.SendHome)},
		{Name: "set-max-x", Handler: axisSetter("x", stage.SetMaxX)},
		{Name: "set-max-y", Handler: axisSetter("y", stage.SetMaxY)},
		{Name: "set-max-z", Handler: axisSetter("z", stage.SetMaxZ)},
	}
}

// Data returns the read-only table served on the motion data queue.
func Data(stage *Stage) []dispatch.Binding {
	return []dispatch.Binding{
		{Name: "get-settings", Handler: func(context.Context, json.RawMessage) (any, error) {
			return stage.Settings(), nil
		}},
		{Name: "in-motion", Handler: func(context.Context, json.RawMessage) (any, error) {
			return stage.InMotion(), nil
		}},
		{Name: "get-position", Handler: func(context.Context, json.RawMessage) (any, error) {
			return stage.Position(), nil
		}},
		{Name: "get-max-x", Handler: axisGetter(stage.MaxX)},
		{Name: "get-max-y", Handler: axisGetter(stage.MaxY)},
		{Name: "get-max-z", Handler: axisGetter(stage.MaxZ)},
	}
}

func moveTo(stage *Stage) dispatch.Handler {
	return func(_ context.Context, raw json.RawMessage) (any, error) {
		var args axesArgs
		if err := protocol.DecodeArgs(raw, &args); err != nil {
			return nil, err
		}
		x, y, z := args.values()
		return nil, stage.MoveTo(x, y, z)
	}
}

func setSpeedLimit(stage *Stage) dispatch.Handler {
	return func(_ context.Context, raw json.RawMessage) (any, error) {
		var args axesArgs
		if err := protocol.DecodeArgs(raw, &args); err != nil {
			return nil, err
		}
		x, y, z := args.values()
		return nil, stage.SetSpeedLimit(x, y, z)
	}
}

func runGCode(stage *Stage) dispatch.Handler {
	return func(_ context.Context, raw json.RawMessage) (any, error) {
		var args gcodeArgs
		if err := protocol.DecodeArgs(raw, &args); err != nil {
			return nil, err
		}
		ack, err := stage.RunGCode(args.GCode)
		if err != nil {
			return nil, err
		}
		return ack, nil
	}
}

func stepperHandler(op func(x, y, z bool) error) dispatch.Handler {
	return func(_ context.Context, raw json.RawMessage) (any, error) {
		var args axisFlagsArgs
		if err := protocol.DecodeArgs(raw, &args); err != nil {
			return nil, err
		}
		return nil, op(args.X, args.Y, args.Z)
	}
}

// axisSetter decodes the single-axis argument the extent setters take, keyed
// by the axis name.
func axisSetter(key string, set func(float64) error) dispatch.Handler {
	return func(_ context.Context, raw json.RawMessage) (any, error) {
		var args map[string]float64
		if err := protocol.DecodeArgs(raw, &args); err != nil {
			return nil, err
		}
		v, ok := args[key]
		if !ok {
			return nil, fmt.Errorf("missing %q argument", key)
		}
		return nil, set(v)
	}
}

func axisGetter(get func() float64) dispatch.Handler {
	return func(context.Context, json.RawMessage) (any, error) {
		return get(), nil
	}
}

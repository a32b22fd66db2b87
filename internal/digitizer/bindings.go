package digitizer

import (
	"context"
	"encoding/json"

	"labmq/internal/dispatch"
	"labmq/internal/protocol"
)

type triggerArgs struct {
	Channel   int     `json:"channel"`
	Level     float64 `json:"level"`
	Direction int     `json:"direction"`
	Delay     float64 `json:"delay"`
}

type scalarArgs struct {
	X float64 `json:"x"`
}

type channelArgs struct {
	Channel int `json:"channel"`
}

// waveformSumArgs selects the integration and pedestal windows in sample
// indices. An absent intstop integrates to the sample setting; equal pedestal
// bounds skip the subtraction.
type waveformSumArgs struct {
	Channel  int  `json:"channel"`
	IntStart int  `json:"intstart"`
	IntStop  *int `json:"intstop"`
	PedStart int  `json:"pedstart"`
	PedStop  int  `json:"pedstop"`
}

// Commands returns the mutating command table served on the digitizer command
// queue.
func Commands(board *Board) []dispatch.Binding {
	return []dispatch.Binding{
		{Name: "start-collect", Handler: func(context.Context, json.RawMessage) (any, error) {
			return nil, board.StartCollect()
		}},
		{Name: "force-stop", Handler: func(context.Context, json.RawMessage) (any, error) {
			return nil, board.ForceStop()
		}},
		{Name: "run-calibration", Handler: func(context.Context, json.RawMessage) (any, error) {
			return nil, board.RunCalibration()
		}},
		{Name: "set-trigger", Handler: setTrigger(board)},
		{Name: "set-samples", Handler: setSamples(board)},
		{Name: "set-rate", Handler: setRate(board)},
	}
}

// Data returns the read-only table served on the digitizer data queue.
func Data(board *Board) []dispatch.Binding {
	return []dispatch.Binding{
		{Name: "get-waveform", Handler: getWaveform(board)},
		{Name: "get-waveformsum", Handler: getWaveformSum(board)},
		{Name: "get-time-slice", Handler: getTimeSlice(board)},
		{Name: "get-trigger-channel", Handler: triggerField(board, func(t Trigger) any { return t.Channel })},
		{Name: "get-trigger-level", Handler: triggerField(board, func(t Trigger) any { return t.Level })},
		{Name: "get-trigger-direction", Handler: triggerField(board, func(t Trigger) any { return t.Direction })},
		{Name: "get-trigger-delay", Handler: triggerField(board, func(t Trigger) any { return t.Delay })},
		{Name: "get-samples", Handler: func(context.Context, json.RawMessage) (any, error) {
			return board.Samples(), nil
		}},
		{Name: "get-rate", Handler: func(context.Context, json.RawMessage) (any, error) {
			return board.Rate()
		}},
		{Name: "is-available", Handler: func(context.Context, json.RawMessage) (any, error) {
			return board.IsAvailable(), nil
		}},
		{Name: "is-ready", Handler: func(context.Context, json.RawMessage) (any, error) {
			return board.IsReady()
		}},
	}
}

func setTrigger(board *Board) dispatch.Handler {
	return func(_ context.Context, raw json.RawMessage) (any, error) {
		var args triggerArgs
		if err := protocol.DecodeArgs(raw, &args); err != nil {
			return nil, err
		}
		return nil, board.SetTrigger(args.Channel, args.Level, args.Direction, args.Delay)
	}
}

func setSamples(board *Board) dispatch.Handler {
	return func(_ context.Context, raw json.RawMessage) (any, error) {
		var args scalarArgs
		if err := protocol.DecodeArgs(raw, &args); err != nil {
			return nil, err
		}
		return nil, board.SetSamples(int(args.X))
	}
}

func setRate(board *Board) dispatch.Handler {
	return func(_ context.Context, raw json.RawMessage) (any, error) {
		var args scalarArgs
		if err := protocol.DecodeArgs(raw, &args); err != nil {
			return nil, err
		}
		return nil, board.SetRate(args.X)
	}
}

func getWaveform(board *Board) dispatch.Handler {
	return func(_ context.Context, raw json.RawMessage) (any, error) {
		var args channelArgs
		if err := protocol.DecodeArgs(raw, &args); err != nil {
			return nil, err
		}
		return board.Waveform(args.Channel)
	}
}

func getWaveformSum(board *Board) dispatch.Handler {
	return func(_ context.Context, raw json.RawMessage) (any, error) {
		var args waveformSumArgs
		if err := protocol.DecodeArgs(raw, &args); err != nil {
			return nil, err
		}
		intStop := board.Samples()
		if args.IntStop != nil {
			intStop = *args.IntStop
		}
		return board.WaveformSum(args.Channel, args.IntStart, intStop, args.PedStart, args.PedStop)
	}
}

func getTimeSlice(board *Board) dispatch.Handler {
	return func(_ context.Context, raw json.RawMessage) (any, error) {
		var args channelArgs
		if err := protocol.DecodeArgs(raw, &args); err != nil {
			return nil, err
		}
		return board.TimeSlice()
	}
}

func triggerField(board *Board, pick func(Trigger) any) dispatch.Handler {
	return func(context.Context, json.RawMessage) (any, error) {
		return pick(board.TriggerSettings()), nil
	}
}

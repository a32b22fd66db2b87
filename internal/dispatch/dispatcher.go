package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync/atomic"
	"time"

	"labmq/internal/audit"
	"labmq/internal/logging"
	"labmq/internal/protocol"
	"labmq/internal/transport"
)

// Authorizer checks a session token against the active session.
type Authorizer interface {
	Authorize(token string) bool
}

// Recorder receives executed-command records for the audit journal.
type Recorder interface {
	RecordCommand(ctx context.Context, cmd audit.Command) error
}

// Options configures a Dispatcher. CommandQueue and DataQueue default to the
// subsystem's derived queue names; the daemon's built-in queues override them.
type Options struct {
	Subsystem    string
	Commands     *Registry
	Data         *Registry
	CommandQueue string
	DataQueue    string
	Channel      transport.Channel
	Auth         Authorizer
	Recorder     Recorder
	Logger       *slog.Logger
}

// Dispatcher serves one subsystem's command and data queues.
type Dispatcher struct {
	subsystem    string
	commands     *Registry
	data         *Registry
	commandQueue string
	dataQueue    string
	ch           transport.Channel
	auth         Authorizer
	recorder     Recorder
	logger       *slog.Logger

	processed atomic.Uint64
}

// NewDispatcher validates the wiring and returns a dispatcher ready to Run.
func NewDispatcher(opts Options) (*Dispatcher, error) {
	if opts.Subsystem == "" {
		return nil, errors.New("dispatch: subsystem name required")
	}
	if opts.Channel == nil {
		return nil, errors.New("dispatch: channel required")
	}
	if opts.Auth == nil {
		return nil, errors.New("dispatch: authorizer required")
	}
	commandQueue := opts.CommandQueue
	if commandQueue == "" {
		commandQueue = protocol.CommandQueue(opts.Subsystem)
	}
	dataQueue := opts.DataQueue
	if dataQueue == "" {
		dataQueue = protocol.DataQueue(opts.Subsystem)
	}
	return &Dispatcher{
		subsystem:    opts.Subsystem,
		commands:     opts.Commands,
		data:         opts.Data,
		commandQueue: commandQueue,
		dataQueue:    dataQueue,
		ch:           opts.Channel,
		auth:         opts.Auth,
		recorder:     opts.Recorder,
		logger:       logging.NewComponentLogger(opts.Logger, "dispatch"),
	}, nil
}

// Subsystem returns the subsystem this dispatcher serves.
func (d *Dispatcher) Subsystem() string { return d.subsystem }

// Processed reports how many requests this dispatcher has handled.
func (d *Dispatcher) Processed() uint64 { return d.processed.Load() }

// Run drains the subsystem's two queues until ctx is cancelled or the
// transport goes away. A single goroutine handles both queues, so handler
// state is never touched concurrently.
func (d *Dispatcher) Run(ctx context.Context) error {
	if err := d.ch.Qos(1); err != nil {
		return fmt.Errorf("set qos for %s: %w", d.subsystem, err)
	}

	commandDeliveries, err := d.ch.Consume(ctx, d.commandQueue)
	if err != nil {
		return fmt.Errorf("consume %s: %w", d.commandQueue, err)
	}
	dataDeliveries, err := d.ch.Consume(ctx, d.dataQueue)
	if err != nil {
		return fmt.Errorf("consume %s: %w", d.dataQueue, err)
	}

	d.logger.Info("dispatcher started",
		logging.String(logging.FieldSubsystem, d.subsystem),
		logging.Int("commands", d.commands.Len()),
		logging.Int("data_methods", d.data.Len()))

	for commandDeliveries != nil || dataDeliveries != nil {
		select {
		case delivery, ok := <-commandDeliveries:
			if !ok {
				commandDeliveries = nil
				continue
			}
			d.handle(ctx, delivery, d.commands, d.commandQueue)
		case delivery, ok := <-dataDeliveries:
			if !ok {
				dataDeliveries = nil
				continue
			}
			d.handle(ctx, delivery, d.data, d.dataQueue)
		}
	}

	d.logger.Info("dispatcher stopped", logging.String(logging.FieldSubsystem, d.subsystem))
	return nil
}

func (d *Dispatcher) handle(ctx context.Context, delivery transport.Delivery, reg *Registry, queueName string) {
	start := time.Now()
	d.processed.Add(1)

	reqCtx := logging.WithSubsystem(ctx, d.subsystem)
	reqCtx = logging.WithClient(reqCtx, delivery.ReplyTo)
	reqCtx = logging.WithCorrelationID(reqCtx, delivery.CorrelationID)
	logger := logging.WithContext(reqCtx, d.logger)

	command := ""
	outcome := audit.OutcomeExecuted
	var response []byte

	if !d.auth.Authorize(delivery.HeaderString(protocol.TokenHeader)) {
		outcome = audit.OutcomeUnauthorized
		response = statusBody(protocol.StatusUnauthorized)
		logger.Warn("refusing request without a valid session token",
			logging.Alert("unauthorized_request"))
	} else if req, err := protocol.ParseRequest(delivery.Body); err != nil {
		outcome = audit.OutcomeMalformed
		response = protocol.EncodeError(fmt.Sprintf("malformed request: %v", err))
		logger.Warn("malformed request body", logging.Error(err))
	} else {
		command = req.Command
		handler, ok := reg.Lookup(req.Command)
		switch {
		case !ok:
			outcome = audit.OutcomeUnknown
			response = statusBody(protocol.StatusUnknownCommand)
			logger.Warn("unknown command", logging.String(logging.FieldCommand, req.Command))
		default:
			result, err := d.invoke(reqCtx, logger, handler, req.Args)
			if err != nil {
				outcome = audit.OutcomeError
				response = protocol.EncodeError(err.Error())
				logger.Error("command failed",
					logging.String(logging.FieldCommand, req.Command),
					logging.Error(err))
			} else if response, err = encodeResult(result); err != nil {
				outcome = audit.OutcomeError
				response = protocol.EncodeError(fmt.Sprintf("encode response: %v", err))
				logger.Error("response encoding failed",
					logging.String(logging.FieldCommand, req.Command),
					logging.Error(err))
			} else {
				logger.Debug("command executed",
					logging.String(logging.FieldCommand, req.Command),
					logging.Duration("elapsed", time.Since(start)))
			}
		}
	}

	if delivery.ReplyTo == "" {
		logger.Warn("request without reply address", logging.Alert("no_reply_address"))
	} else {
		pub := transport.Publishing{
			ContentType:   "application/json",
			CorrelationID: delivery.CorrelationID,
			Body:          response,
		}
		if err := d.ch.Publish(reqCtx, "", delivery.ReplyTo, pub); err != nil {
			// Leave the delivery unacked; the broker owns redelivery.
			logger.Error("reply publish failed", logging.Error(err))
			d.record(reqCtx, queueName, command, delivery, outcome, start)
			return
		}
	}

	if err := delivery.Ack(); err != nil {
		logger.Warn("ack failed", logging.Error(err))
	}
	d.record(reqCtx, queueName, command, delivery, outcome, start)
}

// invoke runs the handler, converting a panic into an error so one bad
// handler can never take the consume loop down.
func (d *Dispatcher) invoke(ctx context.Context, logger *slog.Logger, handler Handler, args json.RawMessage) (result any, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = fmt.Errorf("handler panic: %v", v)
			logger.Error("handler panicked",
				logging.Any("panic", v),
				logging.Alert("handler_panic"))
		}
	}()
	return handler(ctx, args)
}

func (d *Dispatcher) record(ctx context.Context, queueName, command string, delivery transport.Delivery, outcome string, start time.Time) {
	if d.recorder == nil {
		return
	}
	cmd := audit.Command{
		Subsystem:     d.subsystem,
		Queue:         queueName,
		Command:       command,
		Client:        delivery.ReplyTo,
		CorrelationID: delivery.CorrelationID,
		Outcome:       outcome,
		Latency:       time.Since(start),
	}
	if err := d.recorder.RecordCommand(ctx, cmd); err != nil {
		d.logger.Warn("audit record failed", logging.Error(err))
	}
}

func statusBody(status string) []byte {
	body, _ := protocol.EncodeValue(status)
	return body
}

// encodeResult serializes a handler result. Nil and func-valued results
// normalize to the executed status; responses are data, never executable
// references.
func encodeResult(result any) ([]byte, error) {
	if result == nil {
		return protocol.EncodeValue(protocol.StatusCommandExecuted)
	}
	if reflect.ValueOf(result).Kind() == reflect.Func {
		return protocol.EncodeValue(protocol.StatusCommandExecuted)
	}
	return protocol.EncodeValue(result)
}

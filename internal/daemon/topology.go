package daemon

import (
	"fmt"

	"labmq/internal/protocol"
	"labmq/internal/transport"
)

// declareTopology sets up the three direct exchanges, the control queue, and
// every unit's queue pair, binding each queue under its own name as routing
// key. Declarations are idempotent on the broker.
func declareTopology(ch transport.Channel, units []*unit) error {
	for _, exchange := range []string{protocol.ExchangeCommands, protocol.ExchangeData, protocol.ExchangeControl} {
		if err := ch.ExchangeDeclare(exchange); err != nil {
			return fmt.Errorf("declare exchange %s: %w", exchange, err)
		}
	}

	if err := declareBound(ch, protocol.ControlQueue, protocol.ExchangeControl); err != nil {
		return err
	}
	for _, u := range units {
		if err := declareBound(ch, u.commandQueue, protocol.ExchangeCommands); err != nil {
			return err
		}
		if err := declareBound(ch, u.dataQueue, protocol.ExchangeData); err != nil {
			return err
		}
	}
	return nil
}

func declareBound(ch transport.Channel, queueName, exchange string) error {
	if _, err := ch.QueueDeclare(queueName); err != nil {
		return fmt.Errorf("declare queue %s: %w", queueName, err)
	}
	if err := ch.QueueBind(queueName, queueName, exchange); err != nil {
		return fmt.Errorf("bind queue %s: %w", queueName, err)
	}
	return nil
}

// Package transport abstracts the message broker used by the daemon and the
// RPC client stub.
//
// The Connection and Channel interfaces cover exactly the slice of AMQP the
// system needs: direct exchanges, named and server-named queues, per-consumer
// flow control, manual acknowledgment, and reply publishing through the
// default exchange. Dial returns the production implementation backed by
// rabbitmq/amqp091-go; transporttest provides an in-memory broker with the
// same contract for tests.
package transport

package rpc

import "errors"

// Sentinel errors decoded from server status replies.
var (
	// ErrUnauthorized reports a call made without the active session token.
	ErrUnauthorized = errors.New("unauthorized client")
	// ErrUnknownCommand reports a command the target queue does not serve.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrClosed reports use of a client after Close.
	ErrClosed = errors.New("rpc client closed")
	// ErrNoSession reports a grant wait on a client that was never queued.
	ErrNoSession = errors.New("no session requested")
)

// ServerError carries the message from a handler-failure envelope.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "server error: " + e.Message
}

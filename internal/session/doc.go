// Package session owns control authority for the shared instruments.
//
// A Controller tracks the single active session and the FIFO line of waiting
// clients. Connect and Release arrive over the control queue as raw bodies;
// the Consumer translates them into controller calls and publishes the raw
// replies. Authorization for command traffic is token-based: the controller
// mints a fresh token per grant and dispatchers verify it per request.
package session

// Package dispatch routes RPC requests to command handlers.
//
// A Registry is an immutable name-to-handler table built once at startup from
// a subsystem's binding list; construction fails fast on duplicate or empty
// names and nil handlers. A Dispatcher drains one subsystem's command and
// data queues in a single goroutine, so handler state is only ever touched
// serially, while separate subsystems run their own dispatchers in parallel.
//
// The dispatcher enforces the admission token before consulting any table,
// converts handler errors and panics into error-envelope responses, and
// acknowledges each delivery only after its reply has been published.
package dispatch

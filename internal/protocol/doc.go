// Package protocol defines the wire vocabulary shared by the labmq daemon and
// its clients.
//
// It owns the request envelope, the fixed status strings, the raw control
// bodies, and the exchange/queue naming scheme. Request bodies are JSON; the
// admission channel speaks raw strings; everything else about a message
// (reply address, correlation identifier, session token header) rides as
// transport metadata and never appears in a body.
//
// Keep additions here minimal and stable: both binaries and every subsystem
// table compile against these names, and the broker topology is derived from
// them at startup.
package protocol

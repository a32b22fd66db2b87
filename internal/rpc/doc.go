// Package rpc implements the client side of the broker protocol: session
// admission, correlated request/reply calls, and typed wrappers for the
// subsystem vocabularies.
//
// A Client owns one exclusive reply queue for its lifetime and keeps at most
// one call in flight; concurrent callers serialize on an internal mutex.
package rpc

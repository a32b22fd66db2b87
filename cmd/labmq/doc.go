// Package main hosts the labmq CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into broker
// RPC calls: every command opens a scoped hardware session (connect, act,
// release), so admission control applies to operators exactly as it does to
// scripted clients. Configuration resolution, broker dialing, and session
// handling are centralized in the command context so subcommands can focus
// on flags and output.
//
// Keep this package lean: add new functionality to the internal packages
// first, then surface it through dedicated commands or flags here.
package main

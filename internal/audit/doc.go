// Package audit keeps an append-only journal of session events and executed
// commands in a local SQLite database.
//
// The journal is operational history for the recent-commands data method and
// the labmq audit CLI command, not a durability mechanism: a schema version
// bump recreates the file rather than migrating it.
package audit

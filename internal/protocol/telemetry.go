package protocol

import "time"

// ServerInfo is the server-info telemetry response.
type ServerInfo struct {
	Version       string   `json:"version"`
	PID           int      `json:"pid"`
	UptimeSeconds float64  `json:"uptime_seconds"`
	Subsystems    []string `json:"subsystems"`
	ActiveClient  string   `json:"active_client,omitempty"`
	QueuedClients int      `json:"queued_clients"`
}

// QueueCommands lists the command vocabulary served on one queue.
type QueueCommands struct {
	Queue    string   `json:"queue"`
	Commands []string `json:"commands"`
}

// CommandRecord is one journal row of the recent-commands response, newest
// first.
type CommandRecord struct {
	OccurredAt time.Time `json:"occurred_at"`
	Subsystem  string    `json:"subsystem"`
	Queue      string    `json:"queue"`
	Command    string    `json:"command"`
	Client     string    `json:"client"`
	Outcome    string    `json:"outcome"`
	LatencyMS  float64   `json:"latency_ms"`
}

// PingReply is the body answered to a ping.
const PingReply = "pong"

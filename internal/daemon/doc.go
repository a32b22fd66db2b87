// Package daemon assembles the broker-side process: topology declaration,
// the admission consumer, one dispatcher per enabled subsystem, the built-in
// self-test and telemetry tables, and hardware hotplug tracking. A file lock
// keeps the instance single.
package daemon

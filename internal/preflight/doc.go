// Package preflight provides readiness checks for the filesystem paths,
// broker endpoint, and device nodes that labmq depends on.
//
// These checks run in two contexts:
//   - labmqd runs RunAll at startup and logs failures. The daemon still
//     starts degraded, since hardware can be attached later.
//   - The CLI "labmq config validate" command renders the results so an
//     operator can diagnose a bench before starting the daemon.
//
// Each check is gated by its config toggle -- disabled subsystems are skipped.
package preflight

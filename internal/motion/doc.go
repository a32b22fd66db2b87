// Package motion implements the gantry motion subsystem: a simulated
// three-axis stage plus the command and data tables served on the motion
// queues.
package motion

// Package digitizer implements the waveform digitizer subsystem: a simulated
// four-channel sampling board plus the command and data tables served on the
// digitizer queues.
package digitizer

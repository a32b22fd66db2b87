// Package gpio implements the digital I/O subsystem: a simulated output pin
// plus the command and data tables served on the gpio queues.
package gpio

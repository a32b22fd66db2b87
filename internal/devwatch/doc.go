// Package devwatch flips subsystem availability as the kernel reports the
// backing hardware attaching and detaching, so a mid-session unplug degrades
// commands instead of wedging them.
package devwatch

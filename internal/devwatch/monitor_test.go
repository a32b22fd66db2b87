package devwatch

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/pilebones/go-udev/netlink"

	"labmq/internal/logging"
)

type fakeDevice struct {
	available atomic.Bool
	flips     atomic.Int64
}

func (f *fakeDevice) set(available bool) {
	f.available.Store(available)
	f.flips.Add(1)
}

func (f *fakeDevice) target(subsystem, device string) Target {
	return Target{Subsystem: subsystem, Device: device, SetAvailable: f.set}
}

func TestNewMonitorFiltersTargets(t *testing.T) {
	if m := NewMonitor(logging.NewNop(), nil); m != nil {
		t.Fatalf("monitor for no targets should be nil")
	}
	if m := NewMonitor(logging.NewNop(), []Target{{Subsystem: "motion"}}); m != nil {
		t.Fatalf("monitor for target without device should be nil")
	}
	deviceOnly := []Target{{Subsystem: "motion", Device: "/dev/ttyUSB0"}}
	if m := NewMonitor(logging.NewNop(), deviceOnly); m != nil {
		t.Fatalf("monitor for target without setter should be nil")
	}

	var dev fakeDevice
	m := NewMonitor(logging.NewNop(), []Target{
		dev.target("motion", "  /dev/ttyUSB0  "),
		{Subsystem: "gpio"},
	})
	if m == nil {
		t.Fatalf("expected a monitor for one watchable target")
	}
	if len(m.targets) != 1 || m.targets[0].Device != "/dev/ttyUSB0" {
		t.Fatalf("targets = %+v", m.targets)
	}
}

func TestNilMonitorIsSafe(t *testing.T) {
	var m *Monitor
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start on nil monitor: %v", err)
	}
	m.Stop()
	if m.Running() {
		t.Fatalf("nil monitor reports running")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	var dev fakeDevice
	m := NewMonitor(logging.NewNop(), []Target{dev.target("motion", "/dev/ttyUSB0")})
	if m.Running() {
		t.Fatalf("unstarted monitor reports running")
	}
	m.Stop()
	m.Stop()
	if m.Running() {
		t.Fatalf("stopped monitor reports running")
	}

	// The socket may be unreachable in a test environment; either way Start
	// must not report an error, and Stop must clean up.
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	m.Stop()
	if m.Running() {
		t.Fatalf("monitor still running after stop")
	}
}

func TestHandleEventFlipsAvailability(t *testing.T) {
	var board fakeDevice
	board.available.Store(true)
	m := NewMonitor(logging.NewNop(), []Target{board.target("digitizer", "/dev/drs4")})

	m.handleEvent(netlink.UEvent{
		Action: netlink.REMOVE,
		Env:    map[string]string{"DEVNAME": "/dev/drs4"},
	})
	if board.available.Load() {
		t.Fatalf("board still available after remove event")
	}

	m.handleEvent(netlink.UEvent{
		Action: netlink.ADD,
		Env:    map[string]string{"DEVNAME": "/dev/drs4"},
	})
	if !board.available.Load() {
		t.Fatalf("board unavailable after add event")
	}
	if got := board.flips.Load(); got != 2 {
		t.Fatalf("flips = %d, want 2", got)
	}
}

func TestHandleEventIgnoresForeignDevices(t *testing.T) {
	var stage fakeDevice
	m := NewMonitor(logging.NewNop(), []Target{stage.target("motion", "/dev/ttyUSB0")})

	m.handleEvent(netlink.UEvent{
		Action: netlink.ADD,
		Env:    map[string]string{"DEVNAME": "/dev/ttyUSB7"},
	})
	m.handleEvent(netlink.UEvent{Action: netlink.ADD, Env: map[string]string{}})
	if got := stage.flips.Load(); got != 0 {
		t.Fatalf("foreign events flipped availability %d times", got)
	}
}

func TestHandleEventResolvesBareAndPathNames(t *testing.T) {
	var stage fakeDevice
	m := NewMonitor(logging.NewNop(), []Target{stage.target("motion", "/dev/ttyUSB0")})

	// tty uevents usually carry DEVNAME without the /dev prefix.
	m.handleEvent(netlink.UEvent{
		Action: netlink.ADD,
		Env:    map[string]string{"DEVNAME": "ttyUSB0"},
	})
	if got := stage.flips.Load(); got != 1 {
		t.Fatalf("bare DEVNAME not matched, flips = %d", got)
	}

	m.handleEvent(netlink.UEvent{
		Action: netlink.REMOVE,
		Env:    map[string]string{"DEVPATH": "/devices/platform/soc/usb/tty/ttyUSB0"},
	})
	if stage.available.Load() {
		t.Fatalf("DEVPATH fallback not matched")
	}
}

func TestBuildMatcherKeepsOnlyAttachDetach(t *testing.T) {
	var dev fakeDevice
	m := NewMonitor(logging.NewNop(), []Target{dev.target("motion", "/dev/ttyUSB0")})
	matcher := m.buildMatcher()

	add := netlink.UEvent{Action: netlink.ADD, Env: map[string]string{"DEVNAME": "ttyUSB0"}}
	if !matcher.Evaluate(add) {
		t.Fatalf("matcher rejected add event")
	}
	remove := netlink.UEvent{Action: netlink.REMOVE, Env: map[string]string{"DEVNAME": "ttyUSB0"}}
	if !matcher.Evaluate(remove) {
		t.Fatalf("matcher rejected remove event")
	}
	change := netlink.UEvent{Action: netlink.CHANGE, Env: map[string]string{"DEVNAME": "ttyUSB0"}}
	if matcher.Evaluate(change) {
		t.Fatalf("matcher accepted change event")
	}
}

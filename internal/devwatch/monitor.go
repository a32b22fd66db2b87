package devwatch

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/pilebones/go-udev/netlink"

	"labmq/internal/logging"
)

// Target gates one subsystem's availability on a device node.
type Target struct {
	// Subsystem names the owner in log lines.
	Subsystem string
	// Device is the /dev path whose add/remove events this target follows.
	Device string
	// SetAvailable flips the subsystem's hardware state.
	SetAvailable func(bool)
}

// Monitor listens for udev netlink events and applies them to its targets.
// A nil monitor is a safe no-op, so callers can wire it unconditionally.
type Monitor struct {
	logger  *slog.Logger
	targets []Target

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// NewMonitor returns a monitor for the targets that name a device. It returns
// nil when nothing is watchable.
func NewMonitor(logger *slog.Logger, targets []Target) *Monitor {
	var kept []Target
	for _, target := range targets {
		target.Device = strings.TrimSpace(target.Device)
		if target.Device == "" || target.SetAvailable == nil {
			continue
		}
		kept = append(kept, target)
	}
	if len(kept) == 0 {
		return nil
	}
	return &Monitor{
		logger:  logging.NewComponentLogger(logger, "devwatch"),
		targets: kept,
	}
}

// Start begins listening for udev events. A netlink socket failure is not
// fatal: hardware is assumed present and the monitor stays stopped.
func (m *Monitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		m.logger.Warn("netlink socket unavailable; hardware assumed present",
			logging.Error(err),
			logging.Alert("devwatch_disabled"))
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.monitorLoop(ctx, quit)

	m.logger.Info("device monitor started", logging.Int("targets", len(m.targets)))
	return nil
}

// Stop shuts the monitor down. Safe on nil and unstarted monitors.
func (m *Monitor) Stop() {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}

	if m.quit != nil {
		close(m.quit)
		m.quit = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.running = false

	m.logger.Info("device monitor stopped")
}

// Running reports whether the monitor is listening.
func (m *Monitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) monitorLoop(ctx context.Context, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return
	}

	monitorQuit := conn.Monitor(queue, errs, m.buildMatcher())
	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			m.handleEvent(uevent)
		case err := <-errs:
			m.logger.Warn("netlink monitor error", logging.Error(err))
		}
	}
}

// buildMatcher keeps only attach and detach actions. Device filtering happens
// against the target list, since the targets span udev subsystems.
func (m *Monitor) buildMatcher() netlink.Matcher {
	action := "add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{Action: &action})
	return rules
}

func (m *Monitor) handleEvent(uevent netlink.UEvent) {
	devname := deviceName(uevent)
	if devname == "" {
		return
	}

	for _, target := range m.targets {
		if target.Device != devname {
			continue
		}
		switch uevent.Action {
		case netlink.ADD:
			target.SetAvailable(true)
			m.logger.Info("hardware attached",
				logging.String(logging.FieldSubsystem, target.Subsystem),
				logging.String("device", devname))
		case netlink.REMOVE:
			target.SetAvailable(false)
			m.logger.Warn("hardware detached",
				logging.String(logging.FieldSubsystem, target.Subsystem),
				logging.String("device", devname),
				logging.Alert("hardware_detached"))
		}
	}
}

// deviceName resolves a uevent to a /dev path, from DEVNAME when present or
// the last DEVPATH segment otherwise.
func deviceName(uevent netlink.UEvent) string {
	if devname := uevent.Env["DEVNAME"]; devname != "" {
		if strings.HasPrefix(devname, "/") {
			return devname
		}
		return "/dev/" + devname
	}

	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	parts := strings.Split(devpath, "/")
	last := parts[len(parts)-1]
	if last == "" {
		return ""
	}
	return "/dev/" + last
}

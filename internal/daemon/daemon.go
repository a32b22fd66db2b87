package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"labmq/internal/audit"
	"labmq/internal/config"
	"labmq/internal/devwatch"
	"labmq/internal/digitizer"
	"labmq/internal/dispatch"
	"labmq/internal/gpio"
	"labmq/internal/logging"
	"labmq/internal/motion"
	"labmq/internal/protocol"
	"labmq/internal/session"
	"labmq/internal/transport"
)

// unit is one dispatcher's worth of wiring: a subsystem (or the daemon's own
// built-ins) with its queue pair and registries.
type unit struct {
	name         string
	commandQueue string
	dataQueue    string
	commands     *dispatch.Registry
	data         *dispatch.Registry
	// available reports hardware presence; nil means always present.
	available func() bool
}

// Options configures a Daemon.
type Options struct {
	Config *config.Config
	Logger *slog.Logger
	Conn   transport.Connection
	// Store receives the audit journal. Nil disables auditing.
	Store   *audit.Store
	Version string
}

// Daemon owns the broker-side runtime: admission control, dispatchers, and
// the hardware simulators behind them.
type Daemon struct {
	cfg     *config.Config
	base    *slog.Logger
	logger  *slog.Logger
	conn    transport.Connection
	store   *audit.Store
	version string

	ctrl    *session.Controller
	units   []*unit
	monitor *devwatch.Monitor

	lockPath  string
	lock      *flock.Flock
	startedAt time.Time
	running   atomic.Bool

	mu          sync.Mutex
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	channels    []transport.Channel
	dispatchers []*dispatch.Dispatcher
}

// Status is a point-in-time snapshot of the daemon.
type Status struct {
	Running       bool
	Version       string
	StartedAt     time.Time
	LockPath      string
	JournalPath   string
	ActiveClient  string
	QueuedClients int
	Subsystems    []SubsystemStatus
}

// SubsystemStatus summarizes one dispatcher and its hardware.
type SubsystemStatus struct {
	Name         string
	CommandCount int
	DataCount    int
	Processed    uint64
	Available    bool
}

// New builds the daemon's units and validates every command table. The
// connection is not touched until Start.
func New(opts Options) (*Daemon, error) {
	if opts.Config == nil || opts.Logger == nil || opts.Conn == nil {
		return nil, errors.New("daemon requires config, logger, and connection")
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}

	d := &Daemon{
		cfg:       opts.Config,
		base:      opts.Logger,
		logger:    logging.NewComponentLogger(opts.Logger, "daemon"),
		conn:      opts.Conn,
		store:     opts.Store,
		version:   version,
		lockPath:  opts.Config.LockPath(),
		lock:      flock.New(opts.Config.LockPath()),
		startedAt: time.Now(),
	}

	var recorder session.Recorder
	if opts.Store != nil {
		recorder = opts.Store
	}
	d.ctrl = session.NewController(opts.Logger, recorder)

	if err := d.buildUnits(); err != nil {
		return nil, err
	}
	return d, nil
}

// buildUnits constructs the hardware simulators, their registries, and the
// built-in server unit. Registry construction fails on duplicate or empty
// command names, so a bad table stops the daemon before it touches the
// broker.
func (d *Daemon) buildUnits() error {
	var watch []devwatch.Target

	if d.cfg.Motion.Enabled {
		stage := motion.NewStage(d.cfg.Motion)
		if err := d.addUnit(protocol.SubsystemMotion, motion.Commands(stage), motion.Data(stage), stage.Available); err != nil {
			return err
		}
		watch = append(watch, devwatch.Target{
			Subsystem:    protocol.SubsystemMotion,
			Device:       d.cfg.Motion.Device,
			SetAvailable: stage.SetAvailable,
		})
	}
	if d.cfg.Digitizer.Enabled {
		board := digitizer.NewBoard(d.cfg.Digitizer)
		if err := d.addUnit(protocol.SubsystemDigitizer, digitizer.Commands(board), digitizer.Data(board), board.IsAvailable); err != nil {
			return err
		}
		watch = append(watch, devwatch.Target{
			Subsystem:    protocol.SubsystemDigitizer,
			Device:       d.cfg.Digitizer.Device,
			SetAvailable: board.SetAvailable,
		})
	}
	if d.cfg.GPIO.Enabled {
		pin := gpio.NewPin(d.cfg.GPIO)
		if err := d.addUnit(protocol.SubsystemGPIO, gpio.Commands(pin), gpio.Data(pin), nil); err != nil {
			return err
		}
	}

	// The built-ins ride the same dispatch path under fixed queue names.
	server := &unit{
		name:         serverSubsystem,
		commandQueue: protocol.ServerQueue,
		dataQueue:    protocol.TelemetryQueue,
	}
	var err error
	if server.commands, err = dispatch.NewRegistry(serverCommands()); err != nil {
		return fmt.Errorf("build %s table: %w", protocol.ServerQueue, err)
	}
	if server.data, err = dispatch.NewRegistry(d.telemetryBindings()); err != nil {
		return fmt.Errorf("build %s table: %w", protocol.TelemetryQueue, err)
	}
	d.units = append(d.units, server)

	d.monitor = devwatch.NewMonitor(d.base, watch)
	return nil
}

func (d *Daemon) addUnit(name string, commands, data []dispatch.Binding, available func() bool) error {
	u := &unit{
		name:         name,
		commandQueue: protocol.CommandQueue(name),
		dataQueue:    protocol.DataQueue(name),
		available:    available,
	}
	var err error
	if u.commands, err = dispatch.NewRegistry(commands); err != nil {
		return fmt.Errorf("build %s table: %w", u.commandQueue, err)
	}
	if u.data, err = dispatch.NewRegistry(data); err != nil {
		return fmt.Errorf("build %s table: %w", u.dataQueue, err)
	}
	d.units = append(d.units, u)
	return nil
}

// Start acquires the instance lock, declares the topology, and launches the
// control consumer and one dispatcher per unit.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another labmqd instance is already running")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	fail := func(err error) error {
		cancel()
		for _, ch := range d.channels {
			_ = ch.Close()
		}
		d.channels = nil
		d.dispatchers = nil
		_ = d.lock.Unlock()
		return err
	}

	topo, err := d.openChannel()
	if err != nil {
		return fail(err)
	}
	if err := declareTopology(topo, d.units); err != nil {
		return fail(err)
	}

	controlCh, err := d.openChannel()
	if err != nil {
		return fail(err)
	}
	consumer := session.NewConsumer(d.ctrl, controlCh, d.base)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := consumer.Run(runCtx); err != nil {
			d.logger.Error("control consumer failed",
				logging.Error(err),
				logging.Alert("consumer_failed"))
		}
	}()

	for _, u := range d.units {
		ch, err := d.openChannel()
		if err != nil {
			return fail(err)
		}
		dispatcher, err := dispatch.NewDispatcher(dispatch.Options{
			Subsystem:    u.name,
			Commands:     u.commands,
			Data:         u.data,
			CommandQueue: u.commandQueue,
			DataQueue:    u.dataQueue,
			Channel:      ch,
			Auth:         d.ctrl,
			Recorder:     d.commandRecorder(),
			Logger:       d.base,
		})
		if err != nil {
			return fail(err)
		}
		d.dispatchers = append(d.dispatchers, dispatcher)
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := dispatcher.Run(runCtx); err != nil {
				d.logger.Error("dispatcher failed",
					logging.String(logging.FieldSubsystem, dispatcher.Subsystem()),
					logging.Error(err),
					logging.Alert("dispatcher_failed"))
			}
		}()
	}

	if err := d.monitor.Start(runCtx); err != nil {
		d.logger.Warn("device monitor failed to start", logging.Error(err))
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("daemon started",
		logging.String("version", d.version),
		logging.String("lock", d.lockPath),
		logging.Int("units", len(d.units)))
	return nil
}

// Stop halts the consumers, closes the channels, and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.mu.Unlock()

	d.monitor.Stop()
	d.wg.Wait()

	d.mu.Lock()
	for _, ch := range d.channels {
		_ = ch.Close()
	}
	d.channels = nil
	d.mu.Unlock()

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Close stops the daemon and closes the audit journal.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Status reports the daemon's current shape.
func (d *Daemon) Status() Status {
	st := Status{
		Running:   d.running.Load(),
		Version:   d.version,
		StartedAt: d.startedAt,
		LockPath:  d.lockPath,
	}
	if d.store != nil {
		st.JournalPath = d.store.Path()
	}
	if active, ok := d.ctrl.Active(); ok {
		st.ActiveClient = active.Client
	}
	st.QueuedClients = len(d.ctrl.Waiters())

	d.mu.Lock()
	processed := make(map[string]uint64, len(d.dispatchers))
	for _, dispatcher := range d.dispatchers {
		processed[dispatcher.Subsystem()] = dispatcher.Processed()
	}
	d.mu.Unlock()

	for _, u := range d.units {
		available := true
		if u.available != nil {
			available = u.available()
		}
		st.Subsystems = append(st.Subsystems, SubsystemStatus{
			Name:         u.name,
			CommandCount: u.commands.Len(),
			DataCount:    u.data.Len(),
			Processed:    processed[u.name],
			Available:    available,
		})
	}
	return st
}

// openChannel opens and tracks a broker channel. Callers hold d.mu.
func (d *Daemon) openChannel() (transport.Channel, error) {
	ch, err := d.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	d.channels = append(d.channels, ch)
	return ch, nil
}

func (d *Daemon) commandRecorder() dispatch.Recorder {
	if d.store == nil {
		return nil
	}
	return d.store
}

// Package daemon wires the idle hub to its activity sources (control socket,
// evdev, session bus) and its consumers (hooks, MQTT, history).
package daemon

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bnema/wayidle/internal/config"
	"github.com/bnema/wayidle/internal/executor"
	"github.com/bnema/wayidle/internal/history"
	"github.com/bnema/wayidle/internal/hooks"
	"github.com/bnema/wayidle/internal/idle"
	"github.com/bnema/wayidle/internal/input"
	"github.com/bnema/wayidle/internal/ipc"
	"github.com/bnema/wayidle/internal/logger"
	"github.com/bnema/wayidle/internal/mqtt"
	"github.com/bnema/wayidle/internal/screensaver"
	"github.com/bnema/wayidle/internal/timer"
	"github.com/bnema/wayidle/internal/transition"
	"github.com/charmbracelet/log"
)

// Deps overrides the collaborators New would otherwise build from the
// configuration. Zero fields mean "build the default".
type Deps struct {
	Clock        timer.Clock
	AlarmFactory timer.AlarmFactory
	Publisher    mqtt.Publisher
	History      *history.Repository
}

// Daemon owns the hub and everything attached to it.
type Daemon struct {
	cfg   *config.Config
	clock timer.Clock
	hub   *idle.Hub
	log   *log.Logger

	observers []idle.Observer
	queues    []*executor.Queue
	closers   []func()

	mu          sync.Mutex
	ipcServer   *ipc.SocketServer
	source      *input.Source
	screensaver *screensaver.Service
	closeOnce   sync.Once
}

// New builds the hub and registers the configured consumers for every tier.
// Sources are started by Run.
func New(cfg *config.Config, deps Deps) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	clock := deps.Clock
	if clock == nil {
		clock = timer.SystemClock
	}
	factory := deps.AlarmFactory
	if factory == nil {
		factory = timer.NewAlarmFactory(clock)
	}

	d := &Daemon{
		cfg:   cfg,
		clock: clock,
		hub:   idle.NewHub(clock, factory),
		log:   logger.With("component", "daemon"),
	}

	publisher := deps.Publisher
	if publisher == nil && cfg.MQTT.Enabled {
		rp, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:   cfg.MQTT.Broker,
			Topic:    cfg.MQTT.Topic,
			ClientID: cfg.MQTT.ClientID,
			QoS:      cfg.MQTT.QoS,
			Retained: cfg.MQTT.Retained,
		})
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
		}
		publisher = rp
	}
	if publisher != nil {
		d.closers = append(d.closers, func() { publisher.Close() })
	}

	repo := deps.History
	if repo == nil && cfg.History.Enabled {
		db, err := history.Open(cfg.History.Path)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
		d.closers = append(d.closers, func() { db.Close() })
		repo = history.NewRepository(db)
	}

	var mqttQueue, historyQueue *executor.Queue
	if publisher != nil {
		mqttQueue = d.newQueue("mqtt")
	}
	if repo != nil {
		historyQueue = d.newQueue("history")
	}

	for _, tier := range cfg.Tiers {
		d.register(tier, executor.Direct, d.logTransition)

		runner := hooks.NewRunner(hooks.Command{OnIdle: tier.OnIdle, OnActive: tier.OnActive})
		if !runner.Empty() {
			d.register(tier, d.newQueue("hooks-"+tier.Name), runner.Handle)
		}
		if publisher != nil {
			d.register(tier, mqttQueue, mqtt.Handler(publisher))
		}
		if repo != nil {
			d.register(tier, historyQueue, history.Recorder(repo))
		}
	}

	return d, nil
}

// Hub returns the idle hub.
func (d *Daemon) Hub() *idle.Hub {
	return d.hub
}

// Run starts the control socket and the enabled activity sources, then
// blocks until ctx is done. The caller still has to Close the daemon.
func (d *Daemon) Run(ctx context.Context) error {
	server, err := ipc.NewSocketServer(d.cfg.IPC.SocketPath, d)
	if err != nil {
		return err
	}
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start control socket: %w", err)
	}
	d.mu.Lock()
	d.ipcServer = server
	d.mu.Unlock()

	if d.cfg.Input.Enabled {
		debouncer := input.NewDebouncer(d.clock, d.cfg.Input.Debounce, d.hub.Poke)
		source := input.NewSource(d.cfg.Input.Devices, debouncer)
		if err := source.Start(ctx); err != nil {
			d.log.Warn("Input activity source disabled", "err", err)
		} else {
			d.mu.Lock()
			d.source = source
			d.mu.Unlock()
		}
	}

	if d.cfg.DBus.Enabled && d.cfg.DBus.LockTier != "" {
		if err := d.startScreensaver(); err != nil {
			d.log.Warn("ScreenSaver service disabled", "err", err)
		}
	}

	d.log.Info("Daemon running", "tiers", len(d.cfg.Tiers), "socket", server.SocketPath())
	<-ctx.Done()
	return nil
}

func (d *Daemon) startScreensaver() error {
	lock, ok := d.cfg.Tier(d.cfg.DBus.LockTier)
	if !ok {
		return fmt.Errorf("unknown lock tier %q", d.cfg.DBus.LockTier)
	}

	service := screensaver.New(d.hub, d.clock, lock.Timeout, d.newQueue("screensaver"))
	if err := service.Start(); err != nil {
		service.Close()
		return err
	}
	d.mu.Lock()
	d.screensaver = service
	d.mu.Unlock()
	return nil
}

// Close stops the sources, unregisters every observer, drains the executors
// and closes the hub. It is safe to call more than once.
func (d *Daemon) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		server, source, service := d.ipcServer, d.source, d.screensaver
		queues := slices.Clone(d.queues)
		d.mu.Unlock()

		if server != nil {
			server.Stop()
		}
		if source != nil {
			source.Stop()
		}
		if service != nil {
			service.Close()
		}

		for _, obs := range d.observers {
			d.hub.UnregisterInterest(obs)
		}
		d.hub.Close()

		for _, q := range queues {
			q.Close()
		}
		for _, closeFn := range slices.Backward(d.closers) {
			closeFn()
		}
		d.log.Info("Daemon stopped")
	})
}

// HandlePoke implements ipc.Handler
func (d *Daemon) HandlePoke() (ipc.StatusInfo, error) {
	d.hub.Poke()
	return d.Status(), nil
}

// HandleStatus implements ipc.Handler
func (d *Daemon) HandleStatus() (ipc.StatusInfo, error) {
	return d.Status(), nil
}

// Status returns the hub state with tier names from the configuration.
// Tiers sharing a timeout are listed under all their names.
func (d *Daemon) Status() ipc.StatusInfo {
	snap := d.hub.Snapshot()

	names := make(map[time.Duration][]string)
	for _, tier := range d.cfg.Tiers {
		names[tier.Timeout] = append(names[tier.Timeout], tier.Name)
	}

	status := ipc.StatusInfo{
		PokeTime:    snap.PokeTime,
		IdleFor:     snap.IdleFor,
		NextTier:    snap.NextTier,
		HasNextTier: snap.HasNextTier,
		Tiers:       make([]ipc.TierInfo, 0, len(snap.Tiers)),
	}
	for _, tier := range snap.Tiers {
		status.Tiers = append(status.Tiers, ipc.TierInfo{
			Name:      strings.Join(names[tier.Timeout], ","),
			Timeout:   tier.Timeout,
			Observers: tier.Observers,
			Idle:      tier.Idle,
		})
	}
	return status
}

func (d *Daemon) register(tier config.TierConfig, exec executor.Executor, handle transition.Handler) {
	obs := transition.Observer(tier.Name, tier.Timeout, d.clock, handle)
	d.observers = append(d.observers, obs)
	d.hub.RegisterInterestOn(idle.Strong(obs), exec, tier.Timeout)
}

func (d *Daemon) newQueue(name string) *executor.Queue {
	q := executor.NewQueue(name)
	d.mu.Lock()
	d.queues = append(d.queues, q)
	d.mu.Unlock()
	return q
}

func (d *Daemon) logTransition(event transition.Event) {
	if event.State == transition.StateIdle {
		d.log.Info("Tier idle", "tier", event.Tier, "timeout", event.Timeout)
		return
	}
	d.log.Debug("Tier active", "tier", event.Tier)
}

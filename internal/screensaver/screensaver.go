// Package screensaver serves the org.freedesktop.ScreenSaver session bus API
// from the idle hub. Applications that poke the screensaver to report
// activity reach the hub through SimulateUserActivity, and the lock tier's
// idle state is reported as the screensaver being "active".
package screensaver

import (
	"fmt"
	"sync"
	"time"

	"github.com/bnema/wayidle/internal/executor"
	"github.com/bnema/wayidle/internal/idle"
	"github.com/bnema/wayidle/internal/logger"
	"github.com/bnema/wayidle/internal/timer"
	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
)

const (
	BusName       = "org.freedesktop.ScreenSaver"
	InterfaceName = "org.freedesktop.ScreenSaver"
)

// Exported at both paths, older clients use the short one.
var objectPaths = []dbus.ObjectPath{"/org/freedesktop/ScreenSaver", "/ScreenSaver"}

// Service tracks the lock tier and answers ScreenSaver method calls.
type Service struct {
	hub      *idle.Hub
	clock    timer.Clock
	observer *idle.ObserverFuncs

	mu          sync.Mutex
	active      bool
	activeSince time.Time
	emit        func(active bool)
	conn        *dbus.Conn
}

// New creates a service and registers it with hub for lockTimeout. Lock tier
// transitions are delivered on exec.
func New(hub *idle.Hub, clock timer.Clock, lockTimeout time.Duration, exec executor.Executor) *Service {
	s := &Service{
		hub:   hub,
		clock: clock,
		emit:  func(bool) {},
	}
	s.observer = &idle.ObserverFuncs{
		OnIdle:   func() { s.setActive(true) },
		OnActive: func() { s.setActive(false) },
	}
	hub.RegisterInterestOn(idle.Strong(s.observer), exec, lockTimeout)
	return s
}

// Start claims the bus name on the session bus and exports the service.
func (s *Service) Start() error {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}

	reply, err := conn.RequestName(BusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return fmt.Errorf("bus name %s is already owned", BusName)
	}

	obj := &busObject{s: s}
	node := introspectNode()
	for _, path := range objectPaths {
		if err := conn.Export(obj, path, InterfaceName); err != nil {
			conn.Close()
			return fmt.Errorf("failed to export %s: %w", path, err)
		}
		if err := conn.Export(introspect.NewIntrospectable(node), path, "org.freedesktop.DBus.Introspectable"); err != nil {
			conn.Close()
			return fmt.Errorf("failed to export introspection on %s: %w", path, err)
		}
	}

	s.mu.Lock()
	s.conn = conn
	s.emit = func(active bool) {
		for _, path := range objectPaths {
			if err := conn.Emit(path, InterfaceName+".ActiveChanged", active); err != nil {
				logger.Warnf("Failed to emit ActiveChanged on %s: %v", path, err)
			}
		}
	}
	s.mu.Unlock()

	logger.Infof("Serving %s on the session bus", BusName)
	return nil
}

// Close unregisters from the hub and releases the bus connection.
func (s *Service) Close() {
	s.hub.UnregisterInterest(s.observer)

	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.emit = func(bool) {}
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// SimulateUserActivity pokes the hub.
func (s *Service) SimulateUserActivity() {
	s.hub.Poke()
}

// SessionIdleTime returns the time since the last activity, in whole seconds.
func (s *Service) SessionIdleTime() uint32 {
	return seconds(s.hub.IdleFor())
}

// Active reports whether the lock tier is idle.
func (s *Service) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// ActiveTime returns how long the lock tier has been idle, in whole seconds,
// or 0 when it is not.
func (s *Service) ActiveTime() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return 0
	}
	return seconds(s.clock.Now().Sub(s.activeSince))
}

func (s *Service) setActive(active bool) {
	s.mu.Lock()
	if s.active == active {
		s.mu.Unlock()
		return
	}
	s.active = active
	if active {
		s.activeSince = s.clock.Now()
	}
	emit := s.emit
	s.mu.Unlock()

	logger.Debugf("Screensaver active: %v", active)
	emit(active)
}

func seconds(d time.Duration) uint32 {
	if d < 0 {
		return 0
	}
	return uint32(d / time.Second)
}

// busObject carries only the methods exported on the bus.
type busObject struct {
	s *Service
}

func (o *busObject) SimulateUserActivity() *dbus.Error {
	o.s.SimulateUserActivity()
	return nil
}

func (o *busObject) GetSessionIdleTime() (uint32, *dbus.Error) {
	return o.s.SessionIdleTime(), nil
}

func (o *busObject) GetActive() (bool, *dbus.Error) {
	return o.s.Active(), nil
}

func (o *busObject) GetActiveTime() (uint32, *dbus.Error) {
	return o.s.ActiveTime(), nil
}

func introspectNode() *introspect.Node {
	return &introspect.Node{
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{
				Name: InterfaceName,
				Methods: []introspect.Method{
					{Name: "SimulateUserActivity"},
					{Name: "GetSessionIdleTime", Args: []introspect.Arg{{Name: "seconds", Type: "u", Direction: "out"}}},
					{Name: "GetActive", Args: []introspect.Arg{{Name: "active", Type: "b", Direction: "out"}}},
					{Name: "GetActiveTime", Args: []introspect.Arg{{Name: "seconds", Type: "u", Direction: "out"}}},
				},
				Signals: []introspect.Signal{
					{Name: "ActiveChanged", Args: []introspect.Arg{{Name: "new_value", Type: "b"}}},
				},
			},
		},
	}
}

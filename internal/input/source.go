package input

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/bnema/wayidle/internal/logger"
	"github.com/gvalkov/golang-evdev"
)

// Source watches evdev devices and reports activity through a Debouncer.
// The devices are read without being grabbed, so input still reaches the
// compositor.
//
// With no configured paths every device that can report activity is
// watched, and devices plugged in later are picked up by a DeviceMonitor.
type Source struct {
	paths     []string
	debouncer *Debouncer
	monitor   *DeviceMonitor

	mu      sync.Mutex
	ctx     context.Context
	devices map[string]*evdev.InputDevice
	cancel  context.CancelFunc
	running bool
}

// NewSource creates a source for the given device paths
func NewSource(paths []string, debouncer *Debouncer) *Source {
	s := &Source{
		paths:     paths,
		debouncer: debouncer,
		devices:   make(map[string]*evdev.InputDevice),
	}
	if len(paths) == 0 {
		s.monitor = NewDeviceMonitor(DefaultHotplugInterval)
	}
	return s
}

// Start opens the devices and starts one reader per device. It fails only
// when no device could be opened.
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("already running")
	}

	paths := s.paths
	if len(paths) == 0 {
		found, err := ListDevices()
		if err != nil {
			return err
		}
		for _, dev := range found {
			paths = append(paths, dev.Path)
		}
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	for _, path := range paths {
		if err := s.openLocked(path); err != nil {
			logger.Warnf("Failed to open input device %s: %v", path, err)
		}
	}
	if len(s.devices) == 0 && s.monitor == nil {
		s.cancel()
		if !HasInputAccess() {
			return fmt.Errorf("no input devices could be opened, is the user in the input group?")
		}
		return fmt.Errorf("no input devices could be opened (tried %d)", len(paths))
	}

	s.running = true
	if len(s.devices) == 0 {
		logger.Warn("No input devices open yet, waiting for new devices")
	}
	if s.monitor != nil {
		s.monitor.Start(s.ctx, s.deviceChanged)
	}

	logger.Infof("Evdev activity source started with %d devices", len(s.devices))
	return nil
}

// Stop closes the devices. Readers blocked in a read return on the
// resulting error.
func (s *Source) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	// The monitor callback takes mu
	if s.monitor != nil {
		s.monitor.Stop()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for path, dev := range s.devices {
		dev.File.Close()
		delete(s.devices, path)
	}
	logger.Info("Evdev activity source stopped")
}

// Devices returns the number of devices being read
func (s *Source) Devices() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.devices)
}

// deviceChanged follows hotplug events in auto-detect mode
func (s *Source) deviceChanged(change DeviceChange) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	switch change.Type {
	case DeviceAdded:
		// Nodes appear before udev fixes their permissions; a later rescan
		// does not retry, so a failure here only logs.
		if err := s.openLocked(change.Path); err != nil {
			logger.Debugf("Not watching new device %s: %v", change.Path, err)
		}
	case DeviceRemoved:
		if dev, ok := s.devices[change.Path]; ok {
			dev.File.Close()
			delete(s.devices, change.Path)
			logger.Infof("Input device %s removed", change.Path)
		}
	}
}

// openLocked opens path and starts its reader, skipping devices that cannot
// report activity in auto-detect mode
func (s *Source) openLocked(path string) error {
	if _, ok := s.devices[path]; ok {
		return nil
	}
	dev, err := evdev.Open(path)
	if err != nil {
		return err
	}
	if s.monitor != nil && !reportsActivity(dev.CapabilitiesFlat) {
		dev.File.Close()
		return fmt.Errorf("device reports no activity events")
	}

	logger.Debugf("Watching input device %s (%s)", dev.Name, dev.Fn)
	s.devices[path] = dev
	go s.readEvents(s.ctx, path, dev)
	return nil
}

// readEvents reads one device until it fails or the source stops
func (s *Source) readEvents(ctx context.Context, path string, dev *evdev.InputDevice) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Input reader panic on %s: %v", dev.Fn, r)
		}
	}()

	for {
		events, err := dev.Read()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if !errors.Is(err, os.ErrClosed) {
				logger.Errorf("Error reading %s, no longer watching it: %v", dev.Fn, err)
			}
			s.forget(path, dev)
			return
		}

		for _, event := range events {
			if IsActivity(event) {
				s.debouncer.Trigger()
				break
			}
		}
	}
}

// forget drops a device whose reader stopped, unless it was already
// replaced or removed
func (s *Source) forget(path string, dev *evdev.InputDevice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.devices[path] == dev {
		dev.File.Close()
		delete(s.devices, path)
	}
}

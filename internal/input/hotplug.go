package input

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/bnema/wayidle/internal/logger"
)

// DefaultHotplugInterval is how often the input directory is rescanned
const DefaultHotplugInterval = 2 * time.Second

// DeviceChangeType represents the type of device change
type DeviceChangeType int

const (
	DeviceAdded DeviceChangeType = iota
	DeviceRemoved
)

func (t DeviceChangeType) String() string {
	if t == DeviceAdded {
		return "added"
	}
	return "removed"
}

// DeviceChange represents a device node appearing or disappearing
type DeviceChange struct {
	Type DeviceChangeType
	Path string
}

// DeviceMonitor polls an input directory for event nodes coming and going
type DeviceMonitor struct {
	inputDir string
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewDeviceMonitor creates a monitor for /dev/input
func NewDeviceMonitor(interval time.Duration) *DeviceMonitor {
	return newDeviceMonitor("/dev/input", interval)
}

func newDeviceMonitor(dir string, interval time.Duration) *DeviceMonitor {
	if interval <= 0 {
		interval = DefaultHotplugInterval
	}
	return &DeviceMonitor{inputDir: dir, interval: interval}
}

// Start scans once for a baseline, then reports every later change to
// callback from a single goroutine.
func (dm *DeviceMonitor) Start(ctx context.Context, callback func(DeviceChange)) {
	ctx, dm.cancel = context.WithCancel(ctx)
	dm.done = make(chan struct{})

	last := dm.scan()
	go func() {
		defer close(dm.done)
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("Device monitor panic: %v", r)
			}
		}()

		ticker := time.NewTicker(dm.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				current := dm.scan()
				for _, change := range diffDevices(last, current) {
					logger.Debugf("Input device %s: %s", change.Type, change.Path)
					callback(change)
				}
				last = current
			}
		}
	}()
	logger.Debugf("Device monitor polling %s every %s", dm.inputDir, dm.interval)
}

// Stop stops polling and waits for the monitor goroutine to exit
func (dm *DeviceMonitor) Stop() {
	if dm.cancel == nil {
		return
	}
	dm.cancel()
	<-dm.done
}

// scan returns the set of event node paths currently present
func (dm *DeviceMonitor) scan() map[string]bool {
	devices := make(map[string]bool)

	entries, err := os.ReadDir(dm.inputDir)
	if err != nil {
		logger.Warnf("Failed to read input directory: %v", err)
		return devices
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), "event") {
			devices[filepath.Join(dm.inputDir, entry.Name())] = true
		}
	}
	return devices
}

// diffDevices lists additions then removals, each in path order
func diffDevices(before, after map[string]bool) []DeviceChange {
	var added, removed []string
	for path := range after {
		if !before[path] {
			added = append(added, path)
		}
	}
	for path := range before {
		if !after[path] {
			removed = append(removed, path)
		}
	}
	slices.Sort(added)
	slices.Sort(removed)

	changes := make([]DeviceChange, 0, len(added)+len(removed))
	for _, path := range added {
		changes = append(changes, DeviceChange{Type: DeviceAdded, Path: path})
	}
	for _, path := range removed {
		changes = append(changes, DeviceChange{Type: DeviceRemoved, Path: path})
	}
	return changes
}

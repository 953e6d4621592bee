package input

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffDevices(t *testing.T) {
	before := map[string]bool{"/dev/input/event0": true, "/dev/input/event1": true}
	after := map[string]bool{"/dev/input/event1": true, "/dev/input/event3": true, "/dev/input/event2": true}

	changes := diffDevices(before, after)
	assert.Equal(t, []DeviceChange{
		{Type: DeviceAdded, Path: "/dev/input/event2"},
		{Type: DeviceAdded, Path: "/dev/input/event3"},
		{Type: DeviceRemoved, Path: "/dev/input/event0"},
	}, changes)

	assert.Empty(t, diffDevices(after, after))
}

func TestDeviceMonitorScan(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"event0", "event7", "mice", "js0"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "by-id"), 0700))

	dm := newDeviceMonitor(dir, time.Second)
	assert.Equal(t, map[string]bool{
		filepath.Join(dir, "event0"): true,
		filepath.Join(dir, "event7"): true,
	}, dm.scan())
}

func TestDeviceMonitorReportsChanges(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "event0")
	require.NoError(t, os.WriteFile(existing, nil, 0600))

	var (
		mu      sync.Mutex
		changes []DeviceChange
	)
	dm := newDeviceMonitor(dir, 10*time.Millisecond)
	dm.Start(context.Background(), func(c DeviceChange) {
		mu.Lock()
		changes = append(changes, c)
		mu.Unlock()
	})
	defer dm.Stop()

	added := filepath.Join(dir, "event4")
	require.NoError(t, os.WriteFile(added, nil, 0600))
	require.NoError(t, os.Remove(existing))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(changes) == 2
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, changes, DeviceChange{Type: DeviceAdded, Path: added})
	assert.Contains(t, changes, DeviceChange{Type: DeviceRemoved, Path: existing})
}

func TestDeviceMonitorStopWithoutStart(t *testing.T) {
	dm := newDeviceMonitor(t.TempDir(), 0)
	assert.Equal(t, DefaultHotplugInterval, dm.interval)
	dm.Stop()
}

func TestDeviceChangeTypeString(t *testing.T) {
	assert.Equal(t, "added", DeviceAdded.String())
	assert.Equal(t, "removed", DeviceRemoved.String())
}

package input

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bnema/wayidle/internal/logger"
	"github.com/charmbracelet/huh"
	"github.com/gvalkov/golang-evdev"
)

const devicePattern = "/dev/input/event*"

// DeviceInfo represents information about an input device
type DeviceInfo struct {
	Path        string
	Name        string
	Symlink     string
	Descriptive string
}

// ListDevices returns every readable input device that can report user
// activity.
func ListDevices() ([]DeviceInfo, error) {
	evdevices, err := evdev.ListInputDevices(devicePattern)
	if err != nil {
		return nil, fmt.Errorf("failed to list input devices: %w", err)
	}

	var devices []DeviceInfo
	for _, dev := range evdevices {
		dev.File.Close()
		if !reportsActivity(dev.CapabilitiesFlat) {
			continue
		}
		info := DeviceInfo{
			Path:    dev.Fn,
			Name:    dev.Name,
			Symlink: findSymlink(dev.Fn),
		}
		if info.Symlink != "" {
			info.Descriptive = fmt.Sprintf("%s (%s → %s)", dev.Name, info.Symlink, dev.Fn)
		} else {
			info.Descriptive = fmt.Sprintf("%s (%s)", dev.Name, dev.Fn)
		}
		devices = append(devices, info)
	}

	return devices, nil
}

// SelectDevices asks which devices to watch. Choosing none means auto-detect.
func SelectDevices() ([]string, error) {
	devices, err := ListDevices()
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		logger.Warn("No readable input devices found, is the user in the input group?")
		return nil, nil
	}

	options := make([]huh.Option[string], len(devices))
	for i, dev := range devices {
		options[i] = huh.NewOption(dev.Descriptive, dev.Path)
	}

	var selected []string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Select Input Devices").
				Description("Activity on these devices resets the idle timer. Select none to watch all of them.").
				Options(options...).
				Value(&selected),
		),
	)

	if err := form.Run(); err != nil {
		return nil, fmt.Errorf("device selection cancelled: %w", err)
	}

	// Store stable by-id paths where they exist
	for i, path := range selected {
		if link := findSymlink(path); link != "" {
			selected[i] = link
		}
	}
	return selected, nil
}

// findSymlink finds the symlink for a device path in /dev/input/by-id or /dev/input/by-path
func findSymlink(devicePath string) string {
	for _, dir := range []string{"/dev/input/by-id", "/dev/input/by-path"} {
		if symlink := findSymlinkInDir(devicePath, dir); symlink != "" {
			return symlink
		}
	}
	return ""
}

// findSymlinkInDir finds a symlink pointing to devicePath in the given directory
func findSymlinkInDir(devicePath, dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}

	for _, entry := range entries {
		if entry.Type()&os.ModeSymlink == 0 {
			continue
		}
		fullPath := filepath.Join(dir, entry.Name())
		target, err := os.Readlink(fullPath)
		if err != nil {
			continue
		}

		// Resolve relative paths
		if !filepath.IsAbs(target) {
			target = filepath.Join(dir, target)
		}
		if filepath.Clean(target) == devicePath {
			return fullPath
		}
	}

	return ""
}

// HasInputAccess reports whether the current user can open event devices
func HasInputAccess() bool {
	if os.Geteuid() == 0 {
		return true
	}

	paths, err := filepath.Glob(devicePattern)
	if err != nil {
		return false
	}
	for _, path := range paths {
		if file, err := os.Open(path); err == nil {
			file.Close()
			return true
		}
	}
	return false
}

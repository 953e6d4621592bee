package input

import (
	"github.com/gvalkov/golang-evdev"
)

// IsActivity reports whether an event means the user did something. Key and
// button presses (including autorepeat), pointer motion, wheels and absolute
// axes (touchpads, tablets, touchscreens) count. Synchronisation and misc
// events do not.
func IsActivity(event evdev.InputEvent) bool {
	switch event.Type {
	case evdev.EV_KEY, evdev.EV_REL, evdev.EV_ABS:
		return true
	default:
		return false
	}
}

// reportsActivity checks a device's flat capability map for any event type
// IsActivity accepts.
func reportsActivity(caps map[int][]int) bool {
	for _, evType := range []int{evdev.EV_KEY, evdev.EV_REL, evdev.EV_ABS} {
		if codes, ok := caps[evType]; ok && len(codes) > 0 {
			return true
		}
	}
	return false
}

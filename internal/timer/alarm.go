package timer

import (
	"sync"
	"time"
)

// AlarmState describes whether an alarm is waiting to fire.
type AlarmState uint8

const (
	// AlarmCancelled means the alarm has no pending firing.
	AlarmCancelled AlarmState = iota

	// AlarmPending means the alarm will fire at NextFireTime.
	AlarmPending

	// AlarmTriggered means the last scheduled firing has run.
	AlarmTriggered
)

// String returns a human-readable state name.
func (s AlarmState) String() string {
	switch s {
	case AlarmCancelled:
		return "CANCELLED"
	case AlarmPending:
		return "PENDING"
	case AlarmTriggered:
		return "TRIGGERED"
	default:
		return "UNKNOWN"
	}
}

// LockableCallback is a callback that must run with an external lock held.
// Alarms call Lock, then Call, then Unlock for every firing.
type LockableCallback interface {
	Lock()
	Unlock()
	Call()
}

// Alarm is a single-shot, reschedulable timer.
type Alarm interface {
	// RescheduleIn schedules the alarm to fire after d. Returns true if a
	// pending firing was replaced.
	RescheduleIn(d time.Duration) bool

	// RescheduleFor schedules the alarm to fire at t. A time in the past
	// fires as soon as possible.
	RescheduleFor(t time.Time) bool

	// Cancel drops any pending firing. Returns true if one was pending.
	Cancel() bool

	State() AlarmState

	// NextFireTime is the deadline of the pending firing, or the zero time.
	NextFireTime() time.Time
}

// AlarmFactory creates alarms bound to a callback.
type AlarmFactory interface {
	CreateAlarm(cb LockableCallback) Alarm
}

// alarmCore holds the bookkeeping shared by real and fake alarms. The
// generation is bumped on every reschedule/cancel so that a firing which
// lost the race against one of them is recognised and dropped.
type alarmCore struct {
	mu         sync.Mutex
	callback   LockableCallback
	state      AlarmState
	deadline   time.Time
	generation uint64
}

// fire runs the callback for the given generation. The callback lock is
// taken before the alarm state is examined, so a reschedule issued by a
// holder of that lock is always observed.
func (c *alarmCore) fire(generation uint64) {
	c.callback.Lock()
	defer c.callback.Unlock()

	c.mu.Lock()
	if c.state != AlarmPending || c.generation != generation {
		c.mu.Unlock()
		return
	}
	c.state = AlarmTriggered
	c.mu.Unlock()

	c.callback.Call()
}

func (c *alarmCore) State() AlarmState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *alarmCore) NextFireTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != AlarmPending {
		return time.Time{}
	}
	return c.deadline
}

type realFactory struct {
	clock Clock
}

// NewAlarmFactory returns a factory whose alarms run on time.AfterFunc and
// measure deadlines against clock.
func NewAlarmFactory(clock Clock) AlarmFactory {
	return &realFactory{clock: clock}
}

func (f *realFactory) CreateAlarm(cb LockableCallback) Alarm {
	return &realAlarm{
		alarmCore: alarmCore{callback: cb},
		clock:     f.clock,
	}
}

type realAlarm struct {
	alarmCore
	clock Clock
	timer *time.Timer
}

func (a *realAlarm) RescheduleIn(d time.Duration) bool {
	return a.RescheduleFor(a.clock.Now().Add(d))
}

func (a *realAlarm) RescheduleFor(t time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	wasPending := a.stopLocked()
	a.state = AlarmPending
	a.deadline = t
	generation := a.generation

	a.timer = time.AfterFunc(t.Sub(a.clock.Now()), func() {
		a.fire(generation)
	})
	return wasPending
}

func (a *realAlarm) Cancel() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	wasPending := a.stopLocked()
	a.state = AlarmCancelled
	return wasPending
}

func (a *realAlarm) stopLocked() bool {
	a.generation++
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	return a.state == AlarmPending
}

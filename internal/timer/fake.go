package timer

import (
	"sync"
	"time"
)

// FakeClock is a manually driven Clock. Alarms created by a factory from
// NewFakeAlarmFactory fire only when the clock is advanced past their
// deadline, on the goroutine calling Advance or Set.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	alarms []*fakeAlarm
}

// NewFakeClock creates a FakeClock reading start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d, firing due alarms in deadline order.
func (c *FakeClock) Advance(d time.Duration) {
	c.Set(c.Now().Add(d))
}

// Set moves the clock to target, firing due alarms in deadline order. While
// an alarm fires the clock reads that alarm's deadline. The clock never moves
// backwards.
func (c *FakeClock) Set(target time.Time) {
	for {
		c.mu.Lock()
		alarm, deadline, generation := c.nextDueLocked(target)
		if alarm == nil {
			if target.After(c.now) {
				c.now = target
			}
			c.mu.Unlock()
			return
		}
		if deadline.After(c.now) {
			c.now = deadline
		}
		c.mu.Unlock()

		alarm.fire(generation)
	}
}

// PendingAlarms reports how many alarms are waiting to fire.
func (c *FakeClock) PendingAlarms() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, a := range c.alarms {
		if a.State() == AlarmPending {
			n++
		}
	}
	return n
}

func (c *FakeClock) nextDueLocked(target time.Time) (*fakeAlarm, time.Time, uint64) {
	var (
		next       *fakeAlarm
		deadline   time.Time
		generation uint64
	)
	for _, a := range c.alarms {
		a.mu.Lock()
		due := a.state == AlarmPending && !a.deadline.After(target)
		if due && (next == nil || a.deadline.Before(deadline)) {
			next, deadline, generation = a, a.deadline, a.generation
		}
		a.mu.Unlock()
	}
	return next, deadline, generation
}

type fakeFactory struct {
	clock *FakeClock
}

// NewFakeAlarmFactory returns a factory whose alarms are driven by clock.
func NewFakeAlarmFactory(clock *FakeClock) AlarmFactory {
	return &fakeFactory{clock: clock}
}

func (f *fakeFactory) CreateAlarm(cb LockableCallback) Alarm {
	a := &fakeAlarm{
		alarmCore: alarmCore{callback: cb},
		clock:     f.clock,
	}
	f.clock.mu.Lock()
	f.clock.alarms = append(f.clock.alarms, a)
	f.clock.mu.Unlock()
	return a
}

type fakeAlarm struct {
	alarmCore
	clock *FakeClock
}

func (a *fakeAlarm) RescheduleIn(d time.Duration) bool {
	return a.RescheduleFor(a.clock.Now().Add(d))
}

func (a *fakeAlarm) RescheduleFor(t time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	wasPending := a.state == AlarmPending
	a.generation++
	a.state = AlarmPending
	a.deadline = t
	return wasPending
}

func (a *fakeAlarm) Cancel() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	wasPending := a.state == AlarmPending
	a.generation++
	a.state = AlarmCancelled
	return wasPending
}

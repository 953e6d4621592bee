// Package idle tracks user activity and tells observers when the session has
// been idle for their chosen timeout, and when it becomes active again.
//
// Observers register interest in a timeout (a tier). All observers of one
// tier share a multiplexer. A single alarm is kept scheduled for the nearest
// tier that has not yet gone idle since the last poke.
package idle

import (
	"slices"
	"sync"
	"time"

	"github.com/bnema/wayidle/internal/executor"
	"github.com/bnema/wayidle/internal/logger"
	"github.com/bnema/wayidle/internal/timer"
	"github.com/charmbracelet/log"
)

// Hub is the idle state machine. It is safe for concurrent use.
type Hub struct {
	clock timer.Clock
	alarm timer.Alarm
	log   *log.Logger

	mu           sync.Mutex
	pokeTime     time.Time
	alarmTimeout time.Duration
	alarmSet     bool
	tiers        map[time.Duration]*multiplexer
	order        []time.Duration // ascending keys of tiers
	idle         map[time.Duration]*multiplexer
	closed       bool
}

// NewHub creates a hub that considers the session active as of now. The hub
// owns the alarm it creates from factory until Close.
func NewHub(clock timer.Clock, factory timer.AlarmFactory) *Hub {
	h := &Hub{
		clock:    clock,
		log:      logger.With("component", "idle-hub"),
		pokeTime: clock.Now(),
		tiers:    make(map[time.Duration]*multiplexer),
		idle:     make(map[time.Duration]*multiplexer),
	}
	h.alarm = factory.CreateAlarm(newAlarmCallback(&h.mu, h.alarmFired))
	return h
}

// Close cancels the pending alarm. Observers receive no further idle
// notifications. It is safe to call more than once.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	h.alarm.Cancel()
	h.alarmSet = false
}

// Poke records activity now. Every tier that went idle since the previous
// poke is told it is active again, and the alarm restarts from the first
// tier.
func (h *Hub) Poke() {
	h.mu.Lock()
	h.pokeTime = h.clock.Now()
	h.scheduleLocked(0, true)

	if len(h.idle) == 0 {
		h.mu.Unlock()
		return
	}
	woken := make([]*multiplexer, 0, len(h.idle))
	for timeout, m := range h.idle {
		woken = append(woken, m)
		h.log.Debug("Tier active", "timeout", timeout)
	}
	clear(h.idle)
	h.mu.Unlock()

	for _, m := range woken {
		m.active()
	}
}

// RegisterInterest registers ref for timeout with callbacks run directly on
// the notifying goroutine.
func (h *Hub) RegisterInterest(ref Ref, timeout time.Duration) {
	h.RegisterInterestOn(ref, executor.Direct, timeout)
}

// RegisterInterestOn registers ref for timeout with callbacks submitted to
// exec. The observer immediately receives one notification, Idle or Active,
// reflecting the tier's current state. A nil or expired ref is ignored and
// negative timeouts count as zero.
func (h *Hub) RegisterInterestOn(ref Ref, exec executor.Executor, timeout time.Duration) {
	if ref == nil {
		return
	}
	obs := ref.Observer()
	if obs == nil {
		return
	}
	if exec == nil {
		exec = executor.Direct
	}
	if timeout < 0 {
		timeout = 0
	}

	h.mu.Lock()
	isIdle := false
	if m, ok := h.tiers[timeout]; ok {
		m.register(ref, exec)
		_, isIdle = h.idle[timeout]
	} else {
		m := &multiplexer{}
		m.register(ref, exec)
		h.addTierLocked(timeout, m)

		elapsed := h.clock.Now().Sub(h.pokeTime)
		switch {
		case elapsed >= timeout:
			// Already past this tier's deadline, no need to wait for the alarm.
			isIdle = true
			h.idle[timeout] = m
		case !h.alarmSet || timeout < h.alarmTimeout:
			// The alarm would fire after this tier is due, move it up.
			h.armLocked(timeout)
		}
	}
	h.mu.Unlock()

	if isIdle {
		exec.Spawn(obs.Idle)
	} else {
		exec.Spawn(obs.Active)
	}
}

// UnregisterInterest removes obs from every tier. Tiers left without
// observers are forgotten. Unregistering an unknown observer is a no-op.
func (h *Hub) UnregisterInterest(obs Observer) {
	if obs == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for timeout, m := range h.tiers {
		if m.unregister(obs) {
			h.removeTierLocked(timeout)
		}
	}
}

// IdleFor returns the time elapsed since the last poke.
func (h *Hub) IdleFor() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clock.Now().Sub(h.pokeTime)
}

// alarmFired runs with h.mu held (see alarmCallback). The tier the alarm was
// set for goes idle, the alarm moves on to the next larger tier measured from
// the poke time, and the idle broadcast is returned to run unlocked.
func (h *Hub) alarmFired() func() {
	fired := h.alarmTimeout
	h.alarmSet = false

	var notify *multiplexer
	if m, ok := h.tiers[fired]; ok {
		if _, already := h.idle[fired]; !already {
			if m.prune() == 0 {
				h.removeTierLocked(fired)
			} else {
				h.idle[fired] = m
				notify = m
				h.log.Debug("Tier idle", "timeout", fired)
			}
		}
	}

	h.scheduleLocked(fired, false)

	if notify == nil {
		return nil
	}
	return notify.idle
}

// scheduleLocked sets the alarm for the smallest tier above after (or at
// after, when inclusive), relative to the poke time. With no such tier the
// alarm is cancelled.
func (h *Hub) scheduleLocked(after time.Duration, inclusive bool) {
	i, found := slices.BinarySearch(h.order, after)
	if found && !inclusive {
		i++
	}
	if i < len(h.order) {
		h.armLocked(h.order[i])
		return
	}
	h.alarm.Cancel()
	h.alarmTimeout = 0
	h.alarmSet = false
}

func (h *Hub) armLocked(timeout time.Duration) {
	if h.closed {
		return
	}
	h.alarmTimeout = timeout
	h.alarmSet = true
	h.alarm.RescheduleFor(h.pokeTime.Add(timeout))
}

func (h *Hub) addTierLocked(timeout time.Duration, m *multiplexer) {
	h.tiers[timeout] = m
	i, _ := slices.BinarySearch(h.order, timeout)
	h.order = slices.Insert(h.order, i, timeout)
}

func (h *Hub) removeTierLocked(timeout time.Duration) {
	delete(h.tiers, timeout)
	delete(h.idle, timeout)
	if i, found := slices.BinarySearch(h.order, timeout); found {
		h.order = slices.Delete(h.order, i, i+1)
	}
	h.log.Debug("Tier removed", "timeout", timeout)
}

package idle

import "time"

// TierStatus describes one timeout tier.
type TierStatus struct {
	Timeout   time.Duration
	Observers int
	Idle      bool
}

// Status is a point-in-time view of the hub.
type Status struct {
	PokeTime time.Time
	IdleFor  time.Duration

	// NextTier is the tier the alarm is set for; valid when HasNextTier.
	NextTier    time.Duration
	HasNextTier bool

	// Tiers in ascending timeout order.
	Tiers []TierStatus
}

// Snapshot returns the current hub state.
func (h *Hub) Snapshot() Status {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := Status{
		PokeTime:    h.pokeTime,
		IdleFor:     h.clock.Now().Sub(h.pokeTime),
		NextTier:    h.alarmTimeout,
		HasNextTier: h.alarmSet,
		Tiers:       make([]TierStatus, 0, len(h.order)),
	}
	for _, timeout := range h.order {
		_, isIdle := h.idle[timeout]
		s.Tiers = append(s.Tiers, TierStatus{
			Timeout:   timeout,
			Observers: h.tiers[timeout].prune(),
			Idle:      isIdle,
		})
	}
	return s
}

// Tier returns the status of the tier with the given timeout.
func (s Status) Tier(timeout time.Duration) (TierStatus, bool) {
	for _, t := range s.Tiers {
		if t.Timeout == timeout {
			return t, true
		}
	}
	return TierStatus{}, false
}

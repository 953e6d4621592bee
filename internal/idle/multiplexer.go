package idle

import (
	"sync"

	"github.com/bnema/wayidle/internal/executor"
)

type registration struct {
	ref  Ref
	exec executor.Executor
}

// multiplexer fans idle/active events out to the observers of one tier.
type multiplexer struct {
	mu            sync.Mutex
	registrations []registration
}

func (m *multiplexer) register(ref Ref, exec executor.Executor) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registrations = append(m.registrations, registration{ref: ref, exec: exec})
}

// unregister drops every registration of obs along with any expired ones,
// and reports whether the multiplexer is now empty.
func (m *multiplexer) unregister(obs Observer) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.registrations[:0]
	for _, r := range m.registrations {
		if o := r.ref.Observer(); o != nil && o != obs {
			kept = append(kept, r)
		}
	}
	clear(m.registrations[len(kept):])
	m.registrations = kept
	return len(kept) == 0
}

// prune drops expired registrations and returns how many remain.
func (m *multiplexer) prune() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.registrations[:0]
	for _, r := range m.registrations {
		if r.ref.Observer() != nil {
			kept = append(kept, r)
		}
	}
	clear(m.registrations[len(kept):])
	m.registrations = kept
	return len(kept)
}

func (m *multiplexer) idle() {
	m.broadcast(Observer.Idle)
}

func (m *multiplexer) active() {
	m.broadcast(Observer.Active)
}

type delivery struct {
	observer Observer
	exec     executor.Executor
}

// broadcast collects the live observers under the multiplexer lock, then
// submits event for each of them to its executor with no lock held.
func (m *multiplexer) broadcast(event func(Observer)) {
	m.mu.Lock()
	deliveries := make([]delivery, 0, len(m.registrations))
	kept := m.registrations[:0]
	for _, r := range m.registrations {
		o := r.ref.Observer()
		if o == nil {
			continue
		}
		kept = append(kept, r)
		deliveries = append(deliveries, delivery{observer: o, exec: r.exec})
	}
	clear(m.registrations[len(kept):])
	m.registrations = kept
	m.mu.Unlock()

	for _, d := range deliveries {
		o := d.observer
		d.exec.Spawn(func() { event(o) })
	}
}

package idle

import (
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/bnema/wayidle/internal/executor"
	"github.com/bnema/wayidle/internal/timer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// recorder is an Observer that keeps the events it receives.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) Idle() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "idle")
}

func (r *recorder) Active() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "active")
}

// take returns the events received since the last call.
func (r *recorder) take() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	events := r.events
	r.events = nil
	return events
}

func newFakeHub(t *testing.T) (*Hub, *timer.FakeClock) {
	t.Helper()
	clock := timer.NewFakeClock(epoch)
	hub := NewHub(clock, timer.NewFakeAlarmFactory(clock))
	t.Cleanup(hub.Close)
	return hub, clock
}

// manualAlarm only fires when the test says so, which lets tests model an
// alarm that fires late.
type manualAlarm struct {
	cb       timer.LockableCallback
	deadline time.Time
	state    timer.AlarmState
}

func (a *manualAlarm) RescheduleIn(d time.Duration) bool {
	panic("hub schedules with absolute deadlines")
}

func (a *manualAlarm) RescheduleFor(t time.Time) bool {
	was := a.state == timer.AlarmPending
	a.deadline = t
	a.state = timer.AlarmPending
	return was
}

func (a *manualAlarm) Cancel() bool {
	was := a.state == timer.AlarmPending
	a.state = timer.AlarmCancelled
	return was
}

func (a *manualAlarm) State() timer.AlarmState { return a.state }

func (a *manualAlarm) NextFireTime() time.Time { return a.deadline }

func (a *manualAlarm) fire(t *testing.T) {
	t.Helper()
	require.Equal(t, timer.AlarmPending, a.state, "alarm fired while not pending")
	a.cb.Lock()
	a.state = timer.AlarmTriggered
	a.cb.Call()
	a.cb.Unlock()
}

type manualFactory struct {
	alarm *manualAlarm
}

func (f *manualFactory) CreateAlarm(cb timer.LockableCallback) timer.Alarm {
	f.alarm = &manualAlarm{cb: cb}
	return f.alarm
}

func TestHubScenario(t *testing.T) {
	hub, clock := newFakeHub(t)
	a := &recorder{}
	b := &recorder{}

	hub.RegisterInterest(Strong(a), 100*time.Millisecond)
	assert.Equal(t, []string{"active"}, a.take(), "A starts active")

	clock.Advance(100 * time.Millisecond)
	assert.Equal(t, []string{"idle"}, a.take(), "A idle at t=100ms")

	clock.Advance(50 * time.Millisecond)
	hub.Poke()
	assert.Equal(t, []string{"active"}, a.take(), "A active after poke at t=150ms")

	hub.RegisterInterest(Strong(b), 50*time.Millisecond)
	assert.Equal(t, []string{"active"}, b.take(), "B starts active")

	clock.Advance(50 * time.Millisecond)
	assert.Equal(t, []string{"idle"}, b.take(), "B idle at t=200ms")
	assert.Empty(t, a.take(), "A still active at t=200ms")

	clock.Advance(50 * time.Millisecond)
	assert.Equal(t, []string{"idle"}, a.take(), "A idle at t=250ms")
	assert.Empty(t, b.take())
}

func TestHubProgress(t *testing.T) {
	hub, clock := newFakeHub(t)
	obs := &recorder{}
	hub.RegisterInterest(Strong(obs), time.Second)
	obs.take()

	for cycle := 0; cycle < 3; cycle++ {
		clock.Advance(999 * time.Millisecond)
		assert.Empty(t, obs.take(), "no idle before the timeout (cycle %d)", cycle)

		clock.Advance(time.Millisecond)
		assert.Equal(t, []string{"idle"}, obs.take(), "idle at the timeout (cycle %d)", cycle)

		clock.Advance(time.Hour)
		assert.Empty(t, obs.take(), "idle is reported once (cycle %d)", cycle)

		hub.Poke()
		assert.Equal(t, []string{"active"}, obs.take(), "active after poke (cycle %d)", cycle)
	}
}

func TestHubPokeBeforeTimeout(t *testing.T) {
	hub, clock := newFakeHub(t)
	obs := &recorder{}
	hub.RegisterInterest(Strong(obs), 100*time.Millisecond)
	obs.take()

	for i := 0; i < 10; i++ {
		clock.Advance(60 * time.Millisecond)
		hub.Poke()
	}
	assert.Empty(t, obs.take(), "regular pokes keep the session active")

	clock.Advance(100 * time.Millisecond)
	assert.Equal(t, []string{"idle"}, obs.take())
}

func TestHubBatchActive(t *testing.T) {
	hub, clock := newFakeHub(t)
	short, medium, long := &recorder{}, &recorder{}, &recorder{}
	hub.RegisterInterest(Strong(short), 10*time.Millisecond)
	hub.RegisterInterest(Strong(medium), 20*time.Millisecond)
	hub.RegisterInterest(Strong(long), 30*time.Millisecond)
	short.take()
	medium.take()
	long.take()

	clock.Advance(25 * time.Millisecond)
	assert.Equal(t, []string{"idle"}, short.take())
	assert.Equal(t, []string{"idle"}, medium.take())
	assert.Empty(t, long.take())

	hub.Poke()
	assert.Equal(t, []string{"active"}, short.take())
	assert.Equal(t, []string{"active"}, medium.take())
	assert.Empty(t, long.take(), "a tier that never went idle is not told active")

	hub.Poke()
	assert.Empty(t, short.take(), "a second poke does not repeat active")
	assert.Empty(t, medium.take())

	clock.Advance(30 * time.Millisecond)
	assert.Equal(t, []string{"idle"}, short.take())
	assert.Equal(t, []string{"idle"}, medium.take())
	assert.Equal(t, []string{"idle"}, long.take())
}

func TestHubInitialNotification(t *testing.T) {
	t.Run("new tier before its deadline is active", func(t *testing.T) {
		hub, clock := newFakeHub(t)
		clock.Advance(50 * time.Millisecond)

		obs := &recorder{}
		hub.RegisterInterest(Strong(obs), 100*time.Millisecond)
		assert.Equal(t, []string{"active"}, obs.take())

		clock.Advance(50 * time.Millisecond)
		assert.Equal(t, []string{"idle"}, obs.take(), "deadline is measured from the poke, not registration")
	})

	t.Run("new tier past its deadline is idle", func(t *testing.T) {
		hub, clock := newFakeHub(t)
		clock.Advance(time.Second)

		obs := &recorder{}
		hub.RegisterInterest(Strong(obs), 100*time.Millisecond)
		assert.Equal(t, []string{"idle"}, obs.take())

		hub.Poke()
		assert.Equal(t, []string{"active"}, obs.take(), "tier placed straight into the idle set is woken by poke")
	})

	t.Run("existing idle tier reports idle", func(t *testing.T) {
		hub, clock := newFakeHub(t)
		first := &recorder{}
		hub.RegisterInterest(Strong(first), 100*time.Millisecond)
		clock.Advance(200 * time.Millisecond)

		late := &recorder{}
		hub.RegisterInterest(Strong(late), 100*time.Millisecond)
		assert.Equal(t, []string{"idle"}, late.take())
	})

	t.Run("existing active tier reports active", func(t *testing.T) {
		hub, clock := newFakeHub(t)
		first := &recorder{}
		hub.RegisterInterest(Strong(first), 100*time.Millisecond)
		clock.Advance(50 * time.Millisecond)

		late := &recorder{}
		hub.RegisterInterest(Strong(late), 100*time.Millisecond)
		assert.Equal(t, []string{"active"}, late.take())

		clock.Advance(50 * time.Millisecond)
		assert.Equal(t, []string{"idle"}, late.take())
	})

	t.Run("zero timeout is idle at once", func(t *testing.T) {
		hub, clock := newFakeHub(t)
		obs := &recorder{}
		hub.RegisterInterest(Strong(obs), 0)
		assert.Equal(t, []string{"idle"}, obs.take())

		hub.Poke()
		clock.Advance(0)
		assert.Equal(t, []string{"active", "idle"}, obs.take())
	})

	t.Run("negative timeout counts as zero", func(t *testing.T) {
		hub, _ := newFakeHub(t)
		obs := &recorder{}
		hub.RegisterInterest(Strong(obs), -time.Second)
		assert.Equal(t, []string{"idle"}, obs.take())

		_, ok := hub.Snapshot().Tier(0)
		assert.True(t, ok)
	})

	t.Run("nil ref is ignored", func(t *testing.T) {
		hub, _ := newFakeHub(t)
		hub.RegisterInterest(nil, time.Second)
		assert.Empty(t, hub.Snapshot().Tiers)
	})
}

func TestHubSharedTier(t *testing.T) {
	hub, clock := newFakeHub(t)
	a, b := &recorder{}, &recorder{}
	hub.RegisterInterest(Strong(a), 100*time.Millisecond)
	hub.RegisterInterest(Strong(b), 100*time.Millisecond)
	a.take()
	b.take()

	status := hub.Snapshot()
	require.Len(t, status.Tiers, 1, "same timeout shares one tier")
	assert.Equal(t, 2, status.Tiers[0].Observers)

	hub.UnregisterInterest(a)
	status = hub.Snapshot()
	require.Len(t, status.Tiers, 1)
	assert.Equal(t, 1, status.Tiers[0].Observers)

	clock.Advance(100 * time.Millisecond)
	assert.Empty(t, a.take(), "unregistered observer gets nothing")
	assert.Equal(t, []string{"idle"}, b.take())

	hub.Poke()
	assert.Equal(t, []string{"active"}, b.take())
}

func TestHubUnregister(t *testing.T) {
	t.Run("last observer removes the tier", func(t *testing.T) {
		hub, clock := newFakeHub(t)
		a := &recorder{}
		hub.RegisterInterest(Strong(a), 100*time.Millisecond)
		assert.Equal(t, []string{"active"}, a.take())
		hub.UnregisterInterest(a)
		assert.Empty(t, hub.Snapshot().Tiers)

		b := &recorder{}
		hub.RegisterInterest(Strong(b), 50*time.Millisecond)
		assert.Equal(t, []string{"active"}, b.take())

		clock.Advance(50 * time.Millisecond)
		assert.Equal(t, []string{"idle"}, b.take())

		clock.Advance(time.Second)
		assert.Empty(t, a.take())

		status := hub.Snapshot()
		require.Len(t, status.Tiers, 1)
		assert.Equal(t, 50*time.Millisecond, status.Tiers[0].Timeout)
		assert.False(t, status.HasNextTier, "no tier left to schedule")
	})

	t.Run("idle tier is removed from the idle set", func(t *testing.T) {
		hub, clock := newFakeHub(t)
		a := &recorder{}
		hub.RegisterInterest(Strong(a), 10*time.Millisecond)
		clock.Advance(10 * time.Millisecond)
		a.take()

		hub.UnregisterInterest(a)
		hub.Poke()
		assert.Empty(t, a.take())
	})

	t.Run("observer on several tiers", func(t *testing.T) {
		hub, clock := newFakeHub(t)
		a := &recorder{}
		hub.RegisterInterest(Strong(a), 10*time.Millisecond)
		hub.RegisterInterest(Strong(a), 20*time.Millisecond)
		a.take()

		hub.UnregisterInterest(a)
		assert.Empty(t, hub.Snapshot().Tiers)
		clock.Advance(time.Second)
		assert.Empty(t, a.take())
	})

	t.Run("unknown observer is a no-op", func(t *testing.T) {
		hub, _ := newFakeHub(t)
		a := &recorder{}
		hub.RegisterInterest(Strong(a), 10*time.Millisecond)

		hub.UnregisterInterest(&recorder{})
		hub.UnregisterInterest(nil)
		assert.Len(t, hub.Snapshot().Tiers, 1)
	})

	t.Run("re-registering a removed tier before the alarm", func(t *testing.T) {
		hub, clock := newFakeHub(t)
		a := &recorder{}
		hub.RegisterInterest(Strong(a), 100*time.Millisecond)
		hub.UnregisterInterest(a)

		b := &recorder{}
		hub.RegisterInterest(Strong(b), 100*time.Millisecond)
		b.take()
		clock.Advance(100 * time.Millisecond)
		assert.Equal(t, []string{"idle"}, b.take())
	})
}

func TestHubAlarmScheduling(t *testing.T) {
	t.Run("smaller tier moves the alarm up", func(t *testing.T) {
		hub, _ := newFakeHub(t)
		hub.RegisterInterest(Strong(&recorder{}), 300*time.Millisecond)
		hub.RegisterInterest(Strong(&recorder{}), 100*time.Millisecond)
		hub.RegisterInterest(Strong(&recorder{}), 200*time.Millisecond)

		status := hub.Snapshot()
		require.True(t, status.HasNextTier)
		assert.Equal(t, 100*time.Millisecond, status.NextTier)
		assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond},
			[]time.Duration{status.Tiers[0].Timeout, status.Tiers[1].Timeout, status.Tiers[2].Timeout})
	})

	t.Run("late alarm keeps tiers spaced from the poke", func(t *testing.T) {
		clock := timer.NewFakeClock(epoch)
		factory := &manualFactory{}
		hub := NewHub(clock, factory)
		defer hub.Close()

		a, b := &recorder{}, &recorder{}
		hub.RegisterInterest(Strong(a), 100*time.Millisecond)
		hub.RegisterInterest(Strong(b), 300*time.Millisecond)
		a.take()
		b.take()
		assert.Equal(t, epoch.Add(100*time.Millisecond), factory.alarm.deadline)

		clock.Advance(250 * time.Millisecond)
		factory.alarm.fire(t)
		assert.Equal(t, []string{"idle"}, a.take())
		assert.Equal(t, epoch.Add(300*time.Millisecond), factory.alarm.deadline,
			"next deadline is poke time plus the next tier")
	})

	t.Run("late alarm does not repeat a tier that went idle on registration", func(t *testing.T) {
		clock := timer.NewFakeClock(epoch)
		factory := &manualFactory{}
		hub := NewHub(clock, factory)
		defer hub.Close()

		a := &recorder{}
		hub.RegisterInterest(Strong(a), 100*time.Millisecond)
		clock.Advance(150 * time.Millisecond)

		b := &recorder{}
		hub.RegisterInterest(Strong(b), 120*time.Millisecond)
		assert.Equal(t, []string{"idle"}, b.take())

		factory.alarm.fire(t) // the 100ms tier, late
		assert.Equal(t, []string{"active", "idle"}, a.take())
		assert.Equal(t, epoch.Add(120*time.Millisecond), factory.alarm.deadline)

		factory.alarm.fire(t) // the 120ms tier, already idle
		assert.Empty(t, b.take())
		assert.Equal(t, timer.AlarmCancelled, factory.alarm.state)
	})

	t.Run("poke with no tiers cancels the alarm", func(t *testing.T) {
		hub, clock := newFakeHub(t)
		hub.Poke()
		assert.Equal(t, 0, clock.PendingAlarms())
	})

	t.Run("close cancels the alarm", func(t *testing.T) {
		clock := timer.NewFakeClock(epoch)
		hub := NewHub(clock, timer.NewFakeAlarmFactory(clock))
		obs := &recorder{}
		hub.RegisterInterest(Strong(obs), 100*time.Millisecond)
		obs.take()

		hub.Close()
		hub.Close()
		assert.Equal(t, 0, clock.PendingAlarms())

		hub.Poke()
		clock.Advance(time.Second)
		assert.Empty(t, obs.take())
	})
}

func TestHubReentrantObserver(t *testing.T) {
	hub, clock := newFakeHub(t)

	var self *ObserverFuncs
	idleCalls := 0
	self = &ObserverFuncs{
		OnIdle: func() {
			idleCalls++
			hub.UnregisterInterest(self)
		},
	}
	hub.RegisterInterest(Strong(self), 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		clock.Advance(10 * time.Millisecond)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("observer re-entering the hub deadlocked")
	}

	assert.Equal(t, 1, idleCalls)
	assert.Empty(t, hub.Snapshot().Tiers)
}

func TestHubExecutor(t *testing.T) {
	hub, clock := newFakeHub(t)
	queue := executor.NewQueue("observer")
	obs := &recorder{}

	hub.RegisterInterestOn(Strong(obs), queue, 10*time.Millisecond)
	clock.Advance(10 * time.Millisecond)
	hub.Poke()
	clock.Advance(10 * time.Millisecond)
	queue.Close()

	assert.Equal(t, []string{"active", "idle", "active", "idle"}, obs.take())
}

func registerTransient(hub *Hub, timeout time.Duration) {
	obs := &recorder{}
	hub.RegisterInterest(Weak(obs), timeout)
}

func TestHubWeakObserver(t *testing.T) {
	t.Run("live weak observer is notified", func(t *testing.T) {
		hub, clock := newFakeHub(t)
		obs := &recorder{}
		hub.RegisterInterest(Weak(obs), 10*time.Millisecond)
		clock.Advance(10 * time.Millisecond)
		assert.Equal(t, []string{"active", "idle"}, obs.take())
		runtime.KeepAlive(obs)
	})

	t.Run("collected observer is pruned", func(t *testing.T) {
		hub, clock := newFakeHub(t)
		registerTransient(hub, 10*time.Millisecond)
		runtime.GC()

		clock.Advance(10 * time.Millisecond)
		assert.Empty(t, hub.Snapshot().Tiers)
	})

	t.Run("collected observer does not hold a shared tier", func(t *testing.T) {
		hub, clock := newFakeHub(t)
		registerTransient(hub, 10*time.Millisecond)
		kept := &recorder{}
		hub.RegisterInterest(Strong(kept), 10*time.Millisecond)
		kept.take()
		runtime.GC()

		status := hub.Snapshot()
		require.Len(t, status.Tiers, 1)
		assert.Equal(t, 1, status.Tiers[0].Observers)

		clock.Advance(10 * time.Millisecond)
		assert.Equal(t, []string{"idle"}, kept.take())
	})
}

func TestHubSnapshot(t *testing.T) {
	hub, clock := newFakeHub(t)
	hub.RegisterInterest(Strong(&recorder{}), 10*time.Millisecond)
	hub.RegisterInterest(Strong(&recorder{}), 20*time.Millisecond)
	clock.Advance(15 * time.Millisecond)

	status := hub.Snapshot()
	assert.Equal(t, epoch, status.PokeTime)
	assert.Equal(t, 15*time.Millisecond, status.IdleFor)
	assert.Equal(t, 15*time.Millisecond, hub.IdleFor())
	require.True(t, status.HasNextTier)
	assert.Equal(t, 20*time.Millisecond, status.NextTier)

	short, ok := status.Tier(10 * time.Millisecond)
	require.True(t, ok)
	assert.True(t, short.Idle)

	long, ok := status.Tier(20 * time.Millisecond)
	require.True(t, ok)
	assert.False(t, long.Idle)

	_, ok = status.Tier(time.Hour)
	assert.False(t, ok)
}

func TestHubRealAlarm(t *testing.T) {
	hub := NewHub(timer.SystemClock, timer.NewAlarmFactory(timer.SystemClock))
	defer hub.Close()

	idle := make(chan struct{}, 1)
	active := make(chan struct{}, 4)
	obs := &ObserverFuncs{
		OnIdle: func() {
			select {
			case idle <- struct{}{}:
			default:
			}
		},
		OnActive: func() {
			select {
			case active <- struct{}{}:
			default:
			}
		},
	}
	hub.RegisterInterest(Strong(obs), 20*time.Millisecond)
	<-active

	// Concurrent pokes must not upset the state machine.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				hub.Poke()
			}
		}()
	}
	wg.Wait()

	select {
	case <-idle:
	case <-time.After(2 * time.Second):
		t.Fatal("observer never went idle")
	}

	hub.Poke()
	select {
	case <-active:
	case <-time.After(2 * time.Second):
		t.Fatal("observer never went active")
	}
}

func TestAlarmCallbackRequiresLock(t *testing.T) {
	original := fatal
	fatal = func(msg string) { panic(msg) }
	defer func() { fatal = original }()

	var mu sync.Mutex
	calls := 0
	cb := newAlarmCallback(&mu, func() func() {
		calls++
		return nil
	})

	assert.Panics(t, cb.Call, "calling the body unlocked is fatal")
	assert.Equal(t, 0, calls)

	cb.Lock()
	cb.Call()
	cb.Unlock()
	assert.Equal(t, 1, calls)
	assert.True(t, mu.TryLock(), "Unlock releases the mutex")
	mu.Unlock()
}

func TestAlarmCallbackRunsFollowUpUnlocked(t *testing.T) {
	var mu sync.Mutex
	followUpLocked := true
	cb := newAlarmCallback(&mu, func() func() {
		return func() {
			followUpLocked = !mu.TryLock()
			if !followUpLocked {
				mu.Unlock()
			}
		}
	})

	cb.Lock()
	cb.Call()
	cb.Unlock()
	assert.False(t, followUpLocked)
}

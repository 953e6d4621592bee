package idle

import (
	"sync"
	"sync/atomic"

	"github.com/bnema/wayidle/internal/logger"
)

// fatal terminates the process on a broken locking contract. Tests swap it
// for a panic.
var fatal = func(msg string) {
	logger.Fatal(msg)
}

// alarmCallback runs the hub's alarm handler with the hub mutex held. The
// alarm calls Lock, Call and Unlock around every firing. The handler returns
// follow-up work (observer broadcasts) which runs after the mutex has been
// released in Unlock.
type alarmCallback struct {
	mu      *sync.Mutex
	handler func() (after func())

	locked atomic.Bool
	after  func()
}

func newAlarmCallback(mu *sync.Mutex, handler func() func()) *alarmCallback {
	return &alarmCallback{mu: mu, handler: handler}
}

func (c *alarmCallback) Lock() {
	c.mu.Lock()
	c.locked.Store(true)
}

func (c *alarmCallback) Call() {
	if !c.locked.Load() {
		fatal("idle hub alarm callback called while unlocked")
		return
	}
	c.after = c.handler()
}

func (c *alarmCallback) Unlock() {
	after := c.after
	c.after = nil
	c.locked.Store(false)
	c.mu.Unlock()

	if after != nil {
		after()
	}
}

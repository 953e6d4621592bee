// Package executor provides the execution contexts observer callbacks are
// submitted to.
package executor

import (
	"sync"

	"github.com/bnema/wayidle/internal/logger"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
)

// Executor runs units of work. Callers must not assume work has completed
// when Spawn returns.
type Executor interface {
	Spawn(work func())
}

type direct struct{}

func (direct) Spawn(work func()) {
	work()
}

// Direct runs work immediately on the calling goroutine.
var Direct Executor = direct{}

// Queue is a serial executor: work runs one item at a time, in submission
// order, on a single worker goroutine. Spawn never blocks.
type Queue struct {
	name string

	mu      sync.Mutex
	cond    *sync.Cond
	pending []func()
	closed  bool

	wg conc.WaitGroup
}

// NewQueue starts a queue executor. The name is used in log output.
func NewQueue(name string) *Queue {
	q := &Queue{name: name}
	q.cond = sync.NewCond(&q.mu)
	q.wg.Go(q.run)
	return q
}

// Spawn enqueues work. Work submitted after Close is dropped.
func (q *Queue) Spawn(work func()) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		logger.Warnf("Executor %s is closed, dropping work", q.name)
		return
	}
	q.pending = append(q.pending, work)
	q.cond.Signal()
}

// Close runs the remaining queued work, then stops the worker. It is safe to
// call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()

	q.wg.Wait()
}

func (q *Queue) run() {
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.pending) == 0 {
			q.mu.Unlock()
			return
		}
		work := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()

		q.runOne(work)
	}
}

func (q *Queue) runOne(work func()) {
	var catcher panics.Catcher
	catcher.Try(work)
	if r := catcher.Recovered(); r != nil {
		logger.Errorf("Executor %s: work panicked: %v", q.name, r.Value)
	}
}

// Package scheduler provides a cancellable queue of one-shot delayed tasks.
// Tasks are kept in a priority queue keyed by fire time and run one at a
// time by a single dispatcher goroutine.
package scheduler

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/mclock"
	"github.com/ethereum/go-ethereum/common/prque"
)

// PanicHandler is called with the value recovered from a panicking task.
type PanicHandler func(v any)

// task is a function waiting for its fire time.
type task struct {
	at mclock.AbsTime
	fn func()
}

// Scheduler runs tasks after a delay. Stop cancels everything still queued.
type Scheduler struct {
	clock   mclock.Clock
	onPanic PanicHandler

	mu      sync.Mutex
	queue   *prque.Prque[int64, *task]
	stopped bool

	wake chan struct{}
	shut chan struct{}
	wg   sync.WaitGroup
}

// New constructs a scheduler and starts its dispatcher. A nil clock uses the
// system clock.
func New(clock mclock.Clock, onPanic PanicHandler) *Scheduler {
	if clock == nil {
		clock = mclock.System{}
	}
	if onPanic == nil {
		onPanic = func(any) {}
	}

	s := Scheduler{
		clock:   clock,
		onPanic: onPanic,
		queue:   prque.New[int64, *task](nil),
		wake:    make(chan struct{}, 1),
		shut:    make(chan struct{}),
	}

	s.wg.Add(1)
	go s.dispatch()

	return &s
}

// Schedule queues fn to run after the delay. It reports false if the
// scheduler has been stopped.
func (s *Scheduler) Schedule(delay time.Duration, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false
	}

	t := task{
		at: s.clock.Now().Add(delay),
		fn: fn,
	}

	// The queue pops the highest priority first, so earlier fire times
	// need larger priorities.
	s.queue.Push(&t, -int64(t.at))

	select {
	case s.wake <- struct{}{}:
	default:
	}

	return true
}

// Pending returns the number of tasks waiting to fire.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.queue.Size()
}

// Stop cancels every queued task and waits for the dispatcher to exit. A
// task already running is allowed to finish. It returns the number of tasks
// cancelled. Stop must not be called from inside a task.
func (s *Scheduler) Stop() int {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return 0
	}
	s.stopped = true
	cancelled := s.queue.Size()
	s.queue.Reset()
	s.mu.Unlock()

	close(s.shut)
	s.wg.Wait()

	return cancelled
}

// =============================================================================

// dispatch waits for the earliest task to come due and runs it.
func (s *Scheduler) dispatch() {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}

		var timer mclock.ChanTimer
		var due <-chan mclock.AbsTime

		if !s.queue.Empty() {
			next, priority := s.queue.Pop()

			wait := next.at.Sub(s.clock.Now())
			if wait <= 0 {
				s.mu.Unlock()

				s.execute(next)
				continue
			}

			// Not due yet, put it back and sleep until it is.
			s.queue.Push(next, priority)
			timer = s.clock.NewTimer(wait)
			due = timer.C()
		}
		s.mu.Unlock()

		select {
		case <-due:
		case <-s.wake:
		case <-s.shut:
		}

		if timer != nil {
			timer.Stop()
		}
	}
}

// execute runs the task and recovers from any panic.
func (s *Scheduler) execute(t *task) {
	defer func() {
		if r := recover(); r != nil {
			s.onPanic(r)
		}
	}()

	t.fn()
}

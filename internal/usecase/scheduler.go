package usecase

import (
	"sync"
	"time"

	"adrotator/pkg/logger"
)

// Timer is a pending one-shot callback
type Timer interface {
	Stop() bool
}

// Clock abstracts time so tests can drive the scheduler by hand
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealClock is backed by the time package
func RealClock() Clock {
	return realClock{}
}

// Scheduler runs every task it is given on one goroutine, in post order.
// Timer firings, fetch completions and public API calls all go through it.
type Scheduler struct {
	clock  Clock
	logger *logger.Logger

	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	closed  bool
	started bool
	done    chan struct{}
}

func NewScheduler(clock Clock, logger *logger.Logger) *Scheduler {
	if clock == nil {
		clock = RealClock()
	}
	return &Scheduler{
		clock:  clock,
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (s *Scheduler) Clock() Clock {
	return s.clock
}

// Start launches the loop goroutine. Calling it twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started || s.closed {
		return
	}
	s.started = true
	go s.run()
}

// Close stops accepting tasks and waits for the loop to exit.
// Tasks still queued are discarded. Must not be called from the loop.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		if s.started {
			<-s.done
		}
		return
	}
	s.closed = true
	s.queue = nil
	started := s.started
	s.mu.Unlock()

	s.signal()
	if started {
		<-s.done
	}
}

// Post queues fn without blocking. It returns false once the scheduler is closed.
func (s *Scheduler) Post(fn func()) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue, fn)
	s.mu.Unlock()

	s.signal()
	return true
}

// Do runs fn on the loop and waits for it. It returns false if fn never ran.
// Calling Do from inside a task deadlocks.
func (s *Scheduler) Do(fn func()) bool {
	ran := make(chan struct{})
	if !s.Post(func() {
		defer close(ran)
		fn()
	}) {
		return false
	}

	select {
	case <-ran:
		return true
	case <-s.done:
		// the loop may have run fn just before exiting
		select {
		case <-ran:
			return true
		default:
			return false
		}
	}
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) run() {
	defer close(s.done)

	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			<-s.wake
			continue
		}
		task := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.runTask(task)
	}
}

func (s *Scheduler) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("panic", r).Error("Scheduler task panicked")
		}
	}()
	task()
}

// Cycle is a revocable, re-armed one-shot timer whose firings run on the
// scheduler loop. All methods must be called from the loop.
type Cycle struct {
	name     string
	sched    *Scheduler
	periodic bool
	next     func() time.Duration
	fire     func()

	timer Timer
	gen   uint64
	armed bool
}

// NewCycle creates a stopped cycle. Periodic cycles re-arm with next() after
// each firing unless fire stopped or re-armed them itself.
func (s *Scheduler) NewCycle(name string, periodic bool, next func() time.Duration, fire func()) *Cycle {
	return &Cycle{
		name:     name,
		sched:    s,
		periodic: periodic,
		next:     next,
		fire:     fire,
	}
}

func (c *Cycle) Name() string {
	return c.name
}

// Running reports whether a firing is pending
func (c *Cycle) Running() bool {
	return c.armed
}

// Start arms the cycle with next() unless it is already armed
func (c *Cycle) Start() {
	if c.armed {
		return
	}
	c.arm(c.next())
}

// StartAfter (re)arms the cycle to fire after d, replacing any pending firing
func (c *Cycle) StartAfter(d time.Duration) {
	c.arm(d)
}

// Stop revokes the pending firing. A firing already queued on the loop
// becomes a no-op, so nothing fires after Stop returns.
func (c *Cycle) Stop() {
	c.gen++
	c.armed = false
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Cycle) arm(d time.Duration) {
	c.Stop()

	gen := c.gen
	c.armed = true
	c.timer = c.sched.clock.AfterFunc(d, func() {
		c.sched.Post(func() { c.tick(gen) })
	})
}

func (c *Cycle) tick(gen uint64) {
	if gen != c.gen {
		return
	}
	c.armed = false
	c.timer = nil

	c.fire()

	if c.periodic && gen == c.gen {
		c.arm(c.next())
	}
}

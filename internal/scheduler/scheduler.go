// Package scheduler implements the overlay's Maintenance Scheduler: a
// single cooperative loop driving a set of independently-scheduled
// maintenance tasks (spec.md §4.6).
//
// Grounded on the teacher's Node.broadcastLoop (time.Ticker plus a select
// over a stop channel), generalized from one constant-rate task to N tasks
// each on its own period, and using an injected clock.Clock
// (github.com/benbjohnson/clock, carried from dep2p-go-dep2p's go.mod) so
// expiration and renewal can be driven deterministically under test
// (spec.md's Design Notes §9 "Test clock").
package scheduler

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
)

// DefaultShutdownGrace bounds how long Stop waits for an in-flight task to
// finish before giving up (spec.md §5 "Cancellation and timeouts").
const DefaultShutdownGrace = 5 * time.Second

// Task is one independently-scheduled maintenance action.
type Task struct {
	Name   string
	Period time.Duration
	Run    func()
}

type scheduledTask struct {
	Task
	nextRun time.Time
}

// Scheduler runs a fixed set of Tasks in a single loop, each on its own
// period; a task never overlaps with itself, but different tasks interleave
// according to whichever is next due.
type Scheduler struct {
	clock         clock.Clock
	log           zerolog.Logger
	shutdownGrace time.Duration

	tasks []*scheduledTask

	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs a Scheduler over tasks. clk defaults to the real clock if
// nil.
func New(clk clock.Clock, log zerolog.Logger, tasks ...Task) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	s := &Scheduler{
		clock:         clk,
		log:           log,
		shutdownGrace: DefaultShutdownGrace,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
	now := clk.Now()
	for _, t := range tasks {
		s.tasks = append(s.tasks, &scheduledTask{Task: t, nextRun: now.Add(t.Period)})
	}
	return s
}

// Run drives the loop until Stop is called. Intended to run on its own
// goroutine.
func (s *Scheduler) Run() {
	defer close(s.doneCh)
	if len(s.tasks) == 0 {
		<-s.stopCh
		return
	}

	for {
		due := s.earliest()
		wait := due.nextRun.Sub(s.clock.Now())
		if wait < 0 {
			wait = 0
		}
		timer := s.clock.Timer(wait)

		select {
		case <-s.stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}

		s.runTask(due)
	}
}

func (s *Scheduler) earliest() *scheduledTask {
	best := s.tasks[0]
	for _, t := range s.tasks[1:] {
		if t.nextRun.Before(best.nextRun) {
			best = t
		}
	}
	return best
}

// runTask executes one task, isolating the loop from a panicking task the
// same way changebus isolates listeners (spec.md §5 "Failure isolation").
func (s *Scheduler) runTask(t *scheduledTask) {
	func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error().Interface("panic", r).Str("task", t.Name).Msg("maintenance task panicked")
			}
		}()
		t.Run()
	}()
	t.nextRun = s.clock.Now().Add(t.Period)
}

// Stop signals the loop to exit at its next safe yield and waits up to the
// shutdown grace period for any in-flight task to finish.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	select {
	case <-s.doneCh:
	case <-time.After(s.shutdownGrace):
	}
}

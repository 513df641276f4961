// Package scheduler implements the cooperative run-loop that drives
// pkg/action actions to completion one non-blocking tick at a time, and
// fans out queued callbacks to the embedder in between.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/logging"

	"github.com/sqrl-go/sqrl/pkg/action"
	"github.com/sqrl-go/sqrl/pkg/useridentity"
)

// rapidInterval and idleInterval are the two fixed cadences RunThreaded
// switches between: fast while any pending action reports Rapid() (an
// EnScrypt pass is in flight and wants back-to-back ticks), slow otherwise.
const (
	rapidInterval = 50 * time.Millisecond
	idleInterval  = 100 * time.Millisecond
)

// Callback is a unit of deferred work the scheduler dispatches to the
// embedder between action ticks, in FIFO order.
type Callback func()

// entry pairs a pending action with the one-tick grace period it gets
// after finishing: finished marks that Exec reported done and
// OnActionComplete has fired; graceUsed marks that the next Loop call, its
// one grace tick, has drained the queued callbacks and dropped the entry.
type entry struct {
	act       action.Action
	finished  bool
	graceUsed bool
}

// Scheduler owns the set of in-flight actions and known users, and steps
// them forward one Loop() call at a time. It never blocks: every action's
// Exec() is expected to do bounded, non-blocking work per call.
type Scheduler struct {
	log logging.LeveledLogger

	// OnActionComplete, if set, is invoked once an action's Exec reports
	// done, before the action is dropped from pendingActions.
	OnActionComplete func(action.Action)

	actionsMu      sync.Mutex
	pendingActions []*entry

	usersMu sync.Mutex
	users   map[uuid.UUID]*useridentity.User

	callbacksMu      sync.Mutex
	pendingCallbacks []Callback
}

// New creates an empty Scheduler.
func New(log logging.LeveledLogger) *Scheduler {
	return &Scheduler{
		log:   log,
		users: make(map[uuid.UUID]*useridentity.User),
	}
}

func (s *Scheduler) tracef(format string, args ...interface{}) {
	if s.log != nil {
		s.log.Tracef(format, args...)
	}
}

// Submit enqueues an action for the scheduler to drive to completion.
func (s *Scheduler) Submit(a action.Action) {
	s.actionsMu.Lock()
	defer s.actionsMu.Unlock()
	s.pendingActions = append(s.pendingActions, &entry{act: a})
	s.tracef("scheduler: submitted %s action %s", a.Kind(), a.Handle())
}

// PostCallback enqueues a unit of work to run on the next Loop() call,
// before any action is ticked.
func (s *Scheduler) PostCallback(cb Callback) {
	s.callbacksMu.Lock()
	defer s.callbacksMu.Unlock()
	s.pendingCallbacks = append(s.pendingCallbacks, cb)
}

// RegisterUser makes u resolvable by its handle via User. The scheduler
// does not own u's lifetime (Acquire/Release still governs that); this is
// purely a lookup table for embedders that only keep a uuid.UUID around.
func (s *Scheduler) RegisterUser(u *useridentity.User) {
	s.usersMu.Lock()
	defer s.usersMu.Unlock()
	s.users[u.Handle()] = u
}

// UnregisterUser drops a handle from the lookup table.
func (s *Scheduler) UnregisterUser(handle uuid.UUID) {
	s.usersMu.Lock()
	defer s.usersMu.Unlock()
	delete(s.users, handle)
}

// User resolves a handle registered via RegisterUser.
func (s *Scheduler) User(handle uuid.UUID) (*useridentity.User, bool) {
	s.usersMu.Lock()
	defer s.usersMu.Unlock()
	u, ok := s.users[handle]
	return u, ok
}

// Loop runs exactly one step:
//  1. Drain and dispatch all queued callbacks to the embedder, FIFO.
//  2. Drop any action that finished on an earlier call (this call is its
//     one grace tick), then pop the first not-yet-finished action, call
//     Exec() once, and move it to the back of the queue.
//  3. Return true iff either queue is still non-empty, so the caller knows
//     whether to keep calling Loop.
//
// A completed action stays queued after OnActionComplete fires until the
// next Loop tick, which drains callbacks and then drops it — this keeps "callbacks run before
// ActionComplete" (§5 ordering guarantee) trivially true without a second
// queue.
func (s *Scheduler) Loop() bool {
	s.drainCallbacks()

	var justCompleted action.Action

	s.actionsMu.Lock()
	kept := s.pendingActions[:0:0]
	for _, e := range s.pendingActions {
		if e.finished {
			e.graceUsed = true // this is its one grace tick: drop it now.
			continue
		}
		kept = append(kept, e)
	}
	s.pendingActions = kept

	var front *entry
	for _, e := range s.pendingActions {
		if !e.finished {
			front = e
			break
		}
	}
	s.actionsMu.Unlock()

	if front != nil {
		done := front.act.Exec()

		s.actionsMu.Lock()
		// Move front to the back, preserving the relative order of
		// everything else.
		rest := make([]*entry, 0, len(s.pendingActions))
		for _, e := range s.pendingActions {
			if e != front {
				rest = append(rest, e)
			}
		}
		if done {
			front.finished = true
			s.tracef("scheduler: action %s finished with status %s", front.act.Handle(), front.act.Status())
		}
		s.pendingActions = append(rest, front)
		s.actionsMu.Unlock()

		if done {
			justCompleted = front.act
		}
	}

	if justCompleted != nil && s.OnActionComplete != nil {
		s.OnActionComplete(justCompleted)
	}

	s.actionsMu.Lock()
	pending := len(s.pendingActions)
	s.actionsMu.Unlock()

	s.callbacksMu.Lock()
	queued := len(s.pendingCallbacks)
	s.callbacksMu.Unlock()

	return pending > 0 || queued > 0
}

func (s *Scheduler) drainCallbacks() {
	s.callbacksMu.Lock()
	cbs := s.pendingCallbacks
	s.pendingCallbacks = nil
	s.callbacksMu.Unlock()

	for _, cb := range cbs {
		cb()
	}
}

// anyRapid reports whether any still-running action wants back-to-back
// ticking rather than the idle cadence.
func (s *Scheduler) anyRapid() bool {
	s.actionsMu.Lock()
	defer s.actionsMu.Unlock()
	for _, e := range s.pendingActions {
		if !e.finished && e.act.Rapid() {
			return true
		}
	}
	return false
}

// RunThreaded drives Loop in a background goroutine until ctx is canceled,
// switching between a fast 20Hz cadence while any action reports Rapid()
// and a slow 10Hz cadence otherwise. It returns immediately; the run loop's
// lifetime is tied to ctx.
func (s *Scheduler) RunThreaded(ctx context.Context) {
	go func() {
		interval := idleInterval
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Loop()

				next := idleInterval
				if s.anyRapid() {
					next = rapidInterval
				}
				if next != interval {
					interval = next
					ticker.Reset(interval)
				}
			}
		}
	}()
}

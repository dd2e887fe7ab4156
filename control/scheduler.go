package control

import (
	"context"
	"fmt"
	"time"
)

// Task is a unit of work stepped once per frame until it reports done.
type Task interface {
	Step(ctx context.Context, now time.Time) (done bool, err error)
}

// Scheduler runs tasks in two FIFO lanes. Motion tasks (slow moves, holds) always
// run before ride tasks (dispatch, activation, park loading), so a ride task that
// requests a chair move resumes only once that move has finished.
type Scheduler struct {
	motion []Task
	ride   []Task

	ctx    context.Context
	cancel context.CancelFunc
	gen    int

	// OnDone is called with each finished task and its error.
	OnDone func(t Task, err error)
}

// Motion queues chair tasks.
func (s *Scheduler) Motion(tasks ...Task) {
	s.motion = append(s.motion, tasks...)
}

// Ride queues a ride task.
func (s *Scheduler) Ride(t Task) {
	s.ride = append(s.ride, t)
}

// Busy reports pending work in either lane.
func (s *Scheduler) Busy() bool {
	return len(s.motion) > 0 || len(s.ride) > 0
}

// Pending names the queued tasks, motion lane first.
func (s *Scheduler) Pending() (names []string) {
	for _, t := range append(append([]Task(nil), s.motion...), s.ride...) {
		names = append(names, fmt.Sprint(t))
	}
	return
}

// Cancel drops every queued task and cancels the context of the one in progress.
func (s *Scheduler) Cancel() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.motion, s.ride = nil, nil
	s.gen++
}

// CancelRide drops the ride lane only.
func (s *Scheduler) CancelRide() {
	s.ride = nil
}

// Step advances the head of the motion lane, or of the ride lane when there is no
// motion pending.
func (s *Scheduler) Step(ctx context.Context, now time.Time) {
	if s.cancel == nil || s.ctx.Err() != nil {
		s.ctx, s.cancel = context.WithCancel(ctx)
	}

	lane := &s.motion
	if len(*lane) == 0 {
		lane = &s.ride
	}
	if len(*lane) == 0 {
		return
	}

	t, gen := (*lane)[0], s.gen
	done, err := t.Step(s.ctx, now)
	if !done {
		if err != nil {
			log.WithError(err).WithField("task", t).Debug("task step failed")
		}
		return
	}

	// a cancel during the step has already emptied the lanes
	if gen == s.gen && len(*lane) > 0 {
		*lane = (*lane)[1:]
	}
	if err != nil {
		log.WithError(err).WithField("task", t).Warn("task failed")
	} else {
		log.WithField("task", t).Debug("task done")
	}
	if s.OnDone != nil {
		s.OnDone(t, err)
	}
}

//---
// Task helpers
//---

type hold struct {
	d     time.Duration
	until time.Time
}

// Hold waits for d from its first step.
func Hold(d time.Duration) Task {
	return &hold{d: d}
}

func (h *hold) String() string { return fmt.Sprintf("hold %s", h.d) }

func (h *hold) Step(ctx context.Context, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return true, err
	}
	if h.until.IsZero() {
		h.until = now.Add(h.d)
	}
	return !now.Before(h.until), nil
}

type sequence struct {
	tasks []Task
}

// Sequence runs tasks one after the other and stops at the first error.
func Sequence(tasks ...Task) Task {
	return &sequence{tasks: tasks}
}

func (s *sequence) String() string { return fmt.Sprintf("sequence of %d", len(s.tasks)) }

func (s *sequence) Step(ctx context.Context, now time.Time) (bool, error) {
	if len(s.tasks) == 0 {
		return true, nil
	}
	done, err := s.tasks[0].Step(ctx, now)
	if !done {
		return false, err
	}
	if err != nil {
		return true, err
	}
	s.tasks = s.tasks[1:]
	return len(s.tasks) == 0, nil
}

// Func adapts a step function to a Task.
type Func func(ctx context.Context, now time.Time) (bool, error)

func (f Func) Step(ctx context.Context, now time.Time) (bool, error) {
	return f(ctx, now)
}

func (f Func) String() string { return "func" }

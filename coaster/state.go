package coaster

import (
	"github.com/michaelmargolis/6DoF-Coaster/ride"
	"github.com/sirupsen/logrus"
)

// StateMachine derives the ride state from coaster events and the activation flag.
// State and activation live in the shared ride context.
type StateMachine struct {
	ctx       *ride.Context
	prevEvent ride.Event
	OnChange  func(state ride.State, activated bool)
}

func NewStateMachine(ctx *ride.Context) *StateMachine {
	return &StateMachine{ctx: ctx, prevEvent: -1}
}

func (s *StateMachine) State() ride.State {
	return s.ctx.State
}

func (s *StateMachine) SetActive(active bool) {
	s.ctx.Activated = active
}

// Event applies one coaster event. While active, STOPPED, DISPATCHED and PAUSED move to
// their states and UNPAUSED resumes a paused ride. While inactive only RESETEVENT and
// STOPPED have an effect.
func (s *StateMachine) Event(e ride.Event) {
	if e != s.prevEvent {
		s.prevEvent = e
		log.WithFields(logrus.Fields{"event": e, "active": s.ctx.Activated}).Debug("coaster event")
	}

	cur := s.ctx.State
	next := cur
	if s.ctx.Activated {
		switch e {
		case ride.EventStopped:
			next = ride.ReadyForDispatch
		case ride.EventDispatched:
			next = ride.Running
		case ride.EventPaused:
			next = ride.Paused
		case ride.EventUnpaused:
			if cur == ride.Paused {
				next = ride.Running
			}
		}
	} else {
		switch e {
		case ride.EventReset:
			next = ride.Resetting
		case ride.EventStopped:
			next = ride.ReadyForDispatch
		}
	}

	if next != cur {
		s.ctx.State = next
		log.WithFields(logrus.Fields{"from": cur, "to": next, "event": e}).Info("ride state changed")
		if s.OnChange != nil {
			s.OnChange(next, s.ctx.Activated)
		}
	}
}

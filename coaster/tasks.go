package coaster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/michaelmargolis/6DoF-Coaster/coaster/nl2"
	"github.com/michaelmargolis/6DoF-Coaster/ride"
	"github.com/sirupsen/logrus"
)

var (
	ErrNotReadyForDispatch = errors.New("ride is not activated and ready for dispatch")
	ErrDispatchTimeout     = errors.New("station did not become ready for dispatch")
	ErrLeaveTimeout        = errors.New("train did not leave the station")
	ErrPlayModeTimeout     = errors.New("simulation host did not enter play mode")
)

var (
	DispatchSettle  = 200 * time.Millisecond
	PrepareTimeout  = 30 * time.Second
	PrepareInterval = time.Second
	LeaveTimeout    = 10 * time.Second
	ReadyTimeout    = 20 * time.Second
	LoadParkSettle  = 2 * time.Second
)

// Task phases shared by the multi-frame operator actions.
type phase int

const (
	phaseStart phase = iota
	phaseSettle
	phasePrepare
	phaseLeave
	phaseLoad
	phaseWaitReady
)

//---
// Dispatch
//---

// DispatchTask readies the chair, prepares the station and sends the train, one step per frame.
type DispatchTask struct {
	c        *Coaster
	phase    phase
	at       time.Time
	deadline time.Time
}

func (c *Coaster) DispatchTask() *DispatchTask {
	return &DispatchTask{c: c}
}

func (t *DispatchTask) String() string { return "dispatch" }

func (t *DispatchTask) Step(ctx context.Context, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return true, err
	}
	c, m := t.c, t.c.NL2

	switch t.phase {
	case phaseStart:
		if !c.ctx.Activated || c.State.State() != ride.ReadyForDispatch {
			return true, ErrNotReadyForDispatch
		}
		log.Info("dispatching")
		c.State.Event(ride.EventDispatched)
		c.raise(ride.CmdReady)
		c.raise(ride.CmdUnparkPlatform)
		t.phase, t.at = phaseSettle, now.Add(DispatchSettle)

	case phaseSettle:
		if now.Before(t.at) {
			return false, nil
		}
		if _, _, err := m.GetNearestStation(); err != nil {
			log.WithError(err).Warn("nearest station lookup failed")
		}
		t.phase, t.at, t.deadline = phasePrepare, now, now.Add(PrepareTimeout)

	case phasePrepare:
		if now.After(t.deadline) {
			return true, ErrDispatchTimeout
		}
		if now.Before(t.at) {
			return false, nil
		}
		if !m.PrepareForDispatch(ctx) {
			t.at = now.Add(PrepareInterval)
			return false, nil
		}
		if err := m.Dispatch(); err != nil {
			return true, fmt.Errorf("dispatch: %w", err)
		}
		c.prevMovement = now
		c.leavingStation = true
		c.Transform.Reset()
		c.ctx.Session = uuid.NewString()
		log.WithField("session", c.ctx.Session).Info("train dispatched")
		t.phase, t.deadline = phaseLeave, now.Add(LeaveTimeout)

	case phaseLeave:
		if !m.IsTrainInStation() {
			c.leavingStation = false
			log.Info("train left station")
			return true, nil
		}
		if now.After(t.deadline) {
			c.leavingStation = false
			return true, ErrLeaveTimeout
		}
	}
	return false, nil
}

//---
// Activation
//---

// ActivateTask resets the park, waits for play mode, and enables the chair.
type ActivateTask struct {
	c        *Coaster
	phase    phase
	deadline time.Time
}

func (c *Coaster) ActivateTask() *ActivateTask {
	return &ActivateTask{c: c}
}

func (t *ActivateTask) String() string { return "activate" }

func (t *ActivateTask) Step(ctx context.Context, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return true, err
	}
	c := t.c

	switch t.phase {
	case phaseStart:
		log.Info("activating")
		if err := c.NL2.ResetPark(false); err != nil {
			log.WithError(err).Warn("reset park failed")
		}
		t.phase, t.deadline = phaseWaitReady, now.Add(ReadyTimeout)
		return false, nil

	case phaseWaitReady:
		c.Service(ctx)
		if c.NL2.State() != nl2.Ready {
			if now.After(t.deadline) {
				return true, ErrPlayModeTimeout
			}
			return false, nil
		}
	}

	c.NL2.EnsureManualMode(ctx, true, 3, 200*time.Millisecond)
	c.NL2.SelectSeat(c.Seat)
	c.State.Event(ride.EventReset)
	c.State.SetActive(true)
	c.raise(ride.CmdEnable)
	c.statusKey = ""
	if c.OnState != nil {
		c.OnState(c.State.State(), true)
	}
	log.WithField("state", c.State.State()).Info("activated")
	return true, nil
}

//---
// Park loading
//---

// LoadParkTask opens a park file and returns to the station with the requested seat.
type LoadParkTask struct {
	c        *Coaster
	path     string
	paused   bool
	phase    phase
	at       time.Time
	deadline time.Time
}

func (c *Coaster) LoadParkTask(paused bool, path string, seat int32) *LoadParkTask {
	c.Seat = seat
	return &LoadParkTask{c: c, path: path, paused: paused}
}

func (t *LoadParkTask) String() string { return "loadPark " + t.path }

func (t *LoadParkTask) Step(ctx context.Context, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return true, err
	}
	c := t.c
	logger := log.WithFields(logrus.Fields{"park": t.path, "seat": c.Seat})

	switch t.phase {
	case phaseStart:
		logger.Info("loading park")
		c.State.Event(ride.EventReset)
		c.setStatus(ride.Warning("loading: " + t.path))
		t.phase, t.at = phaseLoad, now.Add(LoadParkSettle)

	case phaseLoad:
		if now.Before(t.at) {
			return false, nil
		}
		if err := c.NL2.LoadPark(ctx, t.paused, t.path); err != nil {
			c.statusKey = ""
			return true, err
		}
		t.phase, t.deadline = phaseWaitReady, now.Add(ReadyTimeout)

	case phaseWaitReady:
		c.Service(ctx)
		if c.NL2.State() != nl2.Ready {
			if now.After(t.deadline) {
				return true, ErrPlayModeTimeout
			}
			return false, nil
		}
		c.NL2.SelectSeat(c.Seat)
		c.State.Event(ride.EventStopped)
		c.statusKey = ""
		logger.Info("park loaded")
		return true, nil
	}
	return false, nil
}

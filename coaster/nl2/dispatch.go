package nl2

import (
	"context"
	"time"
)

const (
	freshAge        = 200 * time.Millisecond
	StationWait     = 4 * time.Second
	StationWaitPoll = 50 * time.Millisecond
)

// readinessStep is one station action of the dispatch sequence: when can is set, act
// and wait until done is set and pending is clear.
type readinessStep struct {
	name    string
	can     StationStatus
	act     func(m *Messenger) error
	done    StationStatus
	pending StationStatus
}

// readinessSteps are in physical safety order.
var readinessSteps = []readinessStep{
	{"close gates", GatesCanClose, func(m *Messenger) error { return m.SetGates(false) }, GatesCanOpen, GatesCanClose},
	{"close harness", HarnessCanClose, func(m *Messenger) error { return m.SetHarness(false) }, HarnessCanOpen, HarnessCanClose},
	{"lock flyer car", FlyerCarCanLock, (*Messenger).LockFlyer, FlyerCarCanUnlock, FlyerCarCanLock},
	{"lower platform", PlatformCanLower, func(m *Messenger) error { return m.SetPlatform(true) }, PlatformCanRaise, PlatformCanLower},
}

// PrepareForDispatch performs at most one station action per call and returns true
// once the station reports it can dispatch. Callers repeat it until true or their own timeout.
func (m *Messenger) PrepareForDispatch(ctx context.Context) bool {
	if !m.EnsureManualMode(ctx, true, 3, 200*time.Millisecond) {
		m.SetManualMode(true)
		m.StationState(0, true)
		return false
	}

	if m.StationBit(CanDispatch, freshAge) {
		return true
	}

	for _, step := range readinessSteps {
		if !m.StationBit(step.can, freshAge) {
			continue
		}
		log.WithField("step", step.name).Info("preparing for dispatch")
		if err := step.act(m); err != nil {
			log.WithError(err).WithField("step", step.name).Warn("station command failed")
			return false
		}
		if !m.WaitStation(ctx, step.done, step.pending, StationWait, StationWaitPoll) {
			log.WithField("step", step.name).Warn("timed out waiting for station")
		}
		return false
	}

	return m.StationBit(CanDispatch, freshAge)
}

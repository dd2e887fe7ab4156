package coaster

import (
	"context"
	"fmt"
	"time"

	"github.com/michaelmargolis/6DoF-Coaster/coaster/nl2"
	"github.com/michaelmargolis/6DoF-Coaster/ride"
	"github.com/sirupsen/logrus"
)

const (
	stoppedSpeed    = 0.5
	stationaryAfter = 3 * time.Second
)

var log = logrus.WithField("pkg", "coaster")

type (
	// CommandFunc receives chair commands raised by the coaster.
	CommandFunc func(cmd ride.Command)
	// MoveFunc receives the decoded pose once per frame while the ride is moving.
	MoveFunc func(pose ride.Pose)
)

// Coaster turns host telemetry into ride events and platform poses, and carries out
// operator actions against the host.
type Coaster struct {
	NL2       *nl2.Messenger
	Transform *Transform
	State     *StateMachine

	// OnStatus is called when the connection status line changes.
	OnStatus func(status ride.Status)
	// OnState is called on every ride state change, and on activation changes.
	OnState func(state ride.State, activated bool)

	ctx     *ride.Context
	command CommandFunc
	move    MoveFunc

	Seat           int32
	leavingStation bool
	prevMovement   time.Time

	status     ride.Status
	statusKey  string
	connecting bool

	clock func() time.Time
}

func New(m *nl2.Messenger, ctx *ride.Context, command CommandFunc, move MoveFunc) *Coaster {
	c := &Coaster{
		NL2:       m,
		Transform: NewTransform(),
		State:     NewStateMachine(ctx),
		ctx:       ctx,
		command:   command,
		move:      move,
		clock:     time.Now,
	}
	c.State.OnChange = c.stateChanged
	return c
}

// SetFrameInterval aligns the telemetry cache with the control frame, less a jitter margin.
func (c *Coaster) SetFrameInterval(frame time.Duration) {
	c.NL2.SetTelemetryMaxAge(frame - 5*time.Millisecond)
}

func (c *Coaster) now() time.Time {
	return c.clock()
}

func (c *Coaster) raise(kind ride.CommandKind) {
	if c.command != nil {
		log.WithField("cmd", kind).Debug("requesting command")
		c.command(ride.Command{Kind: kind})
	}
}

func (c *Coaster) stateChanged(state ride.State, activated bool) {
	if state == ride.ReadyForDispatch && activated {
		c.raise(ride.CmdIdle)
	}
	if c.OnState != nil {
		c.OnState(state, activated)
	}
}

func (c *Coaster) setStatus(s ride.Status) {
	if s == c.status {
		return
	}
	c.status = s
	log.WithField("level", s.Level).Info(s.Text)
	if c.OnStatus != nil {
		c.OnStatus(s)
	}
}

// Report replaces the status line until the connection state next changes.
func (c *Coaster) Report(s ride.Status) {
	c.setStatus(s)
}

// ConnStatus returns the current connection status line.
func (c *Coaster) ConnStatus() ride.Status {
	return c.status
}

// Begin tries to reach the host until it answers a version request or ctx ends.
// The per-frame service keeps retrying on its own, so a failure here is not fatal.
func (c *Coaster) Begin(ctx context.Context) error {
	for {
		if c.connect(ctx) {
			c.NL2.GetNearestStation()
			c.NL2.ResetPark(false)
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for simulation host: %w", ctx.Err())
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// connect opens the link when needed and queries the host version while not in play mode.
func (c *Coaster) connect(ctx context.Context) bool {
	m := c.NL2
	if !m.IsConnected() {
		if !c.connecting {
			c.setStatus(ride.Error("Connecting to NoLimits..."))
			c.connecting = true
		}
		if err := m.Connect(ctx); err != nil {
			c.setStatus(ride.Error("No connection to NoLimits, is it running?"))
			return false
		}
		c.connecting = false
	}

	if m.State() != nl2.Ready {
		if _, err := m.GetVersion(); err != nil {
			c.setStatus(ride.Error("Connected to PC, but NoLimits not responding"))
			return false
		}
	}
	return true
}

// connStatus is the status line for the current connection and activation.
func (c *Coaster) connStatus() ride.Status {
	switch c.NL2.State() {
	case nl2.Ready:
		if !c.ctx.Activated {
			return ride.Warning("Coaster connected but not activated")
		}
		return ride.OK(fmt.Sprintf("Receiving telemetry (~%d ms)", c.NL2.Latency().Milliseconds()))
	case nl2.NotInSimMode:
		return ride.Warning("Coaster connected but not in play mode")
	default:
		return ride.Error("Waiting for Connection to NoLimits")
	}
}

// Service runs one frame: telemetry poll, ride events, pose output and station refresh.
func (c *Coaster) Service(ctx context.Context) {
	if !c.connect(ctx) {
		return
	}
	m := c.NL2

	tm, err := m.GetTelemetryThrottled(0)
	if err != nil {
		log.WithError(err).Debug("telemetry poll failed")
	}

	if m.EnteredReady(ctx) && m.IsTrainInStation() {
		c.State.Event(ride.EventStopped)
	}

	cs := m.State()
	if key := fmt.Sprintf("%d/%t", cs, c.ctx.Activated); key != c.statusKey {
		c.statusKey = key
		c.setStatus(c.connStatus())
	}

	if tm != nil && cs == nl2.Ready {
		speed := float64(tm.Speed)
		c.ctx.Speed = speed

		if m.IsPaused() {
			c.State.Event(ride.EventPaused)
		} else if c.checkIsStationary(speed) {
			c.State.Event(ride.EventStopped)
		} else if c.State.State() == ride.Deactivated {
			// moving at startup
			c.State.Event(ride.EventReset)
		} else {
			c.State.Event(ride.EventUnpaused)
		}

		c.ctx.Pose = c.Transform.Decode(tm)
		if c.ctx.Activated && c.State.State() != ride.ReadyForDispatch && c.move != nil {
			c.move(c.ctx.Pose)
		}
	}

	if m.IsConnected() && cs != nl2.Disconnected {
		m.StationState(nl2.AdaptiveAge, false)
	}
}

// checkIsStationary reports a train that has arrived in the station or stopped moving.
func (c *Coaster) checkIsStationary(speed float64) bool {
	now := c.now()
	if speed >= stoppedSpeed {
		c.prevMovement = now
		return false
	}

	if c.NL2.IsTrainInStation() {
		if !c.leavingStation && c.State.State() == ride.Running {
			log.Info("train arrived in station")
			c.raise(ride.CmdParkPlatform)
			return true
		}
	} else if c.leavingStation {
		log.Debug("train clear of station")
		c.leavingStation = false
	}

	return now.Sub(c.prevMovement) > stationaryAfter
}

// StationSnapshot returns the last station bitfield read from the host.
func (c *Coaster) StationSnapshot() nl2.StationStatus {
	s, _ := c.NL2.StationSnapshot()
	return s
}

//---
// Operator actions
//---

// Pause pauses a running ride and parks the platform, resumes a paused ride,
// or raises the platform for stair access when waiting in the station.
func (c *Coaster) Pause() {
	log.WithField("state", c.State.State()).Info("pause requested")
	switch c.State.State() {
	case ride.Running:
		c.NL2.SetPause(true)
		c.raise(ride.CmdParkPlatform)
	case ride.Paused:
		c.raise(ride.CmdUnparkPlatform)
		c.NL2.SetPause(false)
	case ride.ReadyForDispatch:
		c.raise(ride.CmdSwellForStairs)
	}
}

// Deactivate disables motion, leaves a moving ride paused and parked, and clears activation.
func (c *Coaster) Deactivate() {
	c.raise(ride.CmdDisable)

	switch c.State.State() {
	case ride.Running:
		c.Pause()
	case ride.Paused:
		c.raise(ride.CmdParkPlatform)
	}

	c.State.SetActive(false)
	c.State.Event(ride.EventDeactivated)
	if c.OnState != nil {
		c.OnState(c.State.State(), false)
	}
}

func (c *Coaster) EmergencyStop() {
	log.Warn("emergency stop")
	c.Deactivate()
}

// ResetVR recenters the headset view.
func (c *Coaster) ResetVR() error {
	return c.NL2.RecenterVR()
}
